// Parses flags and dispatches subcommands for the pbcr runtime.
//
// The command surface:
//
//	pull <reference>...   Fetch manifests, configs, and layers into the store.
//	run <reference>       Pull, assemble a rootfs, and launch a container.
//	images                List pulled images.
//	ps                    List containers.
//	rm <name>...          Remove containers.
//	version               Show version information.
//
// Global flags select log verbosity and an alternate state directory. The
// exit code of 'run' is the container process's exit status; any pipeline
// failure before launch exits 1.
package cli
