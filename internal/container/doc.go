// Package container launches and tracks isolated processes.
//
// A [Spec] describes one container: its name, rootfs, and resolved process.
// The [Launcher] drives the lifecycle Created -> Running -> Exited,
// recording each transition in the store, and optionally removes the
// container after exit.
//
// Isolation itself sits behind the narrow [Isolator] interface. The Linux
// implementation re-execs the pbcr binary with fresh mount, PID, and UTS
// namespaces (the network namespace stays shared with the host); the child
// runs [RunInit], which bind-mounts the rootfs, mounts /proc, moves the
// mount over / and chroots into it, then execs the entrypoint. Everything
// above the interface is testable without privileges via a fake isolator.
//
// Example usage:
//
//	process, err := container.ResolveProcess(img.Config, "", nil)
//	if err != nil {
//	    return err
//	}
//
//	launcher := container.NewLauncher(s, nil)
//	status, err := launcher.Run(ctx, &container.Spec{
//	    Name:    "web",
//	    Image:   img.Name.String(),
//	    Rootfs:  s.RootfsDir("web"),
//	    Process: process,
//	})
package container
