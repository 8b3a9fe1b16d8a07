// Provides platform-appropriate paths for runtime state.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The runtime name "pbcr" is used as the subdirectory under each
// base path. The store accepts an explicit root, so these defaults are only
// consulted by the CLI; tests substitute temporary directories.
package paths
