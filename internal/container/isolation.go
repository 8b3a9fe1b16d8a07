package container

// A started, isolated container process.
type Proc interface {

	// Returns the process id as seen from the host.
	PID() int

	// Blocks until the process exits and returns its exit status.
	Wait() (int, error)

	// Forcibly terminates the process group.
	Kill() error
}

// The narrow capability the launcher needs from the operating system:
// start a process confined to the spec's rootfs and namespaces.
//
// The production implementation re-execs the pbcr binary into fresh mount,
// PID, and UTS namespaces and pivots into the rootfs. Tests substitute a
// double that simulates start, wait, and exit without real isolation or
// privileges.
type Isolator interface {
	Start(spec *Spec) (Proc, error)
}
