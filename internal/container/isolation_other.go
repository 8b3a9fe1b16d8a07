//go:build !linux

package container

import "fmt"

// Namespace isolation requires Linux. On other platforms the production
// isolator fails at start; the test double still works everywhere.
type unsupportedIsolator struct{}

// Returns the production isolator for this platform.
func NewIsolator() Isolator {
	return &unsupportedIsolator{}
}

func (*unsupportedIsolator) Start(*Spec) (Proc, error) {
	return nil, fmt.Errorf("%w: namespaces are only supported on linux", ErrLaunch)
}

// Kills the process group led by pid. No-op off Linux.
func killProcessGroup(int) {}

// Reports whether this process is a container init re-exec.
func IsInit() bool {
	return false
}

// The container init path. Never reached off Linux.
func RunInit() {}
