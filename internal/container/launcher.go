package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tehasdf/pbcr/internal/store"
)

// Drives containers through their lifecycle and keeps the store's records
// in step: Created -> Running -> Exited -> (Removed | Retained).
type Launcher struct {
	store    *store.Store
	isolator Isolator
}

// Creates a launcher using the given isolation backend.
//
// A nil isolator selects the platform default (namespace isolation on
// Linux); tests inject a double.
func NewLauncher(s *store.Store, isolator Isolator) *Launcher {
	if isolator == nil {
		isolator = NewIsolator()
	}
	return &Launcher{store: s, isolator: isolator}
}

// Runs a container to completion and returns its exit status.
//
// The container record is created before launch and updated at each state
// transition. Wait blocks until the child exits; cancelling the context
// forcibly terminates the process group, after which teardown proceeds as
// for an abnormal exit. With AutoRemove set, the record and rootfs are
// deleted after the exit status is captured; otherwise both are retained
// for later inspection.
//
// A launch failure surfaces as [ErrLaunch] with no container left in the
// running state. The already-built rootfs is kept unless AutoRemove was
// requested; cleaning it up is the caller's choice.
func (l *Launcher) Run(ctx context.Context, spec *Spec) (int, error) {
	proc, err := l.begin(spec)
	if err != nil {
		return -1, err
	}

	code, waitErr := l.wait(ctx, proc)

	rec := store.ContainerRecord{
		Name:     spec.Name,
		Image:    spec.Image,
		Rootfs:   spec.Rootfs,
		State:    store.ContainerExited,
		ExitCode: code,
	}
	if err := l.store.SaveContainer(rec); err != nil {
		return code, err
	}

	slog.Info("container exited", "name", spec.Name, "status", code)

	if spec.AutoRemove {
		if err := l.store.RemoveContainer(spec.Name); err != nil {
			return code, err
		}
		slog.Debug("container removed", "name", spec.Name)
	}

	return code, waitErr
}

// Starts a container without waiting for it to exit.
//
// The record is left in the running state with the child's pid. No one in
// this process waits on the child: when the launcher process exits, the
// container is reparented to init and reaped there. Its record keeps the
// running state until removed; a force removal kills the recorded process
// group first.
func (l *Launcher) Start(spec *Spec) (int, error) {
	proc, err := l.begin(spec)
	if err != nil {
		return 0, err
	}
	return proc.PID(), nil
}

// Creates the container record and starts the isolated process, advancing
// the record Created -> Running.
//
// A start failure surfaces as [ErrLaunch]; when the running-state record
// cannot be written the child is killed and reaped before returning, so no
// unrecorded process is left behind.
func (l *Launcher) begin(spec *Spec) (Proc, error) {
	rec := store.ContainerRecord{
		Name:   spec.Name,
		Image:  spec.Image,
		Rootfs: spec.Rootfs,
		State:  store.ContainerCreated,
	}
	if err := l.store.SaveContainer(rec); err != nil {
		return nil, err
	}

	proc, err := l.isolator.Start(spec)
	if err != nil {
		if spec.AutoRemove {
			l.store.RemoveContainer(spec.Name)
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	rec.PID = proc.PID()
	rec.State = store.ContainerRunning
	if err := l.store.SaveContainer(rec); err != nil {
		proc.Kill()
		proc.Wait()
		return nil, err
	}

	slog.Info("container started", "name", spec.Name, "pid", rec.PID)
	return proc, nil
}

// Blocks until the process exits or the context is cancelled.
//
// On cancellation the process group is killed and the wait result is
// collected anyway, so the exit status reflects the forced termination.
func (l *Launcher) wait(ctx context.Context, proc Proc) (int, error) {
	type result struct {
		code int
		err  error
	}

	done := make(chan result, 1)
	go func() {
		code, err := proc.Wait()
		done <- result{code, err}
	}()

	select {
	case res := <-done:
		return res.code, res.err
	case <-ctx.Done():
		proc.Kill()
		res := <-done
		if res.err != nil {
			return res.code, res.err
		}
		return res.code, ctx.Err()
	}
}

// Removes a retained container's record and rootfs.
//
// Running containers are refused unless force is set, in which case the
// recorded process group is killed first.
func (l *Launcher) Remove(name string, force bool) error {
	rec, err := l.store.GetContainer(name)
	if err != nil {
		return err
	}

	if rec.State == store.ContainerRunning {
		if !force {
			return fmt.Errorf("container %q is running", name)
		}
		if rec.PID > 0 {
			killProcessGroup(rec.PID)
		}
	}

	return l.store.RemoveContainer(name)
}
