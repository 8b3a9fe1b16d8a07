package container

import "errors"

var (
	ErrLaunch       = errors.New("container launch failed")
	ErrNoEntrypoint = errors.New("no entrypoint or command to run")
)
