package store

import "errors"

var (
	ErrDigestMismatch = errors.New("digest mismatch")
	ErrCorruptWrite   = errors.New("corrupt write")
)
