package storage

import "errors"

var (
	ErrNotFound   = errors.New("storage: not found")
	ErrCorrupt    = errors.New("storage: corrupt entry")
	ErrIDMismatch = errors.New("storage: entry id mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
