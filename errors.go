package minifat

import (
	"errors"
)

// Recoverable failure kinds. Operations report them wrapped in an *Error;
// test with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrIsADirectory  = errors.New("is a directory")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidName   = errors.New("invalid name")
	ErrDiskFull      = errors.New("disk full")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrCorruption    = errors.New("corruption")
)

// Error records a failed operation and the name or path it was applied to.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError returns an *Error for op on path.
func NewError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}
