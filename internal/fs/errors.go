package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"syscall"
)

// ErrorKind classifies every failure the lister and mutator can return so a
// caller can render an accurate message.
type ErrorKind int

const (
	KindIO ErrorKind = iota // unclassified filesystem failure
	KindNotFound
	KindNotADirectory
	KindPermissionDenied
	KindAlreadyExists
	KindDeleteFailed
	KindCopyFailed
	KindInvalidName
)

var kindNames = map[ErrorKind]string{
	KindIO:               "io error",
	KindNotFound:         "not found",
	KindNotADirectory:    "not a directory",
	KindPermissionDenied: "permission denied",
	KindAlreadyExists:    "already exists",
	KindDeleteFailed:     "delete failed",
	KindCopyFailed:       "copy failed",
	KindInvalidName:      "invalid name",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindIO]
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrIO               = errors.New(KindIO.String())
	ErrNotFound         = errors.New(KindNotFound.String())
	ErrNotADirectory    = errors.New(KindNotADirectory.String())
	ErrPermissionDenied = errors.New(KindPermissionDenied.String())
	ErrAlreadyExists    = errors.New(KindAlreadyExists.String())
	ErrDeleteFailed     = errors.New(KindDeleteFailed.String())
	ErrCopyFailed       = errors.New(KindCopyFailed.String())
	ErrInvalidName      = errors.New(KindInvalidName.String())
)

var sentinels = map[ErrorKind]error{
	KindIO:               ErrIO,
	KindNotFound:         ErrNotFound,
	KindNotADirectory:    ErrNotADirectory,
	KindPermissionDenied: ErrPermissionDenied,
	KindAlreadyExists:    ErrAlreadyExists,
	KindDeleteFailed:     ErrDeleteFailed,
	KindCopyFailed:       ErrCopyFailed,
	KindInvalidName:      ErrInvalidName,
}

// OpError is the error type returned by every operation in this package.
type OpError struct {
	Op   string    // list, create_file, create_folder, delete, copy, trash, stat
	Path string    // path the operation was acting on
	Kind ErrorKind // classification
	Err  error     // underlying cause, may be nil
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *OpError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newError(op, path string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// wrapError classifies err, using fallback when the cause is not one of the
// well-known conditions.
func wrapError(op, path string, err error, fallback ErrorKind) *OpError {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	return newError(op, path, classify(err, fallback), err)
}

func classify(err error, fallback ErrorKind) ErrorKind {
	switch {
	case err == nil:
		return fallback
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindIO
	case errors.Is(err, iofs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, iofs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, iofs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, syscall.ENOTDIR):
		return KindNotADirectory
	}
	return fallback
}

// KindOf returns the kind of err. Errors not produced by this package are
// classified from their cause.
func KindOf(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return classify(err, KindIO)
}
