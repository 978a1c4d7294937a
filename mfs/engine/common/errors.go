package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Kind classifies an engine failure. Every error the engine surfaces to a
// caller carries exactly one Kind; IOFailure is the catch-all for transient
// device errors.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindAccessDenied      Kind = "access_denied"
	KindNotADirectory     Kind = "not_a_directory"
	KindNameConflict      Kind = "name_conflict"
	KindInvalidName       Kind = "invalid_name"
	KindWatchUnavailable  Kind = "watch_unavailable"
	KindTrashUnavailable  Kind = "trash_unavailable"
	KindInsufficientSpace Kind = "insufficient_space"
	KindIOFailure         Kind = "io_failure"
)

// Sentinel errors for the engine taxonomy. Wrapped errors produced by
// WrapPath match these through errors.Is.
var (
	ErrNotFound          = errors.New("entry not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrNotADirectory     = errors.New("not a directory")
	ErrNameConflict      = errors.New("name already exists")
	ErrInvalidName       = errors.New("invalid name")
	ErrWatchUnavailable  = errors.New("watch unavailable")
	ErrTrashUnavailable  = errors.New("trash unavailable")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrIOFailure         = errors.New("i/o failure")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindAccessDenied:      ErrAccessDenied,
	KindNotADirectory:     ErrNotADirectory,
	KindNameConflict:      ErrNameConflict,
	KindInvalidName:       ErrInvalidName,
	KindWatchUnavailable:  ErrWatchUnavailable,
	KindTrashUnavailable:  ErrTrashUnavailable,
	KindInsufficientSpace: ErrInsufficientSpace,
	KindIOFailure:         ErrIOFailure,
}

// PathError is the concrete error type the engine returns for failures tied
// to a filesystem path.
type PathError struct {
	Kind  Kind
	Path  string
	Cause error
}

func (e *PathError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause to
// errors.Is / errors.As.
func (e *PathError) Unwrap() []error {
	sentinel := sentinels[e.Kind]
	if e.Cause != nil {
		return []error{sentinel, e.Cause}
	}
	return []error{sentinel}
}

// WrapPath builds a PathError of the given kind.
func WrapPath(kind Kind, path string, cause error) error {
	return &PathError{Kind: kind, Path: path, Cause: cause}
}

// KindOf extracts the taxonomy kind from any error the engine produced.
// Unclassified errors report KindIOFailure.
func KindOf(err error) Kind {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindIOFailure
}

// Classify converts an os-level error for path into the engine taxonomy.
// nil stays nil; unknown errors become IOFailure.
func Classify(path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return WrapPath(KindNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return WrapPath(KindAccessDenied, path, err)
	case errors.Is(err, fs.ErrExist):
		return WrapPath(KindNameConflict, path, err)
	case errors.Is(err, syscall.ENOTDIR):
		return WrapPath(KindNotADirectory, path, err)
	case errors.Is(err, syscall.ENOSPC):
		return WrapPath(KindInsufficientSpace, path, err)
	case isInvalidNameError(err):
		return WrapPath(KindInvalidName, path, err)
	default:
		return WrapPath(KindIOFailure, path, err)
	}
}

func isInvalidNameError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENAMETOOLONG)
}

// IsCrossDeviceError reports whether err is the EXDEV failure os.Rename
// returns when source and destination are on different volumes.
func IsCrossDeviceError(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}
