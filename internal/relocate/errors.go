package relocate

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingOptionalPath indicates an optional manifest entry is absent
	// from the checkout. Callers treat it as a skip, not a failure.
	ErrMissingOptionalPath = errors.New("optional path missing")

	// ErrFilesystemOperation indicates a quarantine or stub step failed for
	// one entry.
	ErrFilesystemOperation = errors.New("filesystem operation failed")

	// ErrRestorationFailed indicates an entry could not be put back.
	ErrRestorationFailed = errors.New("restoration failed")

	// ErrNotQuarantined indicates a stub step on an entry that was never moved.
	ErrNotQuarantined = errors.New("entry is not quarantined")
)

// Error describes a failed step on a single manifest entry.
// It matches both its category (Kind) and the underlying cause with errors.Is.
type Error struct {
	// Op is the step that failed: quarantine, restore, install-stub, uninstall-stub.
	Op string

	// Path is the manifest-relative path of the entry.
	Path string

	// Kind is one of the sentinel categories above.
	Kind error

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsMissingOptional reports whether err only says an optional path was absent.
func IsMissingOptional(err error) bool {
	return errors.Is(err, ErrMissingOptionalPath)
}
