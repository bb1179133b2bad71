package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoManifest indicates a request without a manifest.
	ErrNoManifest = errors.New("no manifest")

	// ErrPreparationFailed indicates at least one entry could not be prepared,
	// so the build tool was never started.
	ErrPreparationFailed = errors.New("preparation failed")

	// ErrBuildToolFailed indicates the build tool exited non-zero or was
	// interrupted.
	ErrBuildToolFailed = errors.New("build tool failed")

	// ErrPackagingFailed indicates the packaging step failed after a
	// successful build.
	ErrPackagingFailed = errors.New("packaging failed")

	// ErrRestorationFailed indicates at least one entry was left out of place.
	ErrRestorationFailed = errors.New("restoration failed")

	// ErrVerificationFailed indicates a restored entry differs from its
	// pre-run content.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrInterrupted indicates the run was cancelled by the operator.
	ErrInterrupted = errors.New("interrupted")

	// ErrUnsafeOutputDir indicates an output directory that cleaning would
	// remove together with manifest entries or quarantined content.
	ErrUnsafeOutputDir = errors.New("unsafe output directory")

	// ErrInvalidTransition indicates a phase change the table does not allow.
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// BuildError carries the outcome of a failed build tool invocation.
// It matches ErrBuildToolFailed (or ErrPackagingFailed for the packaging
// step) with errors.Is.
type BuildError struct {
	// Step is "build" or "package".
	Step string

	ExitCode int

	// Output is the tail of the combined output.
	Output string

	Interrupted bool

	// Err is set when the process could not be started.
	Err error
}

func (e *BuildError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	case e.Interrupted:
		return fmt.Sprintf("%s interrupted (exit code %d)", e.Step, e.ExitCode)
	default:
		return fmt.Sprintf("%s exited with code %d", e.Step, e.ExitCode)
	}
}

func (e *BuildError) Unwrap() []error {
	kind := ErrBuildToolFailed
	if e.Step == stepPackage {
		kind = ErrPackagingFailed
	}
	errs := []error{kind}
	if e.Interrupted {
		errs = append(errs, ErrInterrupted)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
