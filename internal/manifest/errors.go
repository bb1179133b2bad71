package manifest

import "errors"

var (
	// ErrNotFound indicates the manifest file does not exist.
	ErrNotFound = errors.New("manifest not found")

	// ErrInvalid indicates a malformed or inconsistent manifest.
	ErrInvalid = errors.New("invalid manifest")

	// ErrQuarantineInScanRoot indicates a quarantine target the build tool
	// would still see.
	ErrQuarantineInScanRoot = errors.New("quarantine path inside scan root")

	// ErrUnknownEntry indicates a path the manifest does not list.
	ErrUnknownEntry = errors.New("not a manifest entry")
)
