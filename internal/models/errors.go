package models

import "errors"

// Error kinds used across the installer. Steps wrap these with context via
// fmt.Errorf("%w: ...") so callers can classify failures with errors.Is.
var (
	// ErrConfiguration marks bad or missing input, caught before any mutation.
	ErrConfiguration = errors.New("configuration error")

	// ErrPrivilege marks a run without sufficient rights.
	ErrPrivilege = errors.New("privilege error")

	// ErrPlatform marks missing OS tooling or an unsupported architecture.
	ErrPlatform = errors.New("platform error")

	// ErrNetwork marks a failed fetch or API call.
	ErrNetwork = errors.New("network error")

	// ErrNotFound marks a lookup that produced no usable result.
	ErrNotFound = errors.New("not found")

	// ErrExecution marks a delegated external command that returned non-zero.
	ErrExecution = errors.New("execution error")
)
