package backend

import "github.com/pkg/errors"

// Errors reported by backends. They are wrapped with the backend name and the buffer
// involved, so match them with errors.Is.
var (
	// ErrOutOfMemory is returned when an allocation exceeds the backend's capacity.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrBackendUnavailable is returned by every call on a backend whose native context
	// was closed or lost, until the backend is created again.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrAsyncOnly is returned by ReadSync when the values can only be obtained
	// asynchronously, e.g. while a device transfer is pending.
	ErrAsyncOnly = errors.New("values only available asynchronously, use Read")

	// ErrAlreadyDisposed is returned for a DataID whose record was reclaimed.
	ErrAlreadyDisposed = errors.New("buffer already disposed")

	// ErrUnknownDataID is returned for a DataID this backend never issued.
	ErrUnknownDataID = errors.New("unknown data id")

	// ErrDTypeMismatch is returned when values don't match the declared dtype or shape.
	ErrDTypeMismatch = errors.New("values do not match dtype/shape")

	// ErrNoBackend is returned when no registered backend could be initialized.
	ErrNoBackend = errors.New("no backend available")

	// ErrDuplicateBackend is returned when registering a backend name twice.
	ErrDuplicateBackend = errors.New("backend already registered")
)
