package kernels

import "fmt"

// KernelNotFoundError is returned when no kernel is registered for an op on the active
// backend. It usually means the backend's kernels were never registered.
type KernelNotFoundError struct {
	Op      OpID
	Backend BackendID
}

func (e *KernelNotFoundError) Error() string {
	return fmt.Sprintf("kernel %s not found for backend %q (was the backend's kernel set registered?)", e.Op, e.Backend)
}

// DuplicateKernelError is returned when registering an (op, backend) pair twice.
// Gradient configs report Backend "gradient".
type DuplicateKernelError struct {
	Op      OpID
	Backend BackendID
}

func (e *DuplicateKernelError) Error() string {
	return fmt.Sprintf("kernel %s is already registered for backend %q", e.Op, e.Backend)
}
