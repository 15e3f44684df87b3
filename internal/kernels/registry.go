package kernels

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type kernelKey struct {
	op      OpID
	backend BackendID
}

// Registry maps (OpID, BackendID) to kernels and OpID to gradient configs.
//
// Registration normally happens once at startup, lookups on every dispatch; the lock
// only guards against registration racing with a running engine.
type Registry struct {
	mu        sync.RWMutex
	kernels   map[kernelKey]KernelConfig
	gradients map[OpID]GradConfig
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kernels:   make(map[kernelKey]KernelConfig),
		gradients: make(map[OpID]GradConfig),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the default engine.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a kernel. It fails with *DuplicateKernelError if the (op, backend) pair
// is already registered.
func (r *Registry) Register(cfg KernelConfig) error {
	if cfg.Op <= OpInvalid || cfg.Op >= OpLast {
		return errors.Errorf("cannot register kernel for invalid op %s", cfg.Op)
	}
	if cfg.Kernel == nil {
		return errors.Errorf("kernel %s for backend %q has no function", cfg.Op, cfg.Backend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := kernelKey{cfg.Op, cfg.Backend}
	if _, found := r.kernels[key]; found {
		return &DuplicateKernelError{Op: cfg.Op, Backend: cfg.Backend}
	}
	r.kernels[key] = cfg
	klog.V(2).Infof("registered kernel %s for backend %q", cfg.Op, cfg.Backend)
	return nil
}

// Unregister removes the kernel of (op, backend), if any.
func (r *Registry) Unregister(op OpID, backendID BackendID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kernels, kernelKey{op, backendID})
}

// Lookup returns the kernel of (op, backend).
func (r *Registry) Lookup(op OpID, backendID BackendID) (KernelConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, found := r.kernels[kernelKey{op, backendID}]
	return cfg, found
}

// KernelsForBackend returns every kernel registered for backendID, sorted by op.
func (r *Registry) KernelsForBackend(backendID BackendID) []KernelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cfgs []KernelConfig
	for key, cfg := range r.kernels {
		if key.backend == backendID {
			cfgs = append(cfgs, cfg)
		}
	}
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].Op < cfgs[j].Op })
	return cfgs
}

// RegisterGradient adds the gradient config of an op.
func (r *Registry) RegisterGradient(cfg GradConfig) error {
	if cfg.Rule == nil {
		return errors.Errorf("gradient of %s has no rule", cfg.Op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.gradients[cfg.Op]; found {
		return &DuplicateKernelError{Op: cfg.Op, Backend: "gradient"}
	}
	r.gradients[cfg.Op] = cfg
	return nil
}

// Gradient returns the gradient config of op.
func (r *Registry) Gradient(op OpID) (GradConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, found := r.gradients[op]
	return cfg, found
}
