package backend

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Factory creates a backend. It may block (e.g. while requesting a GPU device); the
// context bounds that wait.
type Factory func(ctx context.Context) (Backend, error)

type registryEntry struct {
	name     string
	factory  Factory
	priority int
	instance Backend
}

// Registry holds named backend factories and lazily instantiates them.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a backend factory under name. Higher priorities are preferred when the
// engine selects a backend.
func (r *Registry) Register(name string, factory Factory, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.entries[name]; found {
		return errors.Wrapf(ErrDuplicateBackend, "backend %q", name)
	}
	r.entries[name] = &registryEntry{name: name, factory: factory, priority: priority}
	klog.V(1).Infof("registered backend %q with priority %d", name, priority)
	return nil
}

// Remove closes the backend instance, if any, and forgets its factory.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	e, found := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if !found {
		return errors.Errorf("backend %q is not registered", name)
	}
	if e.instance != nil {
		return e.instance.Close()
	}
	return nil
}

// Drop closes and forgets the instance of name but keeps its factory, so the next
// Instance call creates the backend again.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	e, found := r.entries[name]
	var instance Backend
	if found {
		instance, e.instance = e.instance, nil
	}
	r.mu.Unlock()

	if instance != nil {
		return instance.Close()
	}
	return nil
}

// Names returns the registered backend names, highest priority first.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].name < entries[j].name
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Priority returns the priority name was registered with.
func (r *Registry) Priority(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[name]
	if !found {
		return 0, false
	}
	return e.priority, true
}

// Initialized returns the instance of name if it was already created.
func (r *Registry) Initialized(name string) (Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[name]
	if !found || e.instance == nil {
		return nil, false
	}
	return e.instance, true
}

// Instance returns the backend registered under name, creating it on first use.
// A failed creation is not remembered: the next call tries the factory again.
func (r *Registry) Instance(ctx context.Context, name string) (Backend, error) {
	r.mu.Lock()
	e, found := r.entries[name]
	if !found {
		r.mu.Unlock()
		return nil, errors.Errorf("backend %q is not registered", name)
	}
	if e.instance != nil {
		b := e.instance
		r.mu.Unlock()
		return b, nil
	}
	factory := e.factory
	r.mu.Unlock()

	b, err := factory(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "initializing backend %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.instance != nil {
		// Lost a race with a concurrent Probe; keep the first instance.
		_ = b.Close()
		return e.instance, nil
	}
	e.instance = b
	klog.V(1).Infof("initialized backend %q", name)
	return b, nil
}

// Best returns the preferred backend if given and it initializes, otherwise the highest
// priority backend whose factory succeeds.
func (r *Registry) Best(ctx context.Context, preferred string) (string, Backend, error) {
	if preferred != "" {
		b, err := r.Instance(ctx, preferred)
		if err == nil {
			return preferred, b, nil
		}
		klog.Warningf("preferred backend %q unavailable, falling back by priority: %v", preferred, err)
	}
	for _, name := range r.Names() {
		if name == preferred {
			continue
		}
		b, err := r.Instance(ctx, name)
		if err != nil {
			klog.Warningf("backend %q failed to initialize: %v", name, err)
			continue
		}
		return name, b, nil
	}
	return "", nil, errors.Wrapf(ErrNoBackend, "tried %v", r.Names())
}

// ProbeResult describes the outcome of initializing one backend.
type ProbeResult struct {
	Name     string
	Priority int
	Err      error
	Memory   MemoryInfo
}

// Probe initializes every registered backend concurrently and reports each result.
// Backends that fail are reported, not returned as an error; only ctx cancellation is.
func (r *Registry) Probe(ctx context.Context) ([]ProbeResult, error) {
	names := r.Names()
	results := make([]ProbeResult, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		priority, _ := r.Priority(name)
		results[i] = ProbeResult{Name: name, Priority: priority}
		g.Go(func() error {
			b, err := r.Instance(ctx, name)
			if err != nil {
				results[i].Err = err
				return ctx.Err()
			}
			results[i].Memory = b.Memory()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Close closes every instantiated backend. Factories stay registered.
func (r *Registry) Close() error {
	r.mu.Lock()
	var instances []Backend
	for _, e := range r.entries {
		if e.instance != nil {
			instances = append(instances, e.instance)
			e.instance = nil
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, b := range instances {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
