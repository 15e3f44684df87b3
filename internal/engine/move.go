package engine

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/tensor"
)

// moveData relocates ref's buffer to dst, keeping its reference count, and releases the
// source record. Every handle sharing ref follows the data.
func (e *Engine) moveData(ref *tensor.DataRef, name string, dst backend.Backend) error {
	src, err := e.backendOf(ref)
	if err != nil {
		return err
	}
	values, err := src.ReadSync(ref.ID)
	if errors.Is(err, backend.ErrAsyncOnly) {
		values, err = src.Read(context.Background(), ref.ID)
	}
	if err != nil {
		return errors.WithMessagef(err, "moving %s from %q to %q", ref.ID, ref.Backend, name)
	}
	refCount := src.RefCount(ref.ID)
	id, err := dst.Move(values, ref.Shape, ref.DType, refCount)
	if err != nil {
		return errors.WithMessagef(err, "moving %s from %q to %q", ref.ID, ref.Backend, name)
	}
	if _, err := src.DisposeData(ref.ID, true); err != nil {
		klog.Warningf("releasing %s on %q after move: %v", ref.ID, ref.Backend, err)
	}
	klog.V(2).Infof("moved %s (%s%v, %d refs) from %q to %q as %s", ref.ID, ref.DType, ref.Shape, refCount, ref.Backend, name, id)
	ref.ID, ref.Backend = id, name
	return nil
}

// Move relocates t's buffer to the active backend if it lives elsewhere. Operations
// move their inputs on demand, so calling Move is only needed to free the old backend.
func (e *Engine) Move(t *tensor.Tensor) error {
	if err := e.checkLive(t); err != nil {
		return err
	}
	name, b, err := e.activeBackend(context.Background())
	if err != nil {
		return err
	}
	if t.Backend() == name {
		return nil
	}
	return e.moveData(t.Ref(), name, b)
}

// SetBackend makes name the active backend, creating it if needed. Tensors on the
// previous backend stay there until an operation uses them.
func (e *Engine) SetBackend(ctx context.Context, name string) error {
	if e.backend != nil && e.backendName == name {
		return nil
	}
	b, err := e.backends.Instance(ctx, name)
	if err != nil {
		return err
	}
	if e.backend != nil {
		if err := e.teardown(e.backendName, e.backend); err != nil {
			return err
		}
	}
	if err := e.activate(name, b); err != nil {
		return err
	}
	klog.V(1).Infof("engine %s: switched to backend %q", e.id, name)
	return nil
}

// RemoveBackend closes the backend and unregisters it. Buffers it still held are lost:
// their handles can only be disposed afterwards.
func (e *Engine) RemoveBackend(name string) error {
	if b, found := e.backends.Initialized(name); found {
		if err := e.teardown(name, b); err != nil {
			klog.Warningf("removing backend %q: %v", name, err)
		}
	}
	lost := 0
	for ref := range e.refs {
		if ref.Backend == name {
			e.dropRef(ref)
			lost++
		}
	}
	if lost > 0 {
		klog.Warningf("removing backend %q drops %d live buffers", name, lost)
	}
	if e.backendName == name {
		e.backendName, e.backend = "", nil
	}
	return e.backends.Remove(name)
}
