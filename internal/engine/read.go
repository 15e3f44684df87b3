package engine

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/tensor"
)

// Read returns a copy of t's values as a flat slice ([]float32, []int32, ...), waiting
// for pending device work.
func (e *Engine) Read(ctx context.Context, t *tensor.Tensor) (any, error) {
	b, err := e.owner(t)
	if err != nil {
		return nil, err
	}
	values, err := b.Read(ctx, t.DataID())
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", t)
	}
	return values, nil
}

// ReadSync is like Read but never waits: it fails with backend.ErrAsyncOnly when the
// values are only available asynchronously.
func (e *Engine) ReadSync(t *tensor.Tensor) (any, error) {
	b, err := e.owner(t)
	if err != nil {
		return nil, err
	}
	values, err := b.ReadSync(t.DataID())
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", t)
	}
	return values, nil
}

// ReadAll reads several tensors concurrently.
func (e *Engine) ReadAll(ctx context.Context, ts ...*tensor.Tensor) ([]any, error) {
	owners := make([]backend.Backend, len(ts))
	for i, t := range ts {
		b, err := e.owner(t)
		if err != nil {
			return nil, err
		}
		owners[i] = b
	}

	results := make([]any, len(ts))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range ts {
		id := t.DataID()
		g.Go(func() error {
			values, err := owners[i].Read(ctx, id)
			if err != nil {
				return errors.WithMessagef(err, "reading %s", t)
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReadSlice reads t's values as a []T.
func ReadSlice[T tensor.DType](ctx context.Context, e *Engine, t *tensor.Tensor) ([]T, error) {
	values, err := e.Read(ctx, t)
	if err != nil {
		return nil, err
	}
	return tensor.AsSlice[T](values)
}

func (e *Engine) owner(t *tensor.Tensor) (backend.Backend, error) {
	if err := e.checkLive(t); err != nil {
		return nil, err
	}
	return e.backendOf(t.Ref())
}

// RefCount returns the reference count of t's buffer, 0 once it was reclaimed.
func (e *Engine) RefCount(t *tensor.Tensor) int {
	b, err := e.backendOf(t.Ref())
	if err != nil {
		return 0
	}
	return b.RefCount(t.DataID())
}
