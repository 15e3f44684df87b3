package backend

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/tensor"
)

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct {
	name   string
	closed atomic.Bool
	store  *Arena[any]
}

func newStub(name string) *stubBackend {
	return &stubBackend{name: name, store: NewArena[any]()}
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Write(values any, _ tensor.Shape, _ tensor.DataType) (tensor.DataID, error) {
	return s.store.Insert(values, 1), nil
}

func (s *stubBackend) Move(values any, _ tensor.Shape, _ tensor.DataType, refCount int) (tensor.DataID, error) {
	return s.store.Insert(values, refCount), nil
}

func (s *stubBackend) Read(_ context.Context, id tensor.DataID) (any, error) { return s.store.Get(id) }
func (s *stubBackend) ReadSync(id tensor.DataID) (any, error)                { return s.store.Get(id) }
func (s *stubBackend) IncRef(id tensor.DataID) error                         { return s.store.IncRef(id) }

func (s *stubBackend) DisposeData(id tensor.DataID, force bool) (bool, error) {
	_, reclaimed, err := s.store.Release(id, force)
	return reclaimed, err
}

func (s *stubBackend) RefCount(id tensor.DataID) int { return s.store.RefCount(id) }
func (s *stubBackend) NumDataIDs() int               { return s.store.Len() }
func (s *stubBackend) Memory() MemoryInfo            { return MemoryInfo{NumBuffers: s.store.Len(), Reliable: true} }

func (s *stubBackend) Time(f func() error) (TimingInfo, error) { return TimingInfo{}, f() }

func (s *stubBackend) Close() error {
	s.closed.Store(true)
	return nil
}

func stubFactory(b *stubBackend) Factory {
	return func(context.Context) (Backend, error) { return b, nil }
}

func failingFactory(context.Context) (Backend, error) {
	return nil, errors.Wrap(ErrBackendUnavailable, "no device")
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("cpu", stubFactory(newStub("cpu")), 1))
	err := r.Register("cpu", stubFactory(newStub("cpu")), 1)
	assert.True(t, errors.Is(err, ErrDuplicateBackend))
}

func TestRegistry_NamesByPriority(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("cpu", stubFactory(newStub("cpu")), 1))
	require.NoError(t, r.Register("webgpu", stubFactory(newStub("webgpu")), 2))
	require.NoError(t, r.Register("aaa", stubFactory(newStub("aaa")), 1))
	assert.Equal(t, []string{"webgpu", "aaa", "cpu"}, r.Names())
}

func TestRegistry_InstanceIsLazyAndCached(t *testing.T) {
	r := NewRegistry()
	calls := 0
	stub := newStub("cpu")
	require.NoError(t, r.Register("cpu", func(context.Context) (Backend, error) {
		calls++
		return stub, nil
	}, 1))

	_, ok := r.Initialized("cpu")
	assert.False(t, ok)

	b1, err := r.Instance(context.Background(), "cpu")
	require.NoError(t, err)
	b2, err := r.Instance(context.Background(), "cpu")
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, 1, calls)
}

func TestRegistry_BestFallsBackByPriority(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("webgpu", failingFactory, 2))
	require.NoError(t, r.Register("cpu", stubFactory(newStub("cpu")), 1))

	name, b, err := r.Best(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "cpu", name)
	assert.Equal(t, "cpu", b.Name())
}

func TestRegistry_BestHonorsPreferred(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("webgpu", stubFactory(newStub("webgpu")), 2))
	require.NoError(t, r.Register("cpu", stubFactory(newStub("cpu")), 1))

	name, _, err := r.Best(context.Background(), "cpu")
	require.NoError(t, err)
	assert.Equal(t, "cpu", name)
}

func TestRegistry_BestNoBackend(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("webgpu", failingFactory, 2))
	_, _, err := r.Best(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoBackend))
}

func TestRegistry_Probe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("webgpu", failingFactory, 2))
	require.NoError(t, r.Register("cpu", stubFactory(newStub("cpu")), 1))

	results, err := r.Probe(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "webgpu", results[0].Name)
	assert.True(t, errors.Is(results[0].Err, ErrBackendUnavailable))
	assert.Equal(t, "cpu", results[1].Name)
	assert.NoError(t, results[1].Err)
}

func TestRegistry_RemoveAndDropClose(t *testing.T) {
	r := NewRegistry()
	stub := newStub("cpu")
	require.NoError(t, r.Register("cpu", stubFactory(stub), 1))
	_, err := r.Instance(context.Background(), "cpu")
	require.NoError(t, err)

	require.NoError(t, r.Drop("cpu"))
	assert.True(t, stub.closed.Load())
	_, ok := r.Initialized("cpu")
	assert.False(t, ok)

	require.NoError(t, r.Remove("cpu"))
	assert.Empty(t, r.Names())
	assert.Error(t, r.Remove("cpu"))
}
