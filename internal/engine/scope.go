package engine

import (
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/tensor"
)

// scope tracks the handles created while it is the innermost open scope.
type scope struct {
	id      int
	name    string
	tracked []*tensor.Tensor

	// kept holds the handles exempted from this scope's disposal by Keep.
	kept map[*tensor.Tensor]bool
}

// track adds t to the innermost scope. Outside of any scope handles are owned by the
// caller.
func (e *Engine) track(t *tensor.Tensor) {
	if n := len(e.scopes); n > 0 {
		s := e.scopes[n-1]
		s.tracked = append(s.tracked, t)
	}
}

// NumScopes returns the number of open scopes.
func (e *Engine) NumScopes() int {
	return len(e.scopes)
}

// StartScope opens a scope. Every handle created until the matching EndScope is disposed
// when the scope closes, unless it is kept or returned.
func (e *Engine) StartScope(name string) {
	e.nextScopeID++
	e.scopes = append(e.scopes, &scope{id: e.nextScopeID, name: name})
	klog.V(2).Infof("scope %q (#%d) started, depth %d", name, e.nextScopeID, len(e.scopes))
}

// EndScope closes the innermost scope. Tensors reachable from result and kept tensors
// move to the parent scope; every other tracked tensor is disposed.
//
// result may be a tensor, a *Variable, or any pointer, slice, array, map or struct
// (exported fields) holding them.
func (e *Engine) EndScope(result any) error {
	n := len(e.scopes)
	if n == 0 {
		return ErrNoScope
	}
	s := e.scopes[n-1]
	e.scopes = e.scopes[:n-1]

	keep := collectTensors(result)
	var firstErr error
	disposed := 0
	for _, t := range s.tracked {
		if t.IsDisposed() {
			continue
		}
		if keep[t] || s.kept[t] {
			e.track(t)
			continue
		}
		if err := e.dispose(t); err != nil {
			klog.Warningf("scope %q: disposing %s: %v", s.name, t, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		disposed++
	}
	klog.V(2).Infof("scope %q (#%d) ended, %d tensors disposed", s.name, s.id, disposed)
	return firstErr
}

// endScopesTo closes every scope above depth, disposing everything they track.
func (e *Engine) endScopesTo(depth int) {
	for len(e.scopes) > depth {
		if err := e.EndScope(nil); err != nil {
			klog.Warningf("closing scope: %v", err)
		}
	}
}

// Keep exempts t from disposal by the innermost scope; the parent scope tracks it
// instead. Scopes further out are unaffected, and outside of any scope Keep does
// nothing.
func (e *Engine) Keep(t *tensor.Tensor) *tensor.Tensor {
	n := len(e.scopes)
	if t == nil || n == 0 {
		return t
	}
	s := e.scopes[n-1]
	if s.kept == nil {
		s.kept = make(map[*tensor.Tensor]bool)
	}
	s.kept[t] = true
	return t
}

// Tidy runs fn inside a scope named name and disposes every tensor fn created that was
// not kept.
func (e *Engine) Tidy(name string, fn func() error) error {
	_, err := Tidy(e, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Tidy runs fn inside a scope named name. Tensors reachable from fn's result survive and
// are tracked by the enclosing scope; every other tensor fn created is disposed.
//
// The scope is closed even if fn fails or panics. A panic carrying an error is returned
// as the error; other panics are re-raised once the scope is closed.
func Tidy[T any](e *Engine, name string, fn func() (T, error)) (result T, err error) {
	depth := len(e.scopes)
	e.StartScope(name)
	done := false
	defer func() {
		if !done {
			e.endScopesTo(depth)
		}
	}()

	if exception := exceptions.TryCatch[error](func() { result, err = fn() }); exception != nil {
		err = exception
	}
	if err != nil {
		var zero T
		result = zero
	}
	e.endScopesTo(depth + 1)
	done = true
	if endErr := e.EndScope(result); err == nil {
		err = endErr
	}
	return result, err
}

// Dispose releases the handles. Disposing a handle twice is a no-op.
func (e *Engine) Dispose(ts ...*tensor.Tensor) error {
	var firstErr error
	for _, t := range ts {
		if t == nil {
			continue
		}
		if err := e.dispose(t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) dispose(t *tensor.Tensor) error {
	if !t.MarkDisposed() {
		return nil
	}
	e.numTensors--
	ref := t.Ref()
	if _, live := e.refs[ref]; !live {
		// The owning backend was removed with the buffer.
		return nil
	}
	b, err := e.backendOf(ref)
	if err != nil {
		return err
	}
	reclaimed, err := b.DisposeData(ref.ID, false)
	if err != nil {
		return errors.WithMessagef(err, "disposing %s", t)
	}
	if reclaimed {
		e.dropRef(ref)
	}
	return nil
}

var (
	tensorType   = reflect.TypeOf((*tensor.Tensor)(nil))
	variableType = reflect.TypeOf((*Variable)(nil))
)

// collectTensors returns every tensor reachable from v.
func collectTensors(v any) map[*tensor.Tensor]bool {
	found := make(map[*tensor.Tensor]bool)
	if v == nil {
		return found
	}
	walkTensors(reflect.ValueOf(v), found, make(map[uintptr]bool))
	return found
}

func walkTensors(v reflect.Value, found map[*tensor.Tensor]bool, visited map[uintptr]bool) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		switch v.Type() {
		case tensorType:
			found[v.Interface().(*tensor.Tensor)] = true
			return
		case variableType:
			if value := v.Interface().(*Variable).value; value != nil {
				found[value] = true
			}
			return
		}
		if visited[v.Pointer()] {
			return
		}
		visited[v.Pointer()] = true
		walkTensors(v.Elem(), found, visited)
	case reflect.Interface:
		if !v.IsNil() {
			walkTensors(v.Elem(), found, visited)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			walkTensors(v.Index(i), found, visited)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			walkTensors(iter.Key(), found, visited)
			walkTensors(iter.Value(), found, visited)
		}
	case reflect.Struct:
		typ := v.Type()
		for i := range v.NumField() {
			if typ.Field(i).IsExported() {
				walkTensors(v.Field(i), found, visited)
			}
		}
	default:
	}
}
