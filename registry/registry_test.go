package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHandler struct{ name string }

func (h noopHandler) Name() string { return h.name }
func (h noopHandler) Execute(context.Context, map[string]any) (any, error) { return nil, nil }

func TestResolveConstructsFreshHandlerEachCall(t *testing.T) {
	r := New()
	calls := 0
	r.Register("greet", func() (Handler, error) {
		calls++
		return noopHandler{name: "greet"}, nil
	})

	_, err := r.Resolve("greet")
	require.NoError(t, err)
	_, err = r.Resolve("greet")
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "Resolve must invoke the Factory every call, never cache")
}

func TestResolveUnknownNameReturnsErrHandlerNotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve("ghost")
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestResolveFactoryErrorWrapsContractViolation(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	r.Register("broken", func() (Handler, error) { return nil, boom })

	_, err := r.Resolve("broken")
	assert.ErrorIs(t, err, ErrHandlerContractViolation)
	assert.ErrorIs(t, err, boom)
}

func TestResolveNilHandlerReturnsErrHandlerContractViolation(t *testing.T) {
	r := New()
	r.Register("nilhandler", func() (Handler, error) { return nil, nil })

	_, err := r.Resolve("nilhandler")
	assert.ErrorIs(t, err, ErrHandlerContractViolation)
}

func TestRegisterTwiceReplacesFactory(t *testing.T) {
	r := New()
	r.Register("x", func() (Handler, error) { return noopHandler{name: "first"}, nil })
	r.Register("x", func() (Handler, error) { return noopHandler{name: "second"}, nil })

	h, err := r.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, "second", h.Name())
}

func TestNamesListsRegisteredHandlers(t *testing.T) {
	r := New()
	r.Register("a", func() (Handler, error) { return noopHandler{name: "a"}, nil })
	r.Register("b", func() (Handler, error) { return noopHandler{name: "b"}, nil })

	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestHasReportsRegisteredNamesWithoutConstructing(t *testing.T) {
	r := New()
	calls := 0
	r.Register("greet", func() (Handler, error) {
		calls++
		return noopHandler{name: "greet"}, nil
	})

	assert.True(t, r.Has("greet"))
	assert.False(t, r.Has("ghost"))
	assert.Equal(t, 0, calls, "Has must not invoke the Factory")
}
