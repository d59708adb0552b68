package toolsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDescriptor(name string) *Descriptor {
	return &Descriptor{
		Name: name,
		Call: func(args []any) (any, error) { return "ok", nil },
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("ping")))

	got, ok := r.Get("ping")
	require.True(t, ok)
	assert.Equal(t, "ping", got.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Descriptor{Call: func(args []any) (any, error) { return nil, nil }})
	assert.Error(t, err)
}

func TestRegisterOverwritesExisting(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("ping")))

	replacement := echoDescriptor("ping")
	replacement.Description = "replaced"
	require.NoError(t, r.Register(replacement))

	got, _ := r.Get("ping")
	assert.Equal(t, "replaced", got.Description)
}

func TestUnregisterIsNoOpForMissingName(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.Unregister("nope") })
}

func TestAllReturnsEverythingRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("a")))
	require.NoError(t, r.Register(echoDescriptor("b")))

	assert.Len(t, r.All(), 2)
}

func TestAsSchemasSkipsUnknownNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("a")))

	schemas := r.AsSchemas([]string{"a", "unknown"})
	assert.Len(t, schemas, 1)
}
