package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(New("worker", "Does work", "", nil, Options{})))

	a, ok := r.Get("worker")

	require.True(t, ok)
	assert.Equal(t, "worker", a.Name())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryGetMissing(t *testing.T) {
	_, ok := NewRegistry().Get("nonexistent")

	assert.False(t, ok)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()

	err := r.Register(New("worker", "", "", nil, Options{}), New("worker", "", "", nil, Options{}))

	assert.ErrorContains(t, err, `duplicate agent "worker"`)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(
		New("charlie", "Third", "", nil, Options{}),
		New("alpha", "First", "", nil, Options{}, mathToolBox()),
		New("bravo", "Second", "", nil, Options{}),
	))

	entries := r.List()

	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Name: "alpha", Description: "First", Tools: 2}, entries[0])
	assert.Equal(t, "bravo", entries[1].Name)
	assert.Equal(t, "charlie", entries[2].Name)
}
