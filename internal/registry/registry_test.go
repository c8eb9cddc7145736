package registry

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New()
	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := New()
	defer r.Close()

	a, err := r.GetOrCreate("screen")
	require.NoError(t, err)
	b, err := r.GetOrCreate("screen")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())

	// Writes through one handle are visible through the other
	a.Set("count", Int(3))
	v, ok := b.Get("count")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(3)))
}

func TestRegistry_GetOrCreate_EmptyName(t *testing.T) {
	r := New()
	_, err := r.GetOrCreate("")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRegistry_GetOrCreate_Concurrent(t *testing.T) {
	r := New()
	defer r.Close()

	const workers = 32
	got := make([]*Category, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.GetOrCreate("layout")
			if err == nil {
				got[i] = c
			}
		}()
	}
	wg.Wait()

	for _, c := range got {
		assert.Same(t, got[0], c)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	defer r.Close()

	_, err := r.GetOrCreate("theme")
	require.NoError(t, err)

	c, ok := r.Remove("theme")
	assert.True(t, ok)
	assert.Equal(t, "theme", c.Name())
	assert.Equal(t, 0, r.Len())

	// Removing again is a no-op
	c, ok = r.Remove("theme")
	assert.False(t, ok)
	assert.Nil(t, c)
}

func TestRegistry_Names_Snapshot(t *testing.T) {
	r := New()
	defer r.Close()

	for _, n := range []string{"theme", "layout", "screen"} {
		_, err := r.GetOrCreate(n)
		require.NoError(t, err)
	}

	names := r.Names()

	// Mutations after Names was called are not reflected
	_, err := r.GetOrCreate("extra")
	require.NoError(t, err)
	r.Remove("layout")

	assert.Equal(t, []string{"layout", "screen", "theme"}, slices.Collect(names))
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	defer r.Close()

	c, err := r.GetOrCreate("screen")
	require.NoError(t, err)
	c.Set("count", Int(2))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"screen":{"count":2}}`, string(data))
}

func TestRegistry_Close(t *testing.T) {
	r := New()

	_, err := r.GetOrCreate("screen")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())

	_, err = r.GetOrCreate("screen")
	assert.ErrorIs(t, err, ErrRegistryClosed)

	// Closing twice is fine
	assert.NoError(t, r.Close())
}
