package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryWith(t *testing.T) {
	r := NewRegistry(time.Minute)
	id := r.Open()
	assert.Equal(t, 1, r.Len())

	found, err := r.With(id, func(c *Cart) error {
		c.AddLine(product(1, 3, "2"))
		return nil
	})
	require.True(t, found)
	require.NoError(t, err)

	boom := errors.New("boom")
	found, err = r.With(id, func(c *Cart) error {
		assert.Equal(t, 1, c.Len())
		return boom
	})
	assert.True(t, found)
	assert.Equal(t, boom, err)

	found, _ = r.With("missing", func(c *Cart) error { return nil })
	assert.False(t, found)
}

func TestRegistryExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Minute)
	r.now = func() time.Time { return now }

	idle := r.Open()
	active := r.Open()

	now = now.Add(45 * time.Second)
	found, _ := r.With(active, func(c *Cart) error { return nil })
	require.True(t, found)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())

	found, _ = r.With(idle, func(c *Cart) error { return nil })
	assert.False(t, found)

	now = now.Add(2 * time.Minute)
	found, _ = r.With(active, func(c *Cart) error { return nil })
	assert.False(t, found, "expired sessions are dropped on access")
	assert.Zero(t, r.Len())
}

func TestRegistryAbandon(t *testing.T) {
	r := NewRegistry(0)
	id := r.Open()

	assert.True(t, r.Abandon(id))
	assert.False(t, r.Abandon(id))
	assert.Zero(t, r.Sweep())
}
