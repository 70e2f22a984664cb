package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Lookup(1)
	assert.False(t, ok)

	reg.Register(1, "c1")
	connID, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "c1", connID)
}

func TestLastRegistrationWins(t *testing.T) {
	reg := NewRegistry()

	reg.Register(1, "c1")
	reg.Register(1, "c2")

	connID, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "c2", connID)

	// Unregistering the stale connection must not evict the new one.
	reg.Unregister("c1")
	connID, ok = reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "c2", connID)
}

func TestUnregisterByConnID(t *testing.T) {
	reg := NewRegistry()

	reg.Register(1, "c1")
	reg.Register(2, "c2")

	reg.Unregister("c1")
	_, ok := reg.Lookup(1)
	assert.False(t, ok)

	connID, ok := reg.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "c2", connID)

	// Unknown conn ids are ignored.
	reg.Unregister("nope")
	assert.Equal(t, 1, reg.Online())
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", userID)
			reg.Register(userID, connID)
			if userID%2 == 0 {
				reg.Unregister(connID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, reg.Online())
	for i := 1; i < 50; i += 2 {
		connID, ok := reg.Lookup(i)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("conn-%d", i), connID)
	}
}
