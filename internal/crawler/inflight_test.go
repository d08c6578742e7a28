package crawler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInFlightSet(t *testing.T) {
	t.Parallel()

	s := NewInFlightSet()
	require.True(t, s.TryAdd("en/go"))
	require.False(t, s.TryAdd("en/go"))
	require.True(t, s.TryAdd("de/berlin"))
	require.True(t, s.Contains("en/go"))
	require.Equal(t, []string{"de/berlin", "en/go"}, s.Keys())
	require.Equal(t, 2, s.Len())

	s.Remove("en/go")
	require.False(t, s.Contains("en/go"))
	require.True(t, s.TryAdd("en/go"))
}

func TestInFlightSetSingleWinner(t *testing.T) {
	t.Parallel()

	s := NewInFlightSet()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAdd("en/go") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}
