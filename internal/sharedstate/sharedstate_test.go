package sharedstate_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/sharedstate"
)

func TestGetSetRoundTrip(t *testing.T) {
	s := sharedstate.New()
	_, ok := s.Get("missing")
	require.False(t, ok)

	s.Set("key", "value")
	v, ok := s.Get("key")
	require.True(t, ok)
	require.Equal(t, "value", v)
}

func TestKeysSnapshot(t *testing.T) {
	s := sharedstate.New()
	s.Set("a", "1")
	s.Set("b", "2")

	keys := s.Keys()
	sort.Strings(keys)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestConcurrentAccess(t *testing.T) {
	s := sharedstate.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Set("counter", "x")
			s.Get("counter")
		}(i)
	}
	wg.Wait()
	v, ok := s.Get("counter")
	require.True(t, ok)
	require.Equal(t, "x", v)
}
