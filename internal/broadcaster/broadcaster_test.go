package broadcaster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icepeak/internal/subtree"
	"icepeak/internal/value"
)

func TestNotifyDeliversExtractedValue(t *testing.T) {
	var v value.Value
	v = value.Put(v, value.Path{"a", "b"}, "x")

	var mu sync.Mutex
	var got value.Value
	var wg sync.WaitGroup
	wg.Add(1)

	target := subtree.Target{
		Path: value.Path{"a", "b"},
		ID:   "sub1",
		Deliver: func(delivered value.Value) {
			mu.Lock()
			got = delivered
			mu.Unlock()
			wg.Done()
		},
	}

	New().Notify(v, []subtree.Target{target})

	waitOrTimeout(t, &wg)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "x", got)
}

func TestNotifyDeliversNilForDeletedPath(t *testing.T) {
	var v value.Value

	var wg sync.WaitGroup
	wg.Add(1)
	var got value.Value
	target := subtree.Target{
		Path: value.Path{"gone"},
		ID:   "sub1",
		Deliver: func(delivered value.Value) {
			got = delivered
			wg.Done()
		},
	}

	New().Notify(v, []subtree.Target{target})
	waitOrTimeout(t, &wg)
	assert.Nil(t, got)
}

func TestNotifyDoesNotBlockOnSlowSubscriber(t *testing.T) {
	slowStarted := make(chan struct{})
	target := subtree.Target{
		Path: value.Path{},
		ID:   "slow",
		Deliver: func(value.Value) {
			close(slowStarted)
			time.Sleep(50 * time.Millisecond)
		},
	}

	start := time.Now()
	New().Notify(nil, []subtree.Target{target})
	elapsed := time.Since(start)

	require.Less(t, elapsed, 20*time.Millisecond, "Notify must return before delivery completes")
	<-slowStarted
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
