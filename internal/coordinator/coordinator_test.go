package coordinator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icepeak/internal/persistence"
	"icepeak/internal/store"
	"icepeak/internal/value"
)

func newTestCoordinator(t *testing.T) (*Coordinator, context.Context, context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	pv, err := persistence.Load(persistence.Config{
		DataFile:    filepath.Join(dir, "data.json"),
		JournalFile: filepath.Join(dir, "journal.ndjson"),
	})
	require.NoError(t, err)

	c := New(pv)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, ctx, cancel
}

func TestModifyThenGet(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "x")))
	got, ok := c.Get(value.Path{"a"})
	require.True(t, ok)
	assert.Equal(t, "x", got)
}

func TestSubscribeReceivesInitialSnapshotThenUpdate(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "x")))

	var mu sync.Mutex
	var updates []value.Value
	updated := make(chan struct{}, 1)

	initial, err := c.Subscribe(ctx, value.Path{"a"}, "sub1", func(v value.Value) {
		mu.Lock()
		updates = append(updates, v)
		mu.Unlock()
		select {
		case updated <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", initial)

	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "y")))

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 1)
	assert.Equal(t, "y", updates[0])
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	var calls int
	var mu sync.Mutex
	_, err := c.Subscribe(ctx, value.Path{"a"}, "sub1", func(value.Value) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Unsubscribe(ctx, value.Path{"a"}, "sub1"))
	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "x")))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestTickSyncsToDisk(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "x")))
	require.NoError(t, c.Tick(ctx))
}

func TestShutdownPerformsFinalSync(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	require.NoError(t, c.Modify(ctx, store.Put(value.Path{"a"}, "x")))
	require.NoError(t, c.Shutdown(ctx))
}

func TestShutdownClosesEverySubscriber(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	closed := make(chan string, 2)
	_, err := c.Subscribe(ctx, value.Path{"a"}, "sub1", func(value.Value) {}, func() { closed <- "sub1" })
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, value.Path{"b"}, "sub2", func(value.Value) {}, func() { closed <- "sub2" })
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(ctx))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case id := <-closed:
			got = append(got, id)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for subscriber close callbacks")
		}
	}
	assert.ElementsMatch(t, []string{"sub1", "sub2"}, got)
}

func TestUnsubscribeAfterShutdownIsANoop(t *testing.T) {
	c, ctx, cancel := newTestCoordinator(t)
	defer cancel()

	_, err := c.Subscribe(ctx, value.Path{"a"}, "sub1", func(value.Value) {}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Shutdown(ctx))

	require.NoError(t, c.Unsubscribe(ctx, value.Path{"a"}, "sub1"))
}
