package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"icepeak/internal/auth"
	"icepeak/internal/coordinator"
	"icepeak/internal/persistence"
	"icepeak/internal/store"
	"icepeak/internal/value"
)

func newTestServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator, func()) {
	t.Helper()
	dir := t.TempDir()
	pv, err := persistence.Load(persistence.Config{
		DataFile:    filepath.Join(dir, "data.json"),
		JournalFile: filepath.Join(dir, "journal.ndjson"),
	})
	require.NoError(t, err)

	coord := coordinator.New(pv)
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)

	mux := http.NewServeMux()
	NewHandler(coord, auth.NewValidator("")).Register(mux)
	srv := httptest.NewServer(mux)

	return srv, coord, cancel
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestSubscribeReceivesInitialValue(t *testing.T) {
	srv, coord, cancel := newTestServer(t)
	defer cancel()
	defer srv.Close()

	require.NoError(t, coord.Modify(context.Background(), store.Put(value.Path{"a"}, "x")))

	conn := dial(t, srv, "/v1/a")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, `"x"`, string(data))
}

func TestCoordinatorShutdownDisconnectsSubscriber(t *testing.T) {
	srv, coord, cancel := newTestServer(t)
	defer cancel()
	defer srv.Close()

	conn := dial(t, srv, "/v1/a")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage() // initial (null)
	require.NoError(t, err)

	require.NoError(t, coord.Shutdown(context.Background()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err) // connection closed server-side, not a hang
}

func TestSubscribeReceivesUpdateOnChange(t *testing.T) {
	srv, coord, cancel := newTestServer(t)
	defer cancel()
	defer srv.Close()

	conn := dial(t, srv, "/v1/a")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage() // initial (null)
	require.NoError(t, err)

	require.NoError(t, coord.Modify(context.Background(), store.Put(value.Path{"a"}, "y")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, `"y"`, string(data))
}
