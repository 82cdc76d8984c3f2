// Package ws implements Icepeak's WebSocket subscription surface: clients
// connect to a path and receive the current value at that path every time
// it (or something under/over it) changes.
package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"icepeak/internal/auth"
	"icepeak/internal/coordinator"
	"icepeak/internal/log"
	"icepeak/internal/value"
)

// outboundBuffer bounds each connection's pending-notification queue. A
// connection that cannot keep up is disconnected rather than allowed to
// apply backpressure to the broadcaster.
const outboundBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to WebSocket subscriptions.
type Handler struct {
	coord *coordinator.Coordinator
	auth  *auth.Validator
}

// NewHandler constructs a Handler.
func NewHandler(coord *coordinator.Coordinator, validator *auth.Validator) *Handler {
	return &Handler{coord: coord, auth: validator}
}

// Register mounts the subscription endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/", h.serveWS)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	path := parsePath(strings.TrimPrefix(r.URL.Path, "/v1"))
	token := bearerToken(r)
	if err := h.auth.Authorize(token, path); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithComponent("ws").Warn().Err(err).Msg("upgrade failed")
		return
	}

	connID := uuid.New().String()
	logger := log.WithConn(connID)
	outbound := make(chan value.Value, outboundBuffer)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	initial, err := h.coord.Subscribe(ctx, path, connID, func(v value.Value) {
		select {
		case outbound <- v:
		default:
			// Slow subscriber: drop the connection rather than block the
			// broadcaster or accumulate unbounded backlog.
			cancel()
		}
	}, cancel) // on coordinator shutdown, cancel ends the write loop below and the deferred cleanup closes conn.
	if err != nil {
		logger.Warn().Err(err).Msg("subscribe failed")
		conn.Close()
		return
	}

	defer func() {
		unsubCtx, unsubCancel := context.WithCancel(context.Background())
		defer unsubCancel()
		if err := h.coord.Unsubscribe(unsubCtx, path, connID); err != nil {
			logger.Warn().Err(err).Msg("unsubscribe failed")
		}
		conn.Close()
	}()

	go readPump(conn, cancel)

	if err := writeValue(conn, initial); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-outbound:
			if err := writeValue(conn, v); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames (this protocol is server-push only) and
// cancels ctx once the client disconnects or the connection errors.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeValue(conn *websocket.Conn, v value.Value) error {
	data, err := value.Encode(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return r.URL.Query().Get("token")
}

func parsePath(raw string) value.Path {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return value.Path{}
	}
	return value.Path(strings.Split(trimmed, "/"))
}
