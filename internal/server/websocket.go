package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// WebSocket push intervals.
const (
	statusInterval = 3 * time.Second
	logInterval    = 500 * time.Millisecond
)

// upgrader configures the WebSocket upgrader with origin validation for same-origin and local network connections.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Allow requests without Origin header (same-origin requests)
		if origin == "" {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		// Allow local network IPs (192.168.x.x, 10.x.x.x)
		if strings.Contains(origin, "192.168.") || strings.Contains(origin, "://10.") {
			return true
		}
		slog.Warn("rejected WebSocket connection", "origin", origin)
		return false
	},
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// handleWebSocket streams encoder status and log lines to the client and
// executes the commands it sends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{Conn: raw}
	defer util.SafeCloseFunc(raw, "WebSocket connection")()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// Channel to signal status update needed
	statusUpdate := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd WSCommand
			if err := raw.ReadJSON(&cmd); err != nil {
				return
			}
			s.commands.Handle(ctx, cmd, conn, func() {
				select {
				case statusUpdate <- struct{}{}:
				default:
				}
			})
		}
	}()

	statusTicker := time.NewTicker(statusInterval)
	logTicker := time.NewTicker(logInterval)
	defer statusTicker.Stop()
	defer logTicker.Stop()

	sendStatus := func() error {
		return conn.WriteJSON(map[string]any{
			"type":    "status",
			"encoder": redactInfo(s.opts.Encoder.Info()),
			"version": s.opts.Version(),
		})
	}

	var cursor string
	sendLogs := func(entries []types.LogEntry) error {
		if len(entries) == 0 {
			return nil
		}
		cursor = entries[len(entries)-1].ID
		return conn.WriteJSON(map[string]any{
			"type":    "logs",
			"entries": entries,
		})
	}

	if err := sendStatus(); err != nil {
		return
	}
	if err := sendLogs(s.opts.Encoder.RecentLogs(types.LogLimit)); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if err := sendStatus(); err != nil {
				return
			}
		case <-statusTicker.C:
			if err := sendStatus(); err != nil {
				return
			}
		case <-logTicker.C:
			if err := sendLogs(s.opts.Encoder.LogsSince(cursor)); err != nil {
				return
			}
		}
	}
}
