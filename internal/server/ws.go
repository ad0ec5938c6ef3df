package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relayboard/internal/domain"
)

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const feedWriteTimeout = 10 * time.Second

// feedHub tracks the dashboard websocket subscribers. Every state mutation
// broadcasts a full snapshot; subscribers never send anything meaningful
// back, their read side only detects disconnects.
type feedHub struct {
	mu    sync.Mutex
	conns map[*feedConn]struct{}
}

type feedConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *feedConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (h *feedHub) add(c *feedConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *feedHub) remove(c *feedConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *feedHub) broadcast(snapshot domain.ConnectionsResponse) {
	h.mu.Lock()
	conns := make([]*feedConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.writeJSON(snapshot); err != nil {
			h.remove(c)
			_ = c.conn.Close()
		}
	}
}

func (h *feedHub) closeAll() {
	h.mu.Lock()
	conns := make([]*feedConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = map[*feedConn]struct{}{}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// handleFeed upgrades the dashboard feed socket, pushes the current snapshot
// right away, and keeps the subscriber until its read side fails.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("dashboard feed upgrade failed", "err", err)
		return
	}

	c := &feedConn{conn: conn}
	s.feed.add(c)
	s.log.Debug("dashboard feed subscriber connected", "remote", r.RemoteAddr)

	if err := c.writeJSON(s.connectionsSnapshot()); err != nil {
		s.feed.remove(c)
		_ = conn.Close()
		return
	}

	go func() {
		defer func() {
			s.feed.remove(c)
			_ = conn.Close()
			s.log.Debug("dashboard feed subscriber disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
