// Package server exposes the relayboard HTTP surface: repeater event intake,
// device authorization, the dashboard queries, and the live websocket feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"relayboard/internal/config"
	"relayboard/internal/domain"
	"relayboard/internal/state"
	"relayboard/internal/store/sqlite"
)

// BridgeStatus reports whether the websocket bridge process is running.
type BridgeStatus interface {
	Alive() bool
}

type Server struct {
	cfg    config.ServerConfig
	store  *sqlite.Store
	state  *state.State
	bridge BridgeStatus
	log    *slog.Logger
	feed   *feedHub
}

func New(cfg config.ServerConfig, store *sqlite.Store, st *state.State, bridge BridgeStatus, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		state:  st,
		bridge: bridge,
		log:    logger,
		feed:   &feedHub{conns: map[*feedConn]struct{}{}},
	}
}

func (s *Server) Run(ctx context.Context) error {
	go s.runJanitor(ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "addr", s.cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.feed.closeAll()
		return shutdownServer(httpServer, 5*time.Second)
	case err := <-errCh:
		s.feed.closeAll()
		_ = shutdownServer(httpServer, 5*time.Second)
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/event", s.handleEvent)
	mux.HandleFunc("/api/vnc/server/take_slot", s.handleTakeSlot)
	mux.HandleFunc("/api/dashboard/connections", s.handleConnections)
	mux.HandleFunc("/api/dashboard/remove_connection/", s.handleRemoveConnection)
	mux.HandleFunc("/api/dashboard/ws", s.handleFeed)
	mux.HandleFunc("/api/dashboard/activity", s.handleActivity)
	mux.HandleFunc("/api/events/list", s.handleEventsList)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// advertisedHost resolves the host devices should dial for the server slot.
// Config wins when set; otherwise the proxy-forwarded host, then the request
// host, with any port stripped.
func (s *Server) advertisedHost(r *http.Request) string {
	if s.cfg.AdvertisedHost != "" {
		return s.cfg.AdvertisedHost
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		host = s.cfg.RepeaterHost
	}
	return host
}

func remoteAddr(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}

// connectionsSnapshot builds the dashboard payload: the session list plus the
// per-subsystem health flags.
func (s *Server) connectionsSnapshot() domain.ConnectionsResponse {
	conns := s.state.Connections()
	views := make([]domain.ConnectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, domain.ConnectionView{
			SessionID:       c.SessionID,
			SerialID:        c.SerialID,
			ClientIP:        c.ClientAddr,
			ServerConnected: c.ServerConnected,
			ServerIP:        c.ServerAddr,
			ViewerConnected: c.ViewerConnected,
			ViewerIP:        c.ViewerAddr,
			ConnectionCode:  c.Code,
			CreatedTime:     c.CreatedAt.Unix(),
		})
	}
	return domain.ConnectionsResponse{
		Connections: views,
		ServiceStatus: domain.ServiceStatus{
			Repeater: s.state.RelayAlive(time.Now()),
			Bridge:   s.bridge.Alive(),
		},
	}
}

// publishState pushes a fresh snapshot to every dashboard feed subscriber.
func (s *Server) publishState() {
	s.feed.broadcast(s.connectionsSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

func shutdownServer(server *http.Server, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func trimPathID(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
