// Package state holds the authoritative in-memory view of device
// authorizations, live relay connections, and their correlation.
//
// All tables live behind a single mutex: the event path, the HTTP query
// path, and the background sweeper mutate the same maps, and the linking
// scan in the engine must be atomic with respect to concurrent
// SERVER_CONNECT events racing for the same pending authorization. Nothing
// in here blocks on I/O; durable audit writes go through [Auditor] and are
// fire-and-forget relative to in-memory correctness.
package state

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"relayboard/internal/domain"
)

// Auditor receives durable audit callbacks as the engine resolves
// authorization sessions. Calls are made with the state lock held and must
// not block; implementations hand the write off to their own goroutine.
type Auditor interface {
	AuthSessionUsed(sessionID int64)
	AuthSessionExpired(sessionID int64)
}

// Options tunes the state store. Zero values select the defaults.
type Options struct {
	SessionTTL       time.Duration // authorization time-to-live (default 5m)
	HeartbeatWindow  time.Duration // relay liveness window (default 2m)
	ActivityCapacity int           // recent-activity ring size (default 100)
}

const (
	defaultSessionTTL       = 5 * time.Minute
	defaultHeartbeatWindow  = 2 * time.Minute
	defaultActivityCapacity = 100

	// The bridge terminates viewer TCP connections locally, so the relay
	// reports the bridge host instead of the real viewer address.
	viewerViaBridge = "via bridge"
	loopbackAddr    = "127.0.0.1"
)

// State owns every correlation table. Create with [New]; never copy.
type State struct {
	log     *slog.Logger
	auditor Auditor

	ttl             time.Duration
	heartbeatWindow time.Duration
	activityCap     int

	mu             sync.Mutex
	auth           []*domain.AuthSession // creation order, scanned by the linker
	authByID       map[int64]*domain.AuthSession
	relay          map[int]*domain.RelaySession
	links          map[int]int64 // connection code -> session id
	dashboard      map[int64]*domain.DashboardConnection
	activity       []domain.ActivityEntry
	relayHeartbeat time.Time
}

// New creates an empty state store. The relay heartbeat clock starts at now
// so the dashboard reports the relay healthy until the first window elapses.
func New(auditor Auditor, logger *slog.Logger, opts Options) *State {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.HeartbeatWindow <= 0 {
		opts.HeartbeatWindow = defaultHeartbeatWindow
	}
	if opts.ActivityCapacity <= 0 {
		opts.ActivityCapacity = defaultActivityCapacity
	}
	return &State{
		log:             logger,
		auditor:         auditor,
		ttl:             opts.SessionTTL,
		heartbeatWindow: opts.HeartbeatWindow,
		activityCap:     opts.ActivityCapacity,
		authByID:        map[int64]*domain.AuthSession{},
		relay:           map[int]*domain.RelaySession{},
		links:           map[int]int64{},
		dashboard:       map[int64]*domain.DashboardConnection{},
		relayHeartbeat:  time.Now(),
	}
}

// Authorize registers a device claim and its dashboard projection. The
// session id is a 10-digit integer, collision-checked against live sessions.
func (s *State) Authorize(serialID, clientAddr, serverSlot string) (domain.AuthSession, error) {
	serialID = strings.TrimSpace(serialID)
	if serialID == "" {
		return domain.AuthSession{}, domain.ErrMissingSerialID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &domain.AuthSession{
		SessionID:  s.newSessionIDLocked(),
		SerialID:   serialID,
		ClientAddr: clientAddr,
		ServerSlot: serverSlot,
		CreatedAt:  now,
		Status:     domain.AuthStatusReady,
	}
	s.auth = append(s.auth, sess)
	s.authByID[sess.SessionID] = sess
	s.dashboard[sess.SessionID] = &domain.DashboardConnection{
		SessionID:  sess.SessionID,
		SerialID:   serialID,
		ClientAddr: clientAddr,
		CreatedAt:  now,
	}
	s.log.Info("authorization session created",
		"session_id", sess.SessionID, "serial_id", serialID, "client", clientAddr)
	return *sess, nil
}

func (s *State) newSessionIDLocked() int64 {
	for {
		id := rand.Int64N(9_000_000_000) + 1_000_000_000
		if _, taken := s.authByID[id]; !taken {
			return id
		}
	}
}

// RemoveConnection drops a dashboard connection by session id (manual
// removal from the dashboard). The authorization session, if still pending,
// is left in place to expire or correlate normally.
func (s *State) RemoveConnection(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dashboard[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.dashboard, sessionID)
	s.log.Info("dashboard connection removed", "session_id", sessionID)
	return nil
}

// Connections returns the dashboard projections ordered by creation time.
func (s *State) Connections() []domain.DashboardConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DashboardConnection, 0, len(s.dashboard))
	for _, dc := range s.dashboard {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AuthSession returns a copy of the authorization session, if present.
func (s *State) AuthSession(sessionID int64) (domain.AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.authByID[sessionID]
	if !ok {
		return domain.AuthSession{}, false
	}
	return *sess, true
}

// RelaySession returns a copy of the active relay session for a code.
func (s *State) RelaySession(code int) (domain.RelaySession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.relay[code]
	if !ok {
		return domain.RelaySession{}, false
	}
	return *rs, true
}

// LinkedSession resolves the link table entry for a connection code.
func (s *State) LinkedSession(code int) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.links[code]
	return id, ok
}

// Activity returns the recent-activity ring, most recent first.
func (s *State) Activity() []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActivityEntry, len(s.activity))
	for i, e := range s.activity {
		out[len(s.activity)-1-i] = e
	}
	return out
}

func (s *State) appendActivityLocked(e domain.Event) {
	s.activity = append(s.activity, domain.ActivityEntry{
		Timestamp:  e.Timestamp.Format("15:04:05"),
		Kind:       e.Kind,
		ViewerAddr: e.ViewerAddr,
		ServerAddr: e.ServerAddr,
		Code:       e.Code,
	})
	if len(s.activity) > s.activityCap {
		s.activity = s.activity[1:]
	}
}

// MarkRelayHeartbeat refreshes the relay liveness clock.
func (s *State) MarkRelayHeartbeat(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayHeartbeat = now
}

// RelayAlive reports whether a relay heartbeat arrived within the liveness
// window. Recomputed on every call, never cached.
func (s *State) RelayAlive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.relayHeartbeat) < s.heartbeatWindow
}

// ExpireSessions evicts every authorization session older than the TTL,
// together with its dashboard connection and any link table entry, and
// returns the evicted session ids. Eviction is unconditional: a session
// whose relay connection is still mid-use past the TTL is removed anyway.
//
// TODO: decide whether linked sessions should survive the sweep; today the
// dashboard card of a live session can be yanked at the TTL boundary.
func (s *State) ExpireSessions(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []int64
	for _, sess := range s.auth {
		if now.Sub(sess.CreatedAt) > s.ttl {
			expired = append(expired, sess.SessionID)
		}
	}
	for _, id := range expired {
		s.removeAuthSessionLocked(id)
		delete(s.dashboard, id)
		for code, sid := range s.links {
			if sid == id {
				delete(s.links, code)
			}
		}
		if s.auditor != nil {
			s.auditor.AuthSessionExpired(id)
		}
		s.log.Info("expired authorization session evicted", "session_id", id)
	}
	return expired
}

func (s *State) removeAuthSessionLocked(sessionID int64) {
	if _, ok := s.authByID[sessionID]; !ok {
		return
	}
	delete(s.authByID, sessionID)
	for i, sess := range s.auth {
		if sess.SessionID == sessionID {
			s.auth = append(s.auth[:i], s.auth[i+1:]...)
			break
		}
	}
}

func displayViewerAddr(addr string) string {
	if addr == loopbackAddr {
		return viewerViaBridge
	}
	return addr
}
