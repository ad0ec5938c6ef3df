package state

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"relayboard/internal/domain"
)

type recordingAuditor struct {
	mu      sync.Mutex
	used    []int64
	expired []int64
}

func (a *recordingAuditor) AuthSessionUsed(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = append(a.used, id)
}

func (a *recordingAuditor) AuthSessionExpired(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expired = append(a.expired, id)
}

func newTestState(t *testing.T, opts Options) (*State, *recordingAuditor) {
	t.Helper()
	aud := &recordingAuditor{}
	return New(aud, slog.New(slog.DiscardHandler), opts), aud
}

func TestAuthorizeGeneratesTenDigitID(t *testing.T) {
	s, _ := newTestState(t, Options{})
	for i := 0; i < 50; i++ {
		sess, err := s.Authorize("ABC", "10.0.0.9", "host:5500")
		if err != nil {
			t.Fatal(err)
		}
		if sess.SessionID < 1_000_000_000 || sess.SessionID >= 10_000_000_000 {
			t.Fatalf("session id %d out of 10-digit range", sess.SessionID)
		}
		if sess.Status != domain.AuthStatusReady {
			t.Fatalf("expected status ready, got %s", sess.Status)
		}
	}
}

func TestAuthorizeRejectsMissingSerial(t *testing.T) {
	s, _ := newTestState(t, Options{})
	if _, err := s.Authorize("  ", "10.0.0.9", "host:5500"); err != domain.ErrMissingSerialID {
		t.Fatalf("expected ErrMissingSerialID, got %v", err)
	}
	if got := len(s.Connections()); got != 0 {
		t.Fatalf("expected no state mutation on rejection, got %d connections", got)
	}
}

func TestRemoveConnection(t *testing.T) {
	s, _ := newTestState(t, Options{})
	sess, err := s.Authorize("ABC", "10.0.0.9", "host:5500")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveConnection(sess.SessionID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveConnection(sess.SessionID); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound on second removal, got %v", err)
	}
}

func TestRelayLivenessWindow(t *testing.T) {
	s, _ := newTestState(t, Options{HeartbeatWindow: 2 * time.Minute})
	now := time.Now()
	s.MarkRelayHeartbeat(now)
	if !s.RelayAlive(now.Add(time.Minute)) {
		t.Fatal("expected relay alive within window")
	}
	if s.RelayAlive(now.Add(3 * time.Minute)) {
		t.Fatal("expected relay dead past window")
	}
}

func TestExpireSessionsUnconditional(t *testing.T) {
	s, aud := newTestState(t, Options{SessionTTL: 5 * time.Minute})
	sess, err := s.Authorize("ABC", "10.0.0.9", "host:5500")
	if err != nil {
		t.Fatal(err)
	}
	// Link it so expiry must not special-case correlated sessions.
	s.Apply(domain.Event{Kind: domain.KindServerConnect, Timestamp: time.Now(), ServerAddr: "10.0.0.9", Code: 77})
	if _, ok := s.LinkedSession(77); !ok {
		t.Fatal("expected link before expiry")
	}

	expired := s.ExpireSessions(time.Now().Add(6 * time.Minute))
	if len(expired) != 1 || expired[0] != sess.SessionID {
		t.Fatalf("expected session %d expired, got %v", sess.SessionID, expired)
	}
	if _, ok := s.AuthSession(sess.SessionID); ok {
		t.Fatal("expected authorization session evicted")
	}
	if got := len(s.Connections()); got != 0 {
		t.Fatalf("expected dashboard connection evicted, got %d", got)
	}
	if _, ok := s.LinkedSession(77); ok {
		t.Fatal("expected link table entry evicted")
	}
	if len(aud.expired) != 1 || aud.expired[0] != sess.SessionID {
		t.Fatalf("expected expiry audit mark, got %v", aud.expired)
	}
}

func TestExpireSessionsKeepsYoung(t *testing.T) {
	s, _ := newTestState(t, Options{SessionTTL: 5 * time.Minute})
	if _, err := s.Authorize("ABC", "10.0.0.9", "host:5500"); err != nil {
		t.Fatal(err)
	}
	if expired := s.ExpireSessions(time.Now().Add(time.Minute)); len(expired) != 0 {
		t.Fatalf("expected nothing expired, got %v", expired)
	}
	if got := len(s.Connections()); got != 1 {
		t.Fatalf("expected connection kept, got %d", got)
	}
}

func TestActivityRingCapacity(t *testing.T) {
	s, _ := newTestState(t, Options{ActivityCapacity: 3})
	base := time.Now()
	for i := 0; i < 5; i++ {
		s.Apply(domain.Event{Kind: domain.KindUnknown, Timestamp: base, Code: i})
	}
	got := s.Activity()
	if len(got) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(got))
	}
	// Most recent first; codes 0 and 1 were evicted oldest-first.
	for i, want := range []int{4, 3, 2} {
		if got[i].Code != want {
			t.Fatalf("entry %d: expected code %d, got %d", i, want, got[i].Code)
		}
	}
}

func TestHeartbeatSkipsActivityRing(t *testing.T) {
	s, _ := newTestState(t, Options{})
	s.Apply(domain.Event{Kind: domain.KindRepeaterHeartbeat, Timestamp: time.Now()})
	if got := len(s.Activity()); got != 0 {
		t.Fatalf("expected heartbeat excluded from activity, got %d entries", got)
	}
	if !s.RelayAlive(time.Now()) {
		t.Fatal("expected heartbeat to refresh liveness")
	}
}
