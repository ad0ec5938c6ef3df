package bridge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"relayboard/internal/domain"
)

func newTestSupervisor(cfg Config) *Supervisor {
	return New(cfg, slog.New(slog.DiscardHandler))
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	s := newTestSupervisor(Config{})
	s.Stop()
	s.Stop()
	if s.Alive() {
		t.Fatal("expected not alive before start")
	}
}

func TestStartMissingBinary(t *testing.T) {
	s := newTestSupervisor(Config{
		Command:    "relayboard-test-no-such-binary",
		ListenPort: 6080,
		TargetAddr: "127.0.0.1:5900",
	})
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected spawn failure for missing binary")
	}
	var be *domain.BridgeError
	if !errors.As(err, &be) {
		t.Fatalf("expected BridgeError, got %T: %v", err, err)
	}
	if s.Alive() {
		t.Fatal("expected not alive after failed start")
	}
}

func TestStartDetectsEarlyExit(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}
	s := newTestSupervisor(Config{
		Command:      "/bin/true",
		ListenPort:   6080,
		TargetAddr:   "127.0.0.1:5900",
		StartupGrace: 2 * time.Second,
	})
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected failure when the process exits within the grace period")
	}
	var be *domain.BridgeError
	if !errors.As(err, &be) {
		t.Fatalf("expected BridgeError, got %T: %v", err, err)
	}
	if s.Alive() {
		t.Fatal("expected not alive after early exit")
	}
}

func TestStartAndStop(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("/bin/sleep not available")
	}
	s := newTestSupervisor(Config{
		Command:      "/bin/sleep",
		ListenPort:   60, // becomes the sleep duration argument "0.0.0.0:60"
		TargetAddr:   "60",
		StartupGrace: 100 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	})
	// sleep rejects the listen-style argument on some platforms; tolerate
	// either outcome as long as the supervisor bookkeeping stays coherent.
	if err := s.Start(context.Background()); err != nil {
		if s.Alive() {
			t.Fatal("failed start must not leave a live handle")
		}
		return
	}
	if !s.Alive() {
		t.Fatal("expected alive after start")
	}
	if s.LastHeartbeat().IsZero() {
		t.Fatal("expected heartbeat stamped on start")
	}
	s.Stop()
	if s.Alive() {
		t.Fatal("expected not alive after stop")
	}
	s.Stop() // idempotent
}
