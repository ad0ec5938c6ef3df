// Package bridge supervises the local websockify process that translates
// the VNC wire protocol into a browser-reachable websocket transport.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"relayboard/internal/domain"
)

// Config describes the bridge process and its endpoints.
type Config struct {
	Command           string        // bridge binary (default "websockify")
	ListenPort        int           // websocket listen port, bound on all interfaces
	TargetAddr        string        // repeater viewer endpoint the bridge dials
	RepeaterAddr      string        // repeater server endpoint, probed before start
	WebRoot           string        // static viewer assets, optional
	StartupGrace      time.Duration // wait before declaring the start successful
	StopTimeout       time.Duration // graceful stop bound before SIGKILL
	HeartbeatInterval time.Duration // heartbeat refresh period
	ProbeTimeout      time.Duration // repeater reachability probe bound
}

const (
	defaultCommand           = "websockify"
	defaultStartupGrace      = 3 * time.Second
	defaultStopTimeout       = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultProbeTimeout      = 2 * time.Second
)

// Supervisor owns at most one running bridge process. Start replaces any
// prior instance; Stop is idempotent and safe when nothing is running.
type Supervisor struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	proc *process

	lastBeatUnixNano atomic.Int64
}

type process struct {
	cmd     *exec.Cmd
	output  *lockedBuffer
	exited  chan struct{}
	exitErr error // valid after exited is closed
}

// New creates a supervisor. Zero config fields select the defaults.
func New(cfg Config, logger *slog.Logger) *Supervisor {
	if cfg.Command == "" {
		cfg.Command = defaultCommand
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Supervisor{cfg: cfg, log: logger}
}

// Start launches the bridge process, replacing any running instance. The
// repeater endpoint is probed first, but an unreachable repeater only
// warns. Failure to spawn, or an exit within the startup grace period,
// returns a [domain.BridgeError] carrying the captured process output.
func (s *Supervisor) Start(ctx context.Context) error {
	s.Stop()

	if s.cfg.RepeaterAddr != "" {
		if err := probeEndpoint(s.cfg.RepeaterAddr, s.cfg.ProbeTimeout); err != nil {
			s.log.Warn("repeater endpoint not reachable", "addr", s.cfg.RepeaterAddr, "err", err)
		}
	}

	args := []string{
		net.JoinHostPort("0.0.0.0", strconv.Itoa(s.cfg.ListenPort)),
		s.cfg.TargetAddr,
		"--heartbeat", strconv.Itoa(int(s.cfg.HeartbeatInterval / time.Second)),
	}
	if s.cfg.WebRoot != "" {
		args = append(args, "--web", s.cfg.WebRoot)
	}

	output := &lockedBuffer{}
	cmd := exec.Command(s.cfg.Command, args...)
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Start(); err != nil {
		return &domain.BridgeError{Op: "start", Err: err}
	}

	p := &process{cmd: cmd, output: output, exited: make(chan struct{})}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()

	select {
	case <-p.exited:
		s.mu.Lock()
		if s.proc == p {
			s.proc = nil
		}
		s.mu.Unlock()
		err := p.exitErr
		if err == nil {
			err = errors.New("process exited during startup")
		}
		return &domain.BridgeError{Op: "start", Output: output.String(), Err: err}
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	case <-time.After(s.cfg.StartupGrace):
	}

	s.touch(time.Now())
	go s.heartbeatLoop(p)
	s.log.Info("bridge started", "pid", cmd.Process.Pid, "listen_port", s.cfg.ListenPort, "target", s.cfg.TargetAddr)
	return nil
}

// Stop terminates the tracked process: SIGTERM with a bounded wait, then
// SIGKILL. The handle is always cleared; calling Stop with nothing running
// is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.mu.Unlock()
	if p == nil {
		return
	}

	select {
	case <-p.exited:
		return
	default:
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
		s.log.Info("bridge stopped")
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("bridge stop timed out, killing", "pid", p.cmd.Process.Pid)
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
}

// Alive reports whether the bridge process currently exists. The heartbeat
// clock does not feed this signal; see [Supervisor.LastHeartbeat].
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// LastHeartbeat returns the time of the last refresh from the heartbeat
// loop, or the zero time if the bridge never started.
func (s *Supervisor) LastHeartbeat() time.Time {
	n := s.lastBeatUnixNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Supervisor) heartbeatLoop(p *process) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.exited:
			return
		case <-ticker.C:
			s.touch(time.Now())
		}
	}
}

func (s *Supervisor) touch(t time.Time) {
	s.lastBeatUnixNano.Store(t.UnixNano())
}

func probeEndpoint(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn.Close()
}

// lockedBuffer is safe for the concurrent stdout/stderr writes exec wires up.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
