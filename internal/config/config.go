package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig carries everything the relayboard service needs: the HTTP
// listen address, the audit database, the repeater endpoints, and the
// bridge process settings.
type ServerConfig struct {
	Listen         string
	DBPath         string
	LogLevel       string
	AdvertisedHost string // optional host override for the server slot devices dial

	RepeaterHost       string
	RepeaterServerPort int // port VNC servers dial on the repeater
	RepeaterViewerPort int // port viewers reach through the bridge

	BridgeCommand string
	BridgePort    int
	BridgeWebRoot string

	HeartbeatWindow   time.Duration
	SweepInterval     time.Duration
	SessionTTL        time.Duration
	ActivityCapacity  int
	RecentEventLimit  int
	BridgeStartGrace  time.Duration
	BridgeStopTimeout time.Duration
	BridgeBeatPeriod  time.Duration
}

const defaultListen = ":8080"
const defaultDBPath = "./relayboard.db"
const defaultRepeaterHost = "127.0.0.1"
const defaultRepeaterServerPort = 5500
const defaultRepeaterViewerPort = 5900
const defaultBridgePort = 6080
const defaultHeartbeatWindow = 2 * time.Minute
const defaultSweepInterval = time.Minute
const defaultSessionTTL = 5 * time.Minute
const defaultActivityCapacity = 100
const defaultRecentEventLimit = 50
const defaultBridgeStartGrace = 3 * time.Second
const defaultBridgeStopTimeout = 5 * time.Second
const defaultBridgeBeatPeriod = 30 * time.Second

// ParseServerFlags builds the server configuration from flags layered over
// RELAYBOARD_* environment defaults.
func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Listen:             envOrDefault("RELAYBOARD_LISTEN", defaultListen),
		DBPath:             envOrDefault("RELAYBOARD_DB_PATH", defaultDBPath),
		LogLevel:           envOrDefault("RELAYBOARD_LOG_LEVEL", "info"),
		AdvertisedHost:     envOrDefault("RELAYBOARD_ADVERTISED_HOST", ""),
		RepeaterHost:       envOrDefault("RELAYBOARD_REPEATER_HOST", defaultRepeaterHost),
		RepeaterServerPort: envIntOrDefault("RELAYBOARD_REPEATER_PORT", defaultRepeaterServerPort),
		RepeaterViewerPort: envIntOrDefault("RELAYBOARD_VIEWER_PORT", defaultRepeaterViewerPort),
		BridgeCommand:      envOrDefault("RELAYBOARD_BRIDGE_CMD", "websockify"),
		BridgePort:         envIntOrDefault("RELAYBOARD_BRIDGE_PORT", defaultBridgePort),
		BridgeWebRoot:      envOrDefault("RELAYBOARD_WEB_ROOT", ""),
		HeartbeatWindow:    defaultHeartbeatWindow,
		SweepInterval:      defaultSweepInterval,
		SessionTTL:         defaultSessionTTL,
		ActivityCapacity:   defaultActivityCapacity,
		RecentEventLimit:   defaultRecentEventLimit,
		BridgeStartGrace:   defaultBridgeStartGrace,
		BridgeStopTimeout:  defaultBridgeStopTimeout,
		BridgeBeatPeriod:   defaultBridgeBeatPeriod,
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite audit database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.AdvertisedHost, "advertised-host", cfg.AdvertisedHost, "Host advertised to devices for the server slot (default: request host)")
	fs.StringVar(&cfg.RepeaterHost, "repeater-host", cfg.RepeaterHost, "Repeater host")
	fs.IntVar(&cfg.RepeaterServerPort, "repeater-port", cfg.RepeaterServerPort, "Repeater server-side port")
	fs.IntVar(&cfg.RepeaterViewerPort, "viewer-port", cfg.RepeaterViewerPort, "Repeater viewer-side port the bridge dials")
	fs.StringVar(&cfg.BridgeCommand, "bridge-cmd", cfg.BridgeCommand, "Bridge binary")
	fs.IntVar(&cfg.BridgePort, "bridge-port", cfg.BridgePort, "Bridge websocket listen port")
	fs.StringVar(&cfg.BridgeWebRoot, "web-root", cfg.BridgeWebRoot, "Static viewer assets served by the bridge (optional)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Authorization session time-to-live")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Expiration sweep period")
	fs.DurationVar(&cfg.HeartbeatWindow, "heartbeat-window", cfg.HeartbeatWindow, "Repeater heartbeat liveness window")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.RepeaterHost = strings.TrimSpace(cfg.RepeaterHost)
	if cfg.RepeaterHost == "" {
		return cfg, errors.New("repeater host must not be empty")
	}
	for _, p := range []int{cfg.RepeaterServerPort, cfg.RepeaterViewerPort, cfg.BridgePort} {
		if p <= 0 || p > 65535 {
			return cfg, errors.New("ports must be between 1 and 65535")
		}
	}
	if strings.TrimSpace(cfg.BridgeCommand) == "" {
		return cfg, errors.New("bridge command must not be empty")
	}
	if cfg.SessionTTL <= 0 {
		return cfg, errors.New("session ttl must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, errors.New("sweep interval must be > 0")
	}
	if cfg.HeartbeatWindow <= 0 {
		return cfg, errors.New("heartbeat window must be > 0")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
