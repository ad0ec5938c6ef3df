package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.RepeaterServerPort != 5500 || cfg.RepeaterViewerPort != 5900 {
		t.Errorf("repeater ports = %d/%d", cfg.RepeaterServerPort, cfg.RepeaterViewerPort)
	}
	if cfg.BridgePort != 6080 || cfg.BridgeCommand != "websockify" {
		t.Errorf("bridge = %q:%d", cfg.BridgeCommand, cfg.BridgePort)
	}
	if cfg.SessionTTL != 5*time.Minute || cfg.SweepInterval != time.Minute {
		t.Errorf("ttl/sweep = %v/%v", cfg.SessionTTL, cfg.SweepInterval)
	}
	if cfg.HeartbeatWindow != 2*time.Minute {
		t.Errorf("heartbeat window = %v", cfg.HeartbeatWindow)
	}
}

func TestFlagsOverride(t *testing.T) {
	cfg, err := ParseServerFlags([]string{
		"-listen", ":9090",
		"-repeater-host", "10.0.0.5",
		"-session-ttl", "90s",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.RepeaterHost != "10.0.0.5" {
		t.Errorf("repeater host = %q", cfg.RepeaterHost)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Errorf("ttl = %v", cfg.SessionTTL)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RELAYBOARD_LISTEN", ":7070")
	t.Setenv("RELAYBOARD_BRIDGE_PORT", "6090")
	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.BridgePort != 6090 {
		t.Errorf("bridge port = %d", cfg.BridgePort)
	}
}

func TestValidation(t *testing.T) {
	cases := [][]string{
		{"-repeater-host", " "},
		{"-repeater-port", "0"},
		{"-bridge-port", "70000"},
		{"-bridge-cmd", ""},
		{"-session-ttl", "0s"},
		{"-sweep-interval", "-1s"},
	}
	for _, args := range cases {
		if _, err := ParseServerFlags(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}
