// Package cli wires configuration, storage, the correlation state, the
// bridge supervisor, and the HTTP server into the relayboard commands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"relayboard/internal/bridge"
	"relayboard/internal/config"
	ilog "relayboard/internal/log"
	"relayboard/internal/server"
	"relayboard/internal/state"
	"relayboard/internal/store/sqlite"
)

func Run(args []string) int {
	// Seed RELAYBOARD_* from a local .env if present; real env wins.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		return runServer(ctx, nil)
	}

	switch args[0] {
	case "server":
		return runServer(ctx, args[1:])
	case "events":
		return runEventsList(ctx, args[1:])
	case "auth":
		return runAuthList(ctx, args[1:])
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Println("usage: relayboard <command> [flags]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  server   run the relay monitor (default)")
	fmt.Println("  events   dump recent audited relay events")
	fmt.Println("  auth     list device authorization records")
	fmt.Println()
	fmt.Println("run `relayboard <command> -h` for command flags")
}

func runServer(ctx context.Context, args []string) int {
	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel)

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	auditor := newStoreAuditor(store, logger)
	st := state.New(auditor, logger, state.Options{
		SessionTTL:       cfg.SessionTTL,
		HeartbeatWindow:  cfg.HeartbeatWindow,
		ActivityCapacity: cfg.ActivityCapacity,
	})

	sup := bridge.New(bridge.Config{
		Command:           cfg.BridgeCommand,
		ListenPort:        cfg.BridgePort,
		TargetAddr:        fmt.Sprintf("%s:%d", cfg.RepeaterHost, cfg.RepeaterViewerPort),
		RepeaterAddr:      fmt.Sprintf("%s:%d", cfg.RepeaterHost, cfg.RepeaterServerPort),
		WebRoot:           cfg.BridgeWebRoot,
		StartupGrace:      cfg.BridgeStartGrace,
		StopTimeout:       cfg.BridgeStopTimeout,
		HeartbeatInterval: cfg.BridgeBeatPeriod,
	}, logger)
	if err := sup.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "bridge error:", err)
		return 1
	}
	defer sup.Stop()

	s := server.New(cfg, store, st, sup, logger)
	if err := s.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		return 1
	}
	return 0
}

func runEventsList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	var dbPath string
	var limit int
	fs.StringVar(&dbPath, "db", envOr("RELAYBOARD_DB_PATH", "./relayboard.db"), "sqlite db path")
	fs.IntVar(&limit, "limit", 50, "max events to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	events, err := store.RecentEvents(ctx, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		return 1
	}
	for _, e := range events {
		fmt.Printf("%s\t%s\tcode=%d\tviewer=%s\tserver=%s\tpid=%d\n",
			e.Timestamp.Format(time.DateTime), e.Kind, e.Code, e.ViewerAddr, e.ServerAddr, e.RepeaterPID)
	}
	return 0
}

func runAuthList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	var dbPath string
	var limit int
	fs.StringVar(&dbPath, "db", envOr("RELAYBOARD_DB_PATH", "./relayboard.db"), "sqlite db path")
	fs.IntVar(&limit, "limit", 50, "max records to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListAuthRecords(ctx, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list auth records:", err)
		return 1
	}
	for _, rec := range records {
		usedAt := "-"
		if rec.UsedAt != nil {
			usedAt = rec.UsedAt.Format(time.DateTime)
		}
		fmt.Printf("%d\t%s\t%s\tstatus=%s\tcreated=%s\tused=%s\n",
			rec.SessionID, rec.SerialID, rec.ClientAddr, rec.Status,
			rec.CreatedAt.Format(time.DateTime), usedAt)
	}
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
