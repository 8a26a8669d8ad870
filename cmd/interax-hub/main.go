// Command interax-hub runs a hub daemon.
//
// The daemon hosts the endpoint registry, attribute store, command
// dispatcher, and subscription manager, and serves framed envelope
// connections over TCP. Access control is deny-by-default: without a
// policy file every remote operation is refused.
//
// Usage:
//
//	interax-hub [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-listen string     Listen address (overrides config)
//	-acl string        ACL policy file path (overrides config)
//	-state string      State file path (overrides config)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-log-wire          Log decoded wire traffic
//
// Examples:
//
//	# Start with a config file
//	interax-hub -config /etc/interax/hub.yaml
//
//	# Start on a custom port with wire logging
//	interax-hub -listen 127.0.0.1:9474 -acl policy.yaml -log-wire -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/interax-protocol/interax-go/pkg/hub"
	"github.com/interax-protocol/interax-go/pkg/interaction"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/transport"
)

var (
	configPath string
	listenAddr string
	aclPath    string
	statePath  string
	logLevel   string
	logWire    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	flag.StringVar(&aclPath, "acl", "", "ACL policy file path (overrides config)")
	flag.StringVar(&statePath, "state", "", "State file path (overrides config)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&logWire, "log-wire", false, "Log decoded wire traffic")
}

func main() {
	flag.Parse()

	slogger := newSlogger(logLevel)
	if err := run(slogger); err != nil {
		slogger.Error("hub failed", "error", err)
		os.Exit(1)
	}
}

func run(slogger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var hubLogger log.Logger = log.NoopLogger{}
	if logWire {
		hubLogger = log.NewSlogAdapter(slogger)
	}

	opts, err := cfg.Options(hubLogger)
	if err != nil {
		return err
	}
	h, err := hub.New(opts)
	if err != nil {
		return err
	}

	ln, err := transport.Listen(cfg.ListenAddress, hubLogger)
	if err != nil {
		return err
	}

	slogger.Info("hub listening",
		"hub_id", h.ID,
		"address", ln.Addr().String(),
		"acl_policy", cfg.ACLPolicyPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, ln, h, hubLogger, slogger, &wg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slogger.Info("shutting down", "signal", sig.String())

	cancel()
	ln.Close()
	wg.Wait()

	if err := h.Close(); err != nil {
		return fmt.Errorf("close hub: %w", err)
	}
	return nil
}

func acceptLoop(ctx context.Context, ln *transport.Listener, h *hub.Hub, hubLogger log.Logger, slogger *slog.Logger, wg *sync.WaitGroup) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slogger.Warn("accept failed", "error", err)
			continue
		}

		slogger.Debug("connection accepted", "conn_id", conn.ID())
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := interaction.NewSession(h, conn, "", hubLogger)
			if err := session.Serve(ctx); err != nil && ctx.Err() == nil {
				slogger.Debug("session ended", "conn_id", conn.ID(), "error", err)
			}
		}()
	}
}

func loadConfig() (*hub.Config, error) {
	cfg := &hub.Config{ListenAddress: hub.DefaultListenAddress}
	if configPath != "" {
		loaded, err := hub.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if listenAddr != "" {
		cfg.ListenAddress = listenAddr
	}
	if aclPath != "" {
		cfg.ACLPolicyPath = aclPath
	}
	if statePath != "" {
		cfg.StatePath = statePath
	}
	return cfg, nil
}

func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
