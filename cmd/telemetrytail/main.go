// telemetrytail subscribes to entity telemetry and prints each flushed batch.
// Usage: go run ./cmd/telemetrytail --config configs/netpulse.local.yaml --ids 101,102
//
// Pass --scope to subscribe to interfaces of one router instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/netpulse/internal/config"
	"github.com/rickgao/netpulse/internal/hub"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/scheduler"
	"github.com/rickgao/netpulse/internal/status"
	"github.com/rickgao/netpulse/internal/subscription"
	"github.com/rickgao/netpulse/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/netpulse.example.yaml", "path to config file")
	ids := flag.String("ids", "", "comma-separated entity ids")
	scope := flag.String("scope", "", "router id for interface telemetry")
	verbose := flag.Bool("verbose", false, "print full batch JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	entityIDs := parseIDs(*ids)
	if len(entityIDs) == 0 {
		logger.Error("no entity ids given, use --ids")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	ch := transport.NewChannel(transport.ChannelConfig{
		Client: transport.ClientConfig{
			URL:          cfg.API.WSURL,
			APIKey:       cfg.API.APIKey,
			PingTimeout:  cfg.Transport.PingTimeout,
			WriteTimeout: cfg.Transport.WriteTimeout,
			BufferSize:   cfg.Transport.BufferSize,
		},
		ReconnectMin: cfg.Transport.ReconnectMin,
		ReconnectMax: cfg.Transport.ReconnectMax,
		Factor:       2,
	}, nil, logger)

	hubCfg := hub.DefaultConfig()
	hubCfg.Scheduler.MinInterval = cfg.Scheduler.MinInterval
	h := hub.New(hubCfg, ch, nil, logger)
	defer h.Close()

	c := h.RegisterConsumer("tail", hub.ConsumerOptions{})
	c.OnBatch(func(b scheduler.Batch) {
		printBatch(b, *verbose)
	})
	if err := c.Subscribe(entityIDs, subscription.Scope{RoomID: *scope}); err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	if err := ch.Start(ctx); err != nil {
		logger.Error("failed to start transport", "error", err)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := h.Stats()
				logger.Info("stats",
					"transport", stats.Transport,
					"subscribed", stats.Subscription.Entities,
					"stale", stats.Subscription.Stale,
					"received", stats.Router.MessagesReceived,
					"routed", stats.Router.SnapshotsRouted,
					"parse_errors", stats.Router.ParseErrors,
					"online", c.Store().CountBy(status.IsOnline),
				)
			}
		}
	}()

	logger.Info("tailing telemetry - press Ctrl+C to stop", "entities", len(entityIDs), "scope", *scope)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	ch.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func parseIDs(s string) []model.EntityID {
	var out []model.EntityID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, model.EntityID(part))
		}
	}
	return out
}

func printBatch(b scheduler.Batch, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(b, "", "  ")
		fmt.Printf("[BATCH] %s\n", data)
		return
	}

	fmt.Printf("[BATCH] at=%s transport=%s entities=%d\n",
		b.FlushedAt.Format(time.TimeOnly), b.Transport, b.Len())
	for _, id := range b.IDs() {
		s := b.Snapshots[id]
		line := fmt.Sprintf("  %s status=%s", id, s.Status)
		if s.Fields().Has(model.FieldSpeed) {
			line += fmt.Sprintf(" down=%.0f up=%.0f", s.Download(), s.Upload())
		}
		if s.LastSeen != nil {
			line += " last_seen=" + s.LastSeen.Format(time.RFC3339)
		}
		fmt.Println(line)
	}
}
