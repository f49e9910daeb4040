package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/netpulse/internal/api"
	"github.com/rickgao/netpulse/internal/config"
	"github.com/rickgao/netpulse/internal/database"
	"github.com/rickgao/netpulse/internal/hub"
	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/poller"
	"github.com/rickgao/netpulse/internal/router"
	"github.com/rickgao/netpulse/internal/scheduler"
	"github.com/rickgao/netpulse/internal/series"
	"github.com/rickgao/netpulse/internal/server"
	"github.com/rickgao/netpulse/internal/subscription"
	"github.com/rickgao/netpulse/internal/transport"
	"github.com/rickgao/netpulse/internal/version"
)

const connectionsView = "connections"

func main() {
	configPath := flag.String("config", "configs/netpulse.local.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting netpulse",
		"version", version.String(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
		"ws_url", cfg.API.WSURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	var connections poller.ConnectionSource = poller.APIConnections{Client: apiClient, Logger: logger}
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		connections = database.NewDirectory(pool, logger.With("component", "directory"))
		logger.Info("database connected")
	}

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
	}, m, logger.With("component", "transport"))

	seriesCfg := series.Config{
		LiveCapacity:       cfg.Series.LiveCapacity,
		HistoricalCapacity: cfg.Series.HistoricalCapacity,
	}
	h := hub.New(hub.Config{
		Scheduler:     scheduler.Config{MinInterval: cfg.Scheduler.MinInterval},
		FrameInterval: cfg.Scheduler.FrameInterval,
		Series:        seriesCfg,
		Router:        router.DefaultConfig(),
	}, ch, m, logger.With("component", "hub"), hub.WithScopeValidator(func(scope string) bool {
		return slices.Contains(cfg.Views.Routers, scope)
	}))
	defer h.Close()

	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		ActiveWindow: cfg.Views.ActiveWindow,
		Bucket:       cfg.Series.Bucket(),
		Series:       seriesCfg,
	}, h, logger.With("component", "server"),
		server.WithHistory(apiClient),
		server.WithGatherer(reg),
	)

	// Seed views before the transport connects so the first telemetry
	// patches declared rows.
	seedCtx, seedCancel := context.WithTimeout(ctx, cfg.API.Timeout)
	entities, err := connections.ListConnections(seedCtx)
	if err != nil {
		logger.Warn("failed to list connections, starting empty", "error", err)
	}
	addView(srv, h, connectionsView, "", entities, cfg.Views.PageSize, logger)

	for _, routerID := range cfg.Views.Routers {
		ifaces, err := apiClient.ListInterfaces(seedCtx, routerID)
		if err != nil {
			logger.Warn("failed to list interfaces, starting empty", "router", routerID, "error", err)
		}
		addView(srv, h, "router-"+routerID, routerID, api.InterfacesToEntities(routerID, ifaces), cfg.Views.PageSize, logger)
	}
	seedCancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	if err := ch.Start(ctx); err != nil {
		logger.Error("failed to start transport", "error", err)
		os.Exit(1)
	}

	poll := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.API.Timeout,
		Routers:     cfg.Views.Routers,
	}, poller.Sources{
		Connections: connections,
		Interfaces:  apiClient,
	}, h, m, logger.With("component", "poller"))
	if err := poll.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	logger.Info("netpulse running",
		"instance_id", cfg.Instance.ID,
		"views", len(cfg.Views.Routers)+1,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := poll.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop", "error", err)
	}
	if err := ch.Stop(shutdownCtx); err != nil {
		logger.Warn("transport stop", "error", err)
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http server stop", "error", err)
	}

	logger.Info("netpulse stopped")
}

// addView registers a consumer for a table view, seeds it and subscribes
// to its entities.
func addView(srv *server.Server, h *hub.Hub, name, scope string, entities []model.Entity, pageSize int, logger *slog.Logger) {
	c := h.RegisterConsumer(name, hub.ConsumerOptions{Visible: srv.Visible(name)})
	v := server.NewTableView(name, c, pageSize, logger.With("view", name))

	v.Table.SetEntities(entities)
	c.Seed(entities)

	ids := make([]model.EntityID, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	if err := c.Subscribe(ids, subscription.Scope{RoomID: scope}); err != nil {
		logger.Warn("subscribe failed", "view", name, "error", err)
	}
	srv.AddView(v)

	logger.Info("view ready", "view", name, "entities", len(entities))
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
