package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/netpulse/internal/hub"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/series"
	"github.com/rickgao/netpulse/internal/table"
)

// View is a table surface fed by a hub consumer.
type View struct {
	Name     string
	Consumer *hub.Consumer
	Table    *table.Table
}

// HistorySource fetches historical bandwidth for an entity.
type HistorySource interface {
	GetTrafficHistory(ctx context.Context, id model.EntityID, from, to time.Time) ([]model.SeriesPoint, error)
}

// Hub is the part of the hub the server reports on.
type Hub interface {
	Status() model.TransportStatus
	Stats() hub.Stats
}

// Config configures the HTTP server.
type Config struct {
	Port         int
	ActiveWindow time.Duration // How long a poll keeps a view visible
	Bucket       time.Duration // Default historical aggregation, 0 for raw
	Series       series.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ActiveWindow: 30 * time.Second,
		Series:       series.DefaultConfig(),
	}
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock used for view activity.
func WithClock(c quartz.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithHistory enables historical series requests.
func WithHistory(h HistorySource) Option {
	return func(s *Server) { s.history = h }
}

// WithGatherer serves gatherer on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// Server serves views, series, health and metrics.
type Server struct {
	cfg      Config
	hub      Hub
	history  HistorySource
	gatherer prometheus.Gatherer
	clock    quartz.Clock
	activity *Activity
	logger   *slog.Logger
	router   chi.Router

	mu    sync.RWMutex
	views map[string]View

	httpServer *http.Server
	wg         sync.WaitGroup
}

// New creates a server. Views are added with AddView.
func New(cfg Config, h Hub, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		hub:    h,
		clock:  quartz.NewReal(),
		logger: logger,
		views:  make(map[string]View),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.activity = NewActivity(s.clock, cfg.ActiveWindow)
	s.router = s.routes()
	return s
}

// Visible returns the visibility predicate to give the consumer behind view.
func (s *Server) Visible(view string) func() bool {
	return s.activity.Predicate(view)
}

// AddView makes v reachable under its name.
func (s *Server) AddView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[v.Name] = v
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/views", func(r chi.Router) {
		r.Get("/", s.handleListViews)
		r.Route("/{view}", func(r chi.Router) {
			r.Get("/", s.handleView)
			r.Post("/flush", s.handleFlush)
			r.Get("/series/{entity}", s.handleSeries)
			r.Delete("/series/{entity}", s.handleCloseSeries)
		})
	})
	return r
}

// Start listens on the configured port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.wg.Wait()
	s.logger.Info("http server stopped")
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
	Consumers int    `json:"consumers"`
	Entities  int    `json:"subscribed_entities"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Transport: stats.Transport.String(),
		Consumers: stats.Consumers,
		Entities:  stats.Subscription.Entities,
	})
}

type viewSummary struct {
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Pending int    `json:"pending"`
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]viewSummary, 0, len(s.views))
	for name, v := range s.views {
		out = append(out, viewSummary{
			Name:    name,
			Active:  s.activity.Active(name),
			Pending: v.Consumer.Pending(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

type viewResponse struct {
	table.Page
	View      string `json:"view"`
	Transport string `json:"transport"`
	Pending   int    `json:"pending"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v.Table.SetQuery(q)
	if s.activity.Touch(v.Name) {
		s.logger.Debug("view active", "view", v.Name)
		v.Consumer.Resume()
	}

	writeJSON(w, http.StatusOK, viewResponse{
		Page:      v.Table.View(),
		View:      v.Name,
		Transport: s.hub.Status().String(),
		Pending:   v.Consumer.Pending(),
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": v.Consumer.FlushNow()})
}

type seriesResponse struct {
	Entity string              `json:"entity"`
	Mode   string              `json:"mode"`
	Points []model.SeriesPoint `json:"points"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	id := model.EntityID(chi.URLParam(r, "entity"))

	values := r.URL.Query()
	if values.Has("from") || values.Has("to") {
		s.historicalSeries(w, r, id)
		return
	}

	b, ok := v.Consumer.Series(id)
	if !ok {
		var err error
		if b, err = v.Consumer.OpenSeries(id, nil); err != nil {
			writeError(w, http.StatusGone, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Entity: string(id),
		Mode:   b.Mode().String(),
		Points: b.Points(),
	})
}

func (s *Server) historicalSeries(w http.ResponseWriter, r *http.Request, id model.EntityID) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, errors.New("historical series not configured"))
		return
	}

	values := r.URL.Query()
	from, err := parseTime(values.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("from: %w", err))
		return
	}
	to, err := parseTime(values.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("to: %w", err))
		return
	}
	bucket := s.cfg.Bucket
	if raw := values.Get("bucket"); raw != "" {
		mins, err := strconv.Atoi(raw)
		if err != nil || mins < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bucket: invalid minutes %q", raw))
			return
		}
		bucket = time.Duration(mins) * time.Minute
	}

	points, err := s.history.GetTrafficHistory(r.Context(), id, from, to)
	if err != nil {
		s.logger.Warn("history fetch failed", "entity", id, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	b := series.New(s.cfg.Series, nil, s.logger)
	defer b.Destroy()
	if err := b.LoadHistorical(points, bucket); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Entity: string(id),
		Mode:   b.Mode().String(),
		Points: b.Points(),
	})
}

func (s *Server) handleCloseSeries(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if err := v.Consumer.CloseSeries(model.EntityID(chi.URLParam(r, "entity"))); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) (View, bool) {
	name := chi.URLParam(r, "view")

	s.mu.RLock()
	v, ok := s.views[name]
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown view %q", name))
	}
	return v, ok
}

func parseQuery(r *http.Request) (table.Query, error) {
	values := r.URL.Query()
	q := table.DefaultQuery()

	if raw := values.Get("filter"); raw != "" {
		f, err := table.ParseFilter(raw)
		if err != nil {
			return q, err
		}
		q.Filter = f
	}
	if raw := values.Get("sort"); raw != "" {
		key, desc, err := table.ParseSort(raw)
		if err != nil {
			return q, err
		}
		q.Sort, q.Desc = key, desc
	}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, fmt.Errorf("invalid page %q", raw)
		}
		q.Page = page
	}
	q.Search = values.Get("q")
	return q, nil
}

// parseTime accepts unix milliseconds or RFC3339. Empty is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
