package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/transport"
)

// Sink receives decoded snapshots in delivery order.
type Sink func(model.Snapshot)

// Subscriber registers event handlers on a transport channel.
type Subscriber interface {
	On(event string, h transport.Handler)
}

// Router decodes inbound telemetry events into snapshots.
type Router struct {
	cfg     Config
	sink    Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu          sync.RWMutex
	received    int64
	routed      int64
	parseErrors int64
}

// New creates a Router delivering snapshots to sink.
func New(cfg Config, sink Sink, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AggregateKey == "" {
		cfg.AggregateKey = DefaultAggregateKey
	}

	return &Router{
		cfg:     cfg,
		sink:    sink,
		metrics: m,
		logger:  logger,
	}
}

// Attach registers the router's handlers on ch.
func (r *Router) Attach(ch Subscriber) {
	ch.On(transport.EventEntityTelemetry, r.HandleEntityTelemetry)
	ch.On(transport.EventInterfaceTelemetry, r.HandleInterfaceTelemetry)
}

// HandleEntityTelemetry decodes an entity_telemetry payload. Malformed
// entries are skipped; the rest are delivered.
func (r *Router) HandleEntityTelemetry(data json.RawMessage, receivedAt time.Time) {
	r.countReceived()

	snaps, errs := DecodeEntityTelemetry(data, r.cfg.AggregateKey, receivedAt)
	for _, err := range errs {
		r.parseError(transport.EventEntityTelemetry, err)
	}
	r.deliver(transport.EventEntityTelemetry, snaps)
}

// HandleInterfaceTelemetry decodes an interface_telemetry payload.
func (r *Router) HandleInterfaceTelemetry(data json.RawMessage, receivedAt time.Time) {
	r.countReceived()

	snaps, err := DecodeInterfaceTelemetry(data, receivedAt)
	if err != nil {
		r.parseError(transport.EventInterfaceTelemetry, err)
		return
	}
	r.deliver(transport.EventInterfaceTelemetry, snaps)
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		MessagesReceived: r.received,
		SnapshotsRouted:  r.routed,
		ParseErrors:      r.parseErrors,
	}
}

func (r *Router) deliver(event string, snaps []model.Snapshot) {
	for _, s := range snaps {
		r.metrics.SnapshotReceived(event)
		if r.sink != nil {
			r.sink(s)
		}
	}

	r.mu.Lock()
	r.routed += int64(len(snaps))
	r.mu.Unlock()
}

func (r *Router) countReceived() {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
}

func (r *Router) parseError(event string, err error) {
	r.logger.Warn("failed to parse telemetry", "event", event, "error", err)
	r.metrics.SnapshotMalformed(event)

	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()
}

// DecodeEntityTelemetry parses {"<id>": {status, upload, download, last_seen}}.
// The aggregate key is dropped. Snapshots are returned in ascending ID order;
// each malformed entry contributes one error and is left out.
func DecodeEntityTelemetry(data json.RawMessage, aggregateKey string, receivedAt time.Time) ([]model.Snapshot, []error) {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)}
	}
	delete(wire, aggregateKey)

	ids := make([]string, 0, len(wire))
	for id := range wire {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var snaps []model.Snapshot
	var errs []error
	for _, id := range ids {
		snap, err := decodeEntity(id, wire[id], receivedAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, errs
}

func decodeEntity(id string, raw json.RawMessage, receivedAt time.Time) (model.Snapshot, error) {
	var w entityWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: entity %s: %v", model.ErrMalformedSnapshot, id, err)
	}

	st, err := model.ParseStatus(w.Status)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: entity %s: %v", model.ErrMalformedSnapshot, id, err)
	}

	lastSeen, err := parseLastSeen(w.LastSeen)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: entity %s: %v", model.ErrMalformedSnapshot, id, err)
	}

	snap := model.Snapshot{
		EntityID:    model.EntityID(id),
		Status:      st,
		UploadBps:   w.Upload,
		DownloadBps: w.Download,
		LastSeen:    lastSeen,
		ReceivedAt:  receivedAt,
	}
	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// ErrMissingScope is returned for interface telemetry without a scope id.
var ErrMissingScope = errors.New("interface telemetry without scopeId")

// DecodeInterfaceTelemetry parses {scopeId, traffic: {<ifName>: {tx, rx}}}
// into one online snapshot per interface, in ascending name order.
func DecodeInterfaceTelemetry(data json.RawMessage, receivedAt time.Time) ([]model.Snapshot, error) {
	var wire interfaceTelemetryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	if wire.ScopeID == "" {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedSnapshot, ErrMissingScope)
	}

	names := make([]string, 0, len(wire.Traffic))
	for name := range wire.Traffic {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	snaps := make([]model.Snapshot, 0, len(names))
	for _, name := range names {
		t := wire.Traffic[name]
		snaps = append(snaps, model.Snapshot{
			EntityID:    model.EntityID(name),
			Scope:       string(wire.ScopeID),
			Status:      model.StatusOnline,
			UploadBps:   t.Tx,
			DownloadBps: t.Rx,
			ReceivedAt:  receivedAt,
		})
	}
	return snaps, nil
}
