package subscription

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/transport"
)

// Scope narrows a subscription to a room (e.g. a router).
type Scope struct {
	RoomID string
}

// Stats describes the registry's current interest set.
type Stats struct {
	Consumers int
	Rooms     int
	Entities  int
	Stale     bool
}

// key identifies one entity within a scope.
type key struct {
	scope string
	id    model.EntityID
}

// consumerState is one consumer's current subscription.
type consumerState struct {
	scope string
	ids   map[model.EntityID]struct{}
}

// Registry reference-counts interest and drives subscription traffic.
type Registry struct {
	emitter    transport.Emitter
	validScope func(string) bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu        sync.Mutex
	consumers map[string]*consumerState
	refs      map[key]int
	rooms     map[string]int
	status    model.TransportStatus
}

// Option configures a Registry.
type Option func(*Registry)

// WithScopeValidator sets a predicate for known scopes. Unknown scopes are
// logged but still applied.
func WithScopeValidator(fn func(string) bool) Option {
	return func(r *Registry) {
		r.validScope = fn
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a Registry emitting on emitter.
func NewRegistry(emitter transport.Emitter, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		emitter:   emitter,
		logger:    logger,
		consumers: make(map[string]*consumerState),
		refs:      make(map[key]int),
		rooms:     make(map[string]int),
		status:    model.TransportDisconnected,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register declares a consumer. Registering an ID twice replaces the prior
// registration and drops its subscription.
func (r *Registry) Register(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[consumerID]; ok {
		r.logger.Warn("consumer registered twice, replacing", "consumer", consumerID)
		r.transitionLocked(consumerID, "", nil)
	}
	r.consumers[consumerID] = &consumerState{ids: make(map[model.EntityID]struct{})}
}

// Subscribe replaces the consumer's subscription with ids within scope.
// An empty ids set clears the subscription.
func (r *Registry) Subscribe(consumerID string, scope Scope, ids []model.EntityID) {
	if scope.RoomID != "" && r.validScope != nil && !r.validScope(scope.RoomID) {
		r.logger.Warn("subscribe with unknown scope", "consumer", consumerID, "scope", scope.RoomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[consumerID]; !ok {
		r.logger.Warn("subscribe from unregistered consumer, registering", "consumer", consumerID)
		r.consumers[consumerID] = &consumerState{ids: make(map[model.EntityID]struct{})}
	}

	r.transitionLocked(consumerID, scope.RoomID, ids)
}

// Unsubscribe removes the consumer and its contribution. Safe to call
// repeatedly and for unknown consumers.
func (r *Registry) Unsubscribe(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[consumerID]; !ok {
		return
	}
	r.transitionLocked(consumerID, "", nil)
	delete(r.consumers, consumerID)
}

// Interested returns the consumers subscribed to id, sorted. A scoped event
// reaches only consumers in that scope; an unscoped one reaches every
// consumer holding id, whatever its scope.
func (r *Registry) Interested(scope string, id model.EntityID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scope != "" && r.refs[key{scope, id}] == 0 {
		return nil
	}

	var out []string
	for cid, c := range r.consumers {
		if scope != "" && c.scope != scope {
			continue
		}
		if _, ok := c.ids[id]; ok {
			out = append(out, cid)
		}
	}
	sort.Strings(out)
	return out
}

// SetTransportStatus records connectivity. On Connected the full interest
// set is replayed; the server keeps no subscription state across sockets.
func (r *Registry) SetTransportStatus(st model.TransportStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.status
	r.status = st
	if st != model.TransportConnected {
		if prev == model.TransportConnected {
			r.logger.Info("subscriptions stale until reconnect", "status", st)
		}
		return
	}
	r.replayLocked()
}

// Stale reports whether subscriptions are not currently live on the server.
func (r *Registry) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status != model.TransportConnected
}

// Stats returns the current interest set size.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Consumers: len(r.consumers),
		Rooms:     len(r.rooms),
		Entities:  len(r.refs),
		Stale:     r.status != model.TransportConnected,
	}
}

// transitionLocked swaps the consumer's set and emits the minimal diff.
func (r *Registry) transitionLocked(consumerID, scope string, ids []model.EntityID) {
	c := r.consumers[consumerID]
	if c == nil {
		return
	}

	next := make(map[model.EntityID]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	var (
		joins, leaves []string
		added         = make(map[string][]model.EntityID)
		removed       = make(map[string][]model.EntityID)
	)

	// Release the old contribution.
	if len(c.ids) > 0 {
		for id := range c.ids {
			k := key{c.scope, id}
			r.refs[k]--
			if r.refs[k] <= 0 {
				delete(r.refs, k)
				removed[c.scope] = append(removed[c.scope], id)
			}
		}
		if c.scope != "" {
			r.rooms[c.scope]--
			if r.rooms[c.scope] <= 0 {
				delete(r.rooms, c.scope)
				leaves = append(leaves, c.scope)
			}
		}
	}

	// Take the new one.
	if len(next) > 0 {
		if scope != "" {
			if r.rooms[scope] == 0 {
				joins = append(joins, scope)
			}
			r.rooms[scope]++
		}
		for id := range next {
			k := key{scope, id}
			if r.refs[k] == 0 {
				added[scope] = append(added[scope], id)
			}
			r.refs[k]++
		}
	}

	c.scope = scope
	c.ids = next

	// A key released and re-taken in the same call needs no traffic.
	for s, ids := range removed {
		kept := ids[:0]
		for _, id := range ids {
			if r.refs[key{s, id}] > 0 {
				added[s] = dropID(added[s], id)
				continue
			}
			kept = append(kept, id)
		}
		removed[s] = kept
	}
	joins, leaves = cancelRooms(joins, leaves)

	r.metrics.SetSubscribedEntities(len(r.refs))

	if r.status != model.TransportConnected {
		return
	}

	for _, s := range sortedStrings(joins) {
		r.emitLocked(transport.EventJoinScope, transport.ScopeParams{ScopeID: s})
	}
	for _, s := range sortedKeys(added) {
		if len(added[s]) > 0 {
			r.emitLocked(transport.EventSubscribeEntities, transport.EntitiesParams{ScopeID: s, EntityIDs: sortedIDs(added[s])})
		}
	}
	for _, s := range sortedKeys(removed) {
		if len(removed[s]) > 0 {
			r.emitLocked(transport.EventUnsubscribe, transport.EntitiesParams{ScopeID: s, EntityIDs: sortedIDs(removed[s])})
		}
	}
	for _, s := range sortedStrings(leaves) {
		r.emitLocked(transport.EventLeaveScope, transport.ScopeParams{ScopeID: s})
	}
}

// replayLocked re-emits the full interest set, one call per scope.
func (r *Registry) replayLocked() {
	byScope := make(map[string][]model.EntityID)
	for k := range r.refs {
		byScope[k.scope] = append(byScope[k.scope], k.id)
	}

	r.logger.Info("replaying subscriptions",
		"rooms", len(r.rooms),
		"entities", len(r.refs),
	)

	for _, s := range sortedKeys(byScope) {
		if s != "" {
			r.emitLocked(transport.EventJoinScope, transport.ScopeParams{ScopeID: s})
		}
		r.emitLocked(transport.EventSubscribeEntities, transport.EntitiesParams{ScopeID: s, EntityIDs: sortedIDs(byScope[s])})
	}
}

// emitLocked sends one event. Failures leave state intact for the next replay.
func (r *Registry) emitLocked(event string, payload any) {
	if err := r.emitter.Emit(event, payload); err != nil {
		r.logger.Warn("failed to emit subscription event", "event", event, "error", err)
		r.metrics.EmitFailed(event)
		return
	}
	r.metrics.Emitted(event)
}

func dropID(ids []model.EntityID, id model.EntityID) []model.EntityID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// cancelRooms drops rooms that were both left and re-joined.
func cancelRooms(joins, leaves []string) ([]string, []string) {
	if len(joins) == 0 || len(leaves) == 0 {
		return joins, leaves
	}
	left := make(map[string]bool, len(leaves))
	for _, s := range leaves {
		left[s] = true
	}
	var j []string
	for _, s := range joins {
		if left[s] {
			delete(left, s)
			continue
		}
		j = append(j, s)
	}
	var l []string
	for _, s := range leaves {
		if left[s] {
			l = append(l, s)
		}
	}
	return j, l
}

func sortedIDs(ids []model.EntityID) []model.EntityID {
	out := append([]model.EntityID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[string][]model.EntityID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStrings(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
