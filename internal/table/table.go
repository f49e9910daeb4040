package table

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/reconcile"
	"github.com/rickgao/netpulse/internal/status"
)

// DefaultPageSize is used when a table is created with a non-positive size.
const DefaultPageSize = 50

// RowNode is one rendered row.
type RowNode struct {
	entity model.Entity

	mu      sync.RWMutex
	snap    model.Snapshot
	patches int
}

// PatchTelemetry updates the badge, speeds and last-seen cells.
func (n *RowNode) PatchTelemetry(s model.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snap = s
	n.patches++
}

// Patches returns how many times the row was patched since render.
func (n *RowNode) Patches() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.patches
}

// View returns the row's current cells.
func (n *RowNode) View() RowView {
	n.mu.RLock()
	defer n.mu.RUnlock()

	v := RowView{
		ID:          string(n.entity.ID),
		Name:        n.entity.Name,
		Scope:       n.entity.Scope,
		Status:      string(n.snap.Status),
		DownloadBps: n.snap.Download(),
		UploadBps:   n.snap.Upload(),
	}
	if n.snap.LastSeen != nil {
		t := *n.snap.LastSeen
		v.LastSeen = &t
	}
	return v
}

// RowView is the serialized form of a row.
type RowView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Scope       string     `json:"scope,omitempty"`
	Status      string     `json:"status"`
	DownloadBps float64    `json:"download_bps"`
	UploadBps   float64    `json:"upload_bps"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// Page is a rendered page with its counters.
type Page struct {
	Rows     []RowView      `json:"rows"`
	Page     int            `json:"page"`
	Pages    int            `json:"pages"`
	Matching int            `json:"matching"`
	Counters map[string]int `json:"counters"`
}

// Table renders a page of entity rows.
type Table struct {
	store    *status.Store
	pageSize int
	logger   *slog.Logger

	mu       sync.RWMutex
	entities []model.Entity
	query    Query
	rendered []*RowNode
	byID     map[model.EntityID]*RowNode
	matching int
	counters map[string]int
	onRender []func()
	renders  int
}

var _ reconcile.Surface = (*Table)(nil)

// New creates an empty table reading statuses from store.
func New(store *status.Store, pageSize int, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Table{
		store:    store,
		pageSize: pageSize,
		logger:   logger,
		query:    DefaultQuery(),
		byID:     make(map[model.EntityID]*RowNode),
		counters: make(map[string]int),
	}
}

// OnRender registers fn to run after every structural re-render.
func (t *Table) OnRender(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRender = append(t.onRender, fn)
}

// SetEntities replaces the declared rows and re-renders.
func (t *Table) SetEntities(entities []model.Entity) {
	t.mu.Lock()
	t.entities = append([]model.Entity(nil), entities...)
	hooks := t.renderLocked()
	t.mu.Unlock()

	runHooks(hooks)
}

// SetQuery changes filter, search, sort or page and re-renders. A query
// that resolves to the current one, including a page past the end that
// clamps to the current page, is a no-op. Reports whether it re-rendered.
func (t *Table) SetQuery(q Query) bool {
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	if q.Sort == "" {
		q.Sort = SortName
	}
	if q.Page < 1 {
		q.Page = 1
	}

	t.mu.Lock()
	if t.resolvesToCurrentLocked(q) {
		t.mu.Unlock()
		return false
	}
	t.query = q
	hooks := t.renderLocked()
	t.mu.Unlock()

	runHooks(hooks)
	return true
}

func (t *Table) resolvesToCurrentLocked(q Query) bool {
	q.Page = min(q.Page, t.pagesLocked())
	return q == t.query
}

// Query returns the current query.
func (t *Table) Query() Query {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.query
}

// Lookup returns the rendered row for id.
func (t *Table) Lookup(id model.EntityID) (reconcile.Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return n, true
}

// FilterFields returns the fields the current filter and sort depend on.
func (t *Table) FilterFields() model.Field {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var f model.Field
	if t.query.Filter != FilterAll {
		f |= model.FieldStatus
	}
	switch t.query.Sort {
	case SortStatus:
		f |= model.FieldStatus
	case SortDownload, SortUpload:
		f |= model.FieldSpeed
	}
	return f
}

// Refilter re-evaluates filter and sort and re-renders the page.
func (t *Table) Refilter() {
	t.mu.Lock()
	hooks := t.renderLocked()
	t.mu.Unlock()

	runHooks(hooks)
}

// WriteCounters replaces the displayed counters.
func (t *Table) WriteCounters(counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters = make(map[string]int, len(counts))
	for k, v := range counts {
		t.counters[k] = v
	}
}

// Renders returns the number of structural renders so far.
func (t *Table) Renders() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.renders
}

// View returns the current page.
func (t *Table) View() Page {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := make([]RowView, 0, len(t.rendered))
	for _, n := range t.rendered {
		rows = append(rows, n.View())
	}
	counters := make(map[string]int, len(t.counters))
	for k, v := range t.counters {
		counters[k] = v
	}

	return Page{
		Rows:     rows,
		Page:     t.query.Page,
		Pages:    t.pagesLocked(),
		Matching: t.matching,
		Counters: counters,
	}
}

func (t *Table) pagesLocked() int {
	if t.matching == 0 {
		return 1
	}
	return (t.matching + t.pageSize - 1) / t.pageSize
}

type candidate struct {
	entity model.Entity
	snap   model.Snapshot
}

// renderLocked rebuilds the current page and returns the hooks to run.
func (t *Table) renderLocked() []func() {
	search := strings.ToLower(strings.TrimSpace(t.query.Search))

	matches := make([]candidate, 0, len(t.entities))
	for _, e := range t.entities {
		snap := t.store.Get(e.ID)
		if !matchFilter(t.query.Filter, snap.Status) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Name), search) &&
			!strings.Contains(strings.ToLower(string(e.ID)), search) {
			continue
		}
		matches = append(matches, candidate{entity: e, snap: snap})
	}

	sortCandidates(matches, t.query.Sort, t.query.Desc)
	t.matching = len(matches)

	if pages := t.pagesLocked(); t.query.Page > pages {
		t.query.Page = pages
	}
	start := (t.query.Page - 1) * t.pageSize
	end := start + t.pageSize
	if end > len(matches) {
		end = len(matches)
	}

	t.rendered = make([]*RowNode, 0, end-start)
	t.byID = make(map[model.EntityID]*RowNode, end-start)
	for _, c := range matches[start:end] {
		n := &RowNode{entity: c.entity, snap: c.snap}
		t.rendered = append(t.rendered, n)
		t.byID[c.entity.ID] = n
	}
	t.renders++

	return append([]func(){}, t.onRender...)
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}

func matchFilter(f Filter, st model.Status) bool {
	switch f {
	case FilterOnline:
		return st == model.StatusOnline
	case FilterOffline:
		return st == model.StatusOffline
	case FilterWarning:
		return st == model.StatusDetectedNoQueue
	default:
		return true
	}
}

func sortCandidates(c []candidate, key SortKey, desc bool) {
	less := func(a, b candidate) int {
		switch key {
		case SortStatus:
			return compareInt(a.snap.Status.SortRank(), b.snap.Status.SortRank())
		case SortDownload:
			return compareFloat(a.snap.Download(), b.snap.Download())
		case SortUpload:
			return compareFloat(a.snap.Upload(), b.snap.Upload())
		default:
			return strings.Compare(strings.ToLower(a.entity.Name), strings.ToLower(b.entity.Name))
		}
	}

	sort.SliceStable(c, func(i, j int) bool {
		r := less(c[i], c[j])
		if desc {
			r = -r
		}
		if r != 0 {
			return r < 0
		}
		// Tie-break is always ascending by ID for a stable page layout.
		return c[i].entity.ID < c[j].entity.ID
	})
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
