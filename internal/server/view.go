package server

import (
	"log/slog"

	"github.com/rickgao/netpulse/internal/hub"
	"github.com/rickgao/netpulse/internal/reconcile"
	"github.com/rickgao/netpulse/internal/table"
)

// NewTableView binds a table to c: flushes patch it, and every structural
// re-render drops the consumer's render cache.
func NewTableView(name string, c *hub.Consumer, pageSize int, logger *slog.Logger) View {
	t := table.New(c.Store(), pageSize, logger)
	c.AttachReconciler(t, reconcile.DefaultCounters())
	t.OnRender(c.InvalidateRenderCache)
	return View{Name: name, Consumer: c, Table: t}
}
