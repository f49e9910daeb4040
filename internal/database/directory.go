package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/rickgao/netpulse/internal/model"
)

const listConnectionsSQL = `SELECT id, username, status FROM connections ORDER BY id`

// Querier is the subset of *pgxpool.Pool used by the directory.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Directory lists subscriber connections from Postgres.
type Directory struct {
	db     Querier
	logger *slog.Logger
}

// NewDirectory creates a directory over a pool.
func NewDirectory(db Querier, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{db: db, logger: logger}
}

// ListConnections returns every connection as an entity. Rows with an
// unknown status are logged and skipped.
func (d *Directory) ListConnections(ctx context.Context) ([]model.Entity, error) {
	rows, err := d.db.Query(ctx, listConnectionsSQL)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var id, username, status string
		if err := rows.Scan(&id, &username, &status); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		st, err := model.ParseStatus(status)
		if err != nil {
			d.logger.Warn("skipping connection", "id", id, "error", err)
			continue
		}
		name := username
		if name == "" {
			name = id
		}
		out = append(out, model.Entity{ID: model.EntityID(id), Name: name, Status: st})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}
