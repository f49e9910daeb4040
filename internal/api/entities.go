package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/netpulse/internal/model"
)

// ListConnections fetches every subscriber connection.
func (c *Client) ListConnections(ctx context.Context) ([]APIConnection, error) {
	var resp ConnectionsResponse
	if err := c.get(ctx, "/connections", nil, &resp); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return resp.Connections, nil
}

// ListInterfaces fetches the interfaces of a router.
func (c *Client) ListInterfaces(ctx context.Context, routerID string) ([]APIInterface, error) {
	var resp InterfacesResponse
	if err := c.get(ctx, "/routers/"+url.PathEscape(routerID)+"/interfaces", nil, &resp); err != nil {
		return nil, fmt.Errorf("list interfaces %s: %w", routerID, err)
	}
	return resp.Interfaces, nil
}

// GetTrafficHistory fetches historical bandwidth points for an entity.
// Zero from/to are omitted and left to the server's default window.
func (c *Client) GetTrafficHistory(ctx context.Context, id model.EntityID, from, to time.Time) ([]model.SeriesPoint, error) {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	}
	if !to.IsZero() {
		query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	}

	var resp TrafficResponse
	if err := c.get(ctx, "/entities/"+url.PathEscape(string(id))+"/traffic", query, &resp); err != nil {
		return nil, fmt.Errorf("get traffic %s: %w", id, err)
	}
	return TrafficToPoints(resp.Points), nil
}
