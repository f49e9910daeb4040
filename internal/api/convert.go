package api

import (
	"fmt"
	"sort"

	"github.com/rickgao/netpulse/internal/model"
)

// ConnectionsToEntities converts a connections listing to entities.
// Entries with an empty id or an unrecognized status are reported and left out.
func ConnectionsToEntities(conns []APIConnection) ([]model.Entity, []error) {
	out := make([]model.Entity, 0, len(conns))
	var errs []error

	for _, c := range conns {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("connection %q: empty id", c.Username))
			continue
		}
		st, err := model.ParseStatus(c.Status)
		if err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", c.ID, err))
			continue
		}
		name := c.Username
		if name == "" {
			name = string(c.ID)
		}
		out = append(out, model.Entity{
			ID:     model.EntityID(c.ID),
			Name:   name,
			Status: st,
		})
	}
	return out, errs
}

// InterfacesToEntities converts a router's interfaces to entities scoped to
// the router. Running interfaces are online.
func InterfacesToEntities(routerID string, ifaces []APIInterface) []model.Entity {
	out := make([]model.Entity, 0, len(ifaces))
	for _, i := range ifaces {
		if i.Name == "" {
			continue
		}
		st := model.StatusOffline
		if i.Running {
			st = model.StatusOnline
		}
		out = append(out, model.Entity{
			ID:     model.EntityID(i.Name),
			Scope:  routerID,
			Name:   i.Name,
			Status: st,
		})
	}
	return out
}

// TrafficToPoints converts traffic samples to series points in ascending
// time order.
func TrafficToPoints(points []APITrafficPoint) []model.SeriesPoint {
	out := make([]model.SeriesPoint, len(points))
	for i, p := range points {
		out[i] = model.SeriesPoint{
			Timestamp:   int64(p.Timestamp),
			DownloadBps: p.DownloadBps,
			UploadBps:   p.UploadBps,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// EntitiesToSnapshots turns listed entities into snapshots for injection.
func EntitiesToSnapshots(entities []model.Entity) []model.Snapshot {
	out := make([]model.Snapshot, len(entities))
	for i, e := range entities {
		out[i] = model.Snapshot{
			EntityID: e.ID,
			Scope:    e.Scope,
			Status:   e.Status,
		}
	}
	return out
}
