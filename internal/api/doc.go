// Package api provides the REST client for the ISP backend.
//
// Endpoints used:
//   - GET /connections: bulk listing of subscriber connections
//   - GET /routers/{id}/interfaces: interfaces of one router
//   - GET /entities/{id}/traffic?from=&to=: historical bandwidth points
//
// Listings seed status stores before the first telemetry push arrives.
package api
