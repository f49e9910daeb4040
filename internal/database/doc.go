// Package database provides the PostgreSQL connection pool and the entity
// directory read from it.
//
// The directory is an alternative to the management REST API for bulk
// seeding views and for the fallback poller.
package database
