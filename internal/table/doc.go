// Package table is the paged entity table views render into.
//
// A Table declares its rows from a bulk listing, filters and sorts them
// against a status store, and renders one page of row nodes. It implements
// reconcile.Surface so telemetry patches only the rendered rows.
package table
