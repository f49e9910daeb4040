// Package reconcile applies flushed batches to a render surface.
//
// A Reconciler patches only the nodes for entities in the batch, looks each
// node up at most once per render (hits and misses are both cached until the
// owner invalidates), recomputes counters from the status store and asks the
// surface to refilter at most once per flush.
package reconcile
