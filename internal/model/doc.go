// Package model defines shared data types used across netpulse.
//
// Conventions:
//   - Entity IDs: opaque strings (numeric REST IDs are formatted base-10)
//   - Rates: float64 bits per second
//   - Timestamps: time.Time in UTC; series points carry unix milliseconds
package model
