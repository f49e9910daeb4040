// Package server exposes views over HTTP.
//
// Operators poll GET /api/views/{view}. A view whose last poll is older than
// the active window counts as hidden: its scheduler keeps accumulating
// telemetry without rendering, and the next poll resumes it.
package server
