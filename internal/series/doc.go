// Package series holds the bounded point buffers behind bandwidth charts.
//
// A Buffer is either live (append at the tail, evict from the head) or
// historical (replaced wholesale, optionally bucket-averaged). Switching
// modes discards the other mode's points. Destroy releases the chart.
package series
