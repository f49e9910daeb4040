package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrUnknownSort   = errors.New("unknown sort")
)

// Filter selects rows by status.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterOnline  Filter = "online"
	FilterOffline Filter = "offline"
	FilterWarning Filter = "warning" // detected_no_queue
)

// ParseFilter parses a filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOnline, FilterOffline, FilterWarning:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
}

// SortKey orders rows.
type SortKey string

const (
	SortName     SortKey = "name"
	SortStatus   SortKey = "status"
	SortDownload SortKey = "download"
	SortUpload   SortKey = "upload"
)

// ParseSort parses "key" or "-key" (descending). Empty means name ascending.
func ParseSort(s string) (SortKey, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	desc := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	switch k := SortKey(s); k {
	case "":
		return SortName, desc, nil
	case SortName, SortStatus, SortDownload, SortUpload:
		return k, desc, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnknownSort, s)
	}
}

// Query is the table's view state.
type Query struct {
	Filter Filter
	Search string // Case-insensitive substring of name or ID
	Sort   SortKey
	Desc   bool
	Page   int // 1-based
}

// DefaultQuery shows the first page of all rows by name.
func DefaultQuery() Query {
	return Query{Filter: FilterAll, Sort: SortName, Page: 1}
}
