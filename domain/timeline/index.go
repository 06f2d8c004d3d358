// Package timeline derives the time range of a graph, its evenly spaced
// markers and the cutoff instant for a playback position.
package timeline

import (
	"time"

	"clickchain/domain/graph"
)

// DefaultMarkerCount is the number of markers spanning the range
const DefaultMarkerCount = 5

// MaxPosition is the playback position that maps to the end of the range
const MaxPosition = 100.0

// Index is the timeline of one built graph
type Index struct {
	min, max    time.Time
	empty       bool
	markerCount int
}

// NewIndex computes the range over every non-domain node. A markerCount
// below 2 selects DefaultMarkerCount.
func NewIndex(g *graph.Graph, markerCount int) *Index {
	if markerCount < 2 {
		markerCount = DefaultMarkerCount
	}
	ix := &Index{empty: true, markerCount: markerCount}
	if g == nil {
		return ix
	}
	for _, n := range g.Nodes {
		if n.IsDomain() || n.Timestamp == nil {
			continue
		}
		ts := *n.Timestamp
		if ix.empty {
			ix.min, ix.max, ix.empty = ts, ts, false
			continue
		}
		if ts.Before(ix.min) {
			ix.min = ts
		}
		if ts.After(ix.max) {
			ix.max = ts
		}
	}
	return ix
}

// Empty reports whether the graph had no timestamped nodes
func (ix *Index) Empty() bool {
	return ix.empty
}

// Range returns the earliest and latest node timestamps
func (ix *Index) Range() (time.Time, time.Time, bool) {
	if ix.empty {
		return time.Time{}, time.Time{}, false
	}
	return ix.min, ix.max, true
}

// Span is the length of the range
func (ix *Index) Span() time.Duration {
	if ix.empty {
		return 0
	}
	return ix.max.Sub(ix.min)
}

// Markers returns markerCount instants from min to max inclusive, or nil for
// an empty index.
func (ix *Index) Markers() []time.Time {
	if ix.empty {
		return nil
	}
	span := ix.Span()
	last := ix.markerCount - 1
	markers := make([]time.Time, ix.markerCount)
	for k := 0; k < ix.markerCount; k++ {
		markers[k] = ix.min.Add(time.Duration(int64(span) * int64(k) / int64(last)))
	}
	markers[last] = ix.max
	return markers
}

// CutoffTime maps a position in [0,100] onto the range. Positions outside
// that interval are clamped. ok is false for an empty index.
func (ix *Index) CutoffTime(position float64) (time.Time, bool) {
	if ix.empty {
		return time.Time{}, false
	}
	position = ClampPosition(position)
	if position >= MaxPosition {
		return ix.max, true
	}
	offset := time.Duration(float64(ix.Span()) * position / MaxPosition)
	return ix.min.Add(offset), true
}

// ClampPosition bounds a position to [0,100]. NaN maps to 0.
func ClampPosition(position float64) float64 {
	switch {
	case position != position || position < 0:
		return 0
	case position > MaxPosition:
		return MaxPosition
	default:
		return position
	}
}
