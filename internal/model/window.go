package model

import (
	"fmt"
	"time"
)

// TimeWindow is an inclusive [Start, End] range of timestamps to ingest.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]",
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// StoreExtent summarizes the timestamp range already persisted. "Distinct
// timestamps" counts unique ticks, not physical rows (each tick holds one row
// per station).
type StoreExtent struct {
	Min                time.Time
	Max                time.Time
	DistinctTimestamps int64
}

// Summary is the read-only report behind the info command.
type Summary struct {
	Extent             *StoreExtent
	RowCount           int64
	DistinctTimestamps int64
	Stations           int64
}
