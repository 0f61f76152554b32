// Package planner decides which time window an update run should request.
package planner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fillariennustin/fillaridata/internal/model"
)

// ErrEmptyWindow indicates there is nothing new to fetch. Callers treat it as
// a successful no-op, not a failure.
var ErrEmptyWindow = eris.New("empty window")

// Lister reports which distinct timestamps a source currently has available.
type Lister interface {
	List(ctx context.Context) ([]time.Time, error)
}

// Options are the user-facing knobs of an update run.
type Options struct {
	// First discards everything before this instant, regardless of the
	// store's extent. Used to skip known-bad early data.
	First *time.Time
	// Limit caps the number of distinct timestamps in the window. Zero means
	// unlimited.
	Limit int
}

// Planner translates the store's extent and the update options into a
// concrete window against the source's listing.
type Planner struct {
	lister Lister
}

// New creates a planner over the given source listing.
func New(lister Lister) *Planner {
	return &Planner{lister: lister}
}

// Plan returns the inclusive window to ingest next. With no existing extent
// and no First bound, the window starts at the earliest available timestamp
// (full backfill). With an extent, it starts strictly after extent.Max so the
// store's key uniqueness holds without a downstream filter. Limit is a count
// of distinct timestamps and is resolved to a concrete end instant here: each
// timestamp fans out to one row per station, so only a timestamp-count bound
// keeps memory predictable.
func (p *Planner) Plan(ctx context.Context, extent *model.StoreExtent, opts Options) (model.TimeWindow, error) {
	available, err := p.lister.List(ctx)
	if err != nil {
		return model.TimeWindow{}, eris.Wrap(err, "plan: list source")
	}
	if len(available) == 0 {
		return model.TimeWindow{}, eris.Wrap(ErrEmptyWindow, "plan: source has no timestamps")
	}

	due := available[:0:0]
	for _, t := range available {
		if extent != nil && !t.After(extent.Max) {
			continue
		}
		if opts.First != nil && t.Before(*opts.First) {
			continue
		}
		due = append(due, t)
	}

	if len(due) == 0 {
		latest := available[len(available)-1]
		if opts.First != nil && opts.First.After(latest) {
			return model.TimeWindow{}, eris.Wrapf(ErrEmptyWindow,
				"plan: --first %s is later than newest available %s",
				opts.First.Format(time.RFC3339), latest.Format(time.RFC3339))
		}
		return model.TimeWindow{}, eris.Wrap(ErrEmptyWindow, "plan: store is already up to date")
	}

	if opts.Limit > 0 && len(due) > opts.Limit {
		due = due[:opts.Limit]
	}

	return model.TimeWindow{Start: due[0], End: due[len(due)-1]}, nil
}
