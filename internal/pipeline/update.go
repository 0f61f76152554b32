package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fillariennustin/fillaridata/internal/align"
	"github.com/fillariennustin/fillaridata/internal/model"
	"github.com/fillariennustin/fillaridata/internal/planner"
	"github.com/fillariennustin/fillaridata/internal/store"
)

// UpdateOptions configures one update run.
type UpdateOptions struct {
	// First discards source data before this instant.
	First *time.Time
	// Limit caps the total number of distinct timestamps added. Zero means
	// unlimited.
	Limit int
	// Batch caps the timestamps fused and committed per append, bounding peak
	// memory to one batch's rows.
	Batch int
	// WeatherLookback extends the weather fetch window backward so the first
	// bike tick has a prior observation to inherit.
	WeatherLookback time.Duration
}

// UpdateResult reports what an update run added.
type UpdateResult struct {
	Rows       int64
	Timestamps int64
	Batches    int
}

// Updater drives plan -> fetch -> fuse -> append.
type Updater struct {
	bikes   BikeSource
	weather WeatherSource
	store   store.Store
	planner *planner.Planner
}

// NewUpdater wires an update pipeline over the given collaborators.
func NewUpdater(bikes BikeSource, weather WeatherSource, st store.Store) *Updater {
	return &Updater{
		bikes:   bikes,
		weather: weather,
		store:   st,
		planner: planner.New(bikes),
	}
}

// Run ingests new data in batches until the source is drained or the limit is
// reached. Each batch is planned against the store's current extent, so the
// resumption point advances with every commit and a re-run with no new
// upstream data is an empty-window no-op. An empty window on the first batch
// is returned to the caller (who reports "nothing to update"); after at least
// one committed batch it just ends the run.
func (u *Updater) Run(ctx context.Context, opts UpdateOptions) (UpdateResult, error) {
	log := zap.L().With(zap.String("component", "pipeline.update"))

	if opts.Batch <= 0 {
		opts.Batch = 500
	}
	if opts.WeatherLookback <= 0 {
		opts.WeatherLookback = time.Hour
	}

	var result UpdateResult
	remaining := opts.Limit

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		batch := opts.Batch
		if opts.Limit > 0 && remaining < batch {
			batch = remaining
		}
		if opts.Limit > 0 && batch == 0 {
			return result, nil
		}

		extent, err := u.store.ReadExtent(ctx)
		if err != nil {
			return result, err
		}

		window, err := u.planner.Plan(ctx, extent, planner.Options{First: opts.First, Limit: batch})
		if err != nil {
			if errors.Is(err, planner.ErrEmptyWindow) && result.Batches > 0 {
				log.Debug("source drained", zap.Int("batches", result.Batches))
				return result, nil
			}
			return result, err
		}

		added, err := u.runBatch(ctx, log, window, opts.WeatherLookback)
		if err != nil {
			return result, err
		}
		if added.Rows == 0 {
			// Planned window yielded nothing usable; stop rather than replan
			// the same window forever.
			return result, nil
		}

		result.Rows += added.Rows
		result.Timestamps += added.Timestamps
		result.Batches++
		if opts.Limit > 0 {
			remaining -= int(added.Timestamps)
		}
	}
}

func (u *Updater) runBatch(ctx context.Context, log *zap.Logger, window model.TimeWindow, lookback time.Duration) (store.AppendResult, error) {
	log.Info("processing window", zap.Stringer("window", window))

	bikes, err := u.bikes.Fetch(ctx, window)
	if err != nil {
		return store.AppendResult{}, eris.Wrapf(err, "update: fetch bike data for %s", window)
	}
	if len(bikes) == 0 {
		return store.AppendResult{}, nil
	}

	weatherWindow := model.TimeWindow{Start: window.Start.Add(-lookback), End: window.End}
	weather, err := u.weather.Fetch(ctx, weatherWindow)
	if err != nil {
		return store.AppendResult{}, eris.Wrapf(err, "update: fetch weather for %s", weatherWindow)
	}

	rows, err := align.Fuse(bikes, weather)
	if err != nil {
		return store.AppendResult{}, eris.Wrapf(err, "update: fuse %s", window)
	}

	logPartialTicks(log, rows)

	added, err := u.store.Append(ctx, rows)
	if err != nil {
		return store.AppendResult{}, eris.Wrapf(err, "update: append %s", window)
	}

	log.Info("batch committed",
		zap.Int64("rows", added.Rows),
		zap.Int64("timestamps", added.Timestamps),
	)
	return added, nil
}

// logPartialTicks records ticks carrying fewer stations than the chunk's full
// station set. Gaps are committed as-is but never silently.
func logPartialTicks(log *zap.Logger, rows []model.FusedRow) {
	stations := make(map[string]struct{})
	perTick := make(map[time.Time]int)
	for _, r := range rows {
		stations[r.Station] = struct{}{}
		perTick[r.Timestamp]++
	}
	for ts, n := range perTick {
		if n < len(stations) {
			log.Warn("partial station set at tick",
				zap.Time("timestamp", ts),
				zap.Int("stations", n),
				zap.Int("expected", len(stations)),
			)
		}
	}
}
