// Package pipeline composes planning, fetching, fusion and persistence for
// the update and info commands.
package pipeline

import (
	"context"
	"time"

	"github.com/fillariennustin/fillaridata/internal/model"
)

// BikeSource yields station snapshots for a window and lists what the source
// currently has available.
type BikeSource interface {
	List(ctx context.Context) ([]time.Time, error)
	Fetch(ctx context.Context, window model.TimeWindow) ([]model.BikeSnapshot, error)
}

// WeatherSource yields weather observations for a window.
type WeatherSource interface {
	Fetch(ctx context.Context, window model.TimeWindow) ([]model.WeatherObservation, error)
}
