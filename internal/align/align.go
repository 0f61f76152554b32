// Package align joins the minute-level bike timeline with the sparser
// weather observations.
package align

import (
	"github.com/rotisserie/eris"

	"github.com/fillariennustin/fillaridata/internal/model"
)

// ErrUnsortedInput indicates a caller violated the sorted-input precondition.
// It points at an upstream bug and is never retried.
var ErrUnsortedInput = eris.New("unsorted input")

// Fuse assigns each bike snapshot the most recent weather observation at or
// before its timestamp and returns one fused row per snapshot, in input
// order. A future observation is never attached; snapshots older than every
// observation keep unknown weather fields.
//
// Both inputs must already be sorted ascending: bikes by (timestamp,
// station), weather by timestamp. Weather is consumed by a single forward
// cursor driven by the denser bike timeline, so cost is O(len(bikes) +
// len(weather)).
func Fuse(bikes []model.BikeSnapshot, weather []model.WeatherObservation) ([]model.FusedRow, error) {
	for i := 1; i < len(bikes); i++ {
		if bikes[i].Key().Less(bikes[i-1].Key()) {
			return nil, eris.Wrapf(ErrUnsortedInput,
				"bike snapshots out of order at index %d (%s %q)",
				i, bikes[i].Timestamp, bikes[i].Station)
		}
	}
	for i := 1; i < len(weather); i++ {
		if weather[i].Timestamp.Before(weather[i-1].Timestamp) {
			return nil, eris.Wrapf(ErrUnsortedInput,
				"weather observations out of order at index %d (%s)",
				i, weather[i].Timestamp)
		}
	}

	rows := make([]model.FusedRow, 0, len(bikes))
	cursor := -1 // index of the latest observation not after the current snapshot

	for _, b := range bikes {
		for cursor+1 < len(weather) && !weather[cursor+1].Timestamp.After(b.Timestamp) {
			cursor++
		}

		row := model.FusedRow{
			Timestamp:  b.Timestamp,
			Station:    b.Station,
			Lat:        b.Lat,
			Lon:        b.Lon,
			AvlBikes:   b.AvlBikes,
			FreeSlots:  b.FreeSlots,
			TotalSlots: b.TotalSlots,
			Operative:  b.Operative,
			Style:      b.Style,
		}
		if cursor >= 0 {
			w := weather[cursor]
			row.TemperatureC = w.TemperatureC
			row.WindSpeedMS = w.WindSpeedMS
			row.Rainfall1hMM = w.Rainfall1hMM
			row.PressureSeaMbar = w.PressureSeaMbar
		}
		rows = append(rows, row)
	}

	return rows, nil
}
