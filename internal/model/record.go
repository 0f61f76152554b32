package model

import "time"

// BikeSnapshot is one station's state at one minute tick, as published by the
// HSL city bike archive. Timestamps are UTC, truncated to the minute.
type BikeSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Station    string    `json:"station"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AvlBikes   int       `json:"avl_bikes"`
	FreeSlots  int       `json:"free_slots"`
	TotalSlots int       `json:"total_slots"`
	Operative  bool      `json:"operative"`
	Style      string    `json:"style"`
}

// Key returns the snapshot's (timestamp, station) identity, which becomes the
// fused row's primary key.
func (b BikeSnapshot) Key() Key {
	return Key{Timestamp: b.Timestamp, Station: b.Station}
}

// WeatherObservation is one reading from the FMI measurement site, published
// at 10-minute ticks. Any field may be nil when the sensor reported nothing.
type WeatherObservation struct {
	Timestamp       time.Time `json:"timestamp"`
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	WindSpeedMS     *float64  `json:"wind_speed_ms,omitempty"`
	Rainfall1hMM    *float64  `json:"rainfall_1h_mm,omitempty"`
	PressureSeaMbar *float64  `json:"pressure_sea_mbar,omitempty"`
}

// FusedRow is the persisted unit: one bike snapshot joined with the weather
// observation in force at its timestamp. (Timestamp, Station) is the primary
// key across the whole store.
type FusedRow struct {
	Timestamp  time.Time `json:"timestamp"`
	Station    string    `json:"station"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AvlBikes   int       `json:"avl_bikes"`
	FreeSlots  int       `json:"free_slots"`
	TotalSlots int       `json:"total_slots"`
	Operative  bool      `json:"operative"`
	Style      string    `json:"style"`

	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	WindSpeedMS     *float64 `json:"wind_speed_ms,omitempty"`
	Rainfall1hMM    *float64 `json:"rainfall_1h_mm,omitempty"`
	PressureSeaMbar *float64 `json:"pressure_sea_mbar,omitempty"`
}

// Key returns the row's primary key.
func (r FusedRow) Key() Key {
	return Key{Timestamp: r.Timestamp, Station: r.Station}
}

// Key identifies one fused row.
type Key struct {
	Timestamp time.Time
	Station   string
}

// Less orders keys by timestamp, then station name.
func (k Key) Less(other Key) bool {
	if !k.Timestamp.Equal(other.Timestamp) {
		return k.Timestamp.Before(other.Timestamp)
	}
	return k.Station < other.Station
}
