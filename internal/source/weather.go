package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fillariennustin/fillaridata/internal/config"
	"github.com/fillariennustin/fillaridata/internal/fetcher"
	"github.com/fillariennustin/fillaridata/internal/model"
)

// WFS parameter names for the simple weather stored query.
const (
	paramTemperature = "T"
	paramWindSpeed   = "WS_10MIN"
	paramPressure    = "P_SEA"
	paramRainfall    = "R_1H"
)

// WeatherSource reads observations from FMI's open data WFS feed. A single
// fixed measurement site is used; the feed publishes at 10-minute ticks.
type WeatherSource struct {
	cfg     config.FMIConfig
	fetcher fetcher.Fetcher
}

// NewWeatherSource creates a weather source for the configured FMI feed.
func NewWeatherSource(cfg config.FMIConfig, f fetcher.Fetcher) *WeatherSource {
	return &WeatherSource{cfg: cfg, fetcher: f}
}

// Fetch returns the site's observations inside the window, sorted by
// timestamp. The window is queried in bounded sub-ranges; long WFS requests
// are known to time out. The hourly-only rainfall parameter is carried
// forward to the 10-minute ticks between readings.
func (s *WeatherSource) Fetch(ctx context.Context, window model.TimeWindow) ([]model.WeatherObservation, error) {
	chunk := time.Duration(s.cfg.ChunkHours) * time.Hour
	if chunk <= 0 {
		chunk = 24 * time.Hour
	}

	// Pad the end to cover rounding at the last bike tick.
	start := window.Start.UTC()
	stop := window.End.UTC().Add(10 * time.Minute)

	byTime := make(map[time.Time]model.WeatherObservation)
	for rangeStart := start; rangeStart.Before(stop); rangeStart = rangeStart.Add(chunk) {
		rangeStop := rangeStart.Add(chunk)
		if rangeStop.After(stop) {
			rangeStop = stop
		}
		if err := s.fetchRange(ctx, rangeStart, rangeStop, byTime); err != nil {
			return nil, err
		}
	}

	obs := make([]model.WeatherObservation, 0, len(byTime))
	for _, o := range byTime {
		obs = append(obs, o)
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })

	fillRainfall(obs)
	return obs, nil
}

// wfsMember mirrors one BsWfsElement of the WFS response. Namespaces are
// ignored; local element names are unambiguous in this payload.
type wfsMember struct {
	Pos   string `xml:"BsWfsElement>Location>Point>pos"`
	Time  string `xml:"BsWfsElement>Time"`
	Name  string `xml:"BsWfsElement>ParameterName"`
	Value string `xml:"BsWfsElement>ParameterValue"`
}

func (s *WeatherSource) fetchRange(ctx context.Context, start, stop time.Time, byTime map[time.Time]model.WeatherObservation) error {
	addr, err := s.queryURL(start, stop)
	if err != nil {
		return err
	}

	body, err := s.fetcher.Download(ctx, addr)
	if err != nil {
		return eris.Wrapf(ErrSourceUnavailable, "weather: fetch %s..%s: %v",
			start.Format(time.RFC3339), stop.Format(time.RFC3339), err)
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(body)
	if err != nil {
		return eris.Wrapf(ErrSourceUnavailable, "weather: read response: %v", err)
	}

	var resp struct {
		Members []wfsMember `xml:"member"`
	}
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return eris.Wrap(err, "weather: decode WFS response")
	}

	for _, m := range resp.Members {
		// The stored query returns every city site; keep the configured one.
		if strings.TrimSpace(m.Pos) != strings.TrimSpace(s.cfg.SitePosition) {
			continue
		}

		ts, err := time.Parse(time.RFC3339, m.Time)
		if err != nil {
			zap.L().Warn("weather: unparseable observation time", zap.String("time", m.Time))
			continue
		}
		ts = ts.UTC()

		o, ok := byTime[ts]
		if !ok {
			o = model.WeatherObservation{Timestamp: ts}
		}
		v := parseValue(m.Value)
		switch m.Name {
		case paramTemperature:
			if o.TemperatureC == nil {
				o.TemperatureC = v
			}
		case paramWindSpeed:
			if o.WindSpeedMS == nil {
				o.WindSpeedMS = v
			}
		case paramPressure:
			if o.PressureSeaMbar == nil {
				o.PressureSeaMbar = v
			}
		case paramRainfall:
			if o.Rainfall1hMM == nil {
				o.Rainfall1hMM = v
			}
		default:
			continue
		}
		byTime[ts] = o
	}
	return nil
}

func (s *WeatherSource) queryURL(start, stop time.Time) (string, error) {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	addr := fmt.Sprintf("%s/fmi-apikey/%s/wfs", base, s.cfg.APIKey)

	q := url.Values{}
	q.Set("request", "getFeature")
	q.Set("storedquery_id", s.cfg.StoredQuery)
	q.Set("starttime", start.Format("2006-01-02T15:04:05Z"))
	q.Set("endtime", stop.Format("2006-01-02T15:04:05Z"))

	u, err := url.Parse(addr)
	if err != nil {
		return "", eris.Wrapf(err, "weather: bad base URL %s", s.cfg.BaseURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseValue converts a WFS parameter value, treating NaN (the feed's marker
// for a missing sensor reading) as unknown.
func parseValue(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	return &f
}

// fillRainfall carries the hourly rainfall reading forward across the
// 10-minute ticks, then backward over any leading gap when the window does
// not begin on the hour.
func fillRainfall(obs []model.WeatherObservation) {
	var last *float64
	for i := range obs {
		if obs[i].Rainfall1hMM != nil {
			last = obs[i].Rainfall1hMM
		} else if last != nil {
			v := *last
			obs[i].Rainfall1hMM = &v
		}
	}

	var next *float64
	for i := len(obs) - 1; i >= 0; i-- {
		if obs[i].Rainfall1hMM != nil {
			next = obs[i].Rainfall1hMM
		} else if next != nil {
			v := *next
			obs[i].Rainfall1hMM = &v
		}
	}
}
