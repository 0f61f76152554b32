package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fillariennustin/fillaridata/internal/fetcher"
	"github.com/fillariennustin/fillaridata/internal/model"
)

// Snapshot files are named stations_20170401T123000Z; the trailing Z marks UTC.
var snapshotName = regexp.MustCompile(`stations_(\d{8}T\d{6})Z`)

const snapshotTimeLayout = "20060102T150405"

// BikeSource reads station snapshots from the HSL archive. The source is
// either an HTTP index page listing snapshot files or a local directory of
// pre-downloaded ones; only the transport differs.
type BikeSource struct {
	source  string
	fetcher fetcher.Fetcher
}

// NewBikeSource creates a bike snapshot source for the given URL or directory.
func NewBikeSource(source string, f fetcher.Fetcher) *BikeSource {
	return &BikeSource{source: source, fetcher: f}
}

// List returns the sorted distinct snapshot timestamps available at the
// source, truncated to the minute. When two files land in the same minute the
// first is kept, preserving key uniqueness downstream.
func (s *BikeSource) List(ctx context.Context) ([]time.Time, error) {
	byMinute, err := s.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	ts := make([]time.Time, 0, len(byMinute))
	for t := range byMinute {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts, nil
}

// Fetch downloads and decodes every snapshot inside the window, returning
// rows sorted by (timestamp, station). Individual unreadable files are logged
// and skipped, matching the known flakiness of the archive; a window where
// every file fails is an error.
func (s *BikeSource) Fetch(ctx context.Context, window model.TimeWindow) ([]model.BikeSnapshot, error) {
	byMinute, err := s.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	var due []time.Time
	for t := range byMinute {
		if window.Contains(t) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Before(due[j]) })

	var snapshots []model.BikeSnapshot
	failures := 0
	for _, t := range due {
		rows, err := s.readFile(ctx, byMinute[t], t)
		if err != nil {
			failures++
			zap.L().Warn("skipping unreadable snapshot",
				zap.String("file", byMinute[t]),
				zap.Error(err),
			)
			continue
		}
		snapshots = append(snapshots, rows...)
	}

	if failures > 0 {
		zap.L().Warn("some snapshots could not be processed", zap.Int("failures", failures))
	}
	if len(due) > 0 && len(snapshots) == 0 {
		return nil, eris.Wrapf(ErrSourceUnavailable, "bike: all %d snapshots in %s failed", len(due), window)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Key().Less(snapshots[j].Key())
	})
	return snapshots, nil
}

// listFiles maps minute timestamps to snapshot file names.
func (s *BikeSource) listFiles(ctx context.Context) (map[time.Time]string, error) {
	var names []string

	u, err := url.Parse(s.source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		body, err := s.fetcher.Download(ctx, s.source)
		if err != nil {
			return nil, eris.Wrapf(ErrSourceUnavailable, "bike: list %s: %v", s.source, err)
		}
		defer body.Close() //nolint:errcheck

		page, err := io.ReadAll(body)
		if err != nil {
			return nil, eris.Wrapf(ErrSourceUnavailable, "bike: read index %s: %v", s.source, err)
		}
		for _, m := range snapshotName.FindAll(page, -1) {
			names = append(names, string(m))
		}
	} else if info, err := os.Stat(s.source); err == nil && info.IsDir() {
		entries, err := os.ReadDir(s.source)
		if err != nil {
			return nil, eris.Wrapf(ErrSourceUnavailable, "bike: list dir %s: %v", s.source, err)
		}
		for _, e := range entries {
			if snapshotName.MatchString(e.Name()) {
				names = append(names, e.Name())
			}
		}
	} else {
		return nil, eris.Wrapf(ErrSourceUnavailable, "bike: source %s is neither an HTTP address nor a directory", s.source)
	}

	if len(names) == 0 {
		return nil, eris.Wrapf(ErrSourceUnavailable, "bike: no snapshot files found at %s", s.source)
	}

	byMinute := make(map[time.Time]string, len(names))
	sort.Strings(names)
	for _, name := range names {
		stamp := snapshotName.FindStringSubmatch(name)[1]
		t, err := time.Parse(snapshotTimeLayout, stamp)
		if err != nil {
			continue
		}
		minute := t.UTC().Truncate(time.Minute)
		if _, ok := byMinute[minute]; !ok {
			byMinute[minute] = name
		}
	}
	return byMinute, nil
}

func (s *BikeSource) readFile(ctx context.Context, name string, ts time.Time) ([]model.BikeSnapshot, error) {
	var raw []byte
	if u, err := url.Parse(s.source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = path.Join(u.Path, name)
		body, err := s.fetcher.Download(ctx, u.String())
		if err != nil {
			return nil, err
		}
		defer body.Close() //nolint:errcheck
		raw, err = io.ReadAll(body)
		if err != nil {
			return nil, eris.Wrapf(err, "bike: read %s", name)
		}
	} else {
		var err error
		raw, err = os.ReadFile(path.Join(s.source, name))
		if err != nil {
			return nil, eris.Wrapf(err, "bike: read %s", name)
		}
	}
	return decodeSnapshot(raw, ts)
}

// stationRecord mirrors one entry of the archive's "result" array.
type stationRecord struct {
	Name        string   `json:"name"`
	Coordinates string   `json:"coordinates"`
	AvlBikes    int      `json:"avl_bikes"`
	FreeSlots   int      `json:"free_slots"`
	TotalSlots  int      `json:"total_slots"`
	Operative   flexBool `json:"operative"`
	Style       string   `json:"style"`
}

func decodeSnapshot(raw []byte, ts time.Time) ([]model.BikeSnapshot, error) {
	var payload struct {
		Result []stationRecord `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, eris.Wrap(err, "bike: decode snapshot")
	}
	if len(payload.Result) == 0 {
		return nil, eris.New("bike: snapshot has no stations")
	}

	rows := make([]model.BikeSnapshot, 0, len(payload.Result))
	for _, rec := range payload.Result {
		lat, lon, err := parseCoordinates(rec.Coordinates)
		if err != nil {
			return nil, eris.Wrapf(err, "bike: station %q", rec.Name)
		}
		rows = append(rows, model.BikeSnapshot{
			Timestamp:  ts,
			Station:    rec.Name,
			Lat:        lat,
			Lon:        lon,
			AvlBikes:   rec.AvlBikes,
			FreeSlots:  rec.FreeSlots,
			TotalSlots: rec.TotalSlots,
			Operative:  bool(rec.Operative),
			Style:      rec.Style,
		})
	}
	return rows, nil
}

// parseCoordinates splits a "lat,lon" pair; the archive has also published
// space-separated pairs.
func parseCoordinates(s string) (float64, float64, error) {
	sep := ","
	if !strings.Contains(s, ",") {
		sep = " "
	}
	parts := strings.SplitN(strings.TrimSpace(s), sep, 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("malformed coordinates %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Errorf("malformed coordinates %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Errorf("malformed coordinates %q", s)
	}
	return lat, lon, nil
}

// flexBool accepts the archive's mixed encodings of the operative flag:
// JSON booleans and "Yes"/"No" strings both occur.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "yes", "1":
		*b = true
	case "false", "no", "0", "null", "":
		*b = false
	default:
		return eris.Errorf("unrecognized operative value %s", data)
	}
	return nil
}
