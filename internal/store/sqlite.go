package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fillariennustin/fillaridata/internal/model"
)

// ErrUnsortedChunk means an appended chunk was not sorted by (timestamp,
// station). Like unsorted fusion input, it indicates an upstream bug.
var ErrUnsortedChunk = eris.New("unsorted chunk")

// tsLayout is fixed-width UTC so the text primary key sorts chronologically.
const tsLayout = "2006-01-02T15:04:05Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fused_rows (
	ts                TEXT NOT NULL,
	station           TEXT NOT NULL,
	lat               REAL NOT NULL,
	lon               REAL NOT NULL,
	avl_bikes         INTEGER NOT NULL,
	free_slots        INTEGER NOT NULL,
	total_slots       INTEGER NOT NULL,
	operative         INTEGER NOT NULL,
	style             TEXT NOT NULL,
	temperature_c     REAL,
	wind_speed_ms     REAL,
	rainfall_1h_mm    REAL,
	pressure_sea_mbar REAL,
	PRIMARY KEY (ts, station)
) WITHOUT ROWID;
`

var expectedColumns = []string{
	"ts", "station", "lat", "lon", "avl_bikes", "free_slots", "total_slots",
	"operative", "style", "temperature_c", "wind_speed_ms", "rainfall_1h_mm",
	"pressure_sea_mbar",
}

// SQLiteStore implements Store using modernc.org/sqlite. The clustered
// (ts, station) primary key keeps rows in key order on disk and makes extent
// queries index-only.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the dataset at the given path. An existing file is
// integrity-checked and its column set compared against this build's schema
// before any use.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			if strings.Contains(err.Error(), "not a database") {
				return nil, eris.Wrapf(ErrStorageCorrupt, "%s: %v", path, err)
			}
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.check(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "store: create schema at %s", path)
	}
	return s, nil
}

// check runs the integrity check and, when the table already exists, the
// schema comparison.
func (s *SQLiteStore) check(ctx context.Context) error {
	var verdict string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&verdict); err != nil {
		return eris.Wrapf(ErrStorageCorrupt, "%s: quick_check failed: %v", s.path, err)
	}
	if verdict != "ok" {
		return eris.Wrapf(ErrStorageCorrupt, "%s: quick_check: %s", s.path, verdict)
	}

	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(fused_rows)")
	if err != nil {
		return eris.Wrapf(err, "store: table_info at %s", s.path)
	}
	defer rows.Close() //nolint:errcheck

	var cols []string
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return eris.Wrap(err, "store: scan table_info")
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "store: iterate table_info")
	}

	if len(cols) == 0 {
		return nil // table not created yet
	}
	if strings.Join(cols, ",") != strings.Join(expectedColumns, ",") {
		return eris.Wrapf(ErrSchemaMismatch, "%s: store has columns [%s], expected [%s]",
			s.path, strings.Join(cols, " "), strings.Join(expectedColumns, " "))
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReadExtent returns the persisted timestamp range, or nil for an empty
// store. MIN/MAX/COUNT(DISTINCT) over the leading key column resolve from the
// primary key index; no row data is read.
func (s *SQLiteStore) ReadExtent(ctx context.Context) (*model.StoreExtent, error) {
	var minTS, maxTS sql.NullString
	var distinct int64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts), COUNT(DISTINCT ts) FROM fused_rows`,
	).Scan(&minTS, &maxTS, &distinct)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read extent of %s", s.path)
	}
	if !minTS.Valid {
		return nil, nil
	}

	minT, err := time.Parse(tsLayout, minTS.String)
	if err != nil {
		return nil, eris.Wrapf(ErrStorageCorrupt, "%s: unparseable min ts %q", s.path, minTS.String)
	}
	maxT, err := time.Parse(tsLayout, maxTS.String)
	if err != nil {
		return nil, eris.Wrapf(ErrStorageCorrupt, "%s: unparseable max ts %q", s.path, maxTS.String)
	}
	return &model.StoreExtent{Min: minT, Max: maxT, DistinctTimestamps: distinct}, nil
}

// Append merges one chunk into the store inside a single transaction. The
// chunk must be sorted by key and key-unique; any collision with persisted
// keys aborts the whole append and leaves the store untouched. Memory use is
// bounded by the chunk, never by store size.
func (s *SQLiteStore) Append(ctx context.Context, rows []model.FusedRow) (AppendResult, error) {
	if len(rows) == 0 {
		return AppendResult{}, nil
	}

	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].Key(), rows[i].Key()
		if cur.Less(prev) {
			return AppendResult{}, eris.Wrapf(ErrUnsortedChunk,
				"append: row %d (%s %q) out of order", i, cur.Timestamp.Format(tsLayout), cur.Station)
		}
		if !cur.Less(prev) && !prev.Less(cur) {
			return AppendResult{}, eris.Wrapf(ErrDuplicateKey,
				"append: chunk repeats key (%s, %q)", cur.Timestamp.Format(tsLayout), cur.Station)
		}
	}

	extent, err := s.ReadExtent(ctx)
	if err != nil {
		return AppendResult{}, err
	}
	// Fast path: a chunk starting strictly after the stored maximum cannot
	// collide. Otherwise fall back to checking each key.
	overlapPossible := extent != nil && !rows[0].Timestamp.After(extent.Max)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, eris.Wrapf(err, "store: begin append to %s", s.path)
	}
	defer tx.Rollback() //nolint:errcheck

	if overlapPossible {
		exists, err := tx.PrepareContext(ctx,
			`SELECT 1 FROM fused_rows WHERE ts = ? AND station = ?`)
		if err != nil {
			return AppendResult{}, eris.Wrap(err, "store: prepare collision check")
		}
		defer exists.Close() //nolint:errcheck

		for _, r := range rows {
			var one int
			err := exists.QueryRowContext(ctx, r.Timestamp.UTC().Format(tsLayout), r.Station).Scan(&one)
			if err == nil {
				return AppendResult{}, eris.Wrapf(ErrDuplicateKey,
					"append: key (%s, %q) already in store", r.Timestamp.UTC().Format(tsLayout), r.Station)
			}
			if err != sql.ErrNoRows {
				return AppendResult{}, eris.Wrap(err, "store: collision check")
			}
		}
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO fused_rows (
			ts, station, lat, lon, avl_bikes, free_slots, total_slots,
			operative, style, temperature_c, wind_speed_ms, rainfall_1h_mm,
			pressure_sea_mbar
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return AppendResult{}, eris.Wrap(err, "store: prepare insert")
	}
	defer insert.Close() //nolint:errcheck

	timestamps := make(map[string]struct{})
	for _, r := range rows {
		ts := r.Timestamp.UTC().Format(tsLayout)
		_, err := insert.ExecContext(ctx,
			ts, r.Station, r.Lat, r.Lon, r.AvlBikes, r.FreeSlots, r.TotalSlots,
			boolToInt(r.Operative), r.Style,
			r.TemperatureC, r.WindSpeedMS, r.Rainfall1hMM, r.PressureSeaMbar,
		)
		if err != nil {
			// The primary key constraint backstops the explicit check.
			if strings.Contains(err.Error(), "UNIQUE constraint") ||
				strings.Contains(err.Error(), "constraint failed") {
				return AppendResult{}, eris.Wrapf(ErrDuplicateKey,
					"append: key (%s, %q): %v", ts, r.Station, err)
			}
			return AppendResult{}, eris.Wrapf(err, "store: insert (%s, %q)", ts, r.Station)
		}
		timestamps[ts] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, eris.Wrapf(err, "store: commit append to %s", s.path)
	}
	return AppendResult{Rows: int64(len(rows)), Timestamps: int64(len(timestamps))}, nil
}

// Summary reports the counts behind the info command, all derived from the
// key index.
func (s *SQLiteStore) Summary(ctx context.Context) (*model.Summary, error) {
	extent, err := s.ReadExtent(ctx)
	if err != nil {
		return nil, err
	}
	if extent == nil {
		return &model.Summary{}, nil
	}

	var rowCount, stations int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT station) FROM fused_rows`,
	).Scan(&rowCount, &stations)
	if err != nil {
		return nil, eris.Wrapf(err, "store: summarize %s", s.path)
	}

	return &model.Summary{
		Extent:             extent,
		RowCount:           rowCount,
		DistinctTimestamps: extent.DistinctTimestamps,
		Stations:           stations,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
