package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fillariennustin/fillaridata/internal/model"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	st, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st, path
}

func fusedRow(t *testing.T, stamp, station string, temp *float64) model.FusedRow {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, stamp)
	require.NoError(t, err)
	return model.FusedRow{
		Timestamp:    ts,
		Station:      station,
		Lat:          60.17,
		Lon:          24.94,
		AvlBikes:     4,
		FreeSlots:    8,
		TotalSlots:   12,
		Operative:    true,
		Style:        "Station",
		TemperatureC: temp,
	}
}

func f64(v float64) *float64 { return &v }

func TestOpen_CreatesEmptyStore(t *testing.T) {
	st, _ := newTestStore(t)

	extent, err := st.ReadExtent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, extent)
}

func TestAppend_ThenReadExtent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	rows := []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:00:00Z", "Ympyratalo", f64(5)),
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(5)),
	}
	res, err := st.Append(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, int64(2), res.Timestamps)

	extent, err := st.ReadExtent(ctx)
	require.NoError(t, err)
	require.NotNil(t, extent)
	assert.Equal(t, rows[0].Timestamp, extent.Min)
	assert.Equal(t, rows[2].Timestamp, extent.Max)
	assert.Equal(t, int64(2), extent.DistinctTimestamps)
}

func TestAppend_SecondChunkExtends(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
	})
	require.NoError(t, err)

	_, err = st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(5)),
	})
	require.NoError(t, err)

	extent, err := st.ReadExtent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), extent.DistinctTimestamps)
}

func TestAppend_DuplicateWithinChunk(t *testing.T) {
	st, _ := newTestStore(t)

	rows := []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
	}
	_, err := st.Append(context.Background(), rows)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestAppend_DuplicateAgainstStoreIsAtomic(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(5)),
	})
	require.NoError(t, err)

	before, err := st.ReadExtent(ctx)
	require.NoError(t, err)

	// New station at a new tick plus a colliding key: the whole chunk must
	// be rejected, including the otherwise-valid row.
	_, err = st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(6)),
		fusedRow(t, "2017-05-01T10:02:00Z", "Kaivopuisto", f64(6)),
	})
	require.ErrorIs(t, err, ErrDuplicateKey)

	after, err := st.ReadExtent(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed append must leave the extent unchanged")

	sum, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.RowCount)
}

func TestAppend_UnsortedChunk(t *testing.T) {
	st, _ := newTestStore(t)

	rows := []model.FusedRow{
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
	}
	_, err := st.Append(context.Background(), rows)
	require.ErrorIs(t, err, ErrUnsortedChunk)
}

func TestAppend_Empty(t *testing.T) {
	st, _ := newTestStore(t)

	res, err := st.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, AppendResult{}, res)
}

func TestAppend_BackfillBeforeExtent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:05:00Z", "Kaivopuisto", f64(5)),
	})
	require.NoError(t, err)

	// Earlier, non-colliding keys take the defensive path and still commit.
	_, err = st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(4)),
	})
	require.NoError(t, err)

	extent, err := st.ReadExtent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), extent.DistinctTimestamps)
}

func TestSummary_Counts(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	rows := []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:00:00Z", "Ympyratalo", f64(5)),
		fusedRow(t, "2017-05-01T10:01:00Z", "Kaivopuisto", f64(5)),
		fusedRow(t, "2017-05-01T10:01:00Z", "Ympyratalo", f64(5)),
	}
	_, err := st.Append(ctx, rows)
	require.NoError(t, err)

	sum, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.RowCount)
	assert.Equal(t, int64(2), sum.DistinctTimestamps)
	assert.Equal(t, int64(2), sum.Stations)
	require.NotNil(t, sum.Extent)
}

func TestSummary_EmptyStore(t *testing.T) {
	st, _ := newTestStore(t)

	sum, err := st.Summary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sum.Extent)
	assert.Zero(t, sum.RowCount)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	st, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", nil),
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	extent, err := st.ReadExtent(ctx)
	require.NoError(t, err)
	require.NotNil(t, extent)
	assert.Equal(t, int64(1), extent.DistinctTimestamps)
}

func TestStore_NullWeatherRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", nil),
	})
	require.NoError(t, err)

	var temp sql.NullFloat64
	err = st.db.QueryRowContext(ctx,
		`SELECT temperature_c FROM fused_rows WHERE station = 'Kaivopuisto'`,
	).Scan(&temp)
	require.NoError(t, err)
	assert.False(t, temp.Valid, "missing reading must persist as NULL, not a sentinel")
}

func TestStore_RowsPersistedInKeyOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	// Commit two chunks out of chronological order overall; the clustered
	// primary key keeps the table in key order regardless.
	_, err := st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:05:00Z", "Ympyratalo", nil),
	})
	require.NoError(t, err)
	_, err = st.Append(ctx, []model.FusedRow{
		fusedRow(t, "2017-05-01T10:00:00Z", "Kaivopuisto", nil),
		fusedRow(t, "2017-05-01T10:05:00Z", "Kaivopuisto", nil),
	})
	require.NoError(t, err)

	rows, err := st.db.QueryContext(ctx, `SELECT ts, station FROM fused_rows`)
	require.NoError(t, err)
	defer rows.Close() //nolint:errcheck

	var got []string
	for rows.Next() {
		var ts, station string
		require.NoError(t, rows.Scan(&ts, &station))
		got = append(got, ts+"/"+station)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"2017-05-01T10:00:00Z/Kaivopuisto",
		"2017-05-01T10:05:00Z/Kaivopuisto",
		"2017-05-01T10:05:00Z/Ympyratalo",
	}, got)
}

func TestOpen_SchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE fused_rows (ts TEXT PRIMARY KEY, payload TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, path)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpen_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o644))

	_, err := Open(ctx, path)
	require.ErrorIs(t, err, ErrStorageCorrupt)
}
