package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fillariennustin/fillaridata/internal/store"
)

// Info writes a human-readable report about the store's contents. An empty
// store is an error: there is nothing to report on.
func Info(ctx context.Context, st store.Store, path string, w io.Writer) error {
	summary, err := st.Summary(ctx)
	if err != nil {
		return err
	}
	if summary.Extent == nil {
		return eris.Errorf("info: no data found in %s", path)
	}

	fmt.Fprintf(w, "Data file:           %s\n", path)
	fmt.Fprintf(w, "Rows:                %d\n", summary.RowCount)
	fmt.Fprintf(w, "Distinct timestamps: %d\n", summary.DistinctTimestamps)
	fmt.Fprintf(w, "Stations:            %d\n", summary.Stations)
	fmt.Fprintf(w, "First entry:         %s\n", summary.Extent.Min.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Last entry:          %s\n", summary.Extent.Max.UTC().Format(time.RFC3339))
	return nil
}
