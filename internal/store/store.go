// Package store owns the persisted fused dataset.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fillariennustin/fillaridata/internal/model"
)

// Fatal store failure kinds. All abort the current command; none are
// downgraded to warnings.
var (
	// ErrDuplicateKey means an appended chunk collides with a key already in
	// the store (or repeats one internally). The append is rolled back whole.
	ErrDuplicateKey = eris.New("duplicate key")
	// ErrSchemaMismatch means the existing store's column set does not match
	// this build. The store never migrates silently.
	ErrSchemaMismatch = eris.New("schema mismatch")
	// ErrStorageCorrupt means the persisted structure failed its integrity
	// check on open.
	ErrStorageCorrupt = eris.New("storage corrupt")
)

// AppendResult reports what one committed chunk added.
type AppendResult struct {
	Rows       int64
	Timestamps int64
}

// Store is the persistence interface for fused rows. Appends are atomic:
// either the whole chunk commits or the store is left untouched.
type Store interface {
	// ReadExtent returns the persisted timestamp range, or nil when the store
	// is empty. Computed from the key index without materializing rows.
	ReadExtent(ctx context.Context) (*model.StoreExtent, error)

	// Append merges a sorted, key-unique chunk into the store.
	Append(ctx context.Context, rows []model.FusedRow) (AppendResult, error)

	// Summary reports the counts behind the info command.
	Summary(ctx context.Context) (*model.Summary, error)

	Close() error
}
