// Package history loads a finished journal for post-analysis. Unlike
// the live worker it reads in one pass and accepts tables that appear
// only in Column_Info, promoting them under their physical name. The
// live path never applies that fallback.
package history

import (
	"context"

	"github.com/pkg/errors"

	"simstream/internal/config"
	"simstream/internal/journal"
	"simstream/pkg/types"
)

// Loader reads a completed journal store in bulk.
type Loader struct {
	cfg *config.Config
}

// NewLoader creates a loader for the configured journal.
func NewLoader(cfg *config.Config) (*Loader, error) {
	if cfg == nil {
		return nil, errors.New("history loader requires a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "history loader configuration")
	}
	return &Loader{cfg: cfg.Clone()}, nil
}

// LoadSchema discovers the journal schema with the post-analysis
// fallback enabled. The store is complete by the time post-analysis
// runs, so callers normally bound ctx instead of waiting forever.
func (l *Loader) LoadSchema(ctx context.Context, conn *journal.Conn) (*types.Schema, error) {
	return journal.LoadSchema(ctx, conn, journal.SchemaOptions{
		ExpectedColumnCounts: l.cfg.ExpectedColumnCounts,
		ProbeInterval:        l.cfg.SchemaProbeInterval,
		RetryInterval:        l.cfg.SchemaRetryInterval,
		HistoryFallback:      true,
	})
}

// LoadAll opens the journal, discovers the schema, and reads every row
// with s_time <= upTo into a single chunk.
func (l *Loader) LoadAll(ctx context.Context, upTo float64) (types.Chunk, *types.Schema, error) {
	conn, err := journal.Open(l.cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = conn.Close() }()

	schema, err := l.LoadSchema(ctx, conn)
	if err != nil {
		return nil, nil, err
	}

	reader := journal.NewReader(conn, schema)
	chunk := reader.ReadRange(ctx, upTo, journal.NoForce)
	return chunk, schema, nil
}
