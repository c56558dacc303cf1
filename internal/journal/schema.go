package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"simstream/pkg/types"
)

const (
	objectInfoTable = "Object_Info"
	columnInfoTable = "Column_Info"
)

// SchemaOptions tunes schema discovery.
type SchemaOptions struct {
	// ExpectedColumnCounts maps a logical object name to the total
	// physical column count (s_time included) validation must observe.
	ExpectedColumnCounts map[string]int

	// ProbeInterval is the wait between probes for Object_Info;
	// RetryInterval is the wait after a failed validation pass.
	ProbeInterval time.Duration
	RetryInterval time.Duration

	// HistoryFallback promotes Column_Info entries whose table is
	// absent from Object_Info into tables whose logical name equals
	// the physical name. Only the post-analysis loader sets this; the
	// live worker drops such entries instead.
	HistoryFallback bool
}

func (o SchemaOptions) withDefaults() SchemaOptions {
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 500 * time.Millisecond
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	return o
}

// LoadSchema blocks until the journal's metadata is self-consistent and
// returns the resulting schema. The writer creates the metadata tables
// gradually, so every failure short of cancellation is treated as "not
// yet ready": the probe repeats until ctx is done, in which case nil
// and ctx.Err() are returned. This wait is deliberately unbounded; the
// writer may not have started at all.
func LoadSchema(ctx context.Context, conn *Conn, opts SchemaOptions) (*types.Schema, error) {
	opts = opts.withDefaults()

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ready, err := tableExists(ctx, conn, objectInfoTable)
		if err != nil || !ready {
			if err != nil {
				log.WithError(err).Debug("journal metadata probe failed")
			}
			if !sleepCtx(ctx, opts.ProbeInterval) {
				return nil, ctx.Err()
			}
			continue
		}

		schema, err := readMetadata(ctx, conn, opts.HistoryFallback)
		if err == nil {
			err = validateSchema(ctx, conn, schema, opts.ExpectedColumnCounts)
		}
		if err == nil {
			return schema, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.WithError(err).Debug("journal schema not ready, retrying")
		if !sleepCtx(ctx, opts.RetryInterval) {
			return nil, ctx.Err()
		}
	}
}

// tableExists probes sqlite_master for a table.
func tableExists(ctx context.Context, conn *Conn, name string) (bool, error) {
	var count int
	err := conn.DB().GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, errors.Wrapf(err, "probe for %s", name)
	}
	return count > 0, nil
}

// readMetadata builds a provisional schema from Object_Info and
// Column_Info. Column entries for tables absent from Object_Info are
// dropped, or promoted to physical-named tables in history mode.
func readMetadata(ctx context.Context, conn *Conn, historyFallback bool) (*types.Schema, error) {
	schema := types.NewSchema()

	rows, err := conn.DB().QueryxContext(ctx,
		fmt.Sprintf("SELECT object_name, table_name FROM %s", objectInfoTable))
	if err != nil {
		return nil, errors.Wrap(err, "read Object_Info")
	}
	for rows.Next() {
		var objectName, tableName string
		if err := rows.Scan(&objectName, &tableName); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan Object_Info row")
		}
		schema.AddTable(types.NewTableInfo(tableName, objectName))
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "close Object_Info rows")
	}

	hasColumns, err := tableExists(ctx, conn, columnInfoTable)
	if err != nil {
		return nil, err
	}
	if !hasColumns {
		return nil, ErrMetadataMissing
	}

	rows, err = conn.DB().QueryxContext(ctx,
		fmt.Sprintf("SELECT table_name, column_name, attribute_name, data_type FROM %s", columnInfoTable))
	if err != nil {
		return nil, errors.Wrap(err, "read Column_Info")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tableName, columnName, attributeName, dataType string
		if err := rows.Scan(&tableName, &columnName, &attributeName, &dataType); err != nil {
			return nil, errors.Wrap(err, "scan Column_Info row")
		}

		table, ok := schema.TableByPhysical(tableName)
		if !ok {
			if !historyFallback {
				continue
			}
			table = types.NewTableInfo(tableName, tableName)
			schema.AddTable(table)
		}
		table.AddColumn(types.ColumnInfo{
			PhysicalName:  columnName,
			AttributeName: attributeName,
			DataType:      dataType,
		})
	}
	return schema, rows.Err()
}

// validateSchema checks every table of the provisional schema against
// the live layout. Tables validate concurrently; the journal handle
// serialises the actual statements through its single connection.
func validateSchema(ctx context.Context, conn *Conn, schema *types.Schema, expected map[string]int) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, table := range schema.Tables() {
		table := table
		want, strict := expectedCountFor(expected, table.ObjectName)
		group.Go(func() error {
			return validateTable(groupCtx, conn, table, want, strict)
		})
	}
	return group.Wait()
}

func expectedCountFor(expected map[string]int, objectName string) (int, bool) {
	for name, count := range expected {
		if strings.EqualFold(name, objectName) {
			return count, true
		}
	}
	return 0, false
}

// validateTable fetches the live column list and checks that s_time is
// present and the metadata covers every other column. When a strict
// expected count is configured for the logical name, the live count
// must match it exactly and the metadata must cover expected-1 columns.
func validateTable(ctx context.Context, conn *Conn, table *types.TableInfo, want int, strict bool) error {
	rows, err := conn.DB().QueryxContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table.PhysicalName)))
	if err != nil {
		return errors.Wrapf(err, "table_info %s", table.PhysicalName)
	}
	defer func() { _ = rows.Close() }()

	liveCount := 0
	hasTime := false
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return errors.Wrapf(err, "scan table_info %s", table.PhysicalName)
		}
		name, _ := row["name"].(string)
		if strings.EqualFold(name, types.TimeColumn) {
			hasTime = true
		}
		liveCount++
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "iterate table_info %s", table.PhysicalName)
	}

	if liveCount == 0 {
		return errors.Wrapf(ErrSchemaMismatch, "table %s does not exist", table.PhysicalName)
	}
	if !hasTime {
		return errors.Wrapf(types.ErrMissingTimeColumn, "table %s", table.PhysicalName)
	}

	metaCount := table.ColumnCount()
	if strict {
		if liveCount != want || metaCount != want-1 {
			return errors.Wrapf(ErrSchemaMismatch,
				"table %s: live %d, metadata %d, expected %d", table.PhysicalName, liveCount, metaCount, want)
		}
		return nil
	}
	if liveCount != metaCount+1 {
		return errors.Wrapf(ErrSchemaMismatch,
			"table %s: live %d columns, metadata %d", table.PhysicalName, liveCount, metaCount)
	}
	return nil
}

// quoteIdent quotes a table name for direct interpolation; journal
// table names come from metadata, not user input, but the quoting keeps
// odd names safe.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
