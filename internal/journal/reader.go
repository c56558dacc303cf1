package journal

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"simstream/pkg/types"
)

// cursorUnread marks a table that has never produced a row. Legal
// s_time values are non-negative, so the half-open window (cursor, end]
// starts before everything.
const cursorUnread = -1.0

// NoForce is passed as ReadRange's forceAt argument when no frame
// injection is wanted.
const NoForce = math.MaxFloat64

// Reader performs independent per-table range reads against an open
// journal connection. Each table advances its own high-water cursor, so
// fast tables never wait for slow ones; rows sharing an s_time merge
// into one frame inside the produced chunk. A Reader is owned by a
// single session worker and is not safe for concurrent use.
type Reader struct {
	conn    *Conn
	schema  *types.Schema
	cursors map[string]float64 // lower-cased physical table name -> max s_time read
}

// NewReader creates a reader over the given schema. All cursors start
// at the unread sentinel; a restarted session rereads from the
// beginning, which is safe because starting a session discards all
// previously published data.
func NewReader(conn *Conn, schema *types.Schema) *Reader {
	return &Reader{
		conn:    conn,
		schema:  schema,
		cursors: make(map[string]float64),
	}
}

// Cursor returns the current high-water mark for a physical table.
func (r *Reader) Cursor(physicalName string) float64 {
	if c, ok := r.cursors[strings.ToLower(physicalName)]; ok {
		return c
	}
	return cursorUnread
}

// ReadRange polls every schema table for rows in the half-open window
// (cursor, end] and merges them into a chunk keyed by s_time. When
// forceAt is a real time (not NoForce), an empty frame is injected
// there unless polling already produced one.
//
// Per-table query failures and malformed rows are logged and skipped so
// the remaining tables still advance this pass; the failed table's
// cursor stays put and the next pass rereads the same window.
func (r *Reader) ReadRange(ctx context.Context, end float64, forceAt float64) types.Chunk {
	chunk := make(types.Chunk)

	for _, table := range r.schema.Tables() {
		r.pollTable(ctx, table, end, chunk)
	}

	if forceAt != NoForce {
		chunk.Force(forceAt)
	}
	return chunk
}

func (r *Reader) pollTable(ctx context.Context, table *types.TableInfo, end float64, chunk types.Chunk) {
	cursor := r.Cursor(table.PhysicalName)
	if cursor >= end {
		return
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s > ? AND %s <= ?",
		quoteIdent(table.PhysicalName), types.TimeColumn, types.TimeColumn)
	rows, err := r.conn.DB().QueryxContext(ctx, query, cursor, end)
	if err != nil {
		log.WithError(err).WithField("table", table.PhysicalName).Warn("journal table poll failed")
		return
	}
	defer func() { _ = rows.Close() }()

	maxSeen := cursor
	advanced := false

	for rows.Next() {
		record := map[string]interface{}{}
		if err := rows.MapScan(record); err != nil {
			log.WithError(err).WithField("table", table.PhysicalName).Warn("journal row scan failed")
			continue
		}

		sTime, ok := rowTime(record)
		if !ok {
			log.WithField("table", table.PhysicalName).Warn("journal row has no numeric s_time")
			continue
		}

		row := chunk.FrameAt(sTime).Row(table.ObjectName)
		for column, raw := range record {
			if raw == nil || strings.EqualFold(column, types.TimeColumn) {
				continue
			}
			row.Set(table.AttributeFor(column), types.ValueOf(raw))
		}

		if sTime > maxSeen {
			maxSeen = sTime
		}
		advanced = true
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).WithField("table", table.PhysicalName).Warn("journal table iteration failed")
	}

	if advanced {
		r.cursors[strings.ToLower(table.PhysicalName)] = maxSeen
	}
}

// rowTime extracts the mandatory time column from a scanned record,
// tolerating any spelling of s_time.
func rowTime(record map[string]interface{}) (float64, bool) {
	if raw, ok := record[types.TimeColumn]; ok {
		return types.AsFloat(raw)
	}
	for column, raw := range record {
		if strings.EqualFold(column, types.TimeColumn) {
			return types.AsFloat(raw)
		}
	}
	return 0, false
}
