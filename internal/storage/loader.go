// This file implements a generic, batched loader that drains rows from a
// channel and invokes a provided bulk-insert function (CopyFn) per batch,
// plus InsertRows, the parameter-bound bulk insert every backend supports.
//
// Logging: on every successful flush, a concise progress line is emitted with
// running totals and instantaneous rows/sec since the previous flush.

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dashboard/internal/ddl"
)

// maxRowsPerInsert bounds a single multi-row VALUES list (SQL Server rejects
// more than 1000 row value expressions).
const maxRowsPerInsert = 1000

// CopyFn abstracts a backend's bulk insert capability. Implementations should
// insert the provided rows (aligned to 'columns' order) and return the number
// of rows reported as inserted. The function should be safe for repeated calls
// and cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from 'in', groups them into batches of size
// 'batchSize', and calls 'copyFn' for each non-empty batch. It returns the total
// number of rows reported by copyFn and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged on
// each successful flush.
func LoadBatches(
	ctx context.Context,
	log *zap.Logger,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n

		// Fresh slice: copyFn implementations may retain the batch.
		batch = make([][]any, 0, batchSize)

		if err != nil {
			log.Warn("loader: insert failed", zap.Int64("after", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Debug("loader: batch flushed",
			zap.Int64("batch", batches),
			zap.Float64("rps", rps),
			zap.Int64("inserted", n),
			zap.Int64("total_inserted", total),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
			zap.Duration("since_last", sinceLast.Truncate(time.Millisecond)),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				// Channel closed: flush remaining rows.
				pending := len(batch)
				if err := flush(); err != nil {
					return total, err
				}
				log.Debug("loader: input closed",
					zap.Int("final_flush", pending),
					zap.Int64("batches", batches),
					zap.Int64("total_inserted", total))
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// InsertRows bulk-inserts rows into table using q. Queriers implementing
// Copier use their native bulk path; all others get multi-row INSERT
// statements chunked so that no statement exceeds the dialect's bind
// parameter limit.
func InsertRows(ctx context.Context, q Querier, table string, cols []string, rows [][]any) (int64, error) {
	if len(cols) == 0 {
		return 0, fmt.Errorf("storage: insert %s: columns must not be empty", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(cols) {
			return 0, fmt.Errorf("storage: insert %s: row %d has %d values, want %d", table, i, len(r), len(cols))
		}
	}
	if c, ok := q.(Copier); ok {
		return c.CopyFrom(ctx, table, cols, rows)
	}

	d := q.Dialect()
	per := RowsPerStatement(d, len(cols))
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		ddl.QuoteFQN(d, table), strings.Join(ddl.QuoteAll(d, cols), ", "))

	var total int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, len(chunk)*len(cols))
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			sb.WriteString(ddl.Placeholders(d, len(args)+1, len(cols)))
			sb.WriteByte(')')
			args = append(args, r...)
		}
		if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
			return total, err
		}
		total += int64(len(chunk))
	}
	return total, nil
}

// RowsPerStatement returns how many rows of width cols fit into one INSERT.
func RowsPerStatement(d ddl.Dialect, cols int) int {
	if cols <= 0 {
		return 1
	}
	per := d.MaxParams() / cols
	if per > maxRowsPerInsert {
		per = maxRowsPerInsert
	}
	if per < 1 {
		per = 1
	}
	return per
}
