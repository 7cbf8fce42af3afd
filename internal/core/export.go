package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sqlpipe/internal/csvcodec"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
	"github.com/JonMunkholm/sqlpipe/internal/sqlesc"
)

// latch records the first terminal outcome of a stream. Later outcomes
// are ignored.
type latch struct {
	fired atomic.Bool
	err   error
}

// settle records err (nil for success) if nothing was recorded yet and
// reports whether it did.
func (l *latch) settle(err error) bool {
	if !l.fired.CompareAndSwap(false, true) {
		return false
	}
	l.err = err
	return true
}

// ExportToFile runs sql and writes the result set to path as CSV: a header
// of double-quoted column names followed by one line per row. A path ending
// in .gz is gzip-compressed.
//
// Rows pass from the query to the file through a buffer of
// Export.HighWaterMark rows, so a slow file write holds back reading from
// the database. The export succeeds only once the file is flushed and
// closed. On failure the partial file is removed and the error is a
// *StreamError, wrapping a *QueryError when the database failed.
func (s *Service) ExportToFile(ctx context.Context, path, sql string, args ...any) (*ExportResult, error) {
	start := time.Now()
	id := uuid.New().String()
	logger := logging.WithFields(ctx, "export_id", id, "file", path)

	out, err := csvcodec.Create(path)
	if err != nil {
		return nil, &StreamError{File: path, Op: "create", Err: err}
	}

	res, err := s.export(ctx, out, path, sql, args)
	if err != nil {
		os.Remove(path)
		logger.Error("export failed", "error", err)
		return nil, err
	}

	res.ID = id
	res.Duration = time.Since(start)
	logger.Info("export completed", "rows", res.Rows, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

type fileSink interface {
	Write(p []byte) (int, error)
	Close() error
}

func (s *Service) export(ctx context.Context, out fileSink, path, sql string, args []any) (*ExportResult, error) {
	var done latch
	closed := false
	closeOut := func() error {
		if closed {
			return nil
		}
		closed = true
		return out.Close()
	}
	defer closeOut()

	c, release, err := s.conn(ctx)
	if err != nil {
		return nil, &StreamError{File: path, Op: "read", Err: err}
	}
	defer release()

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if DebugFromContext(ctx) {
		logging.FromContext(ctx).Info("query", "sql", abbreviate(sqlesc.Interpolate(sql, args), maxSQLInLog))
	}

	rows, err := c.Query(qctx, sql, args...)
	if err != nil {
		return nil, &StreamError{File: path, Op: "read", Err: s.queryFailed(ctx, sql, args, err)}
	}

	fds := rows.FieldDescriptions()
	columns := make([]string, len(fds))
	for i, fd := range fds {
		columns[i] = fd.Name
	}

	w := csvcodec.NewWriter(out)
	if err := w.WriteHeader(columns); err != nil {
		rows.Close()
		return nil, &StreamError{File: path, Op: "header", Err: err}
	}

	buf := make(chan []any, s.highWaterMark())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(buf)
		defer rows.Close()

		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				done.settle(&StreamError{File: path, Op: "read", Err: err})
				return
			}
			select {
			case buf <- vals:
			case <-qctx.Done():
				return
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
			done.settle(&StreamError{File: path, Op: "read", Err: s.queryFailed(ctx, sql, args, err)})
		}
	}()

	for vals := range buf {
		if err := w.Write(vals); err != nil {
			done.settle(&StreamError{File: path, Op: "write", Err: fmt.Errorf("row %d: %w", w.Rows()+1, err)})
			cancel()
			break
		}
	}
	// Unblock the producer if the loop above stopped early.
	for range buf {
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		done.settle(&StreamError{File: path, Op: "read", Err: err})
	}

	if err := w.Flush(); err != nil {
		done.settle(&StreamError{File: path, Op: "flush", Err: err})
	}
	if err := closeOut(); err != nil {
		done.settle(&StreamError{File: path, Op: "close", Err: err})
	}
	done.settle(nil)

	if done.err != nil {
		return nil, done.err
	}
	return &ExportResult{File: path, Columns: columns, Rows: w.Rows()}, nil
}
