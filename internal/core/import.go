package core

// import.go loads CSV files into tables with batched multi-row INSERTs.
//
// The whole file is read and parsed up front, so memory grows with file
// size. LoadFile streams through COPY when that matters.
//
// Processing flow:
//  1. Read and parse the file (BOM strip, UTF-8 repair, lenient quoting)
//  2. Split the data rows into batches, each led by the header row
//  3. Insert batches one at a time on a single connection, in file order
//  4. Stop at the first failed batch; earlier batches stay inserted

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sqlpipe/internal/csvcodec"
	"github.com/JonMunkholm/sqlpipe/internal/fragment"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
)

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// ImportFromFile inserts the rows of a CSV file into table. The first
// record is the header and names the target columns.
//
// On failure the returned ImportResult covers the batches inserted before
// the failing one, and the error names the failing batch.
func (s *Service) ImportFromFile(ctx context.Context, path, table string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{ID: uuid.New().String(), File: path, Table: table}
	logger := logging.WithFields(ctx, "import_id", result.ID, "file", path, "table", table)

	records, err := csvcodec.ReadFile(path)
	if err != nil {
		logger.Error("import failed", "error", err)
		return result, fmt.Errorf("import %s: %w", path, err)
	}
	if len(records) == 0 {
		return result, fmt.Errorf("import %s: %w", path, ErrEmptyFile)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.batchSize()
	}
	emptyAsNull := s.cfg.Import.EmptyAsNull
	if opts.EmptyAsNull != nil {
		emptyAsNull = *opts.EmptyAsNull
	}

	batches := Partition(records, limit)
	logger.Info("import started", "rows", len(records)-1, "batches", len(batches), "limit", limit)

	err = s.insertBatches(ctx, table, batches, opts.Mode, emptyAsNull, result, opts.OnBatch)
	result.Duration = time.Since(start)
	if err != nil {
		logger.Error("import failed",
			"error", err,
			"code", MapError(err).Code,
			"batches_inserted", result.Batches,
		)
		return result, err
	}

	logger.Info("import completed",
		"rows", result.Rows,
		"inserted", result.Inserted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) insertBatches(ctx context.Context, table string, batches [][][]string, mode fragment.InsertMode, emptyAsNull bool, result *ImportResult, onBatch ProgressCallback) error {
	if len(batches) == 0 {
		return nil
	}

	ctx, release, err := s.pinned(ctx)
	if err != nil {
		return err
	}
	defer release()

	for i, batch := range batches {
		ins, err := fragment.PrepareRows(batch[0], batch[1:], emptyAsNull)
		if err != nil {
			return fmt.Errorf("import batch %d of %d: %w", i+1, len(batches), err)
		}

		res, err := s.Query(ctx, fragment.InsertStatement(table, ins, mode))
		if err != nil {
			return fmt.Errorf("import batch %d of %d: %w", i+1, len(batches), err)
		}

		result.Batches++
		result.Rows += len(batch) - 1
		result.Inserted += res.RowsAffected()

		if onBatch != nil {
			onBatch(ImportProgress{
				ImportID: result.ID,
				Batch:    i + 1,
				Batches:  len(batches),
				Rows:     result.Rows,
				Inserted: result.Inserted,
			})
		}
	}
	return nil
}

// Partition splits records (header first) into batches of at most limit
// data rows. Every batch starts with the header. Row order is preserved and
// records is not modified. A file with no data rows yields no batches.
func Partition(records [][]string, limit int) [][][]string {
	if len(records) < 2 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	header := records[0]
	data := records[1:]
	n := (len(data) + limit - 1) / limit

	batches := make([][][]string, 0, n)
	for lo := 0; lo < len(data); lo += limit {
		hi := min(lo+limit, len(data))
		batch := make([][]string, 0, hi-lo+1)
		batch = append(batch, header)
		batch = append(batch, data[lo:hi]...)
		batches = append(batches, batch)
	}
	return batches
}
