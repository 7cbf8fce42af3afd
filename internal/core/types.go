package core

import (
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sqlpipe/internal/fragment"
)

// Result is the raw outcome of one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Tag     pgconn.CommandTag
}

// Maps returns each row keyed by column name.
func (r *Result) Maps() []fragment.Record {
	if r == nil {
		return nil
	}
	out := make([]fragment.Record, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(fragment.Record, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// RowsAffected returns the row count reported by the command tag.
func (r *Result) RowsAffected() int64 {
	if r == nil {
		return 0
	}
	return r.Tag.RowsAffected()
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	ID       string
	File     string
	Columns  []string
	Rows     int64
	Duration time.Duration
}

// ImportOptions controls ImportFromFile.
type ImportOptions struct {
	// Limit is the maximum number of data rows per batch. Zero uses the
	// configured batch size.
	Limit int

	// Mode selects plain inserts or ON CONFLICT DO NOTHING.
	Mode fragment.InsertMode

	// EmptyAsNull inserts empty cells as NULL. When nil the configured
	// default applies.
	EmptyAsNull *bool

	// OnBatch is called after each batch is inserted.
	OnBatch ProgressCallback
}

// ImportProgress reports the state of an import after a batch.
type ImportProgress struct {
	ImportID string
	Batch    int // 1-based index of the batch just inserted
	Batches  int
	Rows     int   // data rows processed so far
	Inserted int64 // rows reported inserted so far
}

// ProgressCallback receives import progress.
type ProgressCallback func(ImportProgress)

// ImportResult summarizes an import. On failure it covers the batches that
// were inserted before the failing one.
type ImportResult struct {
	ID       string
	File     string
	Table    string
	Batches  int // batches inserted
	Rows     int // data rows in inserted batches
	Inserted int64
	Duration time.Duration
}

// LoadOptions controls LoadFile.
type LoadOptions struct {
	// Delimiter separates fields (default ',').
	Delimiter rune
	// Quote encloses fields (default '"').
	Quote rune
	// NoHeader loads the first line as data.
	NoHeader bool
	// Columns lists target columns in file order. Empty means all columns
	// in table order.
	Columns []string
}
