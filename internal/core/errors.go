package core

import "fmt"

// maxSQLInError caps how much statement text Error() includes. The full
// text stays available in QueryError.SQL.
const maxSQLInError = 500

// QueryError reports a statement the database rejected. SQL is the
// statement with its arguments interpolated.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v [sql: %s]", e.Err, abbreviate(e.SQL, maxSQLInError))
}

func (e *QueryError) Unwrap() error { return e.Err }

// StreamError reports a failure while exporting to a file.
type StreamError struct {
	File string
	Op   string // create, header, read, write, flush, close
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("export stream %s: %s: %v", e.File, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d more bytes)", len(s)-n)
}
