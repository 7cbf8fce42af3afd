package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sqlpipe/internal/csvcodec"
	"github.com/JonMunkholm/sqlpipe/internal/fragment"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
	"github.com/JonMunkholm/sqlpipe/internal/sqlesc"
)

// LoadFile streams a CSV file into table with COPY FROM STDIN and returns
// the number of rows copied. Unlike ImportFromFile the file is never held
// in memory and the load is a single statement, so it either copies every
// row or none.
func (s *Service) LoadFile(ctx context.Context, path, table string, opts LoadOptions) (int64, error) {
	sql, err := copyStatement(table, opts)
	if err != nil {
		return 0, err
	}

	id := uuid.New().String()
	logger := logging.WithFields(ctx, "load_id", id, "file", path, "table", table)
	start := time.Now()

	f, err := csvcodec.Open(path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	var total int64
	if !csvcodec.IsGzip(path) {
		if st, err := os.Stat(path); err == nil {
			total = st.Size()
		}
	}
	src := csvcodec.WrapForStreaming(f, total)

	c, release, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if DebugFromContext(ctx) {
		logger.Info("query", "sql", sql)
	}

	tag, err := c.CopyFrom(ctx, src, sql)
	if err != nil {
		return 0, s.queryFailed(ctx, sql, nil, err)
	}

	logger.Info("load completed",
		"rows", tag.RowsAffected(),
		"bytes", src.Count(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return tag.RowsAffected(), nil
}

func copyStatement(table string, opts LoadOptions) (string, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	quote := opts.Quote
	if quote == 0 {
		quote = '"'
	}
	if delim > 127 || quote > 127 || delim == '\n' || delim == '\r' || quote == '\n' || quote == '\r' {
		return "", fragment.ValidationError{Field: "delimiter", Value: string(delim), Message: "must be a single-byte character other than a line break"}
	}
	if delim == quote {
		return "", fragment.ValidationError{Field: "quote", Value: string(quote), Message: "must differ from the delimiter"}
	}

	var b strings.Builder
	b.WriteString("COPY ")
	b.WriteString(sqlesc.Identifier(table))
	if len(opts.Columns) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(sqlesc.Columns(opts.Columns), ", "))
		b.WriteString(")")
	}
	b.WriteString(" FROM STDIN WITH (FORMAT csv, HEADER ")
	b.WriteString(fmt.Sprint(!opts.NoHeader))
	b.WriteString(", DELIMITER ")
	b.WriteString(sqlesc.Literal(string(delim)))
	b.WriteString(", QUOTE ")
	b.WriteString(sqlesc.Literal(string(quote)))
	b.WriteString(")")
	return b.String(), nil
}
