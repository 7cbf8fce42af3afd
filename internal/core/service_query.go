package core

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/sqlpipe/internal/fragment"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
	"github.com/JonMunkholm/sqlpipe/internal/sqlesc"
)

// maxSQLInLog caps how much statement text is logged per entry.
const maxSQLInLog = 2000

// Query runs sql with args bound as driver parameters ($1, $2, ...) and
// returns every row. Failures are returned as *QueryError carrying the
// statement with its arguments interpolated, and logged.
func (s *Service) Query(ctx context.Context, sql string, args ...any) (*Result, error) {
	c, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if DebugFromContext(ctx) {
		logging.FromContext(ctx).Info("query", "sql", abbreviate(sqlesc.Interpolate(sql, args), maxSQLInLog))
	}

	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, s.queryFailed(ctx, sql, args, err)
	}

	res, err := collect(rows)
	if err != nil {
		return nil, s.queryFailed(ctx, sql, args, err)
	}
	return res, nil
}

func (s *Service) queryFailed(ctx context.Context, sql string, args []any, err error) error {
	qe := &QueryError{SQL: sqlesc.Interpolate(sql, args), Err: err}
	logging.FromContext(ctx).Error("query failed",
		"error", err,
		"code", MapError(err).Code,
		"sql", abbreviate(qe.SQL, maxSQLInLog),
	)
	return qe
}

// collect reads all rows and closes them.
func collect(rows pgx.Rows) (*Result, error) {
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res := &Result{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.Tag = rows.CommandTag()
	return res, nil
}

// QuerySilent runs sql like Query but never returns an error. A failure is
// logged with its support code and the result is nil. The log message is
// "silent query failed" unless one was set with WithLogMessage.
func (s *Service) QuerySilent(ctx context.Context, sql string, args ...any) *Result {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		msg := MapError(err)
		logging.FromContext(ctx).Warn(logMessageFromContext(ctx, "silent query failed"),
			"code", msg.Code,
			"message", msg.Message,
			"error", err,
		)
		return nil
	}
	return res
}

// QueryJSON runs sql and returns its rows as plain JSON values: strings,
// json.Number, bool, nil, []any and map[string]any. Timestamps become
// RFC 3339 strings, UUIDs their canonical text and byte slices base64.
func (s *Service) QueryJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return normalizeJSON(res.Maps())
}

func normalizeJSON(rows []fragment.Record) ([]map[string]any, error) {
	prepared := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = jsonSafe(v)
		}
		prepared[i] = m
	}

	data, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return out, nil
}

// jsonSafe converts driver values that encoding/json would render badly.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case json.Marshaler:
		return x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return jsonSafe(dv)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonSafe(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonSafe(e)
		}
		return out
	}
	return v
}

// QueryRow returns the first row, or nil when there are no rows.
func (s *Service) QueryRow(ctx context.Context, sql string, args ...any) (fragment.Record, error) {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	rows := res.Maps()
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// QueryValue returns the first column of the first row, or nil when there
// are no rows.
func (s *Service) QueryValue(ctx context.Context, sql string, args ...any) (any, error) {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil, nil
	}
	return res.Rows[0][0], nil
}

// QueryMessage returns the command tag of a statement, e.g. "INSERT 0 3".
func (s *Service) QueryMessage(ctx context.Context, sql string, args ...any) (string, error) {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		return "", err
	}
	return res.Tag.String(), nil
}
