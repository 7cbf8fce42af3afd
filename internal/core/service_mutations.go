package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sqlpipe/internal/fragment"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
	"github.com/JonMunkholm/sqlpipe/internal/sqlesc"
)

// QueryInsert inserts rows into table, one tuple per row, in a single
// statement. Empty input issues no statement and returns an empty Result.
func (s *Service) QueryInsert(ctx context.Context, table string, fields []fragment.Field, rows []fragment.Record, params fragment.Params, mode fragment.InsertMode) (*Result, error) {
	ins := fragment.PrepareInsert(fields, rows, params)
	if ins.Empty() {
		return &Result{}, nil
	}
	return s.Query(ctx, fragment.InsertStatement(table, ins, mode))
}

// QueryInsertObject inserts one record using its keys, sorted, as columns.
func (s *Service) QueryInsertObject(ctx context.Context, table string, obj fragment.Record, mode fragment.InsertMode) (*Result, error) {
	return s.QueryInsert(ctx, table, fragment.ObjectFields(obj), []fragment.Record{obj}, nil, mode)
}

// QueryInsertArray inserts each record with its own statement. Inserts run
// concurrently on separate pooled connections; with a connection pinned in
// ctx they run one at a time on it. Every insert is attempted and the first
// failure is returned. Inserts that succeeded are not rolled back.
func (s *Service) QueryInsertArray(ctx context.Context, table string, objs []fragment.Record, mode fragment.InsertMode) ([]*Result, error) {
	results := make([]*Result, len(objs))

	var g errgroup.Group
	if ConnFromContext(ctx) != nil {
		// A pgx connection serves one statement at a time.
		g.SetLimit(1)
	}

	for i, obj := range objs {
		g.Go(func() error {
			res, err := s.QueryInsertObject(ctx, table, obj, mode)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// QueryUpdate updates table with values resolved from the first row and
// restricts it to rows matching every key of where. An empty where is
// rejected.
func (s *Service) QueryUpdate(ctx context.Context, table string, fields []fragment.Field, rows []fragment.Record, params fragment.Params, where map[string]any) (*Result, error) {
	set, err := fragment.PrepareUpdate(fields, rows, params)
	if err != nil {
		return nil, err
	}
	sql, err := fragment.UpdateStatement(table, set, fragment.ParseWhere(where))
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, sql)
}

// CopyTable replaces target with a copy of source: schema (with defaults,
// constraints, indexes and identity columns) and all rows, identity values
// included. The three statements run in order on one connection without a
// transaction; a failure part way leaves target missing or empty. A source
// with stored generated columns cannot be copied this way, since they reject
// explicit values.
func (s *Service) CopyTable(ctx context.Context, source, target string) error {
	ctx, release, err := s.pinned(ctx)
	if err != nil {
		return err
	}
	defer release()

	src := sqlesc.Identifier(source)
	dst := sqlesc.Identifier(target)

	steps := []struct {
		name string
		sql  string
	}{
		{"drop", "DROP TABLE IF EXISTS " + dst},
		{"create", "CREATE TABLE " + dst + " (LIKE " + src + " INCLUDING ALL)"},
		// Identity columns come across with LIKE; keep the source's values.
		{"copy", "INSERT INTO " + dst + " OVERRIDING SYSTEM VALUE SELECT * FROM " + src},
	}

	logger := logging.WithFields(ctx, "source", source, "target", target)
	for _, step := range steps {
		if _, err := s.Query(ctx, step.sql); err != nil {
			logger.Error("copy table failed", "step", step.name, "error", err)
			return fmt.Errorf("copy table %s to %s: %s: %w", source, target, step.name, err)
		}
	}

	logger.Info("table copied")
	return nil
}
