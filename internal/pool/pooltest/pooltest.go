// Package pooltest provides in-memory implementations of pool.Pool and
// pool.Conn for tests. Statements are answered by a Handler and recorded in
// issue order.
package pooltest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sqlpipe/internal/pool"
)

// Result is a scripted answer to one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Tag     string // command tag, e.g. "INSERT 0 2"
	Err     error  // returned from Exec/Query
	RowsErr error  // reported by Rows.Err after the last row
}

// Handler answers a statement.
type Handler func(sql string, args []any) Result

// Tag returns a Handler answering every statement with tag.
func Tag(tag string) Handler {
	return func(string, []any) Result { return Result{Tag: tag} }
}

// Pool is a fake pool.Pool.
type Pool struct {
	Handler    Handler
	AcquireErr error
	// CopyFn answers CopyFrom. Defaults to draining r and reporting "COPY 0".
	CopyFn func(r io.Reader, sql string) (pgconn.CommandTag, error)

	mu         sync.Mutex
	statements []string
	args       [][]any

	acquired atomic.Int32
	closed   atomic.Bool
	pings    atomic.Int32
}

// NewPool returns a Pool answering with h.
func NewPool(h Handler) *Pool {
	return &Pool{Handler: h}
}

// Acquire implements pool.Pool.
func (p *Pool) Acquire(ctx context.Context) (pool.Conn, error) {
	if p.closed.Load() {
		return nil, errors.New("closed pool")
	}
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return &Conn{pool: p}, nil
}

// Ping implements pool.Pool.
func (p *Pool) Ping(context.Context) error {
	p.pings.Add(1)
	if p.closed.Load() {
		return errors.New("closed pool")
	}
	return nil
}

// Acquired implements pool.Pool.
func (p *Pool) Acquired() int32 { return p.acquired.Load() }

// Close implements pool.Pool.
func (p *Pool) Close() { p.closed.Store(true) }

// Closed reports whether Close was called.
func (p *Pool) Closed() bool { return p.closed.Load() }

// Statements returns every statement issued so far, in order.
func (p *Pool) Statements() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statements...)
}

// Args returns the arguments of every statement issued so far.
func (p *Pool) Args() [][]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]any(nil), p.args...)
}

func (p *Pool) run(sql string, args []any) Result {
	p.mu.Lock()
	p.statements = append(p.statements, sql)
	p.args = append(p.args, args)
	p.mu.Unlock()

	if p.Handler == nil {
		return Result{}
	}
	return p.Handler(sql, args)
}

// Conn is a fake pool.Conn.
type Conn struct {
	pool     *Pool
	released atomic.Bool
}

// Exec implements pool.DBTX.
func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	res := c.pool.run(sql, args)
	if res.Err != nil {
		return pgconn.CommandTag{}, res.Err
	}
	return pgconn.NewCommandTag(res.Tag), nil
}

// Query implements pool.DBTX.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	res := c.pool.run(sql, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return NewRows(ctx, res), nil
}

// QueryRow implements pool.DBTX.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	res := c.pool.run(sql, args)
	return &row{rows: NewRows(ctx, res), err: res.Err}
}

// CopyFrom implements pool.Conn.
func (c *Conn) CopyFrom(_ context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	c.pool.mu.Lock()
	c.pool.statements = append(c.pool.statements, sql)
	c.pool.args = append(c.pool.args, nil)
	c.pool.mu.Unlock()

	if c.pool.CopyFn != nil {
		return c.pool.CopyFn(r, sql)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("COPY 0"), nil
}

// Release implements pool.Conn. Releasing twice is a no-op.
func (c *Conn) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.pool.acquired.Add(-1)
	}
}

// Rows is a fake pgx.Rows over a scripted Result.
type Rows struct {
	ctx    context.Context
	res    Result
	idx    int
	err    error
	closed bool
}

// NewRows returns Rows iterating res.Rows. Iteration stops early when ctx
// is done.
func NewRows(ctx context.Context, res Result) *Rows {
	return &Rows{ctx: ctx, res: res, idx: -1}
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	if r.res.Tag != "" {
		return pgconn.NewCommandTag(r.res.Tag)
	}
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.res.Rows)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.res.Columns))
	for i, name := range r.res.Columns {
		fds[i] = pgconn.FieldDescription{Name: name}
	}
	return fds
}

func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	if r.ctx != nil {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			r.closed = true
			return false
		}
	}
	if r.idx+1 >= len(r.res.Rows) {
		r.err = r.res.RowsErr
		r.closed = true
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return errors.New("no current row")
	}
	return scanInto(r.res.Rows[r.idx], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.res.Rows[r.idx]...), nil
}

func (r *Rows) RawValues() [][]byte {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return nil
	}
	raw := make([][]byte, len(r.res.Rows[r.idx]))
	for i, v := range r.res.Rows[r.idx] {
		if v != nil {
			raw[i] = []byte(fmt.Sprint(v))
		}
	}
	return raw
}

func (r *Rows) Conn() *pgx.Conn { return nil }

type row struct {
	rows *Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func scanInto(values []any, dest []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to %s", values[i], target.Type())
		}
	}
	return nil
}
