// Package pool owns the database connection pool: creating it from
// configuration, handing out connections and replacing it at runtime.
package pool

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sqlpipe/internal/config"
)

// DBTX is the interface for database operations.
// Satisfied by pooled connections and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Conn is a connection checked out of a Pool. It must be released.
type Conn interface {
	DBTX
	// CopyFrom runs a COPY ... FROM STDIN statement fed from r.
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
	Release()
}

// Pool is a bounded set of connections.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	// Acquired reports how many connections are currently checked out.
	Acquired() int32
	Close()
}

// Connector builds a Pool from configuration.
type Connector func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error)

// Connect creates a pgx pool from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Op: "parse config", Err: err}
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}

	return &pgxPool{p: p}, nil
}

type pgxPool struct {
	p *pgxpool.Pool
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{Conn: c}, nil
}

func (p *pgxPool) Ping(ctx context.Context) error { return p.p.Ping(ctx) }

func (p *pgxPool) Acquired() int32 { return p.p.Stat().AcquiredConns() }

func (p *pgxPool) Close() { p.p.Close() }

type pgxConn struct {
	*pgxpool.Conn
}

func (c *pgxConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	return c.Conn.Conn().PgConn().CopyFrom(ctx, r, sql)
}

// ConnectionError reports a failure to create a pool or obtain a
// connection from it.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
