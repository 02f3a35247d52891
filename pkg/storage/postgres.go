package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"

	"github.com/StrathCole/ivindex-go/pkg/config"
)

// Postgres inserts records into a PostgreSQL table inside one transaction
// per batch.
type Postgres struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
}

// NewPostgres opens and pings a PostgreSQL connection pool.
func NewPostgres(ctx context.Context, cfg config.SQLConfig) (*Postgres, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.ToDuration())

	pingCtx, cancel := withTimeout(ctx, cfg.Timeout.ToDuration())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return NewPostgresWithDB(db, cfg.Table, cfg.Timeout.ToDuration()), nil
}

// NewPostgresWithDB wraps an existing connection pool.
func NewPostgresWithDB(db *sqlx.DB, table string, timeout time.Duration) *Postgres {
	if table == "" {
		table = config.DefaultTable
	}
	return &Postgres{db: db, table: table, timeout: timeout}
}

// Name implements Sink.
func (p *Postgres) Name() string { return "postgres" }

// Commit inserts the records; an existing (underlying, ts) row is kept.
func (p *Postgres) Commit(appCtx context.Context, data []Record) (err error) {
	if len(data) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(appCtx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO `+p.table+`
		(underlying, cycle_id, value, sigma2, sigma2_raw, method, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (underlying, ts) DO NOTHING`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, r := range data {
		if _, err = stmt.ExecContext(ctx, r.Underlying, r.CycleID, r.Value, r.Sigma2, r.Sigma2Raw, r.Method, r.Timestamp.UTC()); err != nil {
			return errors.Wrapf(err, "insert %s at %s", r.Underlying, r.Timestamp.Format(time.RFC3339))
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Latest returns the most recent records of an underlying, newest first.
func (p *Postgres) Latest(ctx context.Context, underlying string, limit int) ([]Record, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	var out []Record
	err := p.db.SelectContext(ctx, &out, `SELECT underlying, cycle_id, value, sigma2, sigma2_raw, method, ts
		FROM `+p.table+` WHERE underlying = $1 ORDER BY ts DESC LIMIT $2`, underlying, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "select latest %s", underlying)
	}
	return out, nil
}

// Close implements Sink.
func (p *Postgres) Close() error {
	return p.db.Close()
}
