package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/pkg/errors"

	"github.com/StrathCole/ivindex-go/pkg/config"
)

// MySQL inserts records into a MySQL table.
type MySQL struct {
	DB      *sql.DB
	table   string
	timeout time.Duration
}

// Go time gives Z00:00, mysql timestamp needs +00:00 for UTC.
const mysqlTimestamp = "2006-01-02T15:04:05.999+00:00"

// NewMySQL opens and pings a MySQL connection pool.
func NewMySQL(ctx context.Context, cfg config.SQLConfig) (*MySQL, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.ToDuration())
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := withTimeout(ctx, cfg.Timeout.ToDuration())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return NewMySQLWithDB(db, cfg.Table, cfg.Timeout.ToDuration()), nil
}

// NewMySQLWithDB wraps an existing connection pool.
func NewMySQLWithDB(db *sql.DB, table string, timeout time.Duration) *MySQL {
	if table == "" {
		table = config.DefaultTable
	}
	return &MySQL{DB: db, table: table, timeout: timeout}
}

// Name implements Sink.
func (m *MySQL) Name() string { return "mysql" }

// Commit batch inserts the records.
func (m *MySQL) Commit(appCtx context.Context, data []Record) error {
	if len(data) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + m.table + "(underlying, cycle_id, value, sigma2, sigma2_raw, method, timestamp, created_at) VALUES ")
	args := make([]interface{}, 0, len(data)*8)
	createdAt := time.Now().UTC().Format(mysqlTimestamp)
	for i, r := range data {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.Underlying, r.CycleID, r.Value, r.Sigma2, r.Sigma2Raw, r.Method,
			r.Timestamp.UTC().Format(mysqlTimestamp), createdAt)
	}

	ctx, cancel := withTimeout(appCtx, m.timeout)
	defer cancel()
	if _, err := m.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Close implements Sink.
func (m *MySQL) Close() error {
	return m.DB.Close()
}
