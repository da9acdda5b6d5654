package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/techwatch/internal/config"
)

var (
	ErrNoRows          = sql.ErrNoRows
	ErrNotInitialized  = errors.New("database pool is not initialized")
	readOnlyTxOptions  = &sql.TxOptions{ReadOnly: true}
	defaultConnMaxIdle = 5 * time.Minute
	defaultConnMaxLife = 30 * time.Minute
)

// ReadOnly returns the options for a read-only transaction.
func ReadOnly() *sql.TxOptions {
	return readOnlyTxOptions
}

type CommandTag struct {
	rowsAffected int64
}

func (c CommandTag) RowsAffected() int64 {
	return c.rowsAffected
}

// Row defers a missing handle to Scan so callers keep the single-error shape
// of database/sql.
type Row struct {
	row *sql.Row
	err error
}

func (r *Row) Scan(dest ...any) error {
	switch {
	case r == nil:
		return ErrNoRows
	case r.err != nil:
		return r.err
	case r.row == nil:
		return ErrNoRows
	}
	return r.row.Scan(dest...)
}

type Rows struct {
	*sql.Rows
}

func (r *Rows) Close() {
	if r != nil && r.Rows != nil {
		_ = r.Rows.Close()
	}
}

// Tx is the subset of a transaction the stores use. Queries take $n
// placeholders.
type Tx interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// executor runs raw SQL against either the pool or an open transaction.
type executor struct {
	gdb *gorm.DB
}

func (x executor) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if x.gdb == nil {
		return &Row{err: ErrNotInitialized}
	}
	return &Row{row: x.gdb.WithContext(ctx).Raw(query, args...).Row()}
}

func (x executor) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	if x.gdb == nil {
		return nil, ErrNotInitialized
	}
	rows, err := x.gdb.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows}, nil
}

func (x executor) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	if x.gdb == nil {
		return CommandTag{}, ErrNotInitialized
	}
	res := x.gdb.WithContext(ctx).Exec(query, args...)
	return CommandTag{rowsAffected: res.RowsAffected}, res.Error
}

type gormTx struct {
	executor
}

func (t gormTx) Commit(ctx context.Context) error {
	return t.gdb.WithContext(ctx).Commit().Error
}

func (t gormTx) Rollback(ctx context.Context) error {
	return t.gdb.WithContext(ctx).Rollback().Error
}

// Pool is the item store: items, their vectors and the dedup event log.
type Pool struct {
	executor
	sqlDB *sql.DB
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(resolveGormLogLevel(cfg.LogLevel, cfg.Environment)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}
	configureConns(sqlDB, int(cfg.DBMinConns), int(cfg.DBMaxConns))

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{executor: executor{gdb: gdb}, sqlDB: sqlDB}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}
	return pool, nil
}

func configureConns(sqlDB *sql.DB, minConns, maxConns int) {
	if maxConns <= 0 {
		maxConns = 8
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(max(1, min(minConns, maxConns)))
	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdle)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLife)
}

// BeginTx opens a transaction. opts may be nil for a read-write transaction
// at the server's default isolation.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	if p == nil || p.gdb == nil {
		return nil, ErrNotInitialized
	}
	var tx *gorm.DB
	if opts != nil {
		tx = p.gdb.WithContext(ctx).Begin(opts)
	} else {
		tx = p.gdb.WithContext(ctx).Begin()
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	return gormTx{executor{gdb: tx}}, nil
}

// WithTx runs fn inside one transaction, committing on nil and rolling back
// on error.
func (p *Pool) WithTx(ctx context.Context, label string, fn func(tx Tx) error) error {
	tx, err := p.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", label, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit %s tx: %w", label, err)
	}
	return nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return ErrNotInitialized
	}
	return p.sqlDB.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

var gormLevels = map[string]logger.LogLevel{
	"trace":    logger.Info,
	"debug":    logger.Info,
	"":         logger.Warn,
	"info":     logger.Warn,
	"warn":     logger.Warn,
	"warning":  logger.Warn,
	"error":    logger.Error,
	"silent":   logger.Silent,
	"disabled": logger.Silent,
}

// resolveGormLogLevel keeps gorm one notch quieter than the app log. Unknown
// levels stay at warn locally and drop to error elsewhere.
func resolveGormLogLevel(appLogLevel, environment string) logger.LogLevel {
	if level, ok := gormLevels[strings.ToLower(strings.TrimSpace(appLogLevel))]; ok {
		return level
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		return logger.Warn
	}
	return logger.Error
}
