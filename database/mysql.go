// Package database is the MySQL storage backend.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"vibeconnect/errs"
)

// MySQL error numbers the store reacts to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("mysql")}
}

// Connect opens a pool for dsn. Times are always parsed, and UPDATE reports
// matched rather than changed rows so conditional writes can detect misses.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create mysql connector")
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "ping mysql")
	}

	logger.Info("database connected", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBName))
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           VARCHAR(64) PRIMARY KEY,
		username     VARCHAR(50) NOT NULL,
		display_name VARCHAR(100) NOT NULL DEFAULT '',
		avatar_url   VARCHAR(255) NOT NULL DEFAULT '',
		bio          VARCHAR(500) NOT NULL DEFAULT '',
		created_at   DATETIME(6) NOT NULL,
		updated_at   DATETIME(6) NOT NULL,
		UNIQUE KEY uk_username (username)
	)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		user_low     VARCHAR(64) NOT NULL,
		user_high    VARCHAR(64) NOT NULL,
		state        ENUM('pending', 'friends') NOT NULL,
		requester_id VARCHAR(64) NOT NULL,
		created_at   DATETIME(6) NOT NULL,
		updated_at   DATETIME(6) NOT NULL,
		PRIMARY KEY (user_low, user_high),
		INDEX idx_high (user_high)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id           VARCHAR(36) PRIMARY KEY,
		sender_id    VARCHAR(64) NOT NULL,
		recipient_id VARCHAR(64) NOT NULL,
		content      TEXT NOT NULL,
		client_id    VARCHAR(64) NULL,
		is_read      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   DATETIME(6) NOT NULL,
		UNIQUE KEY uk_sender_client (sender_id, client_id),
		INDEX idx_pair_time (sender_id, recipient_id, created_at),
		INDEX idx_recipient_time (recipient_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id         VARCHAR(36) PRIMARY KEY,
		author_id  VARCHAR(64) NOT NULL,
		content    TEXT NOT NULL,
		image_url  VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_author_time (author_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS post_likes (
		post_id    VARCHAR(36) NOT NULL,
		user_id    VARCHAR(64) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (post_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS post_comments (
		id         VARCHAR(36) PRIMARY KEY,
		post_id    VARCHAR(36) NOT NULL,
		author_id  VARCHAR(64) NOT NULL,
		text       TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_post_time (post_id, created_at)
	)`,
}

func (s *Store) CreateTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return pkgerrors.Wrap(err, "create tables")
		}
	}
	s.logger.Info("database tables ready")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify translates driver errors into the storage sentinels, marking the ones
// worth retrying as transient.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDupEntry:
			return errs.ErrDuplicate
		case errLockWaitTimeout, errDeadlock:
			return errs.Transient(pkgerrors.Wrap(err, op))
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return errs.Transient(pkgerrors.Wrap(err, op))
	}
	return pkgerrors.Wrap(err, op)
}

// inClause returns "?, ?, ?" for n placeholders and args as []interface{}.
func inClause(values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, op)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return err
	}
	return classify(tx.Commit(), op)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
