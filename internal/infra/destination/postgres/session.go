// Package postgres loads COPY text blocks into the Postgres content schema.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"filmmigrate/internal/config"
	"filmmigrate/internal/copyfmt"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
)

// Loader submits one COPY block inside its own transaction and reports the
// number of rows committed.
type Loader interface {
	CopyBatch(ctx context.Context, sql string, block []byte) (int64, error)
}

// Connect opens a single connection to the destination described by cfg.
func Connect(ctx context.Context, cfg config.Destination) (*pgx.Conn, error) {
	pgcfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, pgcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres %s: %w", cfg.Redacted(), err)
	}
	return conn, nil
}

// Session owns the destination connection for a run and implements Loader.
// A connection closed by a failed COPY is re-established before the next batch.
// A Session is not safe for concurrent use.
type Session struct {
	cfg    config.Destination
	dial   func(context.Context, config.Destination) (*pgx.Conn, error)
	conn   *pgx.Conn
	logger hclog.Logger
}

// Open connects to the destination and returns a Session over the connection.
func Open(ctx context.Context, cfg config.Destination, logger hclog.Logger) (*Session, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Session{cfg: cfg, dial: Connect, logger: logger.Named("destination")}
	conn, err := s.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.logger.Info("connected to destination", "dsn", cfg.Redacted())
	return s, nil
}

func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil && !s.conn.IsClosed() {
		return nil
	}
	if s.dial == nil {
		return errors.New("destination connection closed")
	}
	s.logger.Warn("destination connection lost, reconnecting", "dsn", s.cfg.Redacted())
	conn, err := s.dial(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// CopyBatch runs sql with block as COPY input in a transaction of its own.
// Any failure rolls the transaction back.
func (s *Session) CopyBatch(ctx context.Context, sql string, block []byte) (int64, error) {
	if err := s.ensureConn(ctx); err != nil {
		return 0, err
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin copy tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()
	tag, err := tx.Conn().PgConn().CopyFrom(ctx, bytes.NewReader(block), sql)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit copy tx: %w", err)
	}
	committed = true
	return tag.RowsAffected(), nil
}

// Close releases the connection.
func (s *Session) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}

// CopySQL builds the COPY FROM STDIN statement for table with an explicit
// column list, quoting every identifier.
func CopySQL(schema, table string, columns []string) string {
	target := pgx.Identifier{table}
	if schema != "" {
		target = pgx.Identifier{schema, table}
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT text, DELIMITER '%c', NULL '%s')",
		target.Sanitize(), strings.Join(cols, ", "), copyfmt.Delimiter, copyfmt.Null)
}
