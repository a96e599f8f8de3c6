package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps sections in one kv_state table keyed by
// (section, key). Used when no Redis URL is configured.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection, and ensures the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing database handle without touching the
// schema. Test use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_state (
			section TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (section, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure kv_state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, section, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_state WHERE section = $1 AND key = $2`,
		section, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s/%s: %w", section, key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, section, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (section, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (section, key) DO UPDATE SET value = $3, updated_at = NOW()
	`, section, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", section, key, err)
	}
	return nil
}

func (s *PostgresStore) GetSection(ctx context.Context, section string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_state WHERE section = $1`, section)
	if err != nil {
		return nil, fmt.Errorf("select section %s: %w", section, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan section %s: %w", section, err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section %s: %w", section, err)
	}
	return values, nil
}

func (s *PostgresStore) PutSection(ctx context.Context, section string, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", section, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv_state WHERE section = $1`, section); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear section %s: %w", section, err)
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_state (section, key, value) VALUES ($1, $2, $3)
		`, section, k, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s/%s: %w", section, k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", section, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSection(ctx context.Context, section string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_state WHERE section = $1`, section); err != nil {
		return fmt.Errorf("delete section %s: %w", section, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
