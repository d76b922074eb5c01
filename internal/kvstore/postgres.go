package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres keeps the namespace in a key/JSONB table.
type Postgres struct {
	db        *sql.DB
	namespace string
}

// OpenPostgres connects with sane pool defaults and ensures the table exists.
func OpenPostgres(connString, namespace string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if namespace == "" {
		namespace = "tardiness"
	}
	store := &Postgres{db: db, namespace: namespace}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Get returns the stored document or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, key string) (json.RawMessage, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2
	`, p.namespace, key)
	var val []byte
	if err := row.Scan(&val); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(val), nil
}

// Set upserts the value under the namespaced key.
func (p *Postgres) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, p.namespace, key, payload)
	return err
}

// ExportAll returns every entry under the namespace.
func (p *Postgres) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, value FROM kv_entries WHERE namespace = $1
	`, p.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var val []byte
		if err := rows.Scan(&key, &val); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(val)
	}
	return out, rows.Err()
}

// ImportAll replaces the namespace contents in one transaction.
func (p *Postgres) ImportAll(ctx context.Context, data map[string]json.RawMessage) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = $1`, p.namespace); err != nil {
		return err
	}
	for k, v := range data {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (namespace, key, value) VALUES ($1, $2, $3)
		`, p.namespace, k, []byte(v)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
