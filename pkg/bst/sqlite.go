// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS bst_item (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Item name patterns within bst_item.
const (
	sqlNameCurrent = "current:%s:%s"
	sqlNameHistory = "history:%s:%s"
)

// SQLBackend persists state in a single bst_item table: one row for an
// object's current record and one holding its history as a JSON array.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend creates the backend over an open database, creating the
// table if needed.
func NewSQLBackend(ctx context.Context, db *sql.DB) (*SQLBackend, error) {
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		return nil, fmt.Errorf("creating bst_item table: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

// OpenSQLBackend opens (or creates) a SQLite database at the given path
// and returns a backend over it. Close releases the database.
func OpenSQLBackend(ctx context.Context, path string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	backend, err := NewSQLBackend(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

// Close closes the underlying database.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// CurrentStateInfo implements Backend.
func (b *SQLBackend) CurrentStateInfo(ctx context.Context, defTag, objectTag string) (json.RawMessage, error) {
	return b.get(ctx, fmt.Sprintf(sqlNameCurrent, defTag, objectTag))
}

// History implements Backend.
func (b *SQLBackend) History(ctx context.Context, defTag, objectTag string) ([]json.RawMessage, error) {
	data, err := b.get(ctx, fmt.Sprintf(sqlNameHistory, defTag, objectTag))
	if err != nil || data == nil {
		return nil, err
	}

	var history []json.RawMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decoding history row: %w", err)
	}
	return history, nil
}

// SetCurrentStateInfo implements Backend. The current row and the
// history row are updated in one transaction.
func (b *SQLBackend) SetCurrentStateInfo(ctx context.Context, defTag, objectTag string, info json.RawMessage) error {
	history, err := b.History(ctx, defTag, objectTag)
	if err != nil {
		return err
	}
	history = append(history, info)

	historyData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning state transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO bst_item (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`

	if _, err := tx.ExecContext(ctx, upsert, fmt.Sprintf(sqlNameCurrent, defTag, objectTag), string(info)); err != nil {
		return fmt.Errorf("writing current state row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, fmt.Sprintf(sqlNameHistory, defTag, objectTag), string(historyData)); err != nil {
		return fmt.Errorf("writing history row: %w", err)
	}
	return tx.Commit()
}

func (b *SQLBackend) get(ctx context.Context, name string) (json.RawMessage, error) {
	var value string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM bst_item WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state row: %w", err)
	}
	return json.RawMessage(value), nil
}
