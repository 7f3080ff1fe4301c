// Package postgres provides a PostgreSQL-backed conversation memory
// repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/koscakluka/ema-tutor/core/memory"
)

const table = "conversation_memory"

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists one memory record per client.
type Repository struct {
	db *sql.DB
}

// New creates a new Repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns memory.ErrNotFound when the client has no row.
func (r *Repository) Get(ctx context.Context, clientID string) (*memory.Record, error) {
	query, args, err := psq.Select("client_id", "version", "data", "updated_at").
		From(table).
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building memory query: %w", err)
	}

	var record memory.Record
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&record.ClientID, &record.Version, &record.Data, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}
	return &record, nil
}

// Put inserts or replaces the client's record.
func (r *Repository) Put(ctx context.Context, record memory.Record) error {
	query, args, err := psq.Insert(table).
		Columns("client_id", "version", "data", "updated_at").
		Values(record.ClientID, record.Version, record.Data, record.UpdatedAt).
		Suffix("ON CONFLICT (client_id) DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building memory upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// Delete removes the client's record. Deleting a missing record is not an
// error.
func (r *Repository) Delete(ctx context.Context, clientID string) error {
	query, args, err := psq.Delete(table).
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building memory delete: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	return nil
}
