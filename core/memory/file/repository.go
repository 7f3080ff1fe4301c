// Package file stores conversation memory as one JSON document per client in
// a directory.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/koscakluka/ema-tutor/core/memory"
)

type document struct {
	ClientID  string          `json:"client_id"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Memory    json.RawMessage `json:"memory"`
}

type Repository struct {
	dir string
}

func NewRepository(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	return &Repository{dir: dir}, nil
}

func (r *Repository) Get(_ context.Context, clientID string) (*memory.Record, error) {
	data, err := os.ReadFile(r.path(clientID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, memory.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse memory file: %w", err)
	}
	if doc.ClientID != clientID {
		return nil, memory.ErrNotFound
	}
	return &memory.Record{
		ClientID:  doc.ClientID,
		Version:   doc.Version,
		Data:      doc.Memory,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// Put writes to a temporary file first so a crash never leaves a truncated
// record behind.
func (r *Repository) Put(_ context.Context, record memory.Record) error {
	data, err := json.Marshal(document{
		ClientID:  record.ClientID,
		Version:   record.Version,
		UpdatedAt: record.UpdatedAt,
		Memory:    record.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode memory file: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".memory-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary memory file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path(record.ClientID)); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}
	return nil
}

func (r *Repository) Delete(_ context.Context, clientID string) error {
	if err := os.Remove(r.path(clientID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete memory file: %w", err)
	}
	return nil
}

// path names files by the sha256 of the client id so distinct ids never share
// a file and no id can escape the directory, even on case-insensitive
// filesystems.
func (r *Repository) path(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:])+".json")
}
