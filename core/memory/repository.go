package memory

import (
	"context"
	"sync"
)

// Repository stores one record per client id.
type Repository interface {
	// Get returns ErrNotFound when the client has no record.
	Get(ctx context.Context, clientID string) (*Record, error)
	Put(ctx context.Context, record Record) error
	Delete(ctx context.Context, clientID string) error
}

// InMemoryRepository keeps records for the lifetime of the process.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: map[string]Record{}}
}

func (r *InMemoryRepository) Get(_ context.Context, clientID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	record.Data = append([]byte(nil), record.Data...)
	return &record, nil
}

func (r *InMemoryRepository) Put(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.Data = append([]byte(nil), record.Data...)
	r.records[record.ClientID] = record
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, clientID)
	return nil
}
