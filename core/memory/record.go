package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordVersion is the version written by Encode. Decode rejects anything
// else.
const RecordVersion = 1

var (
	ErrNotFound           = errors.New("memory not found")
	ErrUnsupportedVersion = errors.New("unsupported memory record version")
)

// Record is the opaque persisted form of a Memory.
type Record struct {
	ClientID  string
	Version   int
	Data      []byte
	UpdatedAt time.Time
}

func Encode(m *Memory, now time.Time) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode memory: %w", err)
	}
	return Record{
		ClientID:  m.ClientID,
		Version:   RecordVersion,
		Data:      data,
		UpdatedAt: now,
	}, nil
}

func Decode(record Record) (*Memory, error) {
	if record.Version != RecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, record.Version)
	}

	var m Memory
	if err := json.Unmarshal(record.Data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode memory: %w", err)
	}
	if m.ClientID == "" {
		m.ClientID = record.ClientID
	}
	if m.Facts == nil {
		m.Facts = map[string]string{}
	}
	m.syncSeq()
	return &m, nil
}
