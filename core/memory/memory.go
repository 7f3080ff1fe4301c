// Package memory holds the per-client conversation memory that outlives a
// single voice session, together with the rules that keep it bounded.
package memory

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultLevel    = "intermediate"
	DefaultUserName = "friend"
)

type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ContextEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int       `json:"seq"`
	// Elapsed is measured from the start of the session that produced the
	// entry.
	Elapsed time.Duration `json:"elapsed"`
}

type RolePlay struct {
	Scenario  string    `json:"scenario"`
	Character string    `json:"character,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Memory is the conversation memory of one client.
type Memory struct {
	ClientID string `json:"client_id"`

	UserName    *string           `json:"user_name,omitempty"`
	Destination *string           `json:"destination,omitempty"`
	Facts       map[string]string `json:"facts"`

	History             []HistoryEntry `json:"history"`
	ConversationContext []ContextEntry `json:"conversation_context"`
	Topics              []string       `json:"topics"`

	TotalInteractions   int       `json:"total_interactions"`
	SessionStartTime    time.Time `json:"session_start_time"`
	LastInteractionTime time.Time `json:"last_interaction_time"`

	Level          string     `json:"level"`
	LevelChangedAt *time.Time `json:"level_changed_at,omitempty"`

	RolePlay *RolePlay `json:"role_play,omitempty"`

	nextSeq int
}

func (m *Memory) UserNameOr(fallback string) string {
	if m == nil || m.UserName == nil || *m.UserName == "" {
		return fallback
	}
	return *m.UserName
}

func (m *Memory) DestinationOr(fallback string) string {
	if m == nil || m.Destination == nil || *m.Destination == "" {
		return fallback
	}
	return *m.Destination
}

func (m *Memory) LevelOr(fallback string) string {
	if m == nil || m.Level == "" {
		return fallback
	}
	return m.Level
}

func (m *Memory) RolePlayActive() bool {
	return m != nil && m.RolePlay != nil && m.RolePlay.Scenario != ""
}

// RecentTopics returns up to n topics, most recent first.
func (m *Memory) RecentTopics(n int) []string {
	if m == nil || n <= 0 {
		return nil
	}
	recent := make([]string, 0, n)
	for i := len(m.Topics) - 1; i >= 0 && len(recent) < n; i-- {
		recent = append(recent, m.Topics[i])
	}
	return recent
}

func (m *Memory) hasTopic(topic string) bool {
	for _, t := range m.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// syncSeq makes sure new context entries continue numbering after the ones
// already stored, including after a reload.
func (m *Memory) syncSeq() {
	for _, entry := range m.ConversationContext {
		if entry.Seq >= m.nextSeq {
			m.nextSeq = entry.Seq + 1
		}
	}
}
