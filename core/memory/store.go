package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-tutor/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Config struct {
	// HistoryCapacity bounds History. It is clamped to ContextCapacity.
	HistoryCapacity int
	ContextCapacity int
	MaxTopics       int
	// ContextIsolationThreshold is how many entries survive a recent level
	// change.
	ContextIsolationThreshold int
	LevelChangeWindow         time.Duration
	// ProjectionEntries is how many recent context entries are considered
	// for the dialogue projection.
	ProjectionEntries int
}

func DefaultConfig() Config {
	return Config{
		HistoryCapacity:           20,
		ContextCapacity:           50,
		MaxTopics:                 20,
		ContextIsolationThreshold: 3,
		LevelChangeWindow:         300 * time.Second,
		ProjectionEntries:         15,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaults.HistoryCapacity
	}
	if c.ContextCapacity <= 0 {
		c.ContextCapacity = defaults.ContextCapacity
	}
	if c.HistoryCapacity > c.ContextCapacity {
		c.HistoryCapacity = c.ContextCapacity
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = defaults.MaxTopics
	}
	if c.ContextIsolationThreshold <= 0 {
		c.ContextIsolationThreshold = defaults.ContextIsolationThreshold
	}
	if c.LevelChangeWindow <= 0 {
		c.LevelChangeWindow = defaults.LevelChangeWindow
	}
	if c.ProjectionEntries <= 0 {
		c.ProjectionEntries = defaults.ProjectionEntries
	}
	return c
}

// Store owns the mutation rules of Memory and its persistence. Memory values
// themselves are not synchronized; a session mutates its memory from a
// single goroutine and hands Snapshot copies to other goroutines.
type Store struct {
	repository Repository
	config     Config
	topics     TopicTable
	facts      FactTable
	now        func() time.Time
}

type StoreOption func(*Store)

func WithConfig(config Config) StoreOption {
	return func(s *Store) {
		s.config = config.withDefaults()
	}
}

func WithTopicTable(table TopicTable) StoreOption {
	return func(s *Store) {
		s.topics = table
	}
}

func WithFactTable(table FactTable) StoreOption {
	return func(s *Store) {
		s.facts = table
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(repository Repository, opts ...StoreOption) *Store {
	if repository == nil {
		repository = NewInMemoryRepository()
	}
	store := &Store{
		repository: repository,
		config:     DefaultConfig(),
		topics:     DefaultTopicTable,
		facts:      DefaultFactTable,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) Config() Config {
	return s.config
}

// New creates an empty memory for a client that has never been seen.
func (s *Store) New(clientID string) *Memory {
	now := s.now()
	return &Memory{
		ClientID:            clientID,
		Facts:               map[string]string{},
		SessionStartTime:    now,
		LastInteractionTime: now,
		Level:               DefaultLevel,
	}
}

// BeginSession marks the start of a new live session for m.
func (s *Store) BeginSession(m *Memory) {
	m.SessionStartTime = s.now()
}

func (s *Store) Load(ctx context.Context, clientID string) (*Memory, error) {
	ctx, span := tracer.Start(ctx, "load memory")
	defer span.End()
	span.SetAttributes(attribute.String("memory.client_id", clientID))

	record, err := s.repository.Get(ctx, clientID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	m, err := Decode(*record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("memory.total_interactions", m.TotalInteractions))
	return m, nil
}

func (s *Store) Save(ctx context.Context, m *Memory) error {
	ctx, span := tracer.Start(ctx, "save memory")
	defer span.End()
	span.SetAttributes(attribute.String("memory.client_id", m.ClientID))

	record, err := Encode(m, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.repository.Put(ctx, record); err != nil {
		err = fmt.Errorf("failed to persist memory for %s: %w", m.ClientID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, clientID string) error {
	if err := s.repository.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("failed to clear memory for %s: %w", clientID, err)
	}
	return nil
}

// Snapshot returns a deep copy of m that can be saved from another goroutine.
func (s *Store) Snapshot(m *Memory) (*Memory, error) {
	var snapshot Memory
	if err := copier.CopyWithOption(&snapshot, m, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to snapshot memory: %w", err)
	}
	snapshot.nextSeq = m.nextSeq
	return &snapshot, nil
}

// Append records one utterance and applies every bounding rule. It returns
// m for chaining.
func (s *Store) Append(m *Memory, role Role, text string) *Memory {
	now := s.now()
	m.syncSeq()

	m.History = append(m.History, HistoryEntry{Role: role, Content: text, Timestamp: now})
	m.ConversationContext = append(m.ConversationContext, ContextEntry{
		Role:      role,
		Content:   text,
		Timestamp: now,
		Seq:       m.nextSeq,
		Elapsed:   now.Sub(m.SessionStartTime),
	})
	m.nextSeq++

	m.TotalInteractions++
	m.LastInteractionTime = now

	if role == RoleUser {
		s.addTopics(m, text)
		s.addFacts(m, text)
	}

	if m.LevelChangedAt != nil && now.Sub(*m.LevelChangedAt) <= s.config.LevelChangeWindow {
		m.History = keepLast(m.History, s.config.ContextIsolationThreshold)
		m.ConversationContext = keepLast(m.ConversationContext, s.config.ContextIsolationThreshold)
	}

	m.History = keepLast(m.History, s.config.HistoryCapacity)
	m.ConversationContext = keepLast(m.ConversationContext, s.config.ContextCapacity)
	return m
}

func (s *Store) addTopics(m *Memory, text string) {
	for _, topic := range s.topics.Match(text) {
		if m.hasTopic(topic) {
			continue
		}
		m.Topics = append(m.Topics, topic)
	}
	m.Topics = keepLast(m.Topics, s.config.MaxTopics)
}

func (s *Store) addFacts(m *Memory, text string) {
	facts := s.facts.Extract(text)
	if len(facts) == 0 {
		return
	}
	if m.Facts == nil {
		m.Facts = map[string]string{}
	}
	for key, value := range facts {
		switch key {
		case FactName:
			m.UserName = &value
		case FactDestination:
			m.Destination = &value
		}
		m.Facts[key] = value
	}
}

// SetLevel changes the difficulty level. A real change starts the isolation
// window in which Append keeps only the most recent entries.
func (s *Store) SetLevel(m *Memory, level string) bool {
	if level == "" || level == m.Level {
		return false
	}
	now := s.now()
	m.Level = level
	m.LevelChangedAt = &now
	return true
}

func (s *Store) SetRolePlay(m *Memory, scenario, character string) {
	if scenario == "" {
		m.RolePlay = nil
		return
	}
	m.RolePlay = &RolePlay{Scenario: scenario, Character: character, StartedAt: s.now()}
}

// ContextForDialogue projects the most recent context entries into dialogue
// messages. Entries are taken oldest-first while they fit in maxChars; the
// first entry that would overflow ends the projection and is never cut.
// A non-positive maxChars disables the character limit.
func (s *Store) ContextForDialogue(m *Memory, maxChars int) []llms.Message {
	if m == nil {
		return nil
	}
	recent := m.ConversationContext
	if len(recent) > s.config.ProjectionEntries {
		recent = recent[len(recent)-s.config.ProjectionEntries:]
	}

	messages := make([]llms.Message, 0, len(recent))
	total := 0
	for _, entry := range recent {
		size := utf8.RuneCountInString(entry.Content)
		if maxChars > 0 && total+size > maxChars {
			break
		}
		total += size

		role := llms.MessageRoleUser
		if entry.Role == RoleAssistant {
			role = llms.MessageRoleAssistant
		}
		messages = append(messages, llms.Message{Role: role, Content: entry.Content})
	}
	return messages
}

func keepLast[T any](items []T, n int) []T {
	if n < 0 || len(items) <= n {
		return items
	}
	trimmed := make([]T, n)
	copy(trimmed, items[len(items)-n:])
	return trimmed
}
