// Package config loads the ema-tutor server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	orchestration "github.com/koscakluka/ema-tutor/core"
	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/utterance"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"

	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"

	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStorePath       = "./data/memory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Memory    MemoryConfig    `yaml:"memory"`
	Session   SessionConfig   `yaml:"session"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Reply     ReplyConfig     `yaml:"reply"`
	Speech    SpeechConfig    `yaml:"speech"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	// Type is one of memory, file or postgres.
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

type MemoryConfig struct {
	HistoryCapacity    int           `yaml:"history_capacity"`
	ContextCapacity    int           `yaml:"context_capacity"`
	MaxTopics          int           `yaml:"max_topics"`
	IsolationThreshold int           `yaml:"isolation_threshold"`
	LevelChangeWindow  time.Duration `yaml:"level_change_window"`
	ProjectionEntries  int           `yaml:"projection_entries"`
}

type SessionConfig struct {
	DefaultLanguage   string        `yaml:"default_language"`
	DefaultVoice      string        `yaml:"default_voice"`
	DefaultLevel      string        `yaml:"default_level"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	SaveInterval      time.Duration `yaml:"save_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	TurnQueueCapacity int           `yaml:"turn_queue_capacity"`
	ContextCharBudget int           `yaml:"context_char_budget"`
	SampleRate        int           `yaml:"sample_rate"`
}

type SegmenterConfig struct {
	FrameDuration  time.Duration `yaml:"frame_duration"`
	PreRoll        time.Duration `yaml:"pre_roll"`
	TriggerFrames  int           `yaml:"trigger_frames"`
	EndSilence     time.Duration `yaml:"end_silence"`
	MaxUtterance   time.Duration `yaml:"max_utterance"`
	VoiceThreshold float64       `yaml:"voice_threshold"`
	MinUtterance   time.Duration `yaml:"min_utterance"`
	MinEnergy      float64       `yaml:"min_energy"`
}

type ReplyConfig struct {
	CorrectionStartMarker        string `yaml:"correction_start_marker"`
	CorrectionEndMarker          string `yaml:"correction_end_marker"`
	MinChunkWords                int    `yaml:"min_chunk_words"`
	MinChunkWordsAfterCorrection int    `yaml:"min_chunk_words_after_correction"`
}

type SpeechConfig struct {
	TranscriptionModel   string        `yaml:"transcription_model"`
	TranscriptionURL     string        `yaml:"transcription_url"`
	SynthesisURL         string        `yaml:"synthesis_url"`
	TranscriptionSlots   int           `yaml:"transcription_slots"`
	SynthesisSlots       int           `yaml:"synthesis_slots"`
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"`
	SynthesisTimeout     time.Duration `yaml:"synthesis_timeout"`
}

type DialogueConfig struct {
	// Provider is groq or openai.
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	URL           string        `yaml:"url"`
	Temperature   *float64      `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// Load reads the file at path, expands ${VAR} references from the
// environment and fills in defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		// #nosec G304 -- path comes from the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreMemory
	}
	if cfg.Store.Type == StoreFile && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	memoryDefaults := memory.DefaultConfig()
	setInt(&cfg.Memory.HistoryCapacity, memoryDefaults.HistoryCapacity)
	setInt(&cfg.Memory.ContextCapacity, memoryDefaults.ContextCapacity)
	setInt(&cfg.Memory.MaxTopics, memoryDefaults.MaxTopics)
	setInt(&cfg.Memory.IsolationThreshold, memoryDefaults.ContextIsolationThreshold)
	setDuration(&cfg.Memory.LevelChangeWindow, memoryDefaults.LevelChangeWindow)
	setInt(&cfg.Memory.ProjectionEntries, memoryDefaults.ProjectionEntries)

	sessionDefaults := orchestration.DefaultSessionConfig()
	setString(&cfg.Session.DefaultLanguage, sessionDefaults.DefaultLanguage)
	setString(&cfg.Session.DefaultLevel, sessionDefaults.DefaultLevel)
	setDuration(&cfg.Session.IdleTimeout, sessionDefaults.IdleTimeout)
	setDuration(&cfg.Session.SaveInterval, sessionDefaults.SaveInterval)
	setDuration(&cfg.Session.HandshakeTimeout, sessionDefaults.HandshakeTimeout)
	setDuration(&cfg.Session.SendTimeout, sessionDefaults.SendTimeout)
	setInt(&cfg.Session.TurnQueueCapacity, sessionDefaults.TurnQueueCapacity)
	setInt(&cfg.Session.ContextCharBudget, sessionDefaults.ContextCharBudget)
	setInt(&cfg.Session.SampleRate, sessionDefaults.Encoding.SampleRate)

	segmenterDefaults := utterance.DefaultConfig()
	filterDefaults := audio.DefaultUtteranceFilter()
	setDuration(&cfg.Segmenter.FrameDuration, segmenterDefaults.FrameDuration)
	setDuration(&cfg.Segmenter.PreRoll, segmenterDefaults.PreRoll)
	setInt(&cfg.Segmenter.TriggerFrames, segmenterDefaults.TriggerFrames)
	setDuration(&cfg.Segmenter.EndSilence, segmenterDefaults.EndSilence)
	setDuration(&cfg.Segmenter.MaxUtterance, segmenterDefaults.MaxUtterance)
	setFloat(&cfg.Segmenter.VoiceThreshold, orchestration.DefaultVoiceThreshold)
	setDuration(&cfg.Segmenter.MinUtterance, filterDefaults.MinDuration)
	setFloat(&cfg.Segmenter.MinEnergy, filterDefaults.MinEnergy)

	replyDefaults := orchestration.DefaultReplyConfig()
	setString(&cfg.Reply.CorrectionStartMarker, replyDefaults.CorrectionStartMarker)
	setString(&cfg.Reply.CorrectionEndMarker, replyDefaults.CorrectionEndMarker)
	setInt(&cfg.Reply.MinChunkWords, replyDefaults.MinChunkWords)
	setInt(&cfg.Reply.MinChunkWordsAfterCorrection, replyDefaults.MinChunkWordsAfterCorrection)

	setInt(&cfg.Speech.TranscriptionSlots, orchestration.DefaultTranscriptionSlots)
	setInt(&cfg.Speech.SynthesisSlots, orchestration.DefaultSynthesisSlots)
	setDuration(&cfg.Speech.TranscriptionTimeout, orchestration.DefaultTranscriptionTimeout)
	setDuration(&cfg.Speech.SynthesisTimeout, orchestration.DefaultSynthesisTimeout)

	setString(&cfg.Dialogue.Provider, ProviderGroq)
	setDuration(&cfg.Dialogue.Timeout, orchestration.DefaultDialogueTimeout)
	setInt(&cfg.Dialogue.RetryAttempts, llms.DefaultRetryAttempts)
	setDuration(&cfg.Dialogue.RetryBackoff, llms.DefaultRetryBackoff)
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}

func setFloat(field *float64, value float64) {
	if *field <= 0 {
		*field = value
	}
}

func setDuration(field *time.Duration, value time.Duration) {
	if *field <= 0 {
		*field = value
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Type {
	case StoreMemory, StoreFile:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}

	switch c.Dialogue.Provider {
	case ProviderGroq, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown dialogue provider %q", c.Dialogue.Provider))
	}

	if c.Session.SampleRate != 0 && c.Session.SampleRate%1000 != 0 {
		errs = append(errs, fmt.Errorf("unsupported sample rate %d", c.Session.SampleRate))
	}
	if c.Memory.HistoryCapacity > c.Memory.ContextCapacity {
		errs = append(errs, errors.New("memory.history_capacity must not exceed memory.context_capacity"))
	}
	if c.Segmenter.EndSilence < c.Segmenter.FrameDuration {
		errs = append(errs, errors.New("segmenter.end_silence must cover at least one frame"))
	}

	return errors.Join(errs...)
}

// MemoryStoreConfig converts the memory section for memory.NewStore.
func (c *Config) MemoryStoreConfig() memory.Config {
	return memory.Config{
		HistoryCapacity:           c.Memory.HistoryCapacity,
		ContextCapacity:           c.Memory.ContextCapacity,
		MaxTopics:                 c.Memory.MaxTopics,
		ContextIsolationThreshold: c.Memory.IsolationThreshold,
		LevelChangeWindow:         c.Memory.LevelChangeWindow,
		ProjectionEntries:         c.Memory.ProjectionEntries,
	}
}

// SessionConfig converts the session, segmenter and reply sections into the
// configuration every session starts with.
func (c *Config) SessionConfig() orchestration.SessionConfig {
	encoding := audio.EncodingInfo{SampleRate: c.Session.SampleRate, Format: audio.EncodingLinear16}

	return orchestration.SessionConfig{
		DefaultLanguage:   c.Session.DefaultLanguage,
		DefaultVoice:      c.Session.DefaultVoice,
		DefaultLevel:      c.Session.DefaultLevel,
		IdleTimeout:       c.Session.IdleTimeout,
		SaveInterval:      c.Session.SaveInterval,
		HandshakeTimeout:  c.Session.HandshakeTimeout,
		SendTimeout:       c.Session.SendTimeout,
		TurnQueueCapacity: c.Session.TurnQueueCapacity,
		ContextCharBudget: c.Session.ContextCharBudget,
		Encoding:          encoding,
		Segmenter: utterance.Config{
			FrameDuration: c.Segmenter.FrameDuration,
			PreRoll:       c.Segmenter.PreRoll,
			TriggerFrames: c.Segmenter.TriggerFrames,
			EndSilence:    c.Segmenter.EndSilence,
			MaxUtterance:  c.Segmenter.MaxUtterance,
		},
		UtteranceFilter: audio.UtteranceFilter{
			Encoding:    encoding,
			MinDuration: c.Segmenter.MinUtterance,
			MinEnergy:   c.Segmenter.MinEnergy,
		},
		Reply: orchestration.ReplyConfig{
			CorrectionStartMarker:        c.Reply.CorrectionStartMarker,
			CorrectionEndMarker:          c.Reply.CorrectionEndMarker,
			MinChunkWords:                c.Reply.MinChunkWords,
			MinChunkWordsAfterCorrection: c.Reply.MinChunkWordsAfterCorrection,
		},
	}
}

// ResourcesOptions converts the speech and dialogue limits.
func (c *Config) ResourcesOptions() []orchestration.ResourcesOption {
	return []orchestration.ResourcesOption{
		orchestration.WithTranscriptionSlots(c.Speech.TranscriptionSlots),
		orchestration.WithSynthesisSlots(c.Speech.SynthesisSlots),
		orchestration.WithTranscriptionTimeout(c.Speech.TranscriptionTimeout),
		orchestration.WithSynthesisTimeout(c.Speech.SynthesisTimeout),
		orchestration.WithDialogueTimeout(c.Dialogue.Timeout),
	}
}

// DialogueOptions returns the per-request defaults for the dialogue client.
func (c *Config) DialogueOptions() []llms.DialogueOption {
	var opts []llms.DialogueOption
	if c.Dialogue.Model != "" {
		opts = append(opts, llms.WithModel(c.Dialogue.Model))
	}
	if c.Dialogue.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*c.Dialogue.Temperature))
	}
	if c.Dialogue.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.Dialogue.MaxTokens))
	}
	return opts
}
