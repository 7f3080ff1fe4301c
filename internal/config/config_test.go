package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, ProviderGroq, cfg.Dialogue.Provider)
	assert.Equal(t, 1200*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.SaveInterval)
	assert.Equal(t, 16000, cfg.Session.SampleRate)
	assert.Equal(t, 20, cfg.Memory.HistoryCapacity)
	assert.Equal(t, 50, cfg.Memory.ContextCapacity)
	assert.Equal(t, 15, cfg.Memory.ProjectionEntries)
	assert.Equal(t, 3, cfg.Dialogue.RetryAttempts)
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeTestConfig(t, `
server:
  addr: 127.0.0.1:9000
store:
  type: file
session:
  idle_timeout: 90s
  turn_queue_capacity: 2
segmenter:
  end_silence: 900ms
dialogue:
  provider: openai
  model: gpt-4o-mini
  temperature: 0.4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, DefaultStorePath, cfg.Store.Path)
	assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, 2, cfg.Session.TurnQueueCapacity)
	assert.Equal(t, 900*time.Millisecond, cfg.Segmenter.EndSilence)
	assert.Equal(t, ProviderOpenAI, cfg.Dialogue.Provider)
	require.NotNil(t, cfg.Dialogue.Temperature)
	assert.InDelta(t, 0.4, *cfg.Dialogue.Temperature, 1e-9)
	assert.Len(t, cfg.DialogueOptions(), 2)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("EMA_TEST_DSN", "postgres://tutor@localhost/tutor?sslmode=disable")
	path := writeTestConfig(t, `
store:
  type: postgres
  dsn: ${EMA_TEST_DSN}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://tutor@localhost/tutor?sslmode=disable", cfg.Store.DSN)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "invalid: yaml: content:"},
		{name: "unknown store", content: "store:\n  type: redis\n"},
		{name: "postgres without dsn", content: "store:\n  type: postgres\n"},
		{name: "unknown provider", content: "dialogue:\n  provider: nope\n"},
		{name: "history above context", content: "memory:\n  history_capacity: 60\n  context_capacity: 10\n"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Load(writeTestConfig(t, testCase.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EMA_TEST_VAR", "value")

	assert.Equal(t, "key: value", expandEnvVars("key: ${EMA_TEST_VAR}"))
	assert.Equal(t, "key: ", expandEnvVars("key: ${EMA_TEST_UNSET_VAR}"))
	assert.Equal(t, "key: $PLAIN", expandEnvVars("key: $PLAIN"))
}

func TestSessionConfigConversion(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, `
session:
  sample_rate: 24000
  default_voice: helena
segmenter:
  min_energy: 0.01
reply:
  correction_start_marker: "<fix>"
  correction_end_marker: "</fix>"
`))
	require.NoError(t, err)

	session := cfg.SessionConfig()
	assert.Equal(t, 24000, session.Encoding.SampleRate)
	assert.Equal(t, session.Encoding, session.UtteranceFilter.Encoding)
	assert.Equal(t, "helena", session.DefaultVoice)
	assert.InDelta(t, 0.01, session.UtteranceFilter.MinEnergy, 1e-9)
	assert.Equal(t, "<fix>", session.Reply.CorrectionStartMarker)
	assert.Equal(t, "</fix>", session.Reply.CorrectionEndMarker)

	store := memory.NewStore(nil, memory.WithConfig(cfg.MemoryStoreConfig()))
	assert.Equal(t, 15, store.Config().ProjectionEntries)
	assert.Len(t, cfg.ResourcesOptions(), 5)
}
