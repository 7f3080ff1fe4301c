// Command ema-tutor serves voice tutoring sessions over websockets.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	orchestration "github.com/koscakluka/ema-tutor/core"
	"github.com/koscakluka/ema-tutor/core/audio"
	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/llms/groq"
	"github.com/koscakluka/ema-tutor/core/llms/openai"
	"github.com/koscakluka/ema-tutor/core/memory"
	"github.com/koscakluka/ema-tutor/core/memory/file"
	"github.com/koscakluka/ema-tutor/core/memory/postgres"
	sttdeepgram "github.com/koscakluka/ema-tutor/core/speechtotext/deepgram"
	ttsdeepgram "github.com/koscakluka/ema-tutor/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-tutor/internal/config"
)

// logOutput keeps stdout free for anything the binary prints deliberately.
var logOutput io.Writer = os.Stderr

func newLogger(level string, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if level == "debug" {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func main() {
	configPath := flag.String("config", os.Getenv("EMA_TUTOR_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	logger := newLogger(os.Getenv("LOG_LEVEL"), logOutput)
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("ema-tutor stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	repository, closeRepository, err := openRepository(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeRepository()
	store := memory.NewStore(repository, memory.WithConfig(cfg.MemoryStoreConfig()))

	resources, err := newResources(cfg)
	if err != nil {
		return err
	}

	sessionConfig := cfg.SessionConfig()
	frameBytes := sessionConfig.Encoding.FrameBytes(sessionConfig.Segmenter.FrameDuration)
	threshold := cfg.Segmenter.VoiceThreshold
	orchestrator := orchestration.NewOrchestrator(resources, store,
		orchestration.WithConfig(sessionConfig),
		orchestration.WithOrchestratorLogger(logger),
		orchestration.WithClassifierFactory(func() audio.FrameClassifier {
			return audio.NewEnergyClassifier(threshold, frameBytes)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newServer(ctx, orchestrator, logger).Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("ema-tutor listening", "addr", cfg.Server.Addr, "store", cfg.Store.Type, "dialogue", cfg.Dialogue.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by the server, so the
	// sessions are closed explicitly to get their final saves.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	orchestrator.Close()
	return nil
}

func openRepository(cfg config.StoreConfig, logger *slog.Logger) (memory.Repository, func(), error) {
	switch cfg.Type {
	case config.StoreFile:
		repository, err := file.NewRepository(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open memory directory: %w", err)
		}
		return repository, func() {}, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to reach database: %w", err)
		}
		if err := postgres.Migrate(db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.New(db), func() { _ = db.Close() }, nil

	default:
		return memory.NewInMemoryRepository(), func() {}, nil
	}
}

func newResources(cfg *config.Config) (*orchestration.Resources, error) {
	var sttOptions []sttdeepgram.TranscriptionClientOption
	if cfg.Speech.TranscriptionModel != "" {
		sttOptions = append(sttOptions, sttdeepgram.WithModel(cfg.Speech.TranscriptionModel))
	}
	if cfg.Speech.TranscriptionURL != "" {
		sttOptions = append(sttOptions, sttdeepgram.WithURL(cfg.Speech.TranscriptionURL))
	}
	transcriber, err := sttdeepgram.NewTranscriptionClient(sttOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	var ttsOptions []ttsdeepgram.TextToSpeechClientOption
	if cfg.Speech.SynthesisURL != "" {
		ttsOptions = append(ttsOptions, ttsdeepgram.WithURL(cfg.Speech.SynthesisURL))
	}
	synthesizer, err := ttsdeepgram.NewTextToSpeechClient(ttsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech synthesis client: %w", err)
	}

	dialogue := llms.WithRetry(newDialogue(cfg.Dialogue, cfg.DialogueOptions()), cfg.Dialogue.RetryAttempts, cfg.Dialogue.RetryBackoff)

	return orchestration.NewResources(transcriber, synthesizer, dialogue, cfg.ResourcesOptions()...), nil
}

func newDialogue(cfg config.DialogueConfig, defaults []llms.DialogueOption) llms.Dialogue {
	if cfg.Provider == config.ProviderOpenAI {
		opts := []openai.ClientOption{openai.WithDefaults(defaults...)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithURL(cfg.URL))
		}
		return openai.NewClient(opts...)
	}

	opts := []groq.ClientOption{groq.WithDefaults(defaults...)}
	if cfg.URL != "" {
		opts = append(opts, groq.WithURL(cfg.URL))
	}
	return groq.NewClient(opts...)
}
