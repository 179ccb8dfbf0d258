package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	orchestration "github.com/polyglotgames/dialogue-core/core"
	"github.com/polyglotgames/dialogue-core/core/eventbus"
	"github.com/polyglotgames/dialogue-core/core/llms/groq"
	"github.com/polyglotgames/dialogue-core/core/speechtotext/deepgram"
	"github.com/polyglotgames/dialogue-core/core/texttospeech/elevenlabs"
	"github.com/polyglotgames/dialogue-core/internal/config"
	"github.com/polyglotgames/dialogue-core/internal/httpserver"
	"github.com/polyglotgames/dialogue-core/internal/store/redisstate"
	"github.com/polyglotgames/dialogue-core/internal/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sqliteStore, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer sqliteStore.Close()

	if path := os.Getenv("CHARACTERS_PATH"); path != "" {
		if err := seedCharacters(context.Background(), sqliteStore, path); err != nil {
			return err
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	contextStore := redisstate.New(redisClient,
		redisstate.WithRelationshipSource(sqliteStore),
		redisstate.WithDefaults(cfg.TargetLanguage, "A2"),
	)

	bus := eventbus.New()

	orchestrator, err := orchestration.New(
		orchestration.WithSpeechToText(deepgram.NewClient(cfg.DeepgramAPIKey)),
		orchestration.WithDialogueGenerator(groq.NewClient(cfg.GroqAPIKey, cfg.GroqModel)),
		orchestration.WithSpeechSynthesizer(elevenlabs.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID)),
		orchestration.WithContextStore(contextStore),
		orchestration.WithProfileRepository(sqliteStore),
		orchestration.WithMistakeRepository(sqliteStore),
		orchestration.WithEventBus(bus),
		orchestration.WithHistoryWindow(cfg.HistoryWindow),
		orchestration.WithCorrectionTimeout(cfg.CorrectionTimeout),
		orchestration.WithTargetLanguage(cfg.TargetLanguage),
	)
	if err != nil {
		return err
	}

	server := httpserver.New(orchestrator, sqliteStore)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.HTTPAddress)
		if err := server.Start(cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// seedCharacters loads character definitions from a JSON file so a fresh
// deployment has a populated world.
func seedCharacters(ctx context.Context, store *sqlite.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var profiles []orchestration.CharacterProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return err
	}

	for _, profile := range profiles {
		if err := store.UpsertProfile(ctx, profile); err != nil {
			return err
		}
	}
	return nil
}
