// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to boot.
type Config struct {
	HTTPAddress string

	GroqAPIKey string
	GroqModel  string

	DeepgramAPIKey string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	SQLitePath string

	TargetLanguage    string
	HistoryWindow     int
	CorrectionTimeout time.Duration
}

// Load reads the environment, preferring an explicit variable over the .env
// file. Missing API keys are not fatal here; the affected backend fails at
// first use instead, so a partially configured server can still serve the
// endpoints it has keys for.
func Load() (Config, error) {
	// A missing .env file is the normal case in production.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddress:       getEnv("HTTP_ADDRESS", ":8080"),
		GroqAPIKey:        os.Getenv("GROQ_API_KEY"),
		GroqModel:         getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		RedisAddress:      getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		SQLitePath:        getEnv("SQLITE_PATH", "dialogue.db"),
		TargetLanguage:    getEnv("TARGET_LANGUAGE", "fr"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.HistoryWindow, err = getEnvInt("HISTORY_WINDOW", 10); err != nil {
		return Config{}, err
	}

	correctionTimeout, err := getEnvInt("CORRECTION_TIMEOUT_SECONDS", 20)
	if err != nil {
		return Config{}, err
	}
	cfg.CorrectionTimeout = time.Duration(correctionTimeout) * time.Second

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, nil
}
