// Package config provides configuration helpers for callprobe commands.
// Values come from the environment, with an optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the bridge. The flush threshold and idle timeout are tunables,
// not protocol constants; override them per deployment.
const (
	DefaultPort          = "8080"
	DefaultVoice         = "coral"
	DefaultAudioFormat   = "g711_ulaw"
	DefaultVADThreshold  = 0.8
	DefaultMinAudioBytes = 1600 // ~200ms of 8kHz G.711
	DefaultAIIdleTimeout = 30 * time.Second
	DefaultGoodbyeWord   = "bye"
)

// Config holds everything the bridge server needs at startup.
type Config struct {
	Port     string
	LogLevel string

	// OpenAI realtime endpoint
	OpenAIKey     string
	Voice         string
	AudioFormat   string
	VADThreshold  float64
	AIIdleTimeout time.Duration

	// Twilio call control
	TwilioAccountSID string
	TwilioAuthToken  string

	// Turn segmentation
	MinAudioBytes int
	GoodbyeWord   string

	// Storage
	S3Bucket    string
	AWSRegion   string
	PostgresURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present (local development only).
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             Env("PORT", DefaultPort),
		LogLevel:         Env("LOG_LEVEL", "info"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		Voice:            Env("OPENAI_VOICE", DefaultVoice),
		AudioFormat:      Env("OPENAI_AUDIO_FORMAT", DefaultAudioFormat),
		VADThreshold:     EnvFloat("VAD_THRESHOLD", DefaultVADThreshold),
		AIIdleTimeout:    EnvDuration("AI_IDLE_TIMEOUT", DefaultAIIdleTimeout),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		MinAudioBytes:    EnvInt("MIN_AUDIO_BYTES", DefaultMinAudioBytes),
		GoodbyeWord:      Env("GOODBYE_WORD", DefaultGoodbyeWord),
		S3Bucket:         os.Getenv("S3_BUCKET_NAME"),
		AWSRegion:        Env("AWS_DEFAULT_REGION", "us-east-1"),
		PostgresURL:      os.Getenv("DATABASE_URL"),
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("config: OPENAI_API_KEY is required")
	}

	return cfg, nil
}

// Env returns the value of the named variable or the fallback if unset.
func Env(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns the named variable parsed as an int, or the fallback.
func EnvInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvFloat returns the named variable parsed as a float64, or the fallback.
func EnvFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvDuration returns the named variable parsed as a time.Duration, or the fallback.
func EnvDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
