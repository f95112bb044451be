// Package config loads the console's configuration from the process
// environment, merging a .env file when one is present. The backend and
// renderer services configure themselves the same way, so a single .env at
// the project root covers all three.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cosmconsole/internal/logger"
)

// Config holds every externally configurable value the console uses. Base
// URLs and API keys have no defaults; everything else does.
type Config struct {
	// Agent backend
	BackendURL   string
	AppName      string
	UserID       string
	PrimaryAgent string
	UserAuthor   string

	// Renderer microservice
	RendererURL string

	// Transcript reconciliation
	DuplicateWindow time.Duration

	// Speech synthesis
	SynthesisURL   string
	TTSProvider    string
	STTProvider    string
	GoogleAPIKey   string
	OpenAIAPIKey   string
	VoiceName      string
	VoiceLanguage  string
	VoiceGender    string
	SpeakingRate   float64
	AudioCacheSize int
	AudioCacheTTL  time.Duration
	MinSpeakLength int

	// Voice capture
	RestartDelay    time.Duration
	PlayerCommand   string
	RecorderCommand string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("no .env file loaded", "error", err)
		}
	}

	cfg := &Config{
		BackendURL:      getEnv("COSM_BACKEND_URL", "http://localhost:8000"),
		AppName:         getEnv("COSM_APP_NAME", "cosm"),
		UserID:          getEnv("COSM_USER_ID", "console"),
		PrimaryAgent:    getEnv("COSM_PRIMARY_AGENT", "liminal_market_opportunity_coordinator"),
		UserAuthor:      getEnv("COSM_USER_AUTHOR", "user"),
		RendererURL:     getEnv("COSM_RENDERER_URL", "http://localhost:8080"),
		SynthesisURL:    os.Getenv("COSM_SYNTHESIS_URL"),
		TTSProvider:     getEnv("COSM_TTS_PROVIDER", "google"),
		STTProvider:     getEnv("COSM_STT_PROVIDER", "whisper"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		VoiceName:       getEnv("COSM_VOICE_NAME", "en-US-Neural2-F"),
		VoiceLanguage:   getEnv("COSM_VOICE_LANGUAGE", "en-US"),
		VoiceGender:     getEnv("COSM_VOICE_GENDER", "FEMALE"),
		PlayerCommand:   os.Getenv("COSM_PLAYER_COMMAND"),
		RecorderCommand: os.Getenv("COSM_RECORDER_COMMAND"),
	}

	var err error
	if cfg.DuplicateWindow, err = getDuration("COSM_DUPLICATE_WINDOW", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.AudioCacheTTL, err = getDuration("COSM_AUDIO_CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.RestartDelay, err = getDuration("COSM_RESTART_DELAY", 800*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.AudioCacheSize, err = getInt("COSM_AUDIO_CACHE_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.MinSpeakLength, err = getInt("COSM_MIN_SPEAK_LENGTH", 10); err != nil {
		return nil, err
	}
	if cfg.SpeakingRate, err = getFloat("COSM_SPEAKING_RATE", 1.0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getDuration accepts Go duration syntax ("2s", "800ms") or a bare number of
// seconds, matching how the backend's .env expresses windows.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid %s: %q is neither a duration nor seconds", key, v)
}
