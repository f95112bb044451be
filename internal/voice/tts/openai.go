package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cosmconsole/internal/logger"
	"cosmconsole/pkg/cosmtypes"
)

// OpenAISynthesizer synthesizes speech through the OpenAI speech API.
type OpenAISynthesizer struct {
	apiKey string
	client *openai.Client
}

// NewOpenAISynthesizer creates an OpenAI synthesizer with lazy initialization.
// The actual OpenAI client is created only when the first request is made.
func NewOpenAISynthesizer(apiKey string) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		apiKey: apiKey,
		client: nil, // Will be initialized lazily
	}
}

// Name returns the provider name.
func (s *OpenAISynthesizer) Name() string { return "openai" }

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (s *OpenAISynthesizer) initializeClientIfNeeded() error {
	if s.client != nil {
		return nil
	}
	if s.apiKey == "" {
		return ErrNoAPIKey
	}
	client := openai.NewClient(option.WithAPIKey(s.apiKey))
	s.client = &client
	logger.Debug("OpenAI speech client initialized", "provider", "openai")
	return nil
}

// Synthesize sends the text to the speech API and returns MP3 audio bytes.
// The voice name selects the OpenAI voice; SSML input is not supported by
// this provider, so callers pass plain normalized text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, voice cosmtypes.VoiceConfig) ([]byte, error) {
	if err := s.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI speech client: %w", err)
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice.Name),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if voice.SpeakingRate > 0 {
		params.Speed = openai.Float(voice.SpeakingRate)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech response: %w", err)
	}
	logger.Debug("synthesis response", "provider", "openai", "bytes", len(audio))
	return audio, nil
}
