package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cosmconsole/internal/logger"
)

// WhisperTranscriber transcribes captured audio through the OpenAI audio
// transcription API.
type WhisperTranscriber struct {
	apiKey string
	client *openai.Client
}

// NewWhisperTranscriber creates a Whisper transcriber with lazy
// initialization. The actual OpenAI client is created only when the first
// request is made.
func NewWhisperTranscriber(apiKey string) *WhisperTranscriber {
	return &WhisperTranscriber{
		apiKey: apiKey,
		client: nil, // Will be initialized lazily
	}
}

// Name returns the provider name.
func (w *WhisperTranscriber) Name() string { return "whisper" }

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (w *WhisperTranscriber) initializeClientIfNeeded() error {
	if w.client != nil {
		return nil
	}
	if w.apiKey == "" {
		return ErrNoAPIKey
	}
	client := openai.NewClient(option.WithAPIKey(w.apiKey))
	w.client = &client
	logger.Debug("Whisper client initialized", "provider", "whisper")
	return nil
}

// Transcribe sends WAV audio to the transcription API and returns the text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := w.initializeClientIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to initialize Whisper client: %w", err)
	}

	transcription, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(audio), "capture.wav", "audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	text := strings.TrimSpace(transcription.Text)
	logger.Debug("transcription complete", "provider", "whisper", "chars", len(text))
	return text, nil
}
