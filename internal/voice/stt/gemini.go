package stt

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cosmconsole/internal/logger"
)

// geminiTranscriptionPrompt instructs the model to return only the spoken
// words, with no commentary.
const geminiTranscriptionPrompt = "Transcribe this audio recording exactly. " +
	"Return only the spoken words with normal punctuation, nothing else. " +
	"If the audio contains no speech, return an empty response."

// GeminiTranscriber transcribes captured audio by sending it inline to a
// Gemini model.
type GeminiTranscriber struct {
	apiKey string
	model  string
	client *genai.Client
}

// NewGeminiTranscriber creates a Gemini transcriber with lazy initialization.
// The actual Gemini client is created only when the first request is made.
func NewGeminiTranscriber(apiKey string) *GeminiTranscriber {
	return &GeminiTranscriber{
		apiKey: apiKey,
		model:  "gemini-2.5-flash",
		client: nil, // Will be initialized lazily
	}
}

// Name returns the provider name.
func (g *GeminiTranscriber) Name() string { return "gemini" }

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (g *GeminiTranscriber) initializeClientIfNeeded(ctx context.Context) error {
	if g.client != nil {
		return nil
	}
	if g.apiKey == "" {
		return ErrNoAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: g.apiKey})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	logger.Debug("Gemini transcription client initialized", "provider", "gemini")
	return nil
}

// Transcribe sends WAV audio inline to the model and returns the spoken text.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := g.initializeClientIfNeeded(ctx); err != nil {
		return "", fmt.Errorf("failed to initialize Gemini transcriber: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(geminiTranscriptionPrompt),
		genai.NewPartFromBytes(audio, "audio/wav"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	logger.Debug("transcription complete", "provider", "gemini", "chars", len(text))
	return text, nil
}
