package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cosmconsole/internal/logger"
	"cosmconsole/pkg/cosmtypes"
)

// DefaultGoogleEndpoint is Google's hosted text-to-speech synthesis URL.
const DefaultGoogleEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// GoogleEndpoint synthesizes speech through a Google-shaped text-to-speech
// HTTP endpoint: POST {input:{text|ssml}, voice:{languageCode,name,
// ssmlGender}, audioConfig:{audioEncoding,sampleRateHertz,speakingRate}}.
// The response is either raw audio bytes with an audio Content-Type or the
// JSON envelope {audioContent: <base64>}.
type GoogleEndpoint struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewGoogleEndpoint creates a client for the given synthesis endpoint. The
// API key is passed as the X-Goog-Api-Key header when set; hosted proxy
// deployments that hold their own credentials accept an empty key.
func NewGoogleEndpoint(endpoint, apiKey string) *GoogleEndpoint {
	return &GoogleEndpoint{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{},
	}
}

// NewGoogleEndpointWithHTTPClient creates a client with a caller-supplied
// HTTP client, used by tests.
func NewGoogleEndpointWithHTTPClient(endpoint, apiKey string, httpClient *http.Client) *GoogleEndpoint {
	g := NewGoogleEndpoint(endpoint, apiKey)
	g.http = httpClient
	return g
}

// Name returns the provider name.
func (g *GoogleEndpoint) Name() string { return "google" }

// Synthesize posts text to the endpoint and returns the decoded audio bytes.
func (g *GoogleEndpoint) Synthesize(ctx context.Context, text string, voice cosmtypes.VoiceConfig) ([]byte, error) {
	input := map[string]string{"text": text}
	if strings.HasPrefix(strings.TrimSpace(text), "<speak>") {
		input = map[string]string{"ssml": text}
	}

	encoding := voice.Encoding
	if encoding == "" {
		encoding = "MP3"
	}
	audioConfig := map[string]interface{}{
		"audioEncoding": encoding,
	}
	if voice.SampleRate > 0 {
		audioConfig["sampleRateHertz"] = voice.SampleRate
	}
	if voice.SpeakingRate > 0 {
		audioConfig["speakingRate"] = voice.SpeakingRate
	}

	payload := map[string]interface{}{
		"input": input,
		"voice": map[string]string{
			"languageCode": voice.LanguageCode,
			"name":         voice.Name,
			"ssmlGender":   voice.Gender,
		},
		"audioConfig": audioConfig,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("synthesis endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
		logger.Debug("synthesis response", "provider", "google", "bytes", len(body))
		return body, nil
	}

	var envelope struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected synthesis response: %w", err)
	}
	if envelope.AudioContent == "" {
		return nil, fmt.Errorf("synthesis response carried no audio")
	}
	audio, err := base64.StdEncoding.DecodeString(envelope.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesis audio: %w", err)
	}
	logger.Debug("synthesis response", "provider", "google", "bytes", len(audio))
	return audio, nil
}
