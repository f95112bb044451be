// Package tts provides speech synthesizers for the voice pipeline: a client
// for a Google-shaped text-to-speech HTTP endpoint and one for the OpenAI
// speech API.
package tts

import (
	"context"
	"errors"

	"cosmconsole/pkg/cosmtypes"
)

// ErrNoAPIKey indicates the synthesizer's provider credential is missing.
var ErrNoAPIKey = errors.New("synthesis API key not configured")

// Synthesizer converts text (or SSML) into playable audio bytes. Synthesize
// must honor ctx cancellation and must not return partial audio on error.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice cosmtypes.VoiceConfig) ([]byte, error)
}
