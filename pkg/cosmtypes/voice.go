package cosmtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VoiceConfig selects a synthesis voice and its audio parameters. It is part
// of the audio cache key: identical text synthesized with a different voice is
// a different cache entry.
type VoiceConfig struct {
	Provider     string  `yaml:"provider"`
	Name         string  `yaml:"name"`
	LanguageCode string  `yaml:"language"`
	Gender       string  `yaml:"gender"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	Encoding     string  `yaml:"encoding"`
	SampleRate   int     `yaml:"sample_rate"`
}

// CacheKey derives the audio cache key for text synthesized with this voice:
// the first 16 hex characters of a SHA-256 over the text and voice parameters.
func (v VoiceConfig) CacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	fmt.Fprintf(h, "|%s|%s|%s|%s|%g|%s|%d",
		v.Provider, v.Name, v.LanguageCode, v.Gender, v.SpeakingRate, v.Encoding, v.SampleRate)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
