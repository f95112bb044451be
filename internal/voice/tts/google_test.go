package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosmconsole/pkg/cosmtypes"
)

var testVoice = cosmtypes.VoiceConfig{
	Provider:     "google",
	Name:         "en-US-Neural2-F",
	LanguageCode: "en-US",
	Gender:       "FEMALE",
	SpeakingRate: 1.1,
	Encoding:     "MP3",
	SampleRate:   24000,
}

func TestGoogleEndpointRequestShape(t *testing.T) {
	var gotBody map[string]interface{}
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Goog-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	g := NewGoogleEndpoint(srv.URL, "secret")
	audio, err := g.Synthesize(context.Background(), "hello world", testVoice)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "secret", gotKey)

	input := gotBody["input"].(map[string]interface{})
	assert.Equal(t, "hello world", input["text"])
	voice := gotBody["voice"].(map[string]interface{})
	assert.Equal(t, "en-US", voice["languageCode"])
	assert.Equal(t, "en-US-Neural2-F", voice["name"])
	assert.Equal(t, "FEMALE", voice["ssmlGender"])
	audioConfig := gotBody["audioConfig"].(map[string]interface{})
	assert.Equal(t, "MP3", audioConfig["audioEncoding"])
	assert.Equal(t, float64(24000), audioConfig["sampleRateHertz"])
	assert.Equal(t, 1.1, audioConfig["speakingRate"])
}

func TestGoogleEndpointSSMLInput(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	g := NewGoogleEndpoint(srv.URL, "")
	_, err := g.Synthesize(context.Background(), "<speak>hi</speak>", testVoice)
	require.NoError(t, err)

	input := gotBody["input"].(map[string]interface{})
	assert.Equal(t, "<speak>hi</speak>", input["ssml"])
	assert.NotContains(t, input, "text")
}

func TestGoogleEndpointBase64Envelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("decoded-audio")),
		})
	}))
	defer srv.Close()

	g := NewGoogleEndpoint(srv.URL, "")
	audio, err := g.Synthesize(context.Background(), "hi there", testVoice)
	require.NoError(t, err)
	assert.Equal(t, []byte("decoded-audio"), audio)
}

func TestGoogleEndpointErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "quota exceeded")
	}))
	defer srv.Close()

	g := NewGoogleEndpoint(srv.URL, "")
	_, err := g.Synthesize(context.Background(), "hi", testVoice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGoogleEndpointContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGoogleEndpoint(srv.URL, "")
	_, err := g.Synthesize(ctx, "hi", testVoice)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAISynthesizerRequiresKey(t *testing.T) {
	s := NewOpenAISynthesizer("")
	_, err := s.Synthesize(context.Background(), "hi", testVoice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
