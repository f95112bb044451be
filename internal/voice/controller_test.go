package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder returns canned audio, optionally blocking until released.
type fakeRecorder struct {
	audio   []byte
	err     error
	release chan struct{}
}

func (f *fakeRecorder) Record(ctx context.Context) ([]byte, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

// fakeTranscriber returns canned text.
type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ []byte) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return f.text, f.err
}

// sentCollector gathers dispatched messages.
type sentCollector struct {
	mu   sync.Mutex
	msgs []string
}

func (s *sentCollector) send(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
}

func (s *sentCollector) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func TestControllerDispatchesFinalTranscript(t *testing.T) {
	sent := &sentCollector{}
	c := NewController(
		&fakeRecorder{audio: []byte("wav")},
		&fakeTranscriber{text: "find me a market gap"},
		nil, sent.send, time.Millisecond)

	c.StartListening()
	c.Wait()

	assert.Equal(t, []string{"find me a market gap"}, sent.all())
	assert.False(t, c.Listening())
	assert.Empty(t, c.CurrentTranscript())
}

func TestControllerStartIsNoOpWhileListening(t *testing.T) {
	release := make(chan struct{})
	sent := &sentCollector{}
	c := NewController(
		&fakeRecorder{audio: []byte("wav"), release: release},
		&fakeTranscriber{text: "once"},
		nil, sent.send, time.Millisecond)

	c.StartListening()
	c.StartListening()
	assert.True(t, c.Listening())
	assert.Equal(t, "Listening...", c.CurrentTranscript())

	close(release)
	c.Wait()

	assert.Equal(t, []string{"once"}, sent.all(), "double start must capture exactly once")
}

func TestControllerStopDiscardsInterimTranscript(t *testing.T) {
	sent := &sentCollector{}
	c := NewController(
		&fakeRecorder{audio: []byte("wav"), release: make(chan struct{})},
		&fakeTranscriber{text: "should never be sent"},
		nil, sent.send, time.Millisecond)

	c.StartListening()
	c.StopListening()
	c.Wait()

	assert.Empty(t, sent.all())
	assert.False(t, c.Listening())
	assert.Empty(t, c.CurrentTranscript())
}

func TestControllerRecognitionErrorReturnsToIdle(t *testing.T) {
	sent := &sentCollector{}
	c := NewController(
		&fakeRecorder{err: errors.New("mic unavailable")},
		&fakeTranscriber{},
		nil, sent.send, time.Millisecond)

	c.StartListening()
	c.Wait()

	assert.False(t, c.Listening())
	assert.Empty(t, sent.all())
}

func TestMutualExclusionStartListeningStopsPlayback(t *testing.T) {
	synth := &fakeSynthesizer{}
	player := &blockingPlayer{release: make(chan struct{})}
	speaker := NewSpeaker(synth, player, NewAudioCache(10, 0), speakerVoice)

	c := NewController(
		&fakeRecorder{audio: []byte("wav"), release: make(chan struct{})},
		&fakeTranscriber{},
		speaker, func(string) {}, time.Millisecond)

	speaker.Speak("a reply that will still be playing")
	require.Eventually(t, func() bool { return speaker.Playing() }, time.Second, time.Millisecond)

	c.StartListening()
	assert.False(t, speaker.Playing(), "capture start must cancel playback")
	assert.True(t, c.Listening())

	c.StopListening()
	c.Wait()
	speaker.Wait()
}

func TestMutualExclusionSpeakStopsCapture(t *testing.T) {
	synth := &fakeSynthesizer{}
	player := &fakePlayer{}
	speaker := NewSpeaker(synth, player, NewAudioCache(10, 0), speakerVoice)

	c := NewController(
		&fakeRecorder{audio: []byte("wav"), release: make(chan struct{})},
		&fakeTranscriber{},
		speaker, func(string) {}, time.Millisecond)

	c.StartListening()
	require.True(t, c.Listening())

	speaker.Speak("assistant reply long enough to speak")
	speaker.Wait()
	c.Wait()

	assert.False(t, c.Listening(), "speaking must stop capture first")
	assert.Equal(t, 1, player.count())
}

func TestConversationModeRestartsAfterPlayback(t *testing.T) {
	synth := &fakeSynthesizer{}
	player := &fakePlayer{}
	speaker := NewSpeaker(synth, player, NewAudioCache(10, 0), speakerVoice)

	var captures atomic.Int64
	c := NewController(
		&countingRecorder{inner: &fakeRecorder{audio: []byte("wav")}, count: &captures},
		&fakeTranscriber{}, // empty transcript: nothing sent
		speaker, func(string) {}, 5*time.Millisecond)
	c.SetConversationMode(true)

	speaker.Speak("assistant reply long enough to speak")
	speaker.Wait()

	require.Eventually(t, func() bool { return captures.Load() >= 1 }, time.Second, time.Millisecond,
		"conversation mode must restart capture after playback")
	c.Wait()
}

func TestConversationModeDisabledNoRestart(t *testing.T) {
	synth := &fakeSynthesizer{}
	player := &fakePlayer{}
	speaker := NewSpeaker(synth, player, NewAudioCache(10, 0), speakerVoice)

	var captures atomic.Int64
	_ = NewController(
		&countingRecorder{inner: &fakeRecorder{audio: []byte("wav")}, count: &captures},
		&fakeTranscriber{},
		speaker, func(string) {}, time.Millisecond)

	speaker.Speak("assistant reply long enough to speak")
	speaker.Wait()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), captures.Load())
}

// blockingPlayer stays "playing" until released or cancelled.
type blockingPlayer struct {
	release chan struct{}
}

func (b *blockingPlayer) Play(ctx context.Context, _ []byte) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// countingRecorder counts Record calls before delegating.
type countingRecorder struct {
	inner *fakeRecorder
	count *atomic.Int64
}

func (c *countingRecorder) Record(ctx context.Context) ([]byte, error) {
	c.count.Add(1)
	return c.inner.Record(ctx)
}
