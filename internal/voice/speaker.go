package voice

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"cosmconsole/internal/logger"
	"cosmconsole/internal/voice/tts"
	"cosmconsole/pkg/cosmtypes"
)

// DefaultMinSpeakLength filters out fragments too short to be worth
// synthesizing; they usually indicate partial or noise input.
const DefaultMinSpeakLength = 10

// Speaker is the speech synthesis pipeline: guard, cache lookup, synthesis,
// playback. Only one utterance may be active; starting a new one cancels the
// previous one. The audio cache and player are owned by the console and
// shared process-wide.
type Speaker struct {
	mu     sync.Mutex
	synth  tts.Synthesizer
	player Player
	cache  *AudioCache
	voice  cosmtypes.VoiceConfig
	log    *log.Logger

	minLength int
	useSSML   bool
	muted     bool

	synthesizing bool
	playing      bool

	// cancel aborts the in-flight utterance; one cancellation context per
	// logical operation replaces "is this still current" flags.
	cancel context.CancelFunc

	// onPlaybackDone fires after an utterance finishes playing, driving
	// conversation-mode restart. beforeSpeak stops capture before playback
	// begins; capture and playback are mutually exclusive so the microphone
	// never hears the assistant's own voice.
	onPlaybackDone func()
	beforeSpeak    func()

	wg sync.WaitGroup
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithMinSpeakLength overrides the minimum text length guard.
func WithMinSpeakLength(n int) SpeakerOption {
	return func(s *Speaker) { s.minLength = n }
}

// WithSSML routes synthesis input through SSML with sentence pauses.
// Only meaningful for providers that accept SSML.
func WithSSML() SpeakerOption {
	return func(s *Speaker) { s.useSSML = true }
}

// NewSpeaker creates a synthesis pipeline over the given provider, player,
// and shared cache.
func NewSpeaker(synth tts.Synthesizer, player Player, cache *AudioCache, voice cosmtypes.VoiceConfig, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		synth:     synth,
		player:    player,
		cache:     cache,
		voice:     voice,
		minLength: DefaultMinSpeakLength,
		log:       logger.NewStyledLogger("Voice"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPlaybackDone registers the hook fired after playback completes.
func (s *Speaker) SetPlaybackDone(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPlaybackDone = fn
}

// SetCaptureInterrupt registers the hook that stops active speech capture
// before an utterance starts.
func (s *Speaker) SetCaptureInterrupt(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSpeak = fn
}

// SetMuted toggles the mute guard. Muting also interrupts any active
// utterance.
func (s *Speaker) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	if muted {
		s.Interrupt()
	}
}

// Muted reports the mute guard.
func (s *Speaker) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Synthesizing reports whether a synthesis request is in flight.
func (s *Speaker) Synthesizing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthesizing
}

// Playing reports whether audio is currently playing.
func (s *Speaker) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Speak synthesizes and plays text asynchronously. Guards: muted, empty, or
// below the minimum length. Any previous utterance is cancelled first; a
// synthesis or playback failure leaves the chat flow silent, never blocked.
func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.muted || text == "" || len(text) < s.minLength {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	beforeSpeak := s.beforeSpeak
	s.wg.Add(1)
	s.mu.Unlock()

	if beforeSpeak != nil {
		beforeSpeak()
	}

	go s.run(ctx, text)
}

// Interrupt cancels the in-flight utterance, if any. The cache is never
// written after an interrupt, and the synthesizing/playing flags reset.
func (s *Speaker) Interrupt() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.synthesizing = false
	s.playing = false
	s.mu.Unlock()
}

// Wait blocks until any in-flight utterance goroutine has finished. Used by
// tests and by shutdown.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

func (s *Speaker) run(ctx context.Context, text string) {
	defer s.wg.Done()

	key := s.voice.CacheKey(text)
	if audio, ok := s.cache.Get(key); ok {
		s.log.Debug("audio cache hit", "voice", s.voice.Name, "key", key)
		s.play(ctx, audio)
		return
	}

	input := ForSpeech(text)
	if s.useSSML {
		input = ToSSML(text)
	}

	s.setSynthesizing(true)
	audio, err := s.synth.Synthesize(ctx, input, s.voice)
	s.setSynthesizing(false)

	if err != nil {
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			s.log.Error("synthesis failed", "voice", s.voice.Name, "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		// Aborted mid-flight; never cache a cancelled result.
		return
	}

	s.cache.Set(key, audio)
	s.play(ctx, audio)
}

func (s *Speaker) play(ctx context.Context, audio []byte) {
	if ctx.Err() != nil {
		return
	}

	s.setPlaying(true)
	err := s.player.Play(ctx, audio)
	s.setPlaying(false)

	if err != nil {
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			s.log.Error("playback failed", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	done := s.onPlaybackDone
	s.mu.Unlock()
	if done != nil {
		done()
	}
}

func (s *Speaker) setSynthesizing(v bool) {
	s.mu.Lock()
	s.synthesizing = v
	s.mu.Unlock()
}

func (s *Speaker) setPlaying(v bool) {
	s.mu.Lock()
	s.playing = v
	s.mu.Unlock()
}
