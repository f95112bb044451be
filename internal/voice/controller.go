package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"cosmconsole/internal/logger"
	"cosmconsole/internal/voice/stt"
)

// DefaultRestartDelay debounces conversation-mode capture restart so the
// microphone does not pick up the tail of the assistant's own audio.
const DefaultRestartDelay = 800 * time.Millisecond

// Controller wraps speech capture into explicit start/stop/listening states
// with conversation-mode auto-restart. A finalized transcript is dispatched
// through the send callback, making spoken input indistinguishable from
// typed input downstream.
type Controller struct {
	mu          sync.Mutex
	recorder    stt.Recorder
	transcriber stt.Transcriber
	speaker     *Speaker
	send        func(string)
	log         *log.Logger

	restartDelay time.Duration

	listening         bool
	conversationMode  bool
	currentTranscript string

	cancel       context.CancelFunc
	restartTimer *time.Timer

	wg sync.WaitGroup
}

// NewController creates a capture controller and wires the mutual-exclusion
// and conversation-mode hooks into the speaker: starting an utterance stops
// capture, and finished playback restarts capture when conversation mode is
// on.
func NewController(recorder stt.Recorder, transcriber stt.Transcriber, speaker *Speaker, send func(string), restartDelay time.Duration) *Controller {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}
	c := &Controller{
		recorder:     recorder,
		transcriber:  transcriber,
		speaker:      speaker,
		send:         send,
		restartDelay: restartDelay,
		log:          logger.NewStyledLogger("Voice"),
	}
	if speaker != nil {
		speaker.SetCaptureInterrupt(c.StopListening)
		speaker.SetPlaybackDone(c.handlePlaybackDone)
	}
	return c
}

// Listening reports whether capture is active.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// CurrentTranscript returns the interim display text while capturing. Batch
// transcription yields no word-by-word hypotheses, so this is a placeholder
// until the final transcript arrives.
func (c *Controller) CurrentTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTranscript
}

// ConversationMode reports whether hands-free auto-restart is enabled.
func (c *Controller) ConversationMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationMode
}

// SetConversationMode toggles hands-free mode. Disabling it also stops any
// pending restart timer.
func (c *Controller) SetConversationMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationMode = enabled
	if !enabled && c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

// StartListening begins capture. No-op when already listening. Any active
// playback or synthesis is cancelled first so the microphone cannot capture
// the assistant's own voice.
func (c *Controller) StartListening() {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return
	}
	if c.speaker != nil {
		c.speaker.Interrupt()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.listening = true
	c.currentTranscript = "Listening..."
	c.wg.Add(1)
	c.mu.Unlock()

	go c.capture(ctx)
}

// StopListening is explicit user cancellation: capture stops and any interim
// transcript is discarded without sending. Also stops a pending
// conversation-mode restart.
func (c *Controller) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.listening = false
	c.currentTranscript = ""
}

// Wait blocks until any in-flight capture goroutine has finished. Used by
// tests and by shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) capture(ctx context.Context) {
	defer c.wg.Done()

	audio, err := c.recorder.Record(ctx)

	var text string
	if err == nil && len(audio) > 0 {
		c.setTranscript("Transcribing...")
		text, err = c.transcriber.Transcribe(ctx, audio)
	}

	c.mu.Lock()
	c.listening = false
	c.currentTranscript = ""
	c.cancel = nil
	send := c.send
	c.mu.Unlock()

	if err != nil {
		// A user-initiated abort is expected and silent; anything else is
		// logged and the controller is already back at idle. Conversation
		// mode's restart timer is the only recovery path.
		if !errors.Is(err, context.Canceled) {
			c.log.Error("speech recognition failed", "error", err)
		}
		return
	}

	if text != "" && send != nil {
		send(text)
	}
}

// handlePlaybackDone re-enters listening after assistant audio finishes, when
// conversation mode is enabled and capture is not already active. The fixed
// delay debounces against environmental echo.
func (c *Controller) handlePlaybackDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conversationMode || c.listening {
		return
	}
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartTimer = time.AfterFunc(c.restartDelay, c.StartListening)
}

func (c *Controller) setTranscript(text string) {
	c.mu.Lock()
	c.currentTranscript = text
	c.mu.Unlock()
}
