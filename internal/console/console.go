// Package console is the top-level session controller: it owns the agent
// backend client, the reconciled transcript, the voice pipeline, and the
// active session, and drives the send -> stream -> reconcile -> render ->
// speak flow.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"cosmconsole/internal/agentapi"
	"cosmconsole/internal/logger"
	"cosmconsole/internal/renderer"
	"cosmconsole/internal/transcript"
	"cosmconsole/internal/voice"
	"cosmconsole/pkg/cosmtypes"
)

// Config carries the identities and windows the console needs; everything
// else is injected as a collaborator.
type Config struct {
	AppName         string
	UserID          string
	PrimaryAgent    string
	UserAuthor      string
	DuplicateWindow time.Duration
}

// Console wires the transcript, the voice pipeline, and the backend clients
// into one interactive session.
type Console struct {
	mu  sync.Mutex
	cfg Config

	api        *agentapi.Client
	renderSvc  *renderer.Client
	transcript *transcript.Transcript
	speaker    *voice.Speaker
	controller *voice.Controller

	out    io.Writer
	styles styles

	session   *cosmtypes.Session
	runCancel context.CancelFunc
	busy      bool

	// progressShown tracks whether the synthetic progress indicator has
	// been printed for the current pending turn.
	progressShown bool
}

// Option configures a Console.
type Option func(*Console)

// WithOutput redirects rendered output (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(c *Console) { c.out = w }
}

// WithSpeaker attaches a synthesis pipeline.
func WithSpeaker(s *voice.Speaker) Option {
	return func(c *Console) { c.speaker = s }
}

// WithController attaches a capture controller.
func WithController(ctrl *voice.Controller) Option {
	return func(c *Console) { c.controller = ctrl }
}

// WithRenderer attaches a landing-page renderer client.
func WithRenderer(r *renderer.Client) Option {
	return func(c *Console) { c.renderSvc = r }
}

// New creates a console over the given backend client.
func New(cfg Config, api *agentapi.Client, opts ...Option) *Console {
	c := &Console{
		cfg: cfg,
		api: api,
		out: os.Stdout,
		transcript: transcript.New(transcript.Config{
			UserAuthor:      cfg.UserAuthor,
			PrimaryAuthor:   cfg.PrimaryAgent,
			DuplicateWindow: cfg.DuplicateWindow,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.styles = newStyles()
	return c
}

// Speaker returns the attached synthesis pipeline, or nil.
func (c *Console) Speaker() *voice.Speaker { return c.speaker }

// Controller returns the attached capture controller, or nil.
func (c *Console) Controller() *voice.Controller { return c.controller }

// Transcript returns the reconciled transcript.
func (c *Console) Transcript() *transcript.Transcript { return c.transcript }

// Session returns the active session, or nil.
func (c *Console) Session() *cosmtypes.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Busy reports whether a run is in flight; the send affordance is disabled
// while true.
func (c *Console) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// EnsureSession makes sure an active session exists: the most recent existing
// session is resumed, and on a load failure or an empty list a fresh session
// is created instead of failing hard, keeping the console usable.
func (c *Console) EnsureSession(ctx context.Context) error {
	sessions, err := c.api.ListSessions(ctx)
	if err != nil {
		logger.Warn("session list failed, starting fresh", "error", err)
		return c.createSession(ctx)
	}
	newest := agentapi.MostRecent(sessions)
	if newest == nil {
		return c.createSession(ctx)
	}
	return c.adoptSession(newest)
}

// UseApp re-targets the console at a different app served by the same
// backend. Apps do not share sessions, so the in-flight run is abandoned and
// a session under the new app is established.
func (c *Console) UseApp(ctx context.Context, appName string) error {
	apps, err := c.api.ListApps(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, app := range apps {
		if app == appName {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("backend does not serve app %q", appName)
	}

	c.abandonRun()
	c.mu.Lock()
	c.api = c.api.ForApp(appName)
	c.cfg.AppName = appName
	c.session = nil
	c.mu.Unlock()
	return c.EnsureSession(ctx)
}

// NewSession abandons the current session and creates a fresh one.
func (c *Console) NewSession(ctx context.Context) error {
	c.abandonRun()
	return c.createSession(ctx)
}

// SwitchSession cancels any in-flight run, clears voice state, and loads the
// named session's history. The audio cache is content-addressed, so it is
// deliberately kept across switches.
func (c *Console) SwitchSession(ctx context.Context, sessionID string) error {
	c.abandonRun()
	session, err := c.api.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return c.adoptSession(session)
}

// DeleteSession removes a session; deleting the active one creates a fresh
// replacement.
func (c *Console) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.api.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	c.mu.Lock()
	active := c.session != nil && c.session.ID == sessionID
	c.mu.Unlock()
	if active {
		c.abandonRun()
		return c.createSession(ctx)
	}
	return nil
}

// Send dispatches one user message through the streaming run endpoint and
// reconciles the resulting events into the transcript as they arrive. Typed
// and spoken input both land here. Send is synchronous; it returns once the
// stream closes.
func (c *Console) Send(text string) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("a run is already in flight")
	}
	if c.session == nil {
		c.mu.Unlock()
		return fmt.Errorf("no active session")
	}
	sessionID := c.session.ID
	ctx, cancel := context.WithCancel(context.Background())
	c.busy = true
	c.runCancel = cancel
	c.progressShown = false
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.runCancel = nil
		c.mu.Unlock()
	}()

	// The backend does not echo the user's own message back over the
	// stream, so it enters the transcript locally.
	userEvent := cosmtypes.AgentEvent{
		Author:    c.cfg.UserAuthor,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Content: &cosmtypes.Content{
			Role:  "user",
			Parts: []cosmtypes.Part{{Text: text}},
		},
	}
	if c.transcript.Apply(userEvent) {
		if entry, ok := c.transcript.Last(); ok {
			c.renderEntry(entry)
		}
	}

	stream, err := c.api.Run(ctx, sessionID, text)
	if err != nil {
		c.printError(fmt.Sprintf("send failed: %v", err))
		return err
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		c.applyEvent(stream.Current())
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			logger.Debug("run cancelled", "session", sessionID)
			return nil
		}
		c.printError(fmt.Sprintf("stream error: %v", err))
		return err
	}
	return nil
}

// applyEvent reconciles one streamed event and drives rendering plus the
// speech trigger: only the primary responder's finalized replies are
// synthesized.
func (c *Console) applyEvent(ev cosmtypes.AgentEvent) {
	changed := c.transcript.Apply(ev)
	if !changed {
		return
	}

	if ev.Partial {
		c.renderProgress(ev.Author)
		return
	}

	entry, ok := c.transcript.Last()
	if !ok {
		return
	}
	c.renderEntry(entry)

	if entry.Author == c.cfg.PrimaryAgent && entry.Text != "" && c.speaker != nil {
		c.speaker.Speak(entry.Text)
	}
}

// abandonRun cancels the in-flight run and clears ephemeral voice state.
func (c *Console) abandonRun() {
	c.mu.Lock()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	c.mu.Unlock()

	if c.controller != nil {
		c.controller.StopListening()
	}
	if c.speaker != nil {
		c.speaker.Interrupt()
	}
}

// Shutdown cancels any in-flight run and waits for the voice pipeline to
// drain so no playback or capture goroutine outlives the console.
func (c *Console) Shutdown() {
	c.abandonRun()
	if c.speaker != nil {
		c.speaker.Wait()
	}
	if c.controller != nil {
		c.controller.Wait()
	}
}

func (c *Console) createSession(ctx context.Context) error {
	session, err := c.api.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return c.adoptSession(session)
}

func (c *Console) adoptSession(session *cosmtypes.Session) error {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.transcript.Reset()
	c.transcript.LoadHistory(session.Events)
	logger.Info("session active", "session", session.ID, "events", len(session.Events))
	return nil
}
