package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosmconsole/internal/agentapi"
	"cosmconsole/internal/renderer"
	"cosmconsole/internal/testutils"
	"cosmconsole/internal/voice"
	"cosmconsole/pkg/cosmtypes"
)

const (
	testPrimary = "liminal_market_opportunity_coordinator"
	testUser    = "user"
)

// fakeBackend is an in-memory agent backend: session CRUD plus a scripted
// SSE run endpoint.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]*cosmtypes.Session
	nextID   int

	// frames is the scripted SSE payload for the next run.
	frames []string

	listErr bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sessions: map[string]*cosmtypes.Session{}}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/test-app/users/tester/sessions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			b.nextID++
			s := &cosmtypes.Session{
				ID:                fmt.Sprintf("s-%d", b.nextID),
				AppName:           "test-app",
				UserID:            "tester",
				CreationTimestamp: float64(b.nextID),
			}
			b.sessions[s.ID] = s
			_ = json.NewEncoder(w).Encode(s)
		case http.MethodGet:
			if b.listErr {
				http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
				return
			}
			out := make([]*cosmtypes.Session, 0, len(b.sessions))
			for _, s := range b.sessions {
				out = append(out, s)
			}
			_ = json.NewEncoder(w).Encode(out)
		}
	})
	mux.HandleFunc("/apps/test-app/users/tester/sessions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/apps/test-app/users/tester/sessions/")
		b.mu.Lock()
		defer b.mu.Unlock()
		s, ok := b.sessions[id]
		if !ok {
			http.Error(w, `{"detail":"session not found"}`, http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(s)
		case http.MethodDelete:
			delete(b.sessions, id)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		b.mu.Lock()
		frames := b.frames
		b.mu.Unlock()
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
	})
	return mux
}

func (b *fakeBackend) script(frames ...string) {
	b.mu.Lock()
	b.frames = frames
	b.mu.Unlock()
}

func eventJSON(t *testing.T, author, text string, invocation string, partial bool) string {
	t.Helper()
	ev := map[string]interface{}{
		"id":           fmt.Sprintf("e-%s-%d", author, time.Now().UnixNano()),
		"invocationId": invocation,
		"author":       author,
		"partial":      partial,
		"timestamp":    float64(time.Now().UnixNano()) / float64(time.Second),
		"content": map[string]interface{}{
			"role":  "model",
			"parts": []map[string]string{{"text": text}},
		},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return string(data)
}

type recordingSynth struct {
	calls  atomic.Int32
	mu     sync.Mutex
	inputs []string
}

func (s *recordingSynth) Name() string { return "recording" }

func (s *recordingSynth) Synthesize(_ context.Context, text string, _ cosmtypes.VoiceConfig) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.inputs = append(s.inputs, text)
	s.mu.Unlock()
	return []byte("audio"), nil
}

type noopPlayer struct{}

func (noopPlayer) Play(context.Context, []byte) error { return nil }

func newTestConsole(t *testing.T, backend *fakeBackend) (*Console, *recordingSynth, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	synth := &recordingSynth{}
	speaker := voice.NewSpeaker(synth, noopPlayer{}, voice.NewAudioCache(8, 0),
		cosmtypes.VoiceConfig{Provider: "test", Name: "test-voice"},
		voice.WithMinSpeakLength(1))

	var out bytes.Buffer
	api := agentapi.New(server.URL, "test-app", "tester")
	c := New(Config{
		AppName:      "test-app",
		UserID:       "tester",
		PrimaryAgent: testPrimary,
		UserAuthor:   testUser,
	}, api, WithOutput(&out), WithSpeaker(speaker))
	return c, synth, &out
}

func TestSendReconcilesStreamedFragments(t *testing.T) {
	backend := newFakeBackend()
	backend.script(
		eventJSON(t, testPrimary, "Looking", "inv-1", true),
		eventJSON(t, testPrimary, "Looking into", "inv-1", true),
		eventJSON(t, testPrimary, "Looking into this.", "inv-1", false),
	)
	c, synth, out := newTestConsole(t, backend)

	require.NoError(t, c.EnsureSession(context.Background()))
	require.NoError(t, c.Send("Find me a market gap"))
	c.Speaker().Wait()

	// Three stream fragments converge to one coordinator entry beside the
	// locally applied user message.
	entries := c.Transcript().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, testUser, entries[0].Author)
	assert.Equal(t, "Find me a market gap", entries[0].Text)
	assert.Equal(t, testPrimary, entries[1].Author)
	assert.Equal(t, "Looking into this.", entries[1].Text)
	assert.False(t, entries[1].Streaming)

	// Only the finalized reply is synthesized, exactly once.
	require.Equal(t, int32(1), synth.calls.Load())
	assert.Equal(t, []string{"Looking into this."}, synth.inputs)

	assert.Contains(t, out.String(), "Looking into this.")
	assert.False(t, c.Busy())
}

func TestSendRejectsConcurrentRuns(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)
	require.NoError(t, c.EnsureSession(context.Background()))

	c.mu.Lock()
	c.busy = true
	c.mu.Unlock()
	err := c.Send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in flight")
}

func TestSendWithoutSessionFails(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)
	err := c.Send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active session")
}

func TestNonPrimaryRepliesAreNotSpoken(t *testing.T) {
	backend := newFakeBackend()
	backend.script(
		eventJSON(t, "scout_agent", "checked three sources", "inv-2", false),
		eventJSON(t, testPrimary, "Here is the gap.", "inv-3", false),
	)
	c, synth, _ := newTestConsole(t, backend)
	require.NoError(t, c.EnsureSession(context.Background()))
	require.NoError(t, c.Send("go"))
	c.Speaker().Wait()

	require.Equal(t, int32(1), synth.calls.Load())
	assert.Equal(t, []string{"Here is the gap."}, synth.inputs)
}

func TestEnsureSessionResumesMostRecent(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)

	ctx := context.Background()
	first, err := c.api.CreateSession(ctx)
	require.NoError(t, err)
	second, err := c.api.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, c.EnsureSession(ctx))
	require.NotNil(t, c.Session())
	assert.Equal(t, second.ID, c.Session().ID)
	assert.NotEqual(t, first.ID, c.Session().ID)
}

func TestEnsureSessionDegradesToCreateOnListFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.listErr = true
	c, _, _ := newTestConsole(t, backend)

	require.NoError(t, c.EnsureSession(context.Background()))
	require.NotNil(t, c.Session())
}

func TestSwitchSessionLoadsHistoryAndKeepsAudioCache(t *testing.T) {
	backend := newFakeBackend()
	backend.script(eventJSON(t, testPrimary, "Remembered reply.", "inv-4", false))
	c, synth, _ := newTestConsole(t, backend)
	ctx := context.Background()
	require.NoError(t, c.EnsureSession(ctx))
	first := c.Session().ID
	require.NoError(t, c.Send("hi"))
	c.Speaker().Wait()
	require.Equal(t, int32(1), synth.calls.Load())

	require.NoError(t, c.NewSession(ctx))
	require.NotEqual(t, first, c.Session().ID)
	assert.Zero(t, c.Transcript().Len())

	require.NoError(t, c.SwitchSession(ctx, first))
	assert.Equal(t, first, c.Session().ID)

	// The same reply again is served from the content-addressed audio
	// cache, which survives session switches.
	backend.script(eventJSON(t, testPrimary, "Remembered reply.", "inv-5", false))
	require.NoError(t, c.Send("hi again"))
	c.Speaker().Wait()
	assert.Equal(t, int32(1), synth.calls.Load())
}

func TestSwitchSessionUnknownID(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)
	err := c.SwitchSession(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestDeleteActiveSessionRecreates(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)
	ctx := context.Background()
	require.NoError(t, c.EnsureSession(ctx))
	active := c.Session().ID

	require.NoError(t, c.DeleteSession(ctx, active))
	require.NotNil(t, c.Session())
	assert.NotEqual(t, active, c.Session().ID)
}

func TestDeleteOtherSessionKeepsActive(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)
	ctx := context.Background()
	other, err := c.api.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, c.EnsureSession(ctx))
	require.NoError(t, c.NewSession(ctx))
	active := c.Session().ID

	require.NoError(t, c.DeleteSession(ctx, other.ID))
	assert.Equal(t, active, c.Session().ID)
}

func TestRenderHistoryGroupsBlocks(t *testing.T) {
	backend := newFakeBackend()
	backend.script(
		eventJSON(t, "scout_agent", "scanning listings", "inv-6", false),
		eventJSON(t, testPrimary, "Found two gaps.", "inv-7", false),
	)
	c, _, out := newTestConsole(t, backend)
	require.NoError(t, c.EnsureSession(context.Background()))
	require.NoError(t, c.Send("scan the market"))
	c.Speaker().Wait()

	out.Reset()
	c.RenderHistory()
	got := out.String()

	// User line, then auxiliary agent activity, then the coordinator reply.
	userAt := strings.Index(got, "scan the market")
	agentAt := strings.Index(got, "scout_agent: scanning listings")
	replyAt := strings.Index(got, "Found two gaps.")
	require.GreaterOrEqual(t, userAt, 0, "history output:\n%s", got)
	require.GreaterOrEqual(t, agentAt, 0, "history output:\n%s", got)
	require.GreaterOrEqual(t, replyAt, 0, "history output:\n%s", got)
	assert.Less(t, userAt, agentAt)
	assert.Less(t, agentAt, replyAt)
}

func TestRenderHistoryPendingBlockOutput(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	backend := newFakeBackend()
	backend.script(eventJSON(t, "scout_agent", "scanning listings", "inv-8", false))
	c, _, out := newTestConsole(t, backend)
	require.NoError(t, c.EnsureSession(context.Background()))
	require.NoError(t, c.Send("scan the market"))

	// A block with agent activity but no finalized coordinator reply: the
	// latest agent message stands in. None of these lines pass through the
	// markdown renderer, so the output is byte-exact.
	out.Reset()
	c.RenderHistory()

	want := "you ▸ scan the market\n" +
		"  · scout_agent: scanning listings\n" +
		"  (latest) scout_agent: scanning listings\n"
	if diff := testutils.AssertableDiff(want, out.String()); diff != "" {
		t.Fatal(diff)
	}
}

func TestRenderHistoryEmptySession(t *testing.T) {
	backend := newFakeBackend()
	c, _, out := newTestConsole(t, backend)
	require.NoError(t, c.EnsureSession(context.Background()))
	c.RenderHistory()
	assert.Contains(t, out.String(), "empty session")
}

func TestProcessInputDispatchesCommands(t *testing.T) {
	backend := newFakeBackend()
	c, _, out := newTestConsole(t, backend)

	c.dispatch("version")
	assert.Contains(t, out.String(), "Cosm Console")

	out.Reset()
	c.dispatch("bogus")
	assert.Contains(t, out.String(), "unknown command")

	out.Reset()
	c.dispatch("help")
	assert.Contains(t, out.String(), "\\sessions")
	assert.Contains(t, out.String(), "\\listen")
}

func TestTrackCommandPostsVisitorEvent(t *testing.T) {
	var got renderer.TrackEvent
	var calls int32
	rendererSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/track" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt32(&calls, 1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rendererSrv.Close)

	backend := newFakeBackend()
	c, _, out := newTestConsole(t, backend)
	WithRenderer(renderer.New(rendererSrv.URL))(c)

	c.dispatch("track site-42 cta_click")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "site-42", got.SiteID)
	assert.Equal(t, "cta_click", got.EventType)
	assert.Contains(t, out.String(), "recorded cta_click on site-42")

	out.Reset()
	c.dispatch("track site-42")
	assert.Contains(t, out.String(), "usage: \\track")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTrackCommandWithoutRenderer(t *testing.T) {
	backend := newFakeBackend()
	c, _, out := newTestConsole(t, backend)

	c.dispatch("track site-42 cta_click")
	assert.Contains(t, out.String(), "renderer service is not configured")
}

func TestVoiceCommandTogglesMute(t *testing.T) {
	backend := newFakeBackend()
	c, _, _ := newTestConsole(t, backend)

	c.dispatch("voice off")
	assert.True(t, c.Speaker().Muted())
	c.dispatch("voice on")
	assert.False(t, c.Speaker().Muted())
}

func TestVoicesCommandListsCatalog(t *testing.T) {
	backend := newFakeBackend()
	c, _, out := newTestConsole(t, backend)
	c.dispatch("voices")
	assert.Contains(t, out.String(), "openai")
	assert.Contains(t, out.String(), "google")
}
