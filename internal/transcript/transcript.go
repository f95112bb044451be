// Package transcript reconciles the agent backend's event stream into a
// stable, ordered, deduplicated conversation transcript, and groups the
// transcript into per-turn conversation blocks for rendering.
package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cosmconsole/internal/logger"
	"cosmconsole/pkg/cosmtypes"
)

// DefaultDuplicateWindow is the tolerance within which two finalized entries
// with the same author and text are treated as one logical message. The same
// message can arrive once over the live stream and again from a historical
// re-fetch with a slightly different timestamp.
const DefaultDuplicateWindow = 2 * time.Second

// Config controls reconciliation. UserAuthor and PrimaryAuthor identify the
// two distinguished roles; every other author is an auxiliary agent.
type Config struct {
	UserAuthor      string
	PrimaryAuthor   string
	DuplicateWindow time.Duration

	// Now and NewID exist so tests can pin time and identity generation.
	Now   func() time.Time
	NewID func() string
}

func (c Config) withDefaults() Config {
	if c.DuplicateWindow == 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Transcript is the reconciled conversation. All mutation happens under one
// mutex; events must be applied in arrival order.
type Transcript struct {
	mu        sync.Mutex
	cfg       Config
	entries   []cosmtypes.Entry
	finalized map[string]bool // invocation ids whose terminal event was merged
}

// New creates an empty transcript.
func New(cfg Config) *Transcript {
	return &Transcript{
		cfg:       cfg.withDefaults(),
		finalized: make(map[string]bool),
	}
}

// Apply reconciles one event into the transcript and reports whether the
// transcript changed. Applying the same terminal event twice is a no-op the
// second time.
//
// The merge rules, in order:
//  1. Events with no text and no structured calls/responses are discarded.
//  2. A partial event whose author matches the last entry while that entry
//     is still streaming replaces its text in place. Only the last entry is
//     eligible; partial updates only ever extend the most recent in-flight
//     generation.
//  3. A terminal event under the same condition finalizes the last entry.
//  4. A terminal event matching an existing finalized entry (same author,
//     identical text, timestamps within the duplicate window) is discarded.
//  5. Anything else appends a new entry.
func (t *Transcript) Apply(ev cosmtypes.AgentEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !ev.HasPayload() {
		logger.Debug("discarding event with no payload", "author", ev.Author, "invocation", ev.InvocationID)
		return false
	}

	if !ev.Partial && ev.InvocationID != "" && t.finalized[ev.InvocationID] {
		// Terminal event already merged; replay is a no-op.
		return false
	}

	text := ev.Text()
	last := t.lastEntry()

	if last != nil && last.Streaming && last.Author == ev.Author {
		if ev.Partial {
			last.Text = text
			return true
		}
		t.finalizeEntry(last, ev)
		return true
	}

	at := t.eventTime(ev)

	if !ev.Partial && t.isDuplicate(ev, text, at) {
		logger.Debug("suppressing duplicate event", "author", ev.Author, "invocation", ev.InvocationID)
		return false
	}

	entry := cosmtypes.Entry{
		ID:                t.entryID(ev, at),
		Author:            ev.Author,
		Text:              text,
		Timestamp:         at,
		Streaming:         ev.Partial,
		FunctionCalls:     ev.FunctionCalls(),
		FunctionResponses: ev.FunctionResponses(),
	}
	t.entries = append(t.entries, entry)
	if !ev.Partial && ev.InvocationID != "" {
		t.finalized[ev.InvocationID] = true
	}
	return true
}

// LoadHistory replays a REST-fetched event list through the normal merge
// path, so history and live events reconcile identically.
func (t *Transcript) LoadHistory(events []cosmtypes.AgentEvent) {
	for _, ev := range events {
		t.Apply(ev)
	}
}

// Entries returns a snapshot copy of the transcript.
func (t *Transcript) Entries() []cosmtypes.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]cosmtypes.Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Last returns a copy of the most recent entry, or false when empty.
func (t *Transcript) Last() (cosmtypes.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return cosmtypes.Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Reset clears all entries and merge state. Used on session switch.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.finalized = make(map[string]bool)
}

// Blocks groups the current transcript into conversation blocks.
func (t *Transcript) Blocks() []cosmtypes.Block {
	return GroupBlocks(t.Entries(), t.cfg.UserAuthor, t.cfg.PrimaryAuthor)
}

func (t *Transcript) lastEntry() *cosmtypes.Entry {
	if len(t.entries) == 0 {
		return nil
	}
	return &t.entries[len(t.entries)-1]
}

// finalizeEntry freezes a streaming entry with the terminal event's content.
func (t *Transcript) finalizeEntry(entry *cosmtypes.Entry, ev cosmtypes.AgentEvent) {
	entry.Text = ev.Text()
	entry.Streaming = false
	if calls := ev.FunctionCalls(); len(calls) > 0 {
		entry.FunctionCalls = calls
	}
	if responses := ev.FunctionResponses(); len(responses) > 0 {
		entry.FunctionResponses = responses
	}
	if ev.InvocationID != "" {
		entry.ID = ev.InvocationID
		t.finalized[ev.InvocationID] = true
	}
}

func (t *Transcript) isDuplicate(ev cosmtypes.AgentEvent, text string, at time.Time) bool {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Streaming || e.Author != ev.Author || e.Text != text {
			continue
		}
		delta := at.Sub(e.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= t.cfg.DuplicateWindow {
			return true
		}
	}
	return false
}

// entryID derives a stable identity: the invocation id when present,
// otherwise author + timestamp + a random suffix.
func (t *Transcript) entryID(ev cosmtypes.AgentEvent, at time.Time) string {
	if ev.InvocationID != "" {
		return ev.InvocationID
	}
	return fmt.Sprintf("%s-%d-%s", ev.Author, at.UnixMilli(), t.cfg.NewID())
}

func (t *Transcript) eventTime(ev cosmtypes.AgentEvent) time.Time {
	if at := ev.Time(); !at.IsZero() {
		return at
	}
	return t.cfg.Now()
}
