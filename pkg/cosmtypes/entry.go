package cosmtypes

import "time"

// Entry is one reconciled transcript unit. An entry is created on the first
// event of an invocation, mutated in place while Streaming, and frozen once a
// terminal event is merged. Entries are only removed on session switch.
type Entry struct {
	ID                string
	Author            string
	Text              string
	Timestamp         time.Time
	Streaming         bool
	FunctionCalls     []FunctionCall
	FunctionResponses []FunctionResponse
}

// Block groups one user turn with everything produced in response to it: the
// primary responder's terminal reply plus any auxiliary agent activity.
type Block struct {
	// User is the triggering entry; nil for an agent-initiated block.
	User *Entry

	// Coordinator is the primary responder's reply; nil while pending.
	Coordinator *Entry

	// AgentActivity maps auxiliary agent names to their ordered entries
	// within this block. AgentOrder preserves first-appearance order.
	AgentActivity map[string][]Entry
	AgentOrder    []string

	// LastAgentMessage is the most recent auxiliary entry, shown as a
	// fallback while the primary responder has not yet replied.
	LastAgentMessage *Entry
}

// Pending reports whether the block is still waiting on the primary
// responder's reply. Pending blocks drive the console's progress indicator.
func (b *Block) Pending() bool {
	return b.Coordinator == nil
}

// Session is the agent backend's session record as returned by its REST API.
type Session struct {
	ID                string                 `json:"id"`
	AppName           string                 `json:"app_name"`
	UserID            string                 `json:"user_id"`
	State             map[string]interface{} `json:"state,omitempty"`
	Events            []AgentEvent           `json:"events,omitempty"`
	CreationTimestamp float64                `json:"creation_timestamp,omitempty"`
	LastUpdateTime    float64                `json:"last_update_time,omitempty"`
}

// CreatedAt converts the session's fractional-second creation timestamp.
func (s Session) CreatedAt() time.Time {
	if s.CreationTimestamp == 0 {
		return time.Time{}
	}
	sec := int64(s.CreationTimestamp)
	nsec := int64((s.CreationTimestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
