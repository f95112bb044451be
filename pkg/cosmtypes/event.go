// Package cosmtypes defines the wire and domain types shared across the cosm
// console: agent backend events, reconciled transcript entries, conversation
// blocks, session records, and voice configuration.
package cosmtypes

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FunctionCall is a structured tool invocation carried inside an event part.
// The console treats the arguments as opaque.
type FunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// FunctionResponse is the result of a tool invocation, opaque to the console.
type FunctionResponse struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// Part is one unit of event content: natural-language text, a function call,
// or a function response.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content is the role-tagged part list of an event.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// AgentEvent is one unit received from the agent backend, either live over the
// SSE run stream or from a session's historical event list. Events sharing an
// InvocationID belong to one generation turn; Partial marks the producer as
// still generating.
type AgentEvent struct {
	ID           string   `json:"id,omitempty"`
	InvocationID string   `json:"invocationId,omitempty"`
	Author       string   `json:"author"`
	Content      *Content `json:"content,omitempty"`
	Partial      bool     `json:"partial,omitempty"`
	Timestamp    float64  `json:"timestamp,omitempty"`
}

// Text returns the event's natural-language payload: the joined text of all
// content parts.
func (e AgentEvent) Text() string {
	if e.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range e.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// FunctionCalls returns all function-call parts of the event in order.
func (e AgentEvent) FunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns all function-response parts of the event in order.
func (e AgentEvent) FunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if p.FunctionResponse != nil {
			responses = append(responses, *p.FunctionResponse)
		}
	}
	return responses
}

// HasPayload reports whether the event carries anything renderable: text, a
// function call, or a function response. Events without a payload are dropped
// by the reconciler.
func (e AgentEvent) HasPayload() bool {
	return e.Text() != "" || len(e.FunctionCalls()) > 0 || len(e.FunctionResponses()) > 0
}

// Time converts the backend's fractional-second timestamp to a time.Time.
// A zero timestamp yields the zero time.
func (e AgentEvent) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(e.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// String is a compact diagnostic form used in debug logs.
func (e AgentEvent) String() string {
	return fmt.Sprintf("event{author=%s invocation=%s partial=%t text=%q}",
		e.Author, e.InvocationID, e.Partial, e.Text())
}
