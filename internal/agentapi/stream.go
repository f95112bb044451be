package agentapi

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"cosmconsole/pkg/cosmtypes"
)

// EventStream is the lazy, append-only, finite sequence of events decoded
// from one streaming run response. It follows the bufio.Scanner idiom:
//
//	stream, err := client.Run(ctx, sessionID, text)
//	for stream.Next() {
//	    apply(stream.Current())
//	}
//	err = stream.Err()
//
// Events arrive as SSE frames: each `data: ` line holds one JSON event.
// Malformed lines are logged and skipped, never fatal to the stream. A
// partial trailing line at the end of the body is discarded, since only
// complete lines are parseable frames.
type EventStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	log     *log.Logger
	current cosmtypes.AgentEvent
	err     error
	done    bool
}

func newEventStream(body io.ReadCloser, lg *log.Logger) *EventStream {
	return &EventStream{
		body:   body,
		reader: bufio.NewReader(body),
		log:    lg,
	}
}

// Next advances to the next decodable event. It returns false when the
// underlying connection closes or an unrecoverable read error occurs; check
// Err afterwards to distinguish the two.
func (s *EventStream) Next() bool {
	if s.done {
		return false
	}
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if err != io.EOF {
				s.err = err
			} else if strings.TrimSpace(line) != "" {
				// Connection closed mid-line; the fragment is unparseable.
				s.log.Debug("discarding partial trailing line", "bytes", len(line))
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}

		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			s.log.Warn("skipping unrecognized stream line", "line", truncateForLog(line))
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var event cosmtypes.AgentEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			s.log.Warn("skipping malformed stream event", "error", err, "line", truncateForLog(payload))
			continue
		}

		s.current = event
		return true
	}
}

// Current returns the event produced by the last successful Next call.
func (s *EventStream) Current() cosmtypes.AgentEvent {
	return s.current
}

// Err returns the first unrecoverable read error, or nil on clean close.
func (s *EventStream) Err() error {
	return s.err
}

// Close releases the underlying response body. Safe to call more than once.
func (s *EventStream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	body := s.body
	s.body = nil
	return body.Close()
}

func truncateForLog(line string) string {
	const max = 120
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
