package state

import (
	"fmt"
	"strings"
	"time"
)

// State is the visual state of an actor. Only the constants below are valid.
type State string

// Conventional progression for producers: Idle → Listening → Processing →
// Validating → Deciding → Executing → Completed, with Error and NeedsInput
// reachable from anywhere. Nothing enforces this ordering.
const (
	Idle       State = "idle"
	Listening  State = "listening"
	Processing State = "processing"
	Validating State = "validating"
	Deciding   State = "deciding"
	Executing  State = "executing"
	Completed  State = "completed"
	Error      State = "error"
	NeedsInput State = "needs_input"
)

// All lists every valid state in conventional order.
var All = []State{Idle, Listening, Processing, Validating, Deciding, Executing, Completed, Error, NeedsInput}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	for _, v := range All {
		if s == v {
			return true
		}
	}
	return false
}

func (s State) String() string { return string(s) }

// ParseState converts free text into a State.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown state %q", s)
	}
	return st, nil
}

// Metadata is diagnostic context attached to an event. The core never reads it.
type Metadata map[string]interface{}

// Clone deep-copies nested maps and slices so callers cannot reach into
// an accepted event.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Metadata(t).Clone())
	case Metadata:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Partial is what producers supply. ID, sequence and timestamp are assigned
// by the Registry.
type Partial struct {
	Actor        string   `json:"actor" yaml:"actor"`
	State        State    `json:"state" yaml:"state"`
	Confidence   *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	RequiresUser bool     `json:"requires_user,omitempty" yaml:"requires_user,omitempty"`
	Message      string   `json:"message,omitempty" yaml:"message,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Event is one accepted state transition.
type Event struct {
	ID           string    `json:"id" yaml:"id"`
	Seq          uint64    `json:"seq" yaml:"seq"`
	Actor        string    `json:"actor" yaml:"actor"`
	State        State     `json:"state" yaml:"state"`
	Confidence   *float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	RequiresUser bool      `json:"requires_user" yaml:"requires_user"`
	Message      string    `json:"message,omitempty" yaml:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Metadata     Metadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy that shares no mutable memory with e.
func (e Event) Clone() Event {
	out := e
	if e.Confidence != nil {
		c := *e.Confidence
		out.Confidence = &c
	}
	out.Metadata = e.Metadata.Clone()
	return out
}

// Float64 returns a pointer to v, for Confidence fields.
func Float64(v float64) *float64 { return &v }
