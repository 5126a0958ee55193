package playback

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/state"
)

// fixtureFile is the wrapped form of a fixture: `events: [...]`.
type fixtureFile struct {
	Events []state.Event `yaml:"events"`
}

// LoadFixture reads a recorded sequence from a YAML or JSON file. The file
// holds either a list of events or an object with an `events` list. Missing
// sequence numbers are filled in by position.
func LoadFixture(path string) ([]state.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture content. JSON is accepted as YAML.
func ParseFixture(data []byte) ([]state.Event, error) {
	var events []state.Event
	if err := yaml.Unmarshal(data, &events); err != nil {
		var wrapped fixtureFile
		if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("failed to parse fixture: %w", err)
		}
		events = wrapped.Events
	}

	for i := range events {
		ev := &events[i]
		st, err := state.ParseState(string(ev.State))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInvalidEvent, fmt.Sprintf("fixture event %d", i), err)
		}
		ev.State = st
		if ev.Seq == 0 {
			ev.Seq = uint64(i + 1)
		}
		if ev.Actor == "" {
			ev.Actor = "unknown"
		}
	}
	return events, nil
}
