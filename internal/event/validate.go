package event

import (
	"math"

	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/state"
)

// UnknownActor replaces an empty actor under LenientValidator.
const UnknownActor = "unknown"

// Validator checks and may normalize a partial event before acceptance.
type Validator func(p *state.Partial) error

// LenientValidator accepts anything representable: it rejects only states
// outside the enumeration or a non-finite confidence, names empty actors
// UnknownActor and clamps confidence into [0, 1].
func LenientValidator(p *state.Partial) error {
	if !p.State.Valid() {
		return invalidState(p.State)
	}
	if p.Actor == "" {
		p.Actor = UnknownActor
	}
	if p.Confidence != nil {
		c := *p.Confidence
		if err := checkFinite(c); err != nil {
			return err
		}
		switch {
		case c < 0:
			c = 0
		case c > 1:
			c = 1
		}
		p.Confidence = &c
	}
	return nil
}

// StrictValidator rejects empty actors and out-of-range confidence instead
// of repairing them.
func StrictValidator(p *state.Partial) error {
	if !p.State.Valid() {
		return invalidState(p.State)
	}
	if p.Actor == "" {
		return errors.New(errors.CodeInvalidEvent, "actor is required")
	}
	if p.Confidence != nil {
		c := *p.Confidence
		if err := checkFinite(c); err != nil {
			return err
		}
		if c < 0 || c > 1 {
			return errors.Newf(errors.CodeInvalidEvent, "confidence %v outside [0, 1]", c)
		}
	}
	return nil
}

// ValidatorFor returns StrictValidator when strict is set.
func ValidatorFor(strict bool) Validator {
	if strict {
		return StrictValidator
	}
	return LenientValidator
}

func checkFinite(c float64) error {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return errors.Newf(errors.CodeInvalidEvent, "confidence %v is not a number in [0, 1]", c)
	}
	return nil
}

func invalidState(s state.State) error {
	if s == "" {
		return errors.New(errors.CodeInvalidEvent, "state is required")
	}
	return errors.Newf(errors.CodeInvalidEvent, "unknown state %q", string(s)).
		WithSuggestion("Use one of: idle, listening, processing, validating, deciding, executing, completed, error, needs_input")
}
