package event

import (
	"strings"
	"sync"

	"github.com/cadre-oss/statecast/internal/state"
)

// DefaultActionState is used for action labels the translator doesn't know.
const DefaultActionState = state.Processing

// Emitter accepts partial events. *Hub implements it.
type Emitter interface {
	Emit(p state.Partial) (state.Event, error)
}

// ActionOptions carries the optional parts of an action.
type ActionOptions struct {
	Confidence   *float64
	RequiresUser bool
	Message      string
	Context      state.Metadata
}

var defaultActions = map[string]state.State{
	"idle":    state.Idle,
	"reset":   state.Idle,
	"standby": state.Idle,

	"listening":           state.Listening,
	"listen":              state.Listening,
	"start_listening":     state.Listening,
	"user_input_received": state.Listening,

	"processing": state.Processing,
	"process":    state.Processing,
	"thinking":   state.Processing,
	"analyzing":  state.Processing,

	"validating":         state.Validating,
	"validate":           state.Validating,
	"validation_started": state.Validating,
	"checking":           state.Validating,

	"deciding":           state.Deciding,
	"decide":             state.Deciding,
	"decision_pending":   state.Deciding,
	"evaluating_options": state.Deciding,

	"executing":      state.Executing,
	"execute":        state.Executing,
	"action_started": state.Executing,
	"running":        state.Executing,

	"completed":      state.Completed,
	"complete":       state.Completed,
	"task_completed": state.Completed,
	"done":           state.Completed,

	"error":          state.Error,
	"error_occurred": state.Error,
	"failed":         state.Error,
	"failure":        state.Error,

	"needs_input":         state.NeedsInput,
	"needsinput":          state.NeedsInput,
	"awaiting_input":      state.NeedsInput,
	"user_input_required": state.NeedsInput,
}

// Translator maps free-text action labels onto states and emits them.
//
// Unknown labels become DefaultActionState without an error, so a typo
// silently shows as processing. The raw label is kept in metadata under
// "action" to make that visible when debugging.
type Translator struct {
	emitter Emitter
	logger  Logger

	mu      sync.RWMutex
	actions map[string]state.State
}

// NewTranslator creates a translator with the built-in vocabulary.
func NewTranslator(emitter Emitter, logger Logger) *Translator {
	actions := make(map[string]state.State, len(defaultActions))
	for k, v := range defaultActions {
		actions[k] = v
	}
	return &Translator{emitter: emitter, logger: logger, actions: actions}
}

// Register adds or replaces a label mapping.
func (t *Translator) Register(label string, s state.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[normalizeLabel(label)] = s
}

// Resolve looks up a label. The bool is false when the default was used.
func (t *Translator) Resolve(label string) (state.State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.actions[normalizeLabel(label)]
	if !ok {
		return DefaultActionState, false
	}
	return s, true
}

// EmitAction translates label and emits the result. Error and needs_input
// always require the user, whatever opts says.
func (t *Translator) EmitAction(actor, label string, opts ActionOptions) (state.Event, error) {
	st, known := t.Resolve(label)
	if !known {
		if dl, ok := t.logger.(debugLogger); ok {
			dl.Debug("Unknown action label, defaulting", "action", label, "state", string(st))
		}
	}

	meta := opts.Context.Clone()
	if meta == nil {
		meta = state.Metadata{}
	}
	meta["action"] = label

	return t.emitter.Emit(state.Partial{
		Actor:        actor,
		State:        st,
		Confidence:   opts.Confidence,
		RequiresUser: opts.RequiresUser || st == state.Error || st == state.NeedsInput,
		Message:      opts.Message,
		Metadata:     meta,
	})
}

// Idle emits an idle transition.
func (t *Translator) Idle(actor, message string) (state.Event, error) {
	return t.EmitAction(actor, "idle", ActionOptions{Message: message})
}

// Listening emits a listening transition.
func (t *Translator) Listening(actor, message string) (state.Event, error) {
	return t.EmitAction(actor, "listening", ActionOptions{Message: message})
}

// Processing emits a processing transition with an optional confidence.
func (t *Translator) Processing(actor, message string, confidence *float64) (state.Event, error) {
	return t.EmitAction(actor, "processing", ActionOptions{Message: message, Confidence: confidence})
}

// Validating emits a validating transition with an optional confidence.
func (t *Translator) Validating(actor, message string, confidence *float64) (state.Event, error) {
	return t.EmitAction(actor, "validating", ActionOptions{Message: message, Confidence: confidence})
}

// Deciding emits a deciding transition with an optional confidence.
func (t *Translator) Deciding(actor, message string, confidence *float64) (state.Event, error) {
	return t.EmitAction(actor, "deciding", ActionOptions{Message: message, Confidence: confidence})
}

// Executing emits an executing transition.
func (t *Translator) Executing(actor, message string) (state.Event, error) {
	return t.EmitAction(actor, "executing", ActionOptions{Message: message})
}

// Completed emits a completed transition.
func (t *Translator) Completed(actor, message string) (state.Event, error) {
	return t.EmitAction(actor, "completed", ActionOptions{Message: message})
}

// Error always sets RequiresUser.
func (t *Translator) Error(actor, message string, context state.Metadata) (state.Event, error) {
	return t.EmitAction(actor, "error", ActionOptions{Message: message, Context: context, RequiresUser: true})
}

// NeedsInput always sets RequiresUser.
func (t *Translator) NeedsInput(actor, message string) (state.Event, error) {
	return t.EmitAction(actor, "needs_input", ActionOptions{Message: message, RequiresUser: true})
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
