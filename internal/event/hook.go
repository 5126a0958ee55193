package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/state"
)

// Hook processes accepted transitions. Hooks are attached with Hub.Register.
type Hook interface {
	// Name returns the hook's identifier.
	Name() string
	// Matches returns true if the hook should handle this state.
	Matches(s state.State) bool
	// IsBlocking returns true if fan-out should wait for this hook.
	IsBlocking() bool
	// Handle processes an event. Errors are logged, never returned to emitters.
	Handle(ev state.Event) error
}

// Register attaches h as a listener. Blocking hooks run inline during
// fan-out; non-blocking hooks run in their own goroutine.
func (h *Hub) Register(hook Hook) func() {
	return h.subscribe(hook.Name(), func(ev state.Event) {
		if !hook.Matches(ev.State) {
			return
		}
		if hook.IsBlocking() {
			if err := hook.Handle(ev); err != nil {
				h.hookFailed(hook, ev, err)
			}
			return
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					h.hookFailed(hook, ev, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := hook.Handle(ev); err != nil {
				h.hookFailed(hook, ev, err)
			}
		}()
	})
}

func (h *Hub) hookFailed(hook Hook, ev state.Event, err error) {
	if h.metrics != nil {
		h.metrics.ListenerFault()
	}
	if h.logger != nil {
		h.logger.Warn("Hook failed",
			"hook", hook.Name(),
			"state", string(ev.State),
			"actor", ev.Actor,
			"error", err,
		)
	}
}

// baseHook provides shared fields for all hook implementations.
type baseHook struct {
	name     string
	states   []state.State
	blocking bool
}

func (h *baseHook) Name() string     { return h.name }
func (h *baseHook) IsBlocking() bool { return h.blocking }
func (h *baseHook) Matches(s state.State) bool {
	if len(h.states) == 0 {
		return true // match all states if no filter specified
	}
	for _, st := range h.states {
		if st == s {
			return true
		}
	}
	return false
}

// ShellHook executes a shell command with event data in environment variables.
//
// Environment variables set:
//   - STATECAST_STATE: the state string
//   - STATECAST_ACTOR: the emitting actor
//   - STATECAST_EVENT_JSON: JSON-encoded event
type ShellHook struct {
	baseHook
	Command string
}

func NewShellHook(name, command string, states []state.State, blocking bool) *ShellHook {
	return &ShellHook{
		baseHook: baseHook{name: name, states: states, blocking: blocking},
		Command:  command,
	}
}

func (h *ShellHook) Handle(ev state.Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Env = append(os.Environ(),
		"STATECAST_STATE="+string(ev.State),
		"STATECAST_ACTOR="+ev.Actor,
		"STATECAST_EVENT_JSON="+string(eventJSON),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s failed: %w", h.name, err)
	}
	return nil
}

// WebhookHook sends an HTTP POST with event JSON to a URL.
type WebhookHook struct {
	baseHook
	URL     string
	Timeout time.Duration
}

func NewWebhookHook(name, url string, states []state.State, blocking bool) *WebhookHook {
	return &WebhookHook{
		baseHook: baseHook{name: name, states: states, blocking: blocking},
		URL:      url,
		Timeout:  10 * time.Second,
	}
}

func (h *WebhookHook) Handle(ev state.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	client := &http.Client{Timeout: h.Timeout}
	resp, err := client.Post(h.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", h.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", h.name, resp.StatusCode)
	}
	return nil
}

// FullLogger extends Logger with additional log levels for the LogHook.
type FullLogger interface {
	Logger
	Info(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
}

// LogHook logs transitions at the configured level. Always non-blocking.
type LogHook struct {
	baseHook
	logger Logger
	level  string // "debug", "info", "warn"
}

func NewLogHook(name string, states []state.State, logger Logger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		baseHook: baseHook{name: name, states: states, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev state.Event) error {
	msg := fmt.Sprintf("[state] %s -> %s", ev.Actor, ev.State)
	keyvals := []interface{}{
		"seq", ev.Seq,
		"actor", ev.Actor,
		"state", string(ev.State),
		"requires_user", ev.RequiresUser,
	}
	if ev.Confidence != nil {
		keyvals = append(keyvals, "confidence", *ev.Confidence)
	}
	if ev.Message != "" {
		keyvals = append(keyvals, "message", ev.Message)
	}

	if fl, ok := h.logger.(FullLogger); ok {
		switch h.level {
		case "debug":
			fl.Debug(msg, keyvals...)
		case "warn":
			fl.Warn(msg, keyvals...)
		default:
			fl.Info(msg, keyvals...)
		}
	} else {
		// Fallback: use Warn since Logger only guarantees Warn.
		h.logger.Warn(msg, keyvals...)
	}
	return nil
}

// BuildHooks turns hook configuration into Hook values.
func BuildHooks(cfgs []config.HookConfig, logger Logger) ([]Hook, error) {
	hooks := make([]Hook, 0, len(cfgs))
	for _, hc := range cfgs {
		states := make([]state.State, 0, len(hc.States))
		for _, s := range hc.States {
			st, err := state.ParseState(s)
			if err != nil {
				return nil, fmt.Errorf("hook %s: %w", hc.Name, err)
			}
			states = append(states, st)
		}

		switch hc.Type {
		case "shell":
			hooks = append(hooks, NewShellHook(hc.Name, hc.Command, states, hc.Blocking))
		case "webhook":
			hooks = append(hooks, NewWebhookHook(hc.Name, hc.URL, states, hc.Blocking))
		case "log":
			hooks = append(hooks, NewLogHook(hc.Name, states, logger, hc.Level))
		default:
			return nil, fmt.Errorf("hook %s: unsupported type %q", hc.Name, hc.Type)
		}
	}
	return hooks, nil
}
