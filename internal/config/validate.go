package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cadre-oss/statecast/internal/errors"
)

var validStates = map[string]bool{
	"idle": true, "listening": true, "processing": true, "validating": true, "deciding": true,
	"executing": true, "completed": true, "error": true, "needs_input": true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Registry.Capacity < 0 {
		problems = append(problems, fmt.Sprintf("registry.capacity must be positive, got %d", c.Registry.Capacity))
	}
	if c.Realtime.BufferSize < 0 {
		problems = append(problems, fmt.Sprintf("realtime.buffer_size must be positive, got %d", c.Realtime.BufferSize))
	}
	if d, err := time.ParseDuration(c.Realtime.Debounce); err != nil {
		problems = append(problems, fmt.Sprintf("invalid realtime.debounce: %s", c.Realtime.Debounce))
	} else if d < 0 {
		problems = append(problems, "realtime.debounce must not be negative")
	}
	if d, err := time.ParseDuration(c.Playback.BaseDelay); err != nil {
		problems = append(problems, fmt.Sprintf("invalid playback.base_delay: %s", c.Playback.BaseDelay))
	} else if d < 0 {
		problems = append(problems, "playback.base_delay must not be negative")
	}
	if c.Playback.Speed <= 0 {
		problems = append(problems, fmt.Sprintf("playback.speed must be positive, got %v", c.Playback.Speed))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid logging.level: %s", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid logging.format: %s", c.Logging.Format))
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unsupported store.driver: %s", c.Store.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server.port: %d", c.Server.Port))
	}

	for i, h := range c.Hooks.Hooks {
		problems = append(problems, validateHook(i, h)...)
	}

	if len(problems) > 0 {
		return errors.New(errors.CodeConfigInvalid, "config validation failed: "+strings.Join(problems, "; ")).
			WithSuggestion("Fix " + FileName + " or run with defaults by removing it")
	}
	return nil
}

func validateHook(i int, h HookConfig) []string {
	var problems []string
	label := h.Name
	if label == "" {
		label = fmt.Sprintf("hooks[%d]", i)
		problems = append(problems, label+": name is required")
	}

	switch h.Type {
	case "shell":
		if h.Command == "" {
			problems = append(problems, label+": shell hook requires command")
		}
	case "webhook":
		if h.URL == "" {
			problems = append(problems, label+": webhook hook requires url")
		}
	case "log":
		switch h.Level {
		case "", "debug", "info", "warn":
		default:
			problems = append(problems, fmt.Sprintf("%s: invalid log level %s", label, h.Level))
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: unsupported hook type %q", label, h.Type))
	}

	for _, s := range h.States {
		if !validStates[strings.ToLower(strings.TrimSpace(s))] {
			problems = append(problems, fmt.Sprintf("%s: unknown state %q", label, s))
		}
	}
	return problems
}
