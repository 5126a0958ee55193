package config

import "time"

// Config represents the project configuration (statecast.yaml)
type Config struct {
	Name       string           `yaml:"name" json:"name"`
	Version    string           `yaml:"version" json:"version"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Realtime   RealtimeConfig   `yaml:"realtime" json:"realtime"`
	Playback   PlaybackConfig   `yaml:"playback" json:"playback"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Hooks      HooksConfig      `yaml:"hooks" json:"hooks"`
}

// RegistryConfig bounds the in-memory transition log
type RegistryConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// RealtimeConfig configures the debounced live view
type RealtimeConfig struct {
	BufferSize int    `yaml:"buffer_size" json:"buffer_size"`
	Debounce   string `yaml:"debounce" json:"debounce"` // e.g., "100ms"
}

// PlaybackConfig configures replay pacing
type PlaybackConfig struct {
	BaseDelay string  `yaml:"base_delay" json:"base_delay"` // e.g., "500ms"
	Speed     float64 `yaml:"speed" json:"speed"`
}

// ValidationConfig selects how strictly emitted events are checked
type ValidationConfig struct {
	Strict bool `yaml:"strict" json:"strict"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// StoreConfig configures transition persistence
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite, memory
	Path   string `yaml:"path" json:"path"`     // file path for sqlite
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// HooksConfig configures transition hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	States   []string `yaml:"states" json:"states"` // states to match, empty = all
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}

// DebounceDuration parses Realtime.Debounce. Call Validate first.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Realtime.Debounce)
	return d
}

// BaseDelayDuration parses Playback.BaseDelay. Call Validate first.
func (c *Config) BaseDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.Playback.BaseDelay)
	return d
}
