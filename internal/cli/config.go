package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/telemetry"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and modifying configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a value in statecast.yaml using dot notation.

Examples:
  statecast config set server.port 9090
  statecast config set store.driver sqlite
  statecast config set validation.strict true`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Pretty print config
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintln(w, string(out))

	if _, err := os.Stat(configPath()); err == nil {
		fmt.Fprintf(w, "Config file: %s\n", configPath())
	} else {
		fmt.Fprintln(w, "Config file: none (built-in defaults)")
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]
	path := configPath()

	doc := map[string]interface{}{}
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	setNestedValue(doc, key, parseScalar(value))

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Reject values that would leave an unloadable file behind.
	var check config.Config
	if err := yaml.Unmarshal(out, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", configPath(), err)
		return fmt.Errorf("validation failed")
	}

	if _, err := event.BuildHooks(cfg.Hooks.Hooks, telemetry.NewLogger(false)); err != nil {
		fmt.Fprintf(w, "%s: %v\n", configPath(), err)
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintf(w, "%s: OK\n", configPath())
	return nil
}

// parseScalar decodes a command-line value as a YAML scalar so numbers and
// booleans keep their type.
func parseScalar(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return s
	}
	return v
}

func setNestedValue(m map[string]interface{}, key string, value interface{}) {
	parts := strings.Split(key, ".")
	current := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[p] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
