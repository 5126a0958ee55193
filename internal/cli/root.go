package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/statecast/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "statecast",
	Short: "Broadcast agent activity states",
	Long: `statecast - live agent status, as a stream.

Records the activity state of an agent (listening, processing, deciding,
executing, ...) and fans every transition out to dashboards, hooks, and
stores. Recorded sessions can be replayed at any speed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./statecast.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("STATECAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// statecast.yaml is parsed by the config package so ${VAR} interpolation
	// applies; viper only layers env and flags on top.
	if verbose {
		if _, err := os.Stat(configPath()); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", configPath())
		}
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.FileName
}

// overridable lists the config keys that flags and STATECAST_* variables
// may override on top of statecast.yaml.
var overridable = []string{
	"server.host",
	"server.port",
	"store.driver",
	"store.path",
	"logging.level",
	"logging.format",
	"validation.strict",
	"playback.base_delay",
	"playback.speed",
	"realtime.debounce",
}

// loadConfig reads statecast.yaml and applies viper overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, key := range overridable {
		if !viper.IsSet(key) {
			continue
		}
		switch key {
		case "server.host":
			cfg.Server.Host = viper.GetString(key)
		case "server.port":
			cfg.Server.Port = viper.GetInt(key)
		case "store.driver":
			cfg.Store.Driver = viper.GetString(key)
		case "store.path":
			cfg.Store.Path = viper.GetString(key)
		case "logging.level":
			cfg.Logging.Level = viper.GetString(key)
		case "logging.format":
			if f := viper.GetString(key); f != "" {
				cfg.Logging.Format = f
			}
		case "validation.strict":
			cfg.Validation.Strict = viper.GetBool(key)
		case "playback.base_delay":
			cfg.Playback.BaseDelay = viper.GetString(key)
		case "playback.speed":
			cfg.Playback.Speed = viper.GetFloat64(key)
		case "realtime.debounce":
			cfg.Realtime.Debounce = viper.GetString(key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serverURL is the base URL of the server described by cfg.
func serverURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}
