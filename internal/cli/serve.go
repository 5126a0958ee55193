package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/statecast/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the statecast server",
	Long: `Start the HTTP server. Agents post events or actions to it; dashboards
read the current state and subscribe to the debounced stream.

Examples:
  statecast serve
  statecast serve --port 9090 --store sqlite
  STATECAST_SERVER_PORT=9090 statecast serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().String("host", "localhost", "host to bind to")
	serveCmd.Flags().String("store", "", "transition store driver (memory, sqlite)")
	serveCmd.Flags().Bool("strict", false, "reject events with missing actor or out-of-range confidence")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("store.driver", serveCmd.Flags().Lookup("store"))
	viper.BindPFlag("validation.strict", serveCmd.Flags().Lookup("strict"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	srv := server.New(cfg, server.Deps{
		Hub:        a.hub,
		Translator: a.translator,
		Live:       a.live,
		Store:      a.store,
		Metrics:    a.metrics,
		Logger:     logger.With("server"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return srv.Start(ctx, addr)
}
