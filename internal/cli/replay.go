package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/statecast/internal/playback"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
)

var (
	replayLoop   bool
	replayActor  string
	replayLimit  int
	replayTarget string
)

var replayCmd = &cobra.Command{
	Use:   "replay [fixture]",
	Short: "Replay recorded transitions at a chosen pace",
	Long: `Replay a recorded session, printing each transition as it is delivered.

Without an argument the configured store is replayed. A fixture is a YAML
or JSON file holding a list of events (or an object with an "events" list).
With --target every replayed event is also sent to a running server, so a
dashboard can watch the session again.

Examples:
  statecast replay                         # replay the store at 1x
  statecast replay session.yaml --speed 4
  statecast replay --actor planner --loop
  statecast replay demo.json --target http://localhost:8080`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64("speed", 1.0, "playback speed multiplier")
	replayCmd.Flags().String("base-delay", "500ms", "delay between events at 1x")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "restart from the beginning when finished")
	replayCmd.Flags().StringVar(&replayActor, "actor", "", "only replay this actor (store source)")
	replayCmd.Flags().IntVarP(&replayLimit, "lines", "n", 0, "replay only the last n transitions (store source)")
	replayCmd.Flags().StringVar(&replayTarget, "target", "", "server URL to re-emit events to")
	viper.BindPFlag("playback.speed", replayCmd.Flags().Lookup("speed"))
	viper.BindPFlag("playback.base_delay", replayCmd.Flags().Lookup("base-delay"))
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var events []state.Event
	if len(args) == 1 {
		events, err = playback.LoadFixture(args[0])
	} else {
		events, err = localTransitions(cmd.Context(), cfg.Store.Driver, cfg.Store.Path,
			store.Query{Actor: replayActor, Limit: replayLimit})
	}
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to replay.")
		return nil
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	player := playback.New(
		playback.WithBaseDelay(cfg.BaseDelayDuration()),
		playback.WithLogger(logger.With("playback")),
	)

	out := cmd.OutOrStdout()
	cb := func(ev state.Event, i int) {
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(events), formatEvent(ev))
		if replayTarget == "" {
			return
		}
		if _, err := emitRemote(replayTarget, replayPartial(ev)); err != nil {
			logger.Warn("Failed to forward replayed event", "seq", ev.Seq, "error", err)
		}
	}

	if err := player.Replay(events, cb, playback.ReplayOptions{Speed: cfg.Playback.Speed, Loop: replayLoop}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	start := time.Now()
	select {
	case <-player.Done():
		logger.Debug("Replay complete", "events", len(events), "elapsed", time.Since(start))
	case <-sigCh:
		player.Stop()
		fmt.Fprintln(cmd.ErrOrStderr(), "Replay stopped.")
	}
	return nil
}

// replayPartial strips server-assigned fields so the target records the
// event as a fresh transition.
func replayPartial(ev state.Event) state.Partial {
	meta := ev.Metadata.Clone()
	if meta == nil {
		meta = state.Metadata{}
	}
	meta["replayed_seq"] = ev.Seq
	return state.Partial{
		Actor:        ev.Actor,
		State:        ev.State,
		Confidence:   ev.Confidence,
		RequiresUser: ev.RequiresUser,
		Message:      ev.Message,
		Metadata:     meta,
	}
}
