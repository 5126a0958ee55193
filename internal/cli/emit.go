package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/statecast/internal/state"
)

var (
	emitActor        string
	emitMessage      string
	emitConfidence   float64
	emitRequiresUser bool
	emitAction       string
	emitMeta         map[string]string
	emitServer       string
)

var emitCmd = &cobra.Command{
	Use:   "emit [state]",
	Short: "Send a state or action to a running server",
	Long: `Send a transition to a running statecast server.

Either pass a state directly or use --action with a free-text label that
the server translates to a state.

Examples:
  statecast emit processing --actor planner --confidence 0.8
  statecast emit --action task_completed --actor planner -m "wrote the report"
  statecast emit needs_input --meta question="which branch?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmit,
}

func init() {
	emitCmd.Flags().StringVar(&emitActor, "actor", "", "actor reporting the state")
	emitCmd.Flags().StringVarP(&emitMessage, "message", "m", "", "human readable message")
	emitCmd.Flags().Float64Var(&emitConfidence, "confidence", 0, "confidence in [0,1]")
	emitCmd.Flags().BoolVar(&emitRequiresUser, "requires-user", false, "flag that the user must act")
	emitCmd.Flags().StringVarP(&emitAction, "action", "a", "", "action label to translate instead of a state")
	emitCmd.Flags().StringToStringVar(&emitMeta, "meta", nil, "metadata key=value pairs")
	emitCmd.Flags().StringVar(&emitServer, "server", "", "server URL (default from config)")
}

func runEmit(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (emitAction == "") {
		return fmt.Errorf("pass either a state or --action")
	}

	baseURL := emitServer
	if baseURL == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		baseURL = serverURL(cfg)
	}

	var confidence *float64
	if cmd.Flags().Changed("confidence") {
		confidence = state.Float64(emitConfidence)
	}
	var meta state.Metadata
	if len(emitMeta) > 0 {
		meta = make(state.Metadata, len(emitMeta))
		for k, v := range emitMeta {
			meta[k] = v
		}
	}

	var ev state.Event
	var err error
	if emitAction != "" {
		err = postJSON(baseURL+"/api/state/actions", map[string]interface{}{
			"actor":         emitActor,
			"action":        emitAction,
			"confidence":    confidence,
			"requires_user": emitRequiresUser,
			"message":       emitMessage,
			"context":       meta,
		}, &ev)
	} else {
		st, perr := state.ParseState(args[0])
		if perr != nil {
			return perr
		}
		ev, err = emitRemote(baseURL, state.Partial{
			Actor:        emitActor,
			State:        st,
			Confidence:   confidence,
			RequiresUser: emitRequiresUser,
			Message:      emitMessage,
			Metadata:     meta,
		})
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
	return nil
}
