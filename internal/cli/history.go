package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
)

var (
	historyActor  string
	historyState  string
	historyLimit  int
	historyJSON   bool
	historyRemote bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded transitions",
	Long: `Show transitions from the configured store, or from a running server
with --remote.

Examples:
  statecast history                       # last 20 transitions
  statecast history --actor planner -n 50
  statecast history --state error --json
  statecast history --remote              # ask the server instead`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyActor, "actor", "", "filter by actor")
	historyCmd.Flags().StringVar(&historyState, "state", "", "filter by state")
	historyCmd.Flags().IntVarP(&historyLimit, "lines", "n", 20, "number of transitions to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyCmd.Flags().BoolVar(&historyRemote, "remote", false, "query the running server")
}

func runHistory(cmd *cobra.Command, args []string) error {
	q := store.Query{Actor: historyActor, Limit: historyLimit}
	if historyState != "" {
		st, err := state.ParseState(historyState)
		if err != nil {
			return err
		}
		q.State = st
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var events []state.Event
	if historyRemote {
		events, err = remoteTransitions(serverURL(cfg), q)
	} else {
		if cfg.Store.Driver != "sqlite" {
			fmt.Fprintln(cmd.ErrOrStderr(), "Store driver is memory; nothing is persisted between runs. Use --remote to query a running server.")
			return nil
		}
		events, err = localTransitions(cmd.Context(), cfg.Store.Driver, cfg.Store.Path, q)
	}
	if err != nil {
		return err
	}

	return printEvents(cmd.OutOrStdout(), events, historyJSON)
}

func localTransitions(ctx context.Context, driver, path string, q store.Query) ([]state.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(driver, path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.List(ctx, q)
}

func remoteTransitions(baseURL string, q store.Query) ([]state.Event, error) {
	params := url.Values{}
	if q.Actor != "" {
		params.Set("actor", q.Actor)
	}
	if q.State != "" {
		params.Set("state", string(q.State))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	endpoint := baseURL + "/api/transitions"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var events []state.Event
	if err := getJSON(endpoint, &events); err != nil {
		return nil, err
	}
	return events, nil
}
