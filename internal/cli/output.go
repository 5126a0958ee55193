package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cadre-oss/statecast/internal/state"
)

const timeLayout = "15:04:05.000"

func formatEvent(ev state.Event) string {
	line := fmt.Sprintf("#%-4d %s  %-11s %s", ev.Seq, ev.Timestamp.Format(timeLayout), ev.State, ev.Actor)
	if ev.Confidence != nil {
		line += fmt.Sprintf(" (%.2f)", *ev.Confidence)
	}
	if ev.RequiresUser {
		line += " [needs user]"
	}
	if ev.Message != "" {
		line += "  " + ev.Message
	}
	return line
}

func printEvents(w io.Writer, events []state.Event, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(w, "No transitions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tSTATE\tACTOR\tMESSAGE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			ev.Seq, ev.Timestamp.Format("2006-01-02 "+timeLayout), ev.State, ev.Actor, ev.Message)
	}
	return tw.Flush()
}
