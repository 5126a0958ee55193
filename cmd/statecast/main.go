package main

import (
	"fmt"
	"os"

	"github.com/cadre-oss/statecast/internal/cli"
	"github.com/cadre-oss/statecast/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if s := errors.Suggestion(err); s != "" {
			fmt.Fprintln(os.Stderr, "Hint:", s)
		}
		os.Exit(1)
	}
}
