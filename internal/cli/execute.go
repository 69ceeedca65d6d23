package cli

import (
	"fmt"
	"os"
)

// Execute is the CLI entrypoint.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Commands print their own diagnostics in verbose mode; keep this concise.
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
