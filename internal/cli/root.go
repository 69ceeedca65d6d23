package cli

import (
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	CacheDir   string
	ConfigPath string
	Output     string
}

// NewRootCmd builds the root command and wires subcommands.
func NewRootCmd() *cobra.Command {
	var rf rootFlags

	cmd := &cobra.Command{
		Use:           "bosh",
		Short:         "Manage and publish Boutiques execution records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rf.CacheDir, "cache-dir", "", "Data cache directory (or set BOSH_CACHE_DIR; default: ~/.cache/boutiques/data)")
	cmd.PersistentFlags().StringVar(&rf.ConfigPath, "config", "", "Credentials file (or set BOSH_CONFIG; default: ~/.boutiques)")
	cmd.PersistentFlags().StringVar(&rf.Output, "output", "text", "Output format: text|json|yaml")

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewConfigCmd(&rf))
	cmd.AddCommand(NewLoginCmd(&rf))
	cmd.AddCommand(NewDataCmd(&rf))
	cmd.AddCommand(NewRequestCmd(&rf))

	return cmd
}
