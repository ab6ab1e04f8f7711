// Package root holds the lifectl commands.
package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

type globalOptions struct {
	user    string
	verbose bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "lifectl",
		Short:         "LifeOS admin tool",
		Long:          "lifectl manages a LifeOS database: migrations, quest presets, roll-ups, replays and stats.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "user ID or Telegram ID")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write logs to stderr")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newRegisterCmd(opts),
		newSeedQuestsCmd(opts),
		newStatsCmd(opts),
		newRollupCmd(opts),
		newResetCmd(opts),
		newReplayCmd(opts),
		newHashTokenCmd(),
	)
	return cmd
}

// Execute runs lifectl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Bad.Render(IconError+" "+err.Error()))
		os.Exit(1)
	}
}
