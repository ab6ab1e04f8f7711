package root

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

func newResetCmd(opts *globalOptions) *cobra.Command {
	var wipeLogs, yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a user to level 1 in every pillar",
		Long: "Resets XP, levels and streaks. With --wipe-logs the activity history " +
			"is deleted as well. Quests and addiction trackers are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			e, cleanup, err := openEnv(ctx, opts, envOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := e.resolveUser(ctx, opts.user)
			if err != nil {
				return err
			}

			res, err := command.ResetProgress(ctx, e.store, user.ID, wipeLogs, e.log)
			if err != nil {
				return err
			}
			e.invalidate(ctx, user.ID)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, Warn.Render(fmt.Sprintf("%s %s was reset", IconWarn, user.DisplayName)))
			for _, p := range progression.AllPillars() {
				before, err := res.Before.Get(p)
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "- %s %s %s\n", p.Emoji(), p.Label(),
					Muted.Render(fmt.Sprintf("was Lv %d, %d XP, streak %d", before.Level, before.XP, before.Streak)))
			}
			if wipeLogs {
				fmt.Fprintln(out, LabelValue("Logs deleted", res.LogsDeleted))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wipeLogs, "wipe-logs", false, "delete the activity history too")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
