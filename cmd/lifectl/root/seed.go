package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
)

func newSeedQuestsCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-quests",
		Short: "Add quest presets to a user",
		Long: "Upserts quest presets for a user. Without --file the built-in catalogue " +
			"is used. Existing quests with the same title get the new pillar and XP.",
		Example: "  lifectl seed-quests -u 123456789 --file quests.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := ledger.DefaultPresets()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				presets, err = ledger.LoadPresets(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
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

			n, err := command.SeedQuests(ctx, e.store, user.ID, presets)
			if err != nil {
				return err
			}
			e.invalidate(ctx, user.ID)

			fmt.Fprintln(cmd.OutOrStdout(), Good.Render(fmt.Sprintf("%s %d quest(s) seeded for %s", IconDone, n, user.DisplayName)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with quest presets")
	return cmd
}
