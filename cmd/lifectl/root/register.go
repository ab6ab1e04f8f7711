package root

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/command"
)

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var (
		telegramID int64
		name       string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user for a Telegram account, as /start does",
		RunE: func(cmd *cobra.Command, args []string) error {
			if telegramID <= 0 {
				return errors.New("--telegram-id is required")
			}
			e, cleanup, err := openEnv(cmd.Context(), opts, envOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := e.svc.Register.Handle(cmd.Context(), command.RegisterUserCommand{
				TelegramID:  telegramID,
				DisplayName: name,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Created {
				fmt.Fprintln(out, Good.Render(IconSparkle+" Created user ")+res.User.ID)
			} else {
				fmt.Fprintln(out, Muted.Render("User already exists: ")+res.User.ID)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram user ID")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
