package root

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/domain/event"
)

func newReplayCmd(opts *globalOptions) *cobra.Command {
	var (
		file string
		at   string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a classifier payload through the event dispatcher",
		Long: "Reads a classifier JSON payload ({\"events\": [...]}) from --file or " +
			"stdin and applies it to a user exactly as a chat message would be.",
		Example: `  echo '{"events":[{"type":"sleep","hours":8}]}' | lifectl replay -u 123456789`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			decoded, err := event.Decode(raw)
			if err != nil {
				return err
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

			received := time.Now()
			if at != "" {
				received, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			for _, s := range decoded.Skipped {
				fmt.Fprintln(out, Warn.Render(fmt.Sprintf("%s item %d skipped: %v", IconWarn, s.Index, s.Err)))
			}
			if len(decoded.Events) == 0 {
				fmt.Fprintln(out, Muted.Render("No events in payload."))
				return nil
			}

			res, err := e.svc.Dispatch.Handle(ctx, command.DispatchEventsCommand{
				UserID:     user.ID,
				Events:     decoded.Events,
				ReceivedAt: received,
			})
			if err != nil {
				return err
			}

			for _, o := range res.Outcomes {
				line := fmt.Sprintf("%d. %-13s %s", o.Index+1, o.Kind, OutcomeText(string(o.Outcome)))
				if o.Change.Delta != 0 {
					line += " " + Good.Render(fmt.Sprintf("%+d %s", o.Change.Delta, o.Change.Pillar.Label()))
				}
				if o.Change.LeveledUp {
					line += " " + Gold.Render("LEVEL UP")
				}
				if o.Err != nil {
					line += " " + Bad.Render(o.Err.Error())
				}
				fmt.Fprintln(out, line)
			}
			if reply := res.Reply(); reply != "" {
				fmt.Fprintln(out, Panel.Render(reply))
			}
			if res.AllFailed() && res.Failed > 0 {
				return fmt.Errorf("all %d event(s) failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file (default stdin)")
	cmd.Flags().StringVar(&at, "at", "", "receive time as RFC 3339 (default now)")
	return cmd
}
