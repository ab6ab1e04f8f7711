package root

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/redis"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/scheduler/jobs"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

func newRollupCmd(opts *globalOptions) *cobra.Command {
	var (
		day    string
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Close a day: streaks, the missed-training penalty and the report",
		Long: "Rolls up one day for one user (--user) or for everyone. A day that is " +
			"already rolled up is left alone, so running this twice is safe.",
		Example: "  lifectl rollup --day 2026-05-04\n  lifectl rollup -u 123456789 --notify",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, cleanup, err := openEnv(ctx, opts, envOptions{notify: notify})
			if err != nil {
				return err
			}
			defer cleanup()

			at := time.Now()
			if day != "" {
				start, err := timeutil.ParseDay(day, e.cfg.App.Location)
				if err != nil {
					return fmt.Errorf("--day: %w", err)
				}
				at = start.Add(12 * time.Hour)
			}
			out := cmd.OutOrStdout()

			if opts.user != "" {
				user, err := e.resolveUser(ctx, opts.user)
				if err != nil {
					return err
				}
				res, err := e.svc.Rollup.Handle(ctx, command.RollupDayCommand{UserID: user.ID, Day: at})
				if err != nil {
					return err
				}
				printRollup(out, user.DisplayName, res)
				return nil
			}

			var lock jobs.DayLock
			if e.cache != nil {
				lock = redis.NewLocker(e.cache)
			}
			job := jobs.NewDailyRollupJob(e.store, e.svc.Rollup, lock, jobs.DailyRollupConfig{
				Location:    e.cfg.App.Location,
				Concurrency: e.cfg.Scheduler.MaxConcurrency,
				LockTTL:     e.cfg.Scheduler.JobTimeout,
				Logger:      e.log,
			})
			stats, err := job.RunDay(ctx, at)
			if err != nil {
				return err
			}
			if stats.SkippedByLock {
				fmt.Fprintln(out, Warn.Render(IconWarn+" another worker is rolling up "+stats.Day))
				return nil
			}

			fmt.Fprintln(out, Heading(IconScroll, "Roll-up "+stats.Day))
			fmt.Fprintln(out, LabelValue("Users", stats.TotalUsers))
			fmt.Fprintln(out, LabelValue("Rolled up", stats.RolledUp))
			fmt.Fprintln(out, LabelValue("Already done", stats.AlreadyRolled))
			fmt.Fprintln(out, LabelValue("Penalized", stats.Penalized))
			if stats.Failed > 0 {
				fmt.Fprintln(out, Bad.Render(fmt.Sprintf("Failed: %d", stats.Failed)))
				return fmt.Errorf("%d user(s) failed", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "day to close as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&notify, "notify", false, "send the report to each user in Telegram")
	return cmd
}

func printRollup(out io.Writer, name string, res *command.RollupDayResult) {
	fmt.Fprintln(out, Heading(IconScroll, fmt.Sprintf("Roll-up %s for %s", res.Day, name))+" "+OutcomeText(string(res.Outcome)))
	if res.Outcome != command.OutcomeRolledUp {
		return
	}
	if len(res.Streaks) > 0 {
		names := make([]string, 0, len(res.Streaks))
		for _, p := range res.Streaks {
			names = append(names, p.Label())
		}
		fmt.Fprintln(out, LabelValue("Streaks", strings.Join(names, ", ")))
	}
	if res.Penalized {
		fmt.Fprintln(out, Bad.Render("No training logged: penalty applied"))
	}
	if res.Report != "" {
		fmt.Fprintln(out, Panel.Render(res.Report))
	}
}
