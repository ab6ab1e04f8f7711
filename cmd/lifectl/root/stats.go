package root

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

const statsBarWidth = 20

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			d, err := e.svc.Dashboard.Handle(ctx, query.GetDashboardQuery{UserID: user.ID, RecentLimit: limit})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDashboard(d))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "recent activity entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the dashboard as JSON")
	return cmd
}

// renderDashboard lays the dashboard out as terminal panels.
func renderDashboard(d *query.Dashboard) string {
	var pillars strings.Builder
	for i, p := range d.Pillars {
		if i > 0 {
			pillars.WriteString("\n")
		}
		fmt.Fprintf(&pillars, "%s %-10s %s %s %s",
			p.Emoji,
			p.Label,
			Key.Render(fmt.Sprintf("Lv %2d", p.Level)),
			Bar(p.Progress, statsBarWidth),
			Muted.Render(fmt.Sprintf("%d/%d", p.XP, p.XPToNext)),
		)
		if p.Streak > 0 {
			pillars.WriteString(" " + Gold.Render(fmt.Sprintf("%s%d", IconFire, p.Streak)))
		}
	}

	var quests strings.Builder
	quests.WriteString(H2.Render(fmt.Sprintf("Quests %d/%d", d.CompletedQuests(), len(d.Quests))))
	for _, q := range d.Quests {
		mark, title := IconOpen, q.Title
		if q.Completed {
			mark, title = IconDone, Muted.Render(q.Title)
		}
		fmt.Fprintf(&quests, "\n%s %s %s", mark, title, Muted.Render(fmt.Sprintf("+%d", q.XP)))
	}

	blocks := []string{
		Heading(IconSparkle, d.DisplayName) + " " + Muted.Render(d.Day),
		Panel.Render(pillars.String()),
		Panel.Render(quests.String()),
	}

	if len(d.Trackers) > 0 {
		var t strings.Builder
		t.WriteString(H2.Render(IconClock + " Clean time"))
		for _, tr := range d.Trackers {
			fmt.Fprintf(&t, "\n%s %s %s", Key.Render(tr.Name), timeutil.FormatHours(tr.HoursClean), Gold.Render(tr.Rank))
			if tr.RelapseCount > 0 {
				t.WriteString(Muted.Render(fmt.Sprintf(" (%d relapses, record %s)", tr.RelapseCount, timeutil.FormatHours(tr.RecordHours))))
			}
		}
		blocks = append(blocks, Panel.Render(t.String()))
	}

	if len(d.Recent) > 0 {
		var r strings.Builder
		r.WriteString(H2.Render(IconScroll + " Recent"))
		for _, a := range d.Recent {
			xp := Good.Render(fmt.Sprintf("%+d", a.XP))
			if a.XP < 0 {
				xp = Bad.Render(fmt.Sprintf("%+d", a.XP))
			}
			fmt.Fprintf(&r, "\n%s %-9s %s %s", Muted.Render(a.OccurredAt.Format("01-02 15:04")), a.Kind, a.Title, xp)
			if a.Amount != "" {
				r.WriteString(" " + Muted.Render(a.Amount))
			}
			if a.Open {
				r.WriteString(" " + Warn.Render("open"))
			}
		}
		blocks = append(blocks, Panel.Render(r.String()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
