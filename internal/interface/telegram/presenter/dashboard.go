// Package presenter renders read models as Telegram message text.
package presenter

import (
	"fmt"
	"strings"

	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

const barWidth = 10

// ProgressBar renders a ratio in [0,1] as a fixed-width bar.
func ProgressBar(ratio float64) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*barWidth + 0.5)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", barWidth-filled)
}

// Stats renders the pillar overview and the addiction trackers.
func Stats(d *query.Dashboard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s, %s\n\n", d.DisplayName, d.Day)

	for _, p := range d.Pillars {
		fmt.Fprintf(&b, "%s %s  Lv %d  %s %d/%d", p.Emoji, p.Label, p.Level, ProgressBar(p.Progress), p.XP, p.XPToNext)
		if p.Streak > 0 {
			fmt.Fprintf(&b, "  🔥%d", p.Streak)
		}
		b.WriteString("\n")
	}

	if len(d.Trackers) > 0 {
		b.WriteString("\n🧪 Clean time\n")
		for _, t := range d.Trackers {
			fmt.Fprintf(&b, "• %s: %s (%s)", t.Name, timeutil.FormatHours(t.HoursClean), t.Rank)
			if t.RecordHours > t.HoursClean {
				fmt.Fprintf(&b, ", record %s", timeutil.FormatHours(t.RecordHours))
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n✅ Quests today: %d/%d", d.CompletedQuests(), len(d.Quests))
	return b.String()
}

// Quests renders today's checklist grouped in pillar order.
func Quests(d *query.Dashboard) string {
	if len(d.Quests) == 0 {
		return "No quests yet. Send /start to get the default set."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🗓 Quests for %s\n", d.Day)
	for _, p := range d.Pillars {
		first := true
		for _, q := range d.Quests {
			if q.Pillar != p.Pillar {
				continue
			}
			if first {
				fmt.Fprintf(&b, "\n%s %s\n", p.Emoji, p.Label)
				first = false
			}
			mark := "⬜"
			if q.Completed {
				mark = "✅"
			}
			fmt.Fprintf(&b, "%s %s (+%d)\n", mark, q.Title, q.XP)
		}
	}
	b.WriteString("\n/done <quest> to check one off, /undo <quest> to revert.")
	return b.String()
}
