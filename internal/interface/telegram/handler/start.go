package handler

import (
	"context"
	"fmt"
)

// Start greets the user. Registration and quest seeding already happened
// when the bot resolved the sender.
func Start() Handler {
	return HandlerFunc(func(_ context.Context, req Request) (string, error) {
		if !req.NewUser {
			return fmt.Sprintf("Welcome back, %s! /stats shows where you stand.", req.DisplayName), nil
		}
		return fmt.Sprintf("👋 Hi %s! I track your day across four pillars: 💼 Career, 🧠 Cognition, 💪 Physical and 🤝 Social.\n\n"+
			"Just tell me what you did (\"slept 8 hours\", \"started working on the report\", \"spent 12 on lunch\") and I will log it and award XP.\n\n"+
			"Your daily quests are ready: /quests. Miss training and every pillar loses XP at midnight. 😉", req.DisplayName), nil
	})
}

// HelpText lists the commands.
const HelpText = `Send me what you did in plain words and I will log it.

/stats: levels, streaks and clean time
/quests: today's checklist
/done <quest>: check a quest off
/undo <quest>: revert it
/help: this message`

// Help replies with HelpText.
func Help() Handler {
	return HandlerFunc(func(context.Context, Request) (string, error) {
		return HelpText, nil
	})
}
