package executor

import (
	"context"
	"fmt"
	"strings"

	"gamesmith/internal/logging"
	"gamesmith/internal/session"
)

// fallbackSummary is used whenever summarization fails; a batch never dies
// because the model could not describe it.
const fallbackSummary = "I've updated your game."

const summarySystemPrompt = "You are the voice of a game-building assistant. " +
	"Given a list of applied changes, reply with one or two short, friendly sentences telling the player what just changed in their game. " +
	"No lists, no technical jargon, no code."

// summarize turns the accumulated summary lines into a natural-language
// change description.
func (e *Executor) summarize(ctx context.Context, sess *session.Session, lines []string) string {
	if len(lines) == 0 {
		return fallbackSummary
	}

	title := "your game"
	if sess.Plan != nil && sess.Plan.Title != "" {
		title = sess.Plan.Title
	}
	prompt := fmt.Sprintf("Game: %s\nApplied changes:\n- %s", title, strings.Join(lines, "\n- "))

	message, err := e.model.CompleteWithSystem(ctx, summarySystemPrompt, prompt)
	if err != nil || strings.TrimSpace(message) == "" {
		logging.ExecutorWarn("Session %s: change summary failed, using fallback: %v", sess.ID, err)
		return fallbackSummary
	}
	return strings.TrimSpace(message)
}
