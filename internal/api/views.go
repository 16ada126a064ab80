package api

import (
	"time"

	"gamesmith/internal/session"
)

// sessionView is the wire shape of a full session.
type sessionView struct {
	ID          string               `json:"id"`
	Status      session.Status       `json:"status"`
	Plan        *session.Plan        `json:"plan,omitempty"`
	Fragments   fragmentsView        `json:"fragments"`
	Assets      []session.Asset      `json:"assets"`
	History     []turnView           `json:"history"`
	ErrorReport *session.ErrorReport `json:"error_report,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type fragmentsView struct {
	Structure string `json:"structure"`
	Style     string `json:"style"`
	Behavior  string `json:"behavior"`
}

type turnView struct {
	Speaker session.Speaker `json:"speaker"`
	Text    string          `json:"text"`
}

func viewSession(sess *session.Session) sessionView {
	turns := make([]turnView, 0, len(sess.History))
	for _, t := range sess.History {
		turns = append(turns, turnView{Speaker: t.Speaker, Text: t.Text})
	}
	assets := sess.Assets
	if assets == nil {
		assets = []session.Asset{}
	}
	return sessionView{
		ID:     sess.ID,
		Status: sess.Status,
		Plan:   sess.Plan,
		Fragments: fragmentsView{
			Structure: sess.Fragments.Structure,
			Style:     sess.Fragments.Style,
			Behavior:  sess.Fragments.Behavior,
		},
		Assets:      assets,
		History:     turns,
		ErrorReport: sess.ErrorReport,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
}

// cycleView is the response of a completed coding cycle.
type cycleView struct {
	Session sessionView `json:"session"`
	Message string      `json:"message"`
	Lines   []string    `json:"lines"`
}
