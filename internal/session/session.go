// Package session defines the authoritative record for one iterative game
// build: plan, fragments, assets, history, pending error report, and status.
// The record is the unit of persistence and of concurrency control; all
// mutation goes through the methods here so the append-only and dedup
// invariants hold everywhere.
package session

import (
	"time"

	"gamesmith/internal/types"
)

// Speaker tags a history turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one history entry. History is append-only; insertion order drives
// both the model context and the UI transcript.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// PlannedAsset is one asset the plan calls for, before generation.
type PlannedAsset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Plan is the structured game plan produced once at session creation and
// immutable afterwards unless the session is re-initialized.
type Plan struct {
	Title    string         `json:"title"`
	Concept  string         `json:"concept"`
	Features []string       `json:"features"`
	Assets   []PlannedAsset `json:"assets"`
	NextStep string         `json:"next_step"`
}

// Asset is a generated asset reference. The asset list is ordered,
// append-only, and deduplicated by URL.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ErrorReport is the at-most-one pending error forwarded from the sandboxed
// preview. A new report supersedes the old one; a successful cycle that
// consumed it supersedes it with nothing.
type ErrorReport struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Fragments holds the three independently maintained code blobs. Each may be
// empty.
type Fragments struct {
	Structure string `json:"structure"`
	Style     string `json:"style"`
	Behavior  string `json:"behavior"`
}

// Get returns the fragment for a slot.
func (f Fragments) Get(target types.FragmentTarget) string {
	switch target {
	case types.TargetStructure:
		return f.Structure
	case types.TargetStyle:
		return f.Style
	case types.TargetBehavior:
		return f.Behavior
	}
	return ""
}

// Set replaces the fragment for a slot.
func (f *Fragments) Set(target types.FragmentTarget, content string) {
	switch target {
	case types.TargetStructure:
		f.Structure = content
	case types.TargetStyle:
		f.Style = content
	case types.TargetBehavior:
		f.Behavior = content
	}
}

// Session is the persistent unit holding everything about one build.
type Session struct {
	ID          string       `json:"id"`
	Plan        *Plan        `json:"plan,omitempty"`
	Fragments   Fragments    `json:"fragments"`
	Assets      []Asset      `json:"assets"`
	History     []Turn       `json:"history"`
	ErrorReport *ErrorReport `json:"error_report,omitempty"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// New returns a fresh session in the initial status.
func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Status:    StatusInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendTurn appends one history entry.
func (s *Session) AppendTurn(speaker Speaker, text string) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text})
}

// AddAsset appends an asset reference unless an asset with the same URL is
// already recorded. Returns whether the asset was added.
func (s *Session) AddAsset(name, url string) bool {
	for _, a := range s.Assets {
		if a.URL == url {
			return false
		}
	}
	s.Assets = append(s.Assets, Asset{Name: name, URL: url})
	return true
}

// FileErrorReport records a pending error report, superseding any previous
// one.
func (s *Session) FileErrorReport(kind, message string) {
	s.ErrorReport = &ErrorReport{Kind: kind, Message: message}
}

// ResolveErrorReport supersedes the pending report with nothing; called as
// part of the terminal update of a cycle that consumed it.
func (s *Session) ResolveErrorReport() {
	s.ErrorReport = nil
}

// Clone returns a deep copy. The executor mutates a clone and commits it in
// one atomic store update, so a fatal error mid-batch leaves the original
// untouched.
func (s *Session) Clone() *Session {
	dup := *s
	dup.Assets = append([]Asset(nil), s.Assets...)
	dup.History = append([]Turn(nil), s.History...)
	if s.Plan != nil {
		plan := *s.Plan
		plan.Features = append([]string(nil), s.Plan.Features...)
		plan.Assets = append([]PlannedAsset(nil), s.Plan.Assets...)
		dup.Plan = &plan
	}
	if s.ErrorReport != nil {
		report := *s.ErrorReport
		dup.ErrorReport = &report
	}
	return &dup
}
