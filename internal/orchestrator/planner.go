package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gamesmith/internal/logging"
	"gamesmith/internal/session"
	"gamesmith/internal/types"
)

// CreateOrUpdatePlan turns a player prompt into a game plan. With an empty
// sessionID it creates a new session seeded with the first user/assistant
// exchange; with an existing one it replaces the plan while keeping the
// fragments, assets, and transcript. Re-planning a session that is mid-cycle
// is rejected the same way a second cycle would be.
func (o *Orchestrator) CreateOrUpdatePlan(ctx context.Context, prompt, sessionID string) (*session.Session, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, types.Faultf(types.ClassInvalid, "plan prompt is empty")
	}

	if sessionID == "" {
		return o.createPlan(ctx, prompt)
	}
	return o.updatePlan(ctx, prompt, sessionID)
}

func (o *Orchestrator) createPlan(ctx context.Context, prompt string) (*session.Session, error) {
	plan, err := o.generatePlan(ctx, prompt)
	if err != nil {
		return nil, err
	}

	sess := session.New(o.manager.NewID())
	sess.Plan = plan
	if err := sess.Transition(session.StatusPlanningComplete); err != nil {
		return nil, err
	}
	sess.AppendTurn(session.SpeakerUser, prompt)
	sess.AppendTurn(session.SpeakerAssistant, planRestatement(plan))

	if err := o.store.Insert(sess); err != nil {
		return nil, types.WrapFault(types.ClassUnavailable, err, "failed to persist new session")
	}

	logging.AuditCyclePlan(sess.ID, plan.Title)
	logging.Session("created session %s: %s", sess.ID, plan.Title)
	return sess, nil
}

func (o *Orchestrator) updatePlan(ctx context.Context, prompt, sessionID string) (*session.Session, error) {
	// Hold the cycle slot across the model call so a coding cycle cannot
	// start against the plan being replaced.
	release, err := o.manager.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	plan, err := o.generatePlan(ctx, prompt)
	if err != nil {
		return nil, err
	}

	work := sess.Clone()
	if err := work.Reinitialize(plan); err != nil {
		return nil, err
	}
	work.AppendTurn(session.SpeakerUser, prompt)
	work.AppendTurn(session.SpeakerAssistant, planRestatement(plan))

	if err := o.store.Update(work); err != nil {
		return nil, types.WrapFault(types.ClassUnavailable, err, "failed to persist plan for session %s", sessionID)
	}

	logging.AuditCyclePlan(work.ID, plan.Title)
	logging.Session("replanned session %s: %s", work.ID, plan.Title)
	return work, nil
}

func (o *Orchestrator) generatePlan(ctx context.Context, prompt string) (*session.Plan, error) {
	raw, err := o.model.CompleteWithSchema(ctx, planDirective, prompt, planSchema)
	if err != nil {
		return nil, err
	}

	candidate, _ := extractCandidate(raw)
	var plan session.Plan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		return nil, types.WrapFault(types.ClassInvalid, err, "plan response malformed")
	}

	if strings.TrimSpace(plan.Title) == "" {
		plan.Title = "Untitled game"
	}
	if strings.TrimSpace(plan.NextStep) == "" && len(plan.Features) > 0 {
		plan.NextStep = plan.Features[0]
	}
	return &plan, nil
}

// planRestatement is the assistant's side of the seeded exchange: the plan
// read back as a chat message.
func planRestatement(p *session.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the plan for %s: %s", p.Title, p.Concept)
	if len(p.Features) > 0 {
		b.WriteString("\n\nFeatures:")
		for _, f := range p.Features {
			fmt.Fprintf(&b, "\n- %s", f)
		}
	}
	if strings.TrimSpace(p.NextStep) != "" {
		fmt.Fprintf(&b, "\n\nFirst up: %s", p.NextStep)
	}
	return b.String()
}
