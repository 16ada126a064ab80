// Package orchestrator runs the coding loop: it assembles the model's view
// of a session, asks for the next batch of operations, validates the answer
// at the boundary, and hands the batch to the executor. One cycle per
// session at a time; a busy session rejects new work instead of queueing it.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"gamesmith/internal/config"
	"gamesmith/internal/executor"
	"gamesmith/internal/llm"
	"gamesmith/internal/logging"
	"gamesmith/internal/session"
	"gamesmith/internal/store"
	"gamesmith/internal/types"
)

// DirectiveSource supplies the system directive for coding cycles. The
// directives package implements it with hot reload; tests implement it with
// a fixed string.
type DirectiveSource interface {
	Current() string
}

// Orchestrator owns the planning and coding entry points.
type Orchestrator struct {
	store      store.SessionStore
	model      llm.Client
	exec       *executor.Executor
	manager    *session.Manager
	parser     *Parser
	directives DirectiveSource
	cfg        config.OrchestratorConfig
}

func New(st store.SessionStore, model llm.Client, exec *executor.Executor, manager *session.Manager, directives DirectiveSource, cfg config.OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		store:      st,
		model:      model,
		exec:       exec,
		manager:    manager,
		parser:     NewParser(),
		directives: directives,
		cfg:        cfg,
	}
}

// RunCycle executes one full orchestration cycle: plan the next batch with
// the model, persist the cycle start, run the batch through the executor.
// report, when non-nil, is filed on the session before planning and takes
// priority over instruction in the model's context.
//
// A failure before the cycle start is persisted leaves the stored session
// byte-for-byte as it was. A failure in the executor keeps the interim
// assistant turn but returns the session to its prior status so the next
// cycle can run.
func (o *Orchestrator) RunCycle(ctx context.Context, sessionID, instruction string, report *session.ErrorReport) (*executor.Result, error) {
	release, err := o.manager.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	logging.AuditCycleStarted(sessionID, len(instruction))

	finish := func(ops int, err error) {
		logging.AuditCycleFinished(sessionID, ops, time.Since(started).Milliseconds(), err)
	}

	sess, err := o.store.Get(sessionID)
	if err != nil {
		finish(0, err)
		return nil, err
	}

	if !sess.Status.CanTransition(session.StatusOrchestrating) {
		err := types.Faultf(types.ClassInvalid, "session %s is %s; plan it before running a cycle", sessionID, sess.Status)
		finish(0, err)
		return nil, err
	}

	if report != nil {
		sess.FileErrorReport(report.Kind, report.Message)
		logging.AuditRuntimeReport(sessionID, report.Message)
	}

	ops, interim, err := o.PlanNext(ctx, sess, instruction)
	if err != nil {
		finish(0, err)
		return nil, err
	}

	prior := sess.Status
	work := sess.Clone()
	if strings.TrimSpace(instruction) != "" {
		work.AppendTurn(session.SpeakerUser, instruction)
	}
	work.AppendTurn(session.SpeakerAssistant, interim)
	if err := work.Transition(session.StatusOrchestrating); err != nil {
		finish(len(ops), err)
		return nil, err
	}
	if err := o.store.Update(work); err != nil {
		wrapped := types.WrapFault(types.ClassUnavailable, err, "failed to persist cycle start for session %s", sessionID)
		finish(len(ops), wrapped)
		return nil, wrapped
	}

	result, err := o.exec.Execute(ctx, work, ops)
	if err != nil {
		o.releaseStatus(work, prior)
		finish(len(ops), err)
		return nil, err
	}

	finish(len(ops), nil)
	return result, nil
}

// releaseStatus returns a session to its pre-cycle status after a failed
// batch. This is a recovery path outside the normal status machine: without
// it a fatal batch would strand the session in orchestrating forever.
func (o *Orchestrator) releaseStatus(work *session.Session, prior session.Status) {
	recovered := work.Clone()
	recovered.Status = prior
	if err := o.store.Update(recovered); err != nil {
		logging.OrchestratorError("failed to release session %s after batch failure: %v", work.ID, err)
	}
}

// PlanNext asks the model for the next batch of operations and validates the
// response. It never mutates the session. The returned summary is the
// interim assistant turn: the model's rationale plus its next two steps.
func (o *Orchestrator) PlanNext(ctx context.Context, sess *session.Session, instruction string) ([]types.Operation, string, error) {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "plan_next")

	directive := DefaultDirective
	if o.directives != nil {
		if d := strings.TrimSpace(o.directives.Current()); d != "" {
			directive = d
		}
	}

	payload := buildContext(sess, instruction, o.cfg)
	messages := append(historyMessages(sess), llm.Message{Role: llm.RoleUser, Text: payload})

	raw, err := o.model.CompleteChat(ctx, directive, messages)
	if err != nil {
		timer.Stop()
		return nil, "", err
	}

	resp, err := o.parser.Parse(raw)
	if err != nil {
		timer.Stop()
		return nil, "", err
	}

	ops, err := BuildOperations(resp.Operations)
	if err != nil {
		timer.Stop()
		return nil, "", err
	}

	logging.Orchestrator("session %s: planned %d operation(s)", sess.ID, len(ops))
	timer.StopWithThreshold(30 * time.Second)
	return ops, interimSummary(resp), nil
}

// historyMessages maps the session transcript onto chat roles. The full
// transcript goes to the model every cycle; sessions are short-lived enough
// that windowing has not been worth the loss of early context.
func historyMessages(sess *session.Session) []llm.Message {
	messages := make([]llm.Message, 0, len(sess.History)+1)
	for _, turn := range sess.History {
		role := llm.RoleUser
		if turn.Speaker == session.SpeakerAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Text: turn.Text})
	}
	return messages
}

// interimSummary condenses the model response into the assistant turn shown
// while the batch is still running.
func interimSummary(resp *ModelResponse) string {
	summary := strings.TrimSpace(resp.Rationale)
	if summary == "" {
		summary = "Working on the next change."
	}

	var next []string
	for _, step := range resp.Steps {
		if s := strings.TrimSpace(step); s != "" {
			next = append(next, s)
		}
		if len(next) == 2 {
			break
		}
	}
	if len(next) > 0 {
		summary += "\n\nNext: " + strings.Join(next, "; ")
	}
	return summary
}
