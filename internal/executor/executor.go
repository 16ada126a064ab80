// Package executor applies one validated operation batch to a session.
//
// A batch runs in fixed stages: image generation, placeholder substitution,
// sequential code operations, a structural safety check, and finally one
// atomic persistence of fragments, assets, history, and status. Per-operation
// problems (bad ranges, unknown kinds, failed images) become summary lines
// and the batch continues; fatal problems (unmappable targets, external file
// references) abort the batch before anything is persisted.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gamesmith/internal/assembler"
	"gamesmith/internal/assets"
	"gamesmith/internal/imagegen"
	"gamesmith/internal/llm"
	"gamesmith/internal/logging"
	"gamesmith/internal/session"
	"gamesmith/internal/store"
	"gamesmith/internal/types"
)

// Executor runs operation batches.
type Executor struct {
	store  store.SessionStore
	assets assets.Store
	images imagegen.Generator
	model  llm.Client
}

// New creates an executor with its collaborators.
func New(st store.SessionStore, as assets.Store, images imagegen.Generator, model llm.Client) *Executor {
	return &Executor{store: st, assets: as, images: images, model: model}
}

// Result is the outcome of a committed batch.
type Result struct {
	// Session is the committed record after the batch.
	Session *session.Session
	// Lines are the per-operation summary lines, in processing order.
	Lines []string
	// Message is the natural-language change summary appended to history.
	Message string
}

type imageOutcome struct {
	op  types.Operation
	url string
	err error
}

// Execute applies the batch to the session and commits the result in one
// store update. On any fatal error nothing is persisted and the stored
// session is left exactly as it was.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, ops []types.Operation) (*Result, error) {
	start := time.Now()
	logging.Executor("Session %s: executing batch of %d operation(s)", sess.ID, len(ops))

	if sess.Status != session.StatusOrchestrating {
		return nil, types.Faultf(types.ClassInvalid, "session %s is %s; a batch may only run while orchestrating", sess.ID, sess.Status)
	}

	// All mutation happens on a clone; the caller's session stays pristine
	// if the batch dies. The ops slice is copied for the same reason, since
	// substitution rewrites operation contents in place.
	work := sess.Clone()
	ops = append([]types.Operation(nil), ops...)

	// Targets are validated before anything runs so a fatal batch cannot
	// leave half-applied fragments behind.
	if err := validateTargets(ops); err != nil {
		return nil, err
	}

	var lines []string

	// Stage 1: images. Generation calls are independent and run
	// concurrently; every one of them finishes (or fails) before
	// substitution starts. Failures turn into summary lines, never fatals.
	outcomes := e.generateImages(ctx, work.ID, ops)
	generated := make(map[string]string)
	var order []string
	for _, out := range outcomes {
		if out.err != nil {
			lines = append(lines, fmt.Sprintf("image %q failed: %v", out.op.Name, out.err))
			logging.AuditImage(work.ID, out.op.Name, false, out.err.Error())
			continue
		}
		if work.AddAsset(out.op.Name, out.url) {
			lines = append(lines, fmt.Sprintf("generated image %q", out.op.Name))
		} else {
			lines = append(lines, fmt.Sprintf("regenerated image %q", out.op.Name))
		}
		generated[out.op.Name] = out.url
		order = append(order, out.op.Name)
		logging.AuditImage(work.ID, out.op.Name, true, "")
	}

	// Stage 2: placeholder substitution across all three fragments, plus
	// the pending operation contents so code written in this same batch
	// resolves its references too.
	if len(generated) > 0 {
		substituteFragments(&work.Fragments, order, generated)
		for i := range ops {
			ops[i].Content = substituteCode(ops[i].Content, order, generated)
		}
	}

	// Stage 3: code operations, strictly in order. Later operations see
	// earlier effects. The rollback value is taken after substitution so a
	// rolled-back structure keeps its resolved asset URLs.
	structureAtBatchStart := work.Fragments.Structure
	for _, op := range ops {
		switch op.Kind {
		case types.OpGenerateImage:
			// handled in stage 1

		case types.OpWriteFragment:
			work.Fragments.Set(op.Target, op.Content)
			lines = append(lines, fmt.Sprintf("wrote %s fragment (%d bytes)", op.Target, len(op.Content)))

		case types.OpReplaceRange:
			line, ok := applyReplaceRange(&work.Fragments, op)
			lines = append(lines, line)
			if ok && op.Target == types.TargetStructure {
				// A bad ranged edit can sever the markup; fall back to
				// the fragment as it stood when the batch began.
				if diags := assembler.CheckTagBalance(work.Fragments.Structure); len(diags) > 0 {
					work.Fragments.Structure = structureAtBatchStart
					lines = append(lines, fmt.Sprintf("structure replace left tags unbalanced (%s); rolled back to the previous structure", strings.Join(diags, "; ")))
					logging.ExecutorWarn("Session %s: structure rollback after ranged replace", work.ID)
				}
			}

		default:
			lines = append(lines, fmt.Sprintf("skipped %s: unknown operation kind", op.Describe()))
			logging.ExecutorWarn("Session %s: skipping unknown operation kind %q", work.ID, op.Kind)
		}
	}

	// Stage 4: the structure fragment must stay self-contained. An
	// external script, stylesheet, or unresolvable image reference kills
	// the whole batch.
	if err := checkExternalRefs(work.Fragments.Structure, allowedAssetNames(work)); err != nil {
		logging.ExecutorError("Session %s: batch rejected: %v", work.ID, err)
		return nil, err
	}

	// Stage 5: change summary. Summarization failure falls back to a
	// generic message and never kills the batch.
	message := e.summarize(ctx, work, lines)
	work.AppendTurn(session.SpeakerAssistant, message)

	if err := work.Transition(session.StatusCodingComplete); err != nil {
		return nil, err
	}
	// The batch addressed the pending report; the next render either
	// confirms the fix or files a fresh one.
	work.ResolveErrorReport()

	// Single atomic commit.
	if err := e.store.Update(work); err != nil {
		return nil, types.WrapFault(types.ClassUnavailable, err, "failed to persist session %s", work.ID)
	}

	logging.Executor("Session %s: batch committed in %v (%d summary line(s))", work.ID, time.Since(start), len(lines))
	return &Result{Session: work, Lines: lines, Message: message}, nil
}

// validateTargets rejects the batch if any write or ranged replace names a
// target outside the three fragments. The orchestrator normalizes targets at
// its own boundary; this re-check keeps direct callers honest.
func validateTargets(ops []types.Operation) error {
	for i, op := range ops {
		if !op.HasTarget() {
			continue
		}
		switch op.Target {
		case types.TargetStructure, types.TargetStyle, types.TargetBehavior:
		default:
			if canonical, ok := types.NormalizeTarget(string(op.Target)); ok {
				ops[i].Target = canonical
				continue
			}
			return types.Faultf(types.ClassInvalid, "operation %d: unmappable target %q", i, op.Target)
		}
	}
	return nil
}

// generateImages runs every GenerateImage operation and reports outcomes in
// operation order regardless of completion order.
func (e *Executor) generateImages(ctx context.Context, sessionID string, ops []types.Operation) []imageOutcome {
	var imageOps []types.Operation
	for _, op := range ops {
		if op.Kind == types.OpGenerateImage {
			imageOps = append(imageOps, op)
		}
	}
	if len(imageOps) == 0 {
		return nil
	}

	outcomes := make([]imageOutcome, len(imageOps))
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	for i, op := range imageOps {
		i, op := i, op
		eg.Go(func() error {
			out := imageOutcome{op: op}
			if strings.TrimSpace(op.Name) == "" {
				out.err = fmt.Errorf("missing image name")
			} else if data, err := e.images.Generate(gctx, op.Name, op.Prompt); err != nil {
				out.err = err
			} else if url, err := e.assets.Put(sessionID, op.Name, data); err != nil {
				out.err = err
			} else {
				out.url = url
			}
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; failures ride in the outcomes.
	_ = eg.Wait()
	return outcomes
}

// applyReplaceRange edits a line range in place. Out-of-range inputs skip
// the operation with a summary line; ok reports whether the fragment was
// actually modified.
func applyReplaceRange(fragments *session.Fragments, op types.Operation) (string, bool) {
	current := fragments.Get(op.Target)
	fileLines := strings.Split(current, "\n")
	count := len(fileLines)

	if op.StartLine < 1 || op.EndLine < op.StartLine || op.EndLine > count {
		return fmt.Sprintf("skipped replace on %s: range %d-%d invalid for %d line(s)", op.Target, op.StartLine, op.EndLine, count), false
	}

	replacement := strings.Split(op.Content, "\n")
	updated := make([]string, 0, count-(op.EndLine-op.StartLine+1)+len(replacement))
	updated = append(updated, fileLines[:op.StartLine-1]...)
	updated = append(updated, replacement...)
	updated = append(updated, fileLines[op.EndLine:]...)
	fragments.Set(op.Target, strings.Join(updated, "\n"))

	return fmt.Sprintf("replaced lines %d-%d of %s", op.StartLine, op.EndLine, op.Target), true
}

// allowedAssetNames collects the names that may legitimately appear as
// unresolved image references in the structure fragment: assets already
// generated plus assets the plan still promises.
func allowedAssetNames(sess *session.Session) map[string]bool {
	allowed := make(map[string]bool)
	for _, a := range sess.Assets {
		allowed[a.Name] = true
	}
	if sess.Plan != nil {
		for _, a := range sess.Plan.Assets {
			allowed[a.Name] = true
		}
	}
	return allowed
}
