package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamesmith/internal/config"
	"gamesmith/internal/executor"
	"gamesmith/internal/llm"
	"gamesmith/internal/session"
	"gamesmith/internal/store"
	"gamesmith/internal/types"
)

// scriptedModel plays back canned responses and records what it was asked.
type scriptedModel struct {
	chatResponse string
	chatErr      error
	planResponse string
	planErr      error
	summary      string

	chatCalls    int
	lastSystem   string
	lastMessages []llm.Message
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *scriptedModel) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.summary, nil
}

func (m *scriptedModel) CompleteChat(ctx context.Context, systemPrompt string, history []llm.Message) (string, error) {
	m.chatCalls++
	m.lastSystem = systemPrompt
	m.lastMessages = append([]llm.Message(nil), history...)
	if m.chatErr != nil {
		return "", m.chatErr
	}
	return m.chatResponse, nil
}

func (m *scriptedModel) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	m.lastSystem = systemPrompt
	if m.planErr != nil {
		return "", m.planErr
	}
	return m.planResponse, nil
}

type fakeAssets struct{}

func (fakeAssets) Put(sessionID, name string, data []byte) (string, error) {
	return fmt.Sprintf("https://assets.test/%s/%s.png", sessionID, name), nil
}

func (fakeAssets) Open(sessionID, name string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type fakeImages struct{}

func (fakeImages) Generate(ctx context.Context, name, prompt string) ([]byte, error) {
	return []byte("png:" + name), nil
}

type staticDirectives string

func (s staticDirectives) Current() string { return string(s) }

type fixture struct {
	orch    *Orchestrator
	store   *store.SQLiteStore
	model   *scriptedModel
	manager *session.Manager
}

func newFixture(t *testing.T, directives DirectiveSource) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:   st,
		model:   &scriptedModel{summary: "All done."},
		manager: session.NewManager(),
	}
	exec := executor.New(st, fakeAssets{}, fakeImages{}, f.model)
	f.orch = New(st, f.model, exec, f.manager, directives, config.OrchestratorConfig{
		IncludeOutline:  true,
		OutlineMaxLines: 50,
	})
	return f
}

// seedPlanned stores a session ready for its first coding cycle.
func (f *fixture) seedPlanned(t *testing.T, id string) *session.Session {
	t.Helper()
	sess := session.New(id)
	sess.Plan = &session.Plan{
		Title:    "Asteroid Run",
		Concept:  "Dodge asteroids, shoot back.",
		Features: []string{"ship movement", "asteroid spawning", "scoring"},
		Assets:   []session.PlannedAsset{{Name: "ship", Description: "small white ship"}},
		NextStep: "ship movement",
	}
	sess.Fragments.Structure = "<div id=\"game\">\n<canvas id=\"board\"></canvas>\n</div>"
	sess.Fragments.Behavior = "let score = 0;"
	require.NoError(t, sess.Transition(session.StatusPlanningComplete))
	sess.AppendTurn(session.SpeakerUser, "make an asteroids game")
	sess.AppendTurn(session.SpeakerAssistant, "Here's the plan for Asteroid Run.")
	require.NoError(t, f.store.Insert(sess))
	return sess
}

func writeBehaviorEnvelope(content string) string {
	return fmt.Sprintf(`{
		"rationale": "Wire up scoring.",
		"steps": ["show the score", "add lives"],
		"operations": [
			{"op": "write_fragment", "params": {"target": "behavior", "content": %q}}
		]
	}`, content)
}

func TestRunCycleHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")
	f.model.chatResponse = writeBehaviorEnvelope("let score = 0;\nlet lives = 3;")

	res, err := f.orch.RunCycle(context.Background(), "s1", "add scoring", nil)
	require.NoError(t, err)
	assert.Equal(t, "All done.", res.Message)

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCodingComplete, stored.Status)
	assert.Equal(t, "let score = 0;\nlet lives = 3;", stored.Fragments.Behavior)

	// Seeded exchange, user instruction, interim turn, final summary.
	require.Len(t, stored.History, 5)
	assert.Equal(t, session.SpeakerUser, stored.History[2].Speaker)
	assert.Equal(t, "add scoring", stored.History[2].Text)
	assert.Equal(t, session.SpeakerAssistant, stored.History[3].Speaker)
	assert.Contains(t, stored.History[3].Text, "Wire up scoring.")
	assert.Contains(t, stored.History[3].Text, "Next: show the score; add lives")
	assert.Equal(t, "All done.", stored.History[4].Text)

	assert.Equal(t, DefaultDirective, f.model.lastSystem)
	require.NotEmpty(t, f.model.lastMessages)
	payload := f.model.lastMessages[len(f.model.lastMessages)-1].Text
	assert.Contains(t, payload, "## Instruction\nadd scoring")
}

func TestRunCycleBusyRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")

	release, err := f.manager.Acquire("s1")
	require.NoError(t, err)
	defer release()

	_, err = f.orch.RunCycle(context.Background(), "s1", "add scoring", nil)
	require.Error(t, err)
	assert.Equal(t, types.ClassConflict, types.ClassOf(err))
	assert.Zero(t, f.model.chatCalls)
}

func TestRunCycleParseFailureLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, nil)
	seeded := f.seedPlanned(t, "s1")
	f.model.chatResponse = "Let me think about that for a moment."

	_, err := f.orch.RunCycle(context.Background(), "s1", "add scoring", nil)
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPlanningComplete, stored.Status)
	assert.Len(t, stored.History, 2)
	assert.Equal(t, seeded.Fragments, stored.Fragments)
}

func TestRunCycleUnmappableTargetLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")
	f.model.chatResponse = `{
		"rationale": "off the rails",
		"steps": [],
		"operations": [{"op": "write_fragment", "params": {"target": "README.md", "content": "hello"}}]
	}`

	_, err := f.orch.RunCycle(context.Background(), "s1", "add scoring", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 0")

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPlanningComplete, stored.Status)
	assert.Len(t, stored.History, 2)
}

func TestRunCycleModelErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")
	f.model.chatErr = types.Faultf(types.ClassUnavailable, "model offline")

	_, err := f.orch.RunCycle(context.Background(), "s1", "add scoring", nil)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
}

func TestRunCycleErrorReportTakesPriority(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")
	f.model.chatResponse = writeBehaviorEnvelope("fixed();")

	report := &session.ErrorReport{Kind: "runtime_error", Message: "TypeError: ship is undefined"}
	_, err := f.orch.RunCycle(context.Background(), "s1", "add a boss fight", report)
	require.NoError(t, err)

	payload := f.model.lastMessages[len(f.model.lastMessages)-1].Text
	reportAt := strings.Index(payload, "## Error report (runtime_error)")
	instructionAt := strings.Index(payload, "## Instruction")
	require.GreaterOrEqual(t, reportAt, 0)
	require.GreaterOrEqual(t, instructionAt, 0)
	assert.Less(t, reportAt, instructionAt)
	assert.Contains(t, payload, "TypeError: ship is undefined")
	assert.Contains(t, payload, "Fix this first.")

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Nil(t, stored.ErrorReport, "commit supersedes the report")
}

func TestRunCycleStoredReportCleared(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPlanned(t, "s1")
	require.NoError(t, f.store.SetErrorReport("s1", &session.ErrorReport{
		Kind:    "structural_warning",
		Message: "multiple behavior blocks detected in the document",
	}))
	f.model.chatResponse = writeBehaviorEnvelope("fixed();")

	_, err := f.orch.RunCycle(context.Background(), "s1", "", nil)
	require.NoError(t, err)

	payload := f.model.lastMessages[len(f.model.lastMessages)-1].Text
	assert.Contains(t, payload, "multiple behavior blocks")

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Nil(t, stored.ErrorReport)
}

func TestRunCycleExecutorFatalReleasesStatus(t *testing.T) {
	f := newFixture(t, nil)
	seeded := f.seedPlanned(t, "s1")
	f.model.chatResponse = `{
		"rationale": "Pull in a physics engine.",
		"steps": [],
		"operations": [{"op": "write_fragment", "params": {"target": "structure", "content": "<div id=\"game\"></div><script src=\"lib/physics.js\"></script>"}}]
	}`

	_, err := f.orch.RunCycle(context.Background(), "s1", "add physics", nil)
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPlanningComplete, stored.Status, "session is free for a retry")
	assert.Equal(t, seeded.Fragments.Structure, stored.Fragments.Structure)

	// The interim turn survives; the batch result does not.
	require.Len(t, stored.History, 4)
	assert.Contains(t, stored.History[3].Text, "Pull in a physics engine.")
}

func TestRunCycleRequiresPlan(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Insert(session.New("s0")))

	_, err := f.orch.RunCycle(context.Background(), "s0", "go", nil)
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))
	assert.Zero(t, f.model.chatCalls)
}

func TestRunCycleMissingSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.RunCycle(context.Background(), "ghost", "go", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRunCycleCustomDirective(t *testing.T) {
	f := newFixture(t, staticDirectives("Only ever emit empty batches."))
	f.seedPlanned(t, "s1")
	f.model.chatResponse = `{"rationale": "nothing to do", "steps": [], "operations": []}`

	_, err := f.orch.RunCycle(context.Background(), "s1", "idle", nil)
	require.NoError(t, err)
	assert.Equal(t, "Only ever emit empty batches.", f.model.lastSystem)
}

const planJSON = `{
	"title": "Asteroid Run",
	"concept": "Dodge asteroids, shoot back.",
	"features": ["ship movement", "asteroid spawning", "scoring"],
	"assets": [{"name": "ship", "description": "small white ship"}],
	"next_step": "ship movement"
}`

func TestCreatePlanNewSession(t *testing.T) {
	f := newFixture(t, nil)
	f.model.planResponse = planJSON

	sess, err := f.orch.CreateOrUpdatePlan(context.Background(), "make an asteroids game", "")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, session.StatusPlanningComplete, sess.Status)
	assert.Equal(t, "Asteroid Run", sess.Plan.Title)

	require.Len(t, sess.History, 2)
	assert.Equal(t, session.SpeakerUser, sess.History[0].Speaker)
	assert.Equal(t, "make an asteroids game", sess.History[0].Text)
	assert.Equal(t, session.SpeakerAssistant, sess.History[1].Speaker)
	assert.Contains(t, sess.History[1].Text, "Asteroid Run")
	assert.Contains(t, sess.History[1].Text, "First up: ship movement")

	stored, err := f.store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Plan.Title, stored.Plan.Title)
}

func TestCreatePlanEmptyPrompt(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.CreateOrUpdatePlan(context.Background(), "  ", "")
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))
}

func TestCreatePlanFencedResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.model.planResponse = "```json\n" + planJSON + "\n```"

	sess, err := f.orch.CreateOrUpdatePlan(context.Background(), "make an asteroids game", "")
	require.NoError(t, err)
	assert.Equal(t, "Asteroid Run", sess.Plan.Title)
}

func TestCreatePlanModelErrorPersistsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.model.planErr = types.Faultf(types.ClassUnavailable, "model offline")

	_, err := f.orch.CreateOrUpdatePlan(context.Background(), "make an asteroids game", "")
	require.Error(t, err)

	list, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdatePlanKeepsWork(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.seedPlanned(t, "s1")
	sess.Status = session.StatusCodingComplete
	sess.AddAsset("ship", "https://assets.test/s1/ship.png")
	require.NoError(t, f.store.Update(sess))

	f.model.planResponse = `{
		"title": "Invader Run",
		"concept": "Same ship, new enemies.",
		"features": ["enemy rows"],
		"assets": [],
		"next_step": "enemy rows"
	}`

	updated, err := f.orch.CreateOrUpdatePlan(context.Background(), "pivot to space invaders", "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPlanningComplete, updated.Status)
	assert.Equal(t, "Invader Run", updated.Plan.Title)

	stored, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, sess.Fragments, stored.Fragments, "fragments survive a replan")
	require.Len(t, stored.Assets, 1)
	require.Len(t, stored.History, 4)
	assert.Equal(t, "pivot to space invaders", stored.History[2].Text)
}

func TestUpdatePlanRejectedMidCycle(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.seedPlanned(t, "s1")
	sess.Status = session.StatusOrchestrating
	require.NoError(t, f.store.Update(sess))
	f.model.planResponse = planJSON

	_, err := f.orch.CreateOrUpdatePlan(context.Background(), "new plan", "s1")
	require.Error(t, err)
	assert.Equal(t, types.ClassConflict, types.ClassOf(err))
}

func TestUpdatePlanMissingSession(t *testing.T) {
	f := newFixture(t, nil)
	f.model.planResponse = planJSON
	_, err := f.orch.CreateOrUpdatePlan(context.Background(), "new plan", "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPlanNextHistoryRoles(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.seedPlanned(t, "s1")
	f.model.chatResponse = writeBehaviorEnvelope("tick();")

	_, _, err := f.orch.PlanNext(context.Background(), sess, "next step")
	require.NoError(t, err)

	require.Len(t, f.model.lastMessages, 3)
	assert.Equal(t, llm.RoleUser, f.model.lastMessages[0].Role)
	assert.Equal(t, "make an asteroids game", f.model.lastMessages[0].Text)
	assert.Equal(t, llm.RoleAssistant, f.model.lastMessages[1].Role)
	assert.Equal(t, llm.RoleUser, f.model.lastMessages[2].Role)
}

func TestInterimSummary(t *testing.T) {
	t.Run("rationale plus two steps", func(t *testing.T) {
		got := interimSummary(&ModelResponse{
			Rationale: "Start with the loop.",
			Steps:     []string{"draw ship", "spawn asteroids", "score"},
		})
		assert.Equal(t, "Start with the loop.\n\nNext: draw ship; spawn asteroids", got)
	})

	t.Run("empty rationale gets a default", func(t *testing.T) {
		got := interimSummary(&ModelResponse{})
		assert.Equal(t, "Working on the next change.", got)
	})
}
