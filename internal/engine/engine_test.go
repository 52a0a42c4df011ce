package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ascent-prep/ascent/internal/enginerr"
	"github.com/ascent-prep/ascent/internal/events"
	"github.com/ascent-prep/ascent/internal/i18n"
	"github.com/ascent-prep/ascent/internal/model"
	"github.com/ascent-prep/ascent/internal/store"
)

// fakeClock lets tests move session time deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	store  *store.Store
	engine Engine
	broker *events.Broker
	clock  *fakeClock

	jurisdiction model.Jurisdiction
	student      model.Student
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	s, err := store.New(filepath.Join(t.TempDir(), "ascent.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	broker := events.NewBroker()

	jur, err := s.InsertJurisdiction(model.Jurisdiction{Code: "ca", Name: "California", PassingScore: 70})
	if err != nil {
		t.Fatalf("seed jurisdiction: %v", err)
	}
	student, err := s.CreateStudent(model.Student{DisplayName: "Jordan"})
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}

	return &testEnv{
		store:        s,
		engine:       New(s, s, broker, Config{Now: clock.Now}),
		broker:       broker,
		clock:        clock,
		jurisdiction: jur,
		student:      student,
	}
}

func (e *testEnv) seedConcept(t *testing.T, slug, name string) model.Concept {
	t.Helper()
	c, err := e.store.InsertConcept(model.Concept{
		JurisdictionID:   e.jurisdiction.ID,
		Slug:             slug,
		Name:             name,
		Difficulty:       model.DifficultyCore,
		EstimatedMinutes: 30,
	})
	if err != nil {
		t.Fatalf("seed concept %s: %v", slug, err)
	}
	return c
}

func (e *testEnv) seedItem(t *testing.T, id string, difficulty float64, topic string, conceptIDs ...string) model.Item {
	t.Helper()
	it, err := e.store.InsertItem(model.Item{
		ID:             id,
		JurisdictionID: e.jurisdiction.ID,
		Stem:           "Which answer is best?",
		Options:        [4]string{"first", "second", "third", "fourth"},
		CorrectOption:  "A",
		Discrimination: 1.2,
		Difficulty:     difficulty,
		Guessing:       0.2,
		Topic:          topic,
		ConceptIDs:     conceptIDs,
	})
	if err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
	return it
}

// collectEvents drains everything the subscription has buffered. Publishing
// happens synchronously inside engine calls, so no waiting is needed.
func collectEvents(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestStartSessionSelectsMaxInformationItem(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")
	env.seedItem(t, "i2", 1.5, "torts")

	state, err := env.engine.StartSession(context.Background(), env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 2, MaxQuestions: 4, SEThreshold: 0.3})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if state.Session.Status != model.SessionInProgress {
		t.Errorf("status = %q, want %q", state.Session.Status, model.SessionInProgress)
	}
	if state.Session.QuestionsAsked != 0 || state.Session.SE != 1 || state.Session.Theta != 0 {
		t.Errorf("fresh session carries theta %v, se %v, asked %d", state.Session.Theta, state.Session.SE, state.Session.QuestionsAsked)
	}
	// At the prior ability of zero the mid-difficulty item is the most
	// informative.
	if state.Item.ID != "i1" {
		t.Errorf("first item = %s, want i1", state.Item.ID)
	}
	if state.Session.CurrentItemID == nil || *state.Session.CurrentItemID != state.Item.ID {
		t.Error("current item does not match the returned item")
	}
	// The unset time limit is filled from defaults; explicit fields survive.
	if state.Session.Config.TimeLimitMinutes != DefaultSessionConfig.TimeLimitMinutes {
		t.Errorf("time limit = %d, want default %d", state.Session.Config.TimeLimitMinutes, DefaultSessionConfig.TimeLimitMinutes)
	}
	if state.Session.Config.MinQuestions != 2 {
		t.Errorf("min questions = %d, want 2", state.Session.Config.MinQuestions)
	}
}

func TestStartSessionAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")

	state, err := env.engine.StartSession(context.Background(), env.student.ID, env.jurisdiction.ID, model.SessionConfig{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if state.Session.Config != DefaultSessionConfig {
		t.Errorf("config = %+v, want defaults %+v", state.Session.Config, DefaultSessionConfig)
	}
}

func TestStartSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")
	ctx := context.Background()

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.engine.StartSession(ctx, "missing", env.jurisdiction.ID, model.SessionConfig{})
		if !enginerr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
	t.Run("unknown jurisdiction", func(t *testing.T) {
		_, err := env.engine.StartSession(ctx, env.student.ID, "missing", model.SessionConfig{})
		if !enginerr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
	t.Run("min above max", func(t *testing.T) {
		_, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
			model.SessionConfig{MinQuestions: 5, MaxQuestions: 3, SEThreshold: 0.3})
		if !enginerr.IsConstraint(err) {
			t.Errorf("expected constraint violation, got %v", err)
		}
	})
	t.Run("empty pool", func(t *testing.T) {
		bare := newTestEnv(t)
		_, err := bare.engine.StartSession(ctx, bare.student.ID, bare.jurisdiction.ID, model.SessionConfig{})
		if !enginerr.IsExhaustedPool(err) {
			t.Errorf("expected exhausted pool, got %v", err)
		}
	})
}

func TestSessionTerminatesAtMaxQuestions(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"i01", "i02", "i03", "i04", "i05", "i06", "i07", "i08", "i09", "i10", "i11", "i12"} {
		env.seedItem(t, id, 0, "contracts")
	}

	ctx := context.Background()
	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 5, MaxQuestions: 10, SEThreshold: 0.3})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Alternating answers keep the standard error well above the precision
	// threshold, so the session must run all the way to the ceiling.
	item := state.Item
	for seq := 0; ; seq++ {
		option := "A"
		if seq%2 == 1 {
			option = "B"
		}
		res, err := env.engine.SubmitResponse(ctx, state.Session.ID, item.ID, option, 20)
		if err != nil {
			t.Fatalf("SubmitResponse #%d: %v", seq+1, err)
		}
		if res.QuestionsAsked != seq+1 {
			t.Fatalf("questions asked = %d, want %d", res.QuestionsAsked, seq+1)
		}
		if seq+1 < 10 {
			if res.Complete {
				t.Fatalf("session completed early at %d questions (reason %s)", seq+1, res.StopReason)
			}
			if res.NextItem == nil {
				t.Fatalf("no next item at %d questions", seq+1)
			}
			item = *res.NextItem
			continue
		}
		if !res.Complete {
			t.Fatal("session did not complete at the maximum")
		}
		if res.StopReason != model.StopMaxReached {
			t.Errorf("stop reason = %q, want %q", res.StopReason, model.StopMaxReached)
		}
		if res.NextItem != nil {
			t.Error("completed result still carries a next item")
		}
		break
	}

	sess, err := env.store.GetSession(state.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != model.SessionCompleted {
		t.Errorf("status = %q, want %q", sess.Status, model.SessionCompleted)
	}
	if sess.CurrentItemID != nil {
		t.Error("completed session still has a current item")
	}
	if sess.CompletedAt == nil {
		t.Error("completed session has no completion time")
	}
	responses, err := env.store.ListResponses(state.Session.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 10 {
		t.Errorf("expected 10 responses, got %d", len(responses))
	}
}

func TestSessionStopsOnPrecision(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")
	env.seedItem(t, "i2", 0.4, "contracts")

	state, err := env.engine.StartSession(context.Background(), env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 1, MaxQuestions: 10, SEThreshold: 0.99})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// One informative response pulls the posterior SE under the generous
	// threshold, and the minimum is already satisfied.
	res, err := env.engine.SubmitResponse(context.Background(), state.Session.ID, state.Item.ID, "A", 15)
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if !res.Complete {
		t.Fatalf("session did not complete (se %v)", res.SE)
	}
	if res.StopReason != model.StopPrecisionReached {
		t.Errorf("stop reason = %q, want %q", res.StopReason, model.StopPrecisionReached)
	}
	if res.QuestionsAsked != 1 {
		t.Errorf("questions asked = %d, want 1", res.QuestionsAsked)
	}
}

func TestSubmitResponseGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")
	env.seedItem(t, "i2", 0.2, "contracts")
	ctx := context.Background()

	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 2, MaxQuestions: 2, SEThreshold: 0.3})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.engine.SubmitResponse(ctx, "missing", "i1", "A", 10)
		if !enginerr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
	t.Run("wrong item", func(t *testing.T) {
		_, err := env.engine.SubmitResponse(ctx, state.Session.ID, "i2", "A", 10)
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})
	t.Run("invalid option", func(t *testing.T) {
		_, err := env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "E", 10)
		if !enginerr.IsConstraint(err) {
			t.Errorf("expected constraint violation, got %v", err)
		}
	})
	t.Run("negative elapsed", func(t *testing.T) {
		_, err := env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", -1)
		if !enginerr.IsConstraint(err) {
			t.Errorf("expected constraint violation, got %v", err)
		}
	})

	// Drive the two-question session to completion, then submit once more.
	res, err := env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", 10)
	if err != nil {
		t.Fatalf("SubmitResponse #1: %v", err)
	}
	res, err = env.engine.SubmitResponse(ctx, state.Session.ID, res.NextItem.ID, "B", 10)
	if err != nil {
		t.Fatalf("SubmitResponse #2: %v", err)
	}
	if !res.Complete {
		t.Fatal("session should be complete after the maximum")
	}
	t.Run("completed session", func(t *testing.T) {
		_, err := env.engine.SubmitResponse(ctx, state.Session.ID, "i1", "A", 10)
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})
}

func TestSessionTimeLimitExpires(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")

	ctx := context.Background()
	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 1, MaxQuestions: 2, SEThreshold: 0.3, TimeLimitMinutes: 30})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	env.clock.advance(31 * time.Minute)

	_, err = env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", 10)
	if !enginerr.IsInvalidState(err) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	sess, err := env.store.GetSession(state.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != model.SessionExpired {
		t.Errorf("status = %q, want %q", sess.Status, model.SessionExpired)
	}

	// The session stays refused once expired.
	_, err = env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", 10)
	if !enginerr.IsInvalidState(err) {
		t.Errorf("expected invalid state on expired session, got %v", err)
	}
}

func TestExhaustedPoolSurfacedNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")

	ctx := context.Background()
	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 1, MaxQuestions: 5, SEThreshold: 0.01})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// The only item is administered and precision is far off, so selection
	// has nothing left. The submission must fail loudly and leave no trace.
	_, err = env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", 10)
	if !enginerr.IsExhaustedPool(err) {
		t.Fatalf("expected exhausted pool, got %v", err)
	}

	sess, err := env.store.GetSession(state.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != model.SessionInProgress || sess.QuestionsAsked != 0 {
		t.Errorf("session mutated by failed submission: status %q, asked %d", sess.Status, sess.QuestionsAsked)
	}
	responses, err := env.store.ListResponses(state.Session.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 0 {
		t.Errorf("expected no persisted responses, got %d", len(responses))
	}
}

func TestGetReportIdempotent(t *testing.T) {
	env := newTestEnv(t)
	contracts := env.seedConcept(t, "offer", "Offer and Acceptance")
	env.seedItem(t, "i1", 0, "contracts", contracts.ID)
	env.seedItem(t, "i2", 0.2, "contracts", contracts.ID)
	ctx := context.Background()

	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 2, MaxQuestions: 2, SEThreshold: 0.3})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	t.Run("in-progress session refused", func(t *testing.T) {
		_, err := env.engine.GetReport(ctx, state.Session.ID)
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})
	t.Run("unknown session", func(t *testing.T) {
		_, err := env.engine.GetReport(ctx, "missing")
		if !enginerr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	res, err := env.engine.SubmitResponse(ctx, state.Session.ID, state.Item.ID, "A", 10)
	if err != nil {
		t.Fatalf("SubmitResponse #1: %v", err)
	}
	if _, err := env.engine.SubmitResponse(ctx, state.Session.ID, res.NextItem.ID, "A", 10); err != nil {
		t.Fatalf("SubmitResponse #2: %v", err)
	}

	first, err := env.engine.GetReport(ctx, state.Session.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	second, err := env.engine.GetReport(ctx, state.Session.ID)
	if err != nil {
		t.Fatalf("GetReport again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ across calls:\n%+v\n%+v", first, second)
	}
	if first.SessionID != state.Session.ID {
		t.Errorf("report session = %s, want %s", first.SessionID, state.Session.ID)
	}
	// Two correct answers on every linked item make the concept strong.
	if len(first.StrongConcepts) != 1 || first.StrongConcepts[0].Slug != "offer" {
		t.Errorf("strong concepts = %+v, want [offer]", first.StrongConcepts)
	}
}

func TestPrerequisiteCurationAndChain(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedConcept(t, "intent", "Intent")
	b := env.seedConcept(t, "battery", "Battery")
	c := env.seedConcept(t, "damages", "Damages")
	ctx := context.Background()

	if _, err := env.engine.AddPrerequisite(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("AddPrerequisite(b, a): %v", err)
	}
	if _, err := env.engine.AddPrerequisite(ctx, c.ID, b.ID); err != nil {
		t.Fatalf("AddPrerequisite(c, b): %v", err)
	}

	// Closing the loop in either direction is refused.
	if _, err := env.engine.AddPrerequisite(ctx, a.ID, c.ID); !enginerr.IsConstraint(err) {
		t.Errorf("expected constraint violation for transitive cycle, got %v", err)
	}
	if _, err := env.engine.AddPrerequisite(ctx, a.ID, b.ID); !enginerr.IsConstraint(err) {
		t.Errorf("expected constraint violation for reverse edge, got %v", err)
	}

	chain, err := env.engine.PrerequisiteChain(ctx, c.ID)
	if err != nil {
		t.Fatalf("PrerequisiteChain: %v", err)
	}
	wantSlugs := []string{"intent", "battery", "damages"}
	if len(chain) != len(wantSlugs) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(wantSlugs))
	}
	for i, w := range wantSlugs {
		if chain[i].Slug != w {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i].Slug, w)
		}
	}

	if _, err := env.engine.PrerequisiteChain(ctx, "missing"); !enginerr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	report, err := env.engine.ValidateGraph(ctx, env.jurisdiction.ID)
	if err != nil {
		t.Fatalf("ValidateGraph: %v", err)
	}
	if !report.Valid() {
		t.Errorf("expected a valid graph, got errors %+v", report.Errors)
	}
	// No items are linked yet, so every concept earns a warning.
	if len(report.Warnings) == 0 {
		t.Error("expected unlinked-concept warnings")
	}
	if _, err := env.engine.ValidateGraph(ctx, "missing"); !enginerr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := env.engine.RemovePrerequisite(ctx, c.ID, b.ID); err != nil {
		t.Fatalf("RemovePrerequisite: %v", err)
	}
	chain, err = env.engine.PrerequisiteChain(ctx, c.ID)
	if err != nil {
		t.Fatalf("PrerequisiteChain after removal: %v", err)
	}
	if len(chain) != 1 || chain[0].ID != c.ID {
		t.Errorf("chain after removal = %+v, want just the concept itself", chain)
	}
}

func TestGeneratePathSchedulesPrerequisitesFirst(t *testing.T) {
	env := newTestEnv(t)
	z := env.seedConcept(t, "intent", "Intent")
	y := env.seedConcept(t, "battery", "Battery")
	x := env.seedConcept(t, "damages", "Damages")
	ctx := context.Background()

	if _, err := env.engine.AddPrerequisite(ctx, y.ID, z.ID); err != nil {
		t.Fatalf("AddPrerequisite: %v", err)
	}

	// Identical calibration makes selection deterministic: ids ascending.
	env.seedItem(t, "i1", 0, "torts", y.ID)
	env.seedItem(t, "i2", 0, "torts", y.ID)
	env.seedItem(t, "i3", 0, "remedies", x.ID)
	env.seedItem(t, "i4", 0, "remedies", x.ID)

	state, err := env.engine.StartSession(ctx, env.student.ID, env.jurisdiction.ID,
		model.SessionConfig{MinQuestions: 4, MaxQuestions: 4, SEThreshold: 0.3})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	t.Run("in-progress session refused", func(t *testing.T) {
		_, err := env.engine.GeneratePath(ctx, state.Session.ID, model.PaceProfile{})
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})

	// Miss both battery items, answer both damages items correctly.
	item := state.Item
	for seq := 0; ; seq++ {
		option := "B"
		if item.ID == "i3" || item.ID == "i4" {
			option = "A"
		}
		res, err := env.engine.SubmitResponse(ctx, state.Session.ID, item.ID, option, 20)
		if err != nil {
			t.Fatalf("SubmitResponse #%d: %v", seq+1, err)
		}
		if res.Complete {
			break
		}
		item = *res.NextItem
	}

	path, err := env.engine.GeneratePath(ctx, state.Session.ID, model.PaceProfile{})
	if err != nil {
		t.Fatalf("GeneratePath: %v", err)
	}

	if path.StudentID != env.student.ID || path.SessionID != state.Session.ID {
		t.Errorf("path identity = (%s, %s), want (%s, %s)", path.StudentID, path.SessionID, env.student.ID, state.Session.ID)
	}
	if path.Status != model.PathActive {
		t.Errorf("status = %q, want %q", path.Status, model.PathActive)
	}

	// Battery is weak, so its unmastered prerequisite Intent is scheduled
	// first. Damages was strong and stays out.
	wantConcepts := []string{z.ID, z.ID, y.ID, y.ID}
	if len(path.Steps) != len(wantConcepts) {
		t.Fatalf("expected %d steps, got %d", len(wantConcepts), len(path.Steps))
	}
	for i, w := range wantConcepts {
		if path.Steps[i].ConceptID != w {
			t.Errorf("step %d schedules %q, want %q", i+1, path.Steps[i].ConceptID, w)
		}
	}
	if path.Steps[0].Kind != model.StepConceptStudy || path.Steps[0].Title != "Study: Intent" {
		t.Errorf("first step = %s %q", path.Steps[0].Kind, path.Steps[0].Title)
	}
	if path.Steps[0].Status != model.StepInProgress {
		t.Errorf("first step status = %q, want %q", path.Steps[0].Status, model.StepInProgress)
	}

	if len(path.Milestones) != 1 || path.Milestones[0].XPReward != 80 {
		t.Fatalf("milestones = %+v, want one covering all four steps", path.Milestones)
	}
	// Two 30-minute concepts at the default 30 minutes per day.
	if path.EstimatedDays != 2 {
		t.Errorf("estimated days = %d, want 2", path.EstimatedDays)
	}

	stored, err := env.store.GetPath(path.ID)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if stored == nil || len(stored.Steps) != 4 || len(stored.Milestones) != 1 {
		t.Errorf("persisted path does not match: %+v", stored)
	}

	if _, err := env.engine.GeneratePath(ctx, "missing", model.PaceProfile{}); !enginerr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

// seedPathFixture persists a completed session and a two-step path for one
// concept: a study step already in progress and a locked practice step, with
// a milestone covering both.
func seedPathFixture(t *testing.T, env *testEnv) model.LearningPath {
	t.Helper()

	concept := env.seedConcept(t, "intent", "Intent")
	sess, err := env.store.CreateSession(model.Session{
		StudentID:      env.student.ID,
		JurisdictionID: env.jurisdiction.ID,
		Status:         model.SessionCompleted,
		Config:         model.SessionConfig{MinQuestions: 1, MaxQuestions: 2, SEThreshold: 0.3},
		StartedAt:      env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	path, err := env.store.CreatePath(model.LearningPath{
		StudentID:      env.student.ID,
		JurisdictionID: env.jurisdiction.ID,
		SessionID:      sess.ID,
		Status:         model.PathActive,
		EstimatedDays:  1,
		CreatedAt:      env.clock.Now(),
		Steps: []model.PathStep{
			{Seq: 1, Kind: model.StepConceptStudy, ConceptID: concept.ID, Title: "Study: Intent", Status: model.StepInProgress, XPReward: 15},
			{Seq: 2, Kind: model.StepPracticeSet, ConceptID: concept.ID, Title: "Practice: Intent", RequiredAccuracy: 0.75, Status: model.StepLocked, XPReward: 30},
		},
		Milestones: []model.Milestone{
			{Seq: 1, Title: "Milestone 1", FirstStepSeq: 1, LastStepSeq: 2, XPReward: 40},
		},
	})
	if err != nil {
		t.Fatalf("seed path: %v", err)
	}
	return path
}

func TestStepAttemptLifecycle(t *testing.T) {
	env := newTestEnv(t)
	path := seedPathFixture(t, env)
	study, practice := path.Steps[0], path.Steps[1]
	ctx := context.Background()

	sub := env.broker.Subscribe(env.student.ID)
	defer sub.Close()

	t.Run("locked step refused", func(t *testing.T) {
		_, err := env.engine.RecordStepAttempt(ctx, practice.ID, "", true, 30)
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})
	t.Run("unknown step", func(t *testing.T) {
		_, err := env.engine.RecordStepAttempt(ctx, "missing", "", true, 30)
		if !enginerr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	// A study step completes on its first attempt and unlocks the practice.
	res, err := env.engine.RecordStepAttempt(ctx, study.ID, "", true, 120)
	if err != nil {
		t.Fatalf("RecordStepAttempt(study): %v", err)
	}
	if !res.StepComplete || res.XPAwarded != 15 {
		t.Errorf("study completion = %+v, want complete with 15 xp", res)
	}
	if res.UnlockedStepID != practice.ID {
		t.Errorf("unlocked step = %q, want %q", res.UnlockedStepID, practice.ID)
	}
	if res.PathComplete {
		t.Error("path complete after one of two steps")
	}

	got := collectEvents(sub)
	wantTypes := []events.Type{events.TypeStepCompleted, events.TypeStepUnlocked, events.TypeXPAwarded}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(got), got)
	}
	for i, w := range wantTypes {
		if got[i].Type != w {
			t.Errorf("event %d = %s, want %s", i, got[i].Type, w)
		}
	}

	// Practice at 75%% required accuracy: two hits and a miss leave it
	// incomplete, the fourth attempt tips it over exactly.
	outcomes := []bool{true, true, false}
	for i, correct := range outcomes {
		res, err := env.engine.RecordStepAttempt(ctx, practice.ID, "drill-item", correct, 30)
		if err != nil {
			t.Fatalf("RecordStepAttempt #%d: %v", i+1, err)
		}
		if res.StepComplete {
			t.Fatalf("practice completed after %d attempts", i+1)
		}
		if res.XPAwarded != 0 {
			t.Errorf("attempt %d awarded %d xp before completion", i+1, res.XPAwarded)
		}
	}
	if evs := collectEvents(sub); len(evs) != 0 {
		t.Errorf("incomplete attempts published %d events", len(evs))
	}

	res, err = env.engine.RecordStepAttempt(ctx, practice.ID, "drill-item", true, 30)
	if err != nil {
		t.Fatalf("RecordStepAttempt(final): %v", err)
	}
	if !res.StepComplete {
		t.Fatal("practice step did not complete on the fourth attempt")
	}
	if res.XPAwarded != 70 {
		t.Errorf("xp awarded = %d, want 70 (step 30 + milestone 40)", res.XPAwarded)
	}
	if len(res.MilestonesUnlocked) != 1 || res.MilestonesUnlocked[0] != path.Milestones[0].ID {
		t.Errorf("milestones unlocked = %+v, want [%s]", res.MilestonesUnlocked, path.Milestones[0].ID)
	}
	if !res.PathComplete {
		t.Error("path should complete with its last step")
	}

	got = collectEvents(sub)
	wantTypes = []events.Type{events.TypeStepCompleted, events.TypeMilestoneUnlocked, events.TypePathCompleted, events.TypeXPAwarded}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(got), got)
	}
	for i, w := range wantTypes {
		if got[i].Type != w {
			t.Errorf("event %d = %s, want %s", i, got[i].Type, w)
		}
	}

	t.Run("completed step refused", func(t *testing.T) {
		_, err := env.engine.RecordStepAttempt(ctx, practice.ID, "drill-item", true, 30)
		if !enginerr.IsInvalidState(err) {
			t.Errorf("expected invalid state, got %v", err)
		}
	})

	student, err := env.store.GetStudent(env.student.ID)
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if student.XP != 85 {
		t.Errorf("student xp = %d, want 85", student.XP)
	}

	stored, err := env.store.GetPath(path.ID)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if stored.Status != model.PathCompleted {
		t.Errorf("path status = %q, want %q", stored.Status, model.PathCompleted)
	}
	if !stored.Milestones[0].Unlocked || stored.Milestones[0].UnlockedAt == nil {
		t.Error("milestone not recorded as unlocked")
	}

	mastery, err := env.store.GetMastery(env.student.ID, path.Steps[0].ConceptID)
	if err != nil {
		t.Fatalf("GetMastery: %v", err)
	}
	// One study attempt plus four practice attempts, four of them correct.
	if mastery == nil || mastery.Attempts != 5 || mastery.Correct != 4 {
		t.Errorf("mastery = %+v, want 4/5", mastery)
	}
}

func TestWithLoggingPassesThrough(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem(t, "i1", 0, "contracts")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := WithLogging(env.engine, logger)
	ctx := context.Background()

	if _, err := eng.StartSession(ctx, "missing", env.jurisdiction.ID, model.SessionConfig{}); !enginerr.IsNotFound(err) {
		t.Errorf("expected not found through the decorator, got %v", err)
	}
	state, err := eng.StartSession(ctx, env.student.ID, env.jurisdiction.ID, model.SessionConfig{})
	if err != nil {
		t.Fatalf("StartSession through the decorator: %v", err)
	}
	if state.Item.ID != "i1" {
		t.Errorf("first item = %s, want i1", state.Item.ID)
	}
}
