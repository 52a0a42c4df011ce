package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ascent-prep/ascent/internal/model"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ReadinessReady")
	if got != "Ready" {
		t.Errorf("T(ReadinessReady) = %q, want 'Ready'", got)
	}

	got = T(ctx, "ReadinessExamReady")
	if got != "Exam ready" {
		t.Errorf("T(ReadinessExamReady) = %q, want 'Exam ready'", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	got := T(ctx, "ReadinessExamReady")
	if got != "Listo para el examen" {
		t.Errorf("T(ReadinessExamReady) = %q, want 'Listo para el examen'", got)
	}

	got = Tp(ctx, "XPAwarded", 30)
	if got != "Ganaste 30 puntos de experiencia." {
		t.Errorf("Tp(XPAwarded, 30) = %q, want 'Ganaste 30 puntos de experiencia.'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "XPAwarded", 1)
	if got1 != "You earned 1 XP point." {
		t.Errorf("Tp(XPAwarded, 1) = %q, want 'You earned 1 XP point.'", got1)
	}

	got45 := Tp(ctx, "XPAwarded", 45)
	if got45 != "You earned 45 XP points." {
		t.Errorf("Tp(XPAwarded, 45) = %q, want 'You earned 45 XP points.'", got45)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "StudyStepTitle", map[string]any{"Concept": "Negligence"})
	if got != "Study: Negligence" {
		t.Errorf("Td(StudyStepTitle) = %q, want 'Study: Negligence'", got)
	}

	got = Td(ctx, "MilestoneTitle", map[string]any{"Number": 2})
	if got != "Milestone 2" {
		t.Errorf("Td(MilestoneTitle) = %q, want 'Milestone 2'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestReadinessLabel(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		readiness model.Readiness
		want      string
	}{
		{model.NotReady, "Not ready yet"},
		{model.Developing, "Developing"},
		{model.Ready, "Ready"},
		{model.ExamReady, "Exam ready"},
		{model.Readiness("unknown"), "unknown"},
	}
	for _, tt := range tests {
		if got := ReadinessLabel(ctx, tt.readiness); got != tt.want {
			t.Errorf("ReadinessLabel(%q) = %q, want %q", tt.readiness, got, tt.want)
		}
	}
}

func TestMiddlewareHonorsAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init(en): %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ReadinessReady")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Listo" {
		t.Errorf("with Accept-Language es: got %q, want 'Listo'", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Ready" {
		t.Errorf("without Accept-Language: got %q, want 'Ready'", got)
	}
}
