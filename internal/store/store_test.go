package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"consult-transcript-service/internal/models"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshot(id, consultation string, at time.Time) *models.ClinicalAnalysisResult {
	return &models.ClinicalAnalysisResult{
		ID:             id,
		ConsultationID: consultation,
		Diagnosis:      models.Diagnosis{Primary: "Viral fever", Confidence: 0.7},
		Symptoms:       models.Symptoms{Normalized: []string{"Fever"}},
		CreatedAt:      at,
	}
}

func TestOpenEphemeral(t *testing.T) {
	s := openTestStore(t, Config{})
	if !s.Ephemeral() {
		t.Error("expected ephemeral store without path")
	}

	ctx := context.Background()
	if err := s.Append(ctx, snapshot("a-1", "c-1", time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.List(ctx, "c-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected in-memory history to hold 1 snapshot, got %d", len(got))
	}
}

func TestAppendAndList(t *testing.T) {
	s := openTestStore(t, Config{Path: filepath.Join(t.TempDir(), "history.db")})
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a-1", "a-2", "a-3"} {
		if err := s.Append(ctx, snapshot(id, "c-1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := s.Append(ctx, snapshot("b-1", "c-2", base)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.List(ctx, "c-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-3" || got[1].ID != "a-2" {
		t.Fatalf("expected newest two [a-3 a-2], got %+v", got)
	}
	if got[0].Diagnosis.Primary != "Viral fever" || got[0].Symptoms.Normalized[0] != "Fever" {
		t.Errorf("payload not round-tripped: %+v", got[0])
	}

	none, err := s.List(ctx, "missing", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty list, got %v %v", none, err)
	}
}

func TestAppend_Upsert(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	r := snapshot("a-1", "c-1", time.Now())
	s.Append(ctx, r)
	r.Diagnosis.Primary = "Dengue"
	if err := s.Append(ctx, r); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	got, _ := s.List(ctx, "c-1", 10)
	if len(got) != 1 || got[0].Diagnosis.Primary != "Dengue" {
		t.Errorf("expected single updated snapshot, got %+v", got)
	}
}

func TestAppend_Validation(t *testing.T) {
	s := openTestStore(t, Config{})
	if err := s.Append(context.Background(), snapshot("a-1", "", time.Now())); !errors.Is(err, ErrNoConsultation) {
		t.Errorf("expected ErrNoConsultation, got %v", err)
	}
	if err := s.Append(context.Background(), nil); err == nil {
		t.Error("expected error for nil analysis")
	}
}

func TestAppend_MaxPerConsultation(t *testing.T) {
	s := openTestStore(t, Config{MaxPerConsultation: 2})
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a-1", "a-2", "a-3"} {
		s.Append(ctx, snapshot(id, "c-1", base.Add(time.Duration(i)*time.Second)))
	}

	got, _ := s.List(ctx, "c-1", 10)
	if len(got) != 2 || got[0].ID != "a-3" || got[1].ID != "a-2" {
		t.Errorf("expected oldest trimmed, got %+v", got)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t, Config{Path: filepath.Join(t.TempDir(), "history.db"), RetentionDays: 1})
	ctx := context.Background()

	s.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	s.Append(ctx, snapshot("old", "c-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	s.Append(ctx, snapshot("new", "c-1", time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)))

	n, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}

	got, _ := s.List(ctx, "c-1", 10)
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("expected only recent snapshot, got %+v", got)
	}
}

func TestPrune_Disabled(t *testing.T) {
	s := openTestStore(t, Config{})
	if n, err := s.Prune(context.Background()); err != nil || n != 0 {
		t.Errorf("expected no-op prune, got %d %v", n, err)
	}
}
