package services

import (
	"testing"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// stubSubmissionStore backs the submission workflow tests.
type stubSubmissionStore struct {
	assessments map[string]*models.Assessment
	tokens      map[string]*models.Token
	questions   map[string]*models.Question
	subtrees    map[string][]string
	responses   []*models.SurveyResponse
}

func newStubSubmissionStore() *stubSubmissionStore {
	return &stubSubmissionStore{
		assessments: map[string]*models.Assessment{},
		tokens:      map[string]*models.Token{},
		questions:   map[string]*models.Question{},
		subtrees:    map[string][]string{},
	}
}

func (s *stubSubmissionStore) GetAssessment(id string) (*models.Assessment, error) {
	return s.assessments[id], nil
}

func (s *stubSubmissionStore) GetToken(id string) (*models.Token, error) {
	t, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *stubSubmissionStore) MarkTokenUsed(id string, at time.Time) (bool, error) {
	t, ok := s.tokens[id]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedAt = at
	return true, nil
}

func (s *stubSubmissionStore) GetQuestion(id string) (*models.Question, error) {
	return s.questions[id], nil
}

func (s *stubSubmissionStore) ListUnitSubtreeIDs(unitID string) ([]string, error) {
	if ids, ok := s.subtrees[unitID]; ok {
		return ids, nil
	}
	return []string{unitID}, nil
}

func (s *stubSubmissionStore) InsertResponses(rs []*models.SurveyResponse) error {
	s.responses = append(s.responses, rs...)
	return nil
}

func submissionFixture() *stubSubmissionStore {
	store := newStubSubmissionStore()
	store.assessments["a-1"] = &models.Assessment{
		ID: "a-1", TenantID: "t1", TargetUnitID: "root", Status: models.StatusSent,
	}
	store.subtrees["root"] = []string{"root", "U1"}
	store.tokens["tok-1"] = &models.Token{
		ID: "tok-1", AssessmentID: "a-1", UnitID: "U1",
		RespondentType: models.RespondentEmployee,
	}
	store.questions["q1"] = &models.Question{ID: "q1", Field: models.FieldSafety}
	store.questions["q2"] = &models.Question{ID: "q2", Field: models.FieldHassle, ReverseScored: true}
	return store
}

func TestSubmitStoresResponsesAndConsumesToken(t *testing.T) {
	store := submissionFixture()
	svc := NewSurveyResponseService(store, DefaultEngineConfig(), nil)

	res, err := svc.Submit(SubmissionRequest{
		TokenID: "tok-1",
		Answers: []SubmissionAnswer{
			{QuestionID: "q1", Score: 4, Comment: " fine "},
			{QuestionID: "q2", Score: 2},
			{QuestionID: "unknown", Score: 3}, // silently skipped
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ResponseCount != 2 || len(store.responses) != 2 {
		t.Fatalf("stored %d responses", len(store.responses))
	}
	first := store.responses[0]
	if first.UnitID != "U1" || first.RespondentID != "tok-1" || first.RespondentType != models.RespondentEmployee {
		t.Fatalf("response = %+v", first)
	}
	if first.Comment != "fine" {
		t.Fatalf("comment = %q", first.Comment)
	}
	// Raw scores are stored unadjusted.
	if store.responses[1].Score != 2 {
		t.Fatalf("reverse item stored as %d", store.responses[1].Score)
	}
	if !store.tokens["tok-1"].IsUsed {
		t.Fatal("token not consumed")
	}
}

func TestSubmitTokenSingleUse(t *testing.T) {
	store := submissionFixture()
	svc := NewSurveyResponseService(store, DefaultEngineConfig(), nil)

	req := SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}}
	if _, err := svc.Submit(req); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Submit(req)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict {
		t.Fatalf("second submit: %v", err)
	}
	if len(store.responses) != 1 {
		t.Fatalf("stored %d responses", len(store.responses))
	}
}

func TestSubmitValidation(t *testing.T) {
	store := submissionFixture()
	svc := NewSurveyResponseService(store, DefaultEngineConfig(), nil)

	cases := []struct {
		name string
		req  SubmissionRequest
	}{
		{"blank token", SubmissionRequest{Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}}},
		{"unknown token", SubmissionRequest{TokenID: "nope", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}}},
		{"score too high", SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 6}}}},
		{"score too low", SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 0}}}},
		{"no valid answers", SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "unknown", Score: 3}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Submit(c.req); !isServiceError(err) {
				t.Fatalf("got %v", err)
			}
			if len(store.responses) != 0 {
				t.Fatalf("responses stored on invalid submit")
			}
			if store.tokens["tok-1"].IsUsed {
				t.Fatal("token consumed on invalid submit")
			}
		})
	}
}

func TestSubmitRequiresSentStatus(t *testing.T) {
	for _, st := range []models.AssessmentStatus{models.StatusDraft, models.StatusScheduled, models.StatusCompleted} {
		store := submissionFixture()
		store.assessments["a-1"].Status = st
		svc := NewSurveyResponseService(store, DefaultEngineConfig(), nil)
		_, err := svc.Submit(SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}})
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorConflict {
			t.Fatalf("status %s: %v", st, err)
		}
	}
}

func TestSubmitRejectsUnitOutsideTarget(t *testing.T) {
	store := submissionFixture()
	store.subtrees["root"] = []string{"root"} // U1 no longer in scope
	svc := NewSurveyResponseService(store, DefaultEngineConfig(), nil)
	if _, err := svc.Submit(SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}}); !isServiceError(err) {
		t.Fatalf("got %v", err)
	}
}

func TestSubmitInvalidatesAssessmentCaches(t *testing.T) {
	store := submissionFixture()
	cache := NewResultCache(time.Minute)
	cache.Set(CacheKey("fieldstats", "a-1", "U1", "employee", "self"), 1)
	cache.Set(CacheKey("comparison", "a-1", "U1", "self"), 1)
	cache.Set(CacheKey("substitution", "a-1", "U1", "employee"), 1)
	cache.Set(CacheKey("fieldstats", "a-2", "U1", "employee", "self"), 1)

	svc := NewSurveyResponseService(store, DefaultEngineConfig(), cache)
	if _, err := svc.Submit(SubmissionRequest{TokenID: "tok-1", Answers: []SubmissionAnswer{{QuestionID: "q1", Score: 3}}}); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{
		CacheKey("fieldstats", "a-1", "U1", "employee", "self"),
		CacheKey("comparison", "a-1", "U1", "self"),
		CacheKey("substitution", "a-1", "U1", "employee"),
	} {
		if _, ok := cache.Get(key); ok {
			t.Fatalf("key %q survived submission", key)
		}
	}
	// Other assessments keep their aggregates.
	if _, ok := cache.Get(CacheKey("fieldstats", "a-2", "U1", "employee", "self")); !ok {
		t.Fatal("unrelated assessment cache dropped")
	}
}
