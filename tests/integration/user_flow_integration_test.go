package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/frictionlens/frictionlens/internal/api"
	"github.com/frictionlens/frictionlens/internal/middleware"
	"github.com/frictionlens/frictionlens/internal/services"
)

// newTestServer wires the full HTTP surface against the in-memory store,
// including the auth and locale middleware the binary runs with.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rt := api.NewRouter(api.NewMemoryStore(), services.DefaultEngineConfig())
	if err := rt.SeedDefaults(); err != nil {
		t.Fatalf("seed default bank: %v", err)
	}
	mux := http.NewServeMux()
	rt.Register(mux)
	handler := middleware.NoStore(middleware.LocaleMiddleware(middleware.WithAuth(mux)))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAssessmentJourney(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	base := srv.URL

	userEmail := fmt.Sprintf("journey_%d@example.com", time.Now().UnixNano())
	password := "Secret123!"

	var registerResp struct {
		Token    string `json:"token"`
		TenantID string `json:"tenant_id"`
		UserID   string `json:"user_id"`
	}
	doPost(t, client, base+"/api/auth/register", "", map[string]any{
		"email":       userEmail,
		"password":    password,
		"tenant_name": "Journey GmbH",
	}, &registerResp)
	if registerResp.Token == "" || registerResp.TenantID == "" {
		t.Fatalf("unexpected register response: %+v", registerResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	doPost(t, client, base+"/api/auth/login", "", map[string]string{
		"email":    userEmail,
		"password": password,
	}, &loginResp)
	token := loginResp.Token
	if token == "" {
		t.Fatalf("login did not return token")
	}

	// Dashboard routes refuse anonymous callers.
	if status, _ := doRaw(t, client, http.MethodGet, base+"/api/units", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("units without auth: status %d", status)
	}

	var root struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/units", token, map[string]any{"name": "Engineering"}, &root)
	if root.ID == "" {
		t.Fatalf("expected unit id")
	}
	var platform struct {
		ID       string `json:"id"`
		FullPath string `json:"full_path"`
		Level    int    `json:"level"`
	}
	doPost(t, client, base+"/api/units", token, map[string]any{"parent_id": root.ID, "name": "Platform"}, &platform)
	if platform.Level != 1 || !strings.HasSuffix(platform.FullPath, "/Platform") {
		t.Fatalf("child unit not derived from parent: %+v", platform)
	}

	var assessment struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		MinResponses int    `json:"min_responses"`
	}
	doPost(t, client, base+"/api/assessments", token, map[string]any{
		"target_unit_id": root.ID,
		"period":         "2026-Q3",
		"mode":           "anonymous",
		"min_responses":  3,
	}, &assessment)
	if assessment.Status != "draft" || assessment.MinResponses != 3 {
		t.Fatalf("unexpected assessment: %+v", assessment)
	}

	doPost(t, client, base+"/api/assessments/"+assessment.ID+"/status", token,
		map[string]string{"status": "sent"}, &assessment)
	if assessment.Status != "sent" {
		t.Fatalf("transition to sent failed: %+v", assessment)
	}

	var tokensResp struct {
		Tokens []struct {
			ID string `json:"id"`
		} `json:"tokens"`
	}
	doPost(t, client, base+"/api/assessments/"+assessment.ID+"/tokens", token, map[string]any{
		"unit_id":         platform.ID,
		"respondent_type": "employee",
		"count":           3,
	}, &tokensResp)
	if len(tokensResp.Tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokensResp.Tokens))
	}

	var survey struct {
		ScaleMin  int `json:"scale_min"`
		ScaleMax  int `json:"scale_max"`
		Questions []struct {
			ID   string `json:"id"`
			Stem string `json:"stem"`
		} `json:"questions"`
	}
	doGet(t, client, base+"/api/survey?token="+tokensResp.Tokens[0].ID, "", &survey)
	if survey.ScaleMin != 1 || survey.ScaleMax != 5 {
		t.Fatalf("unexpected scale bounds: %+v", survey)
	}
	if len(survey.Questions) == 0 || survey.Questions[0].Stem == "" {
		t.Fatalf("survey has no localized questions: %+v", survey)
	}

	statsURL := fmt.Sprintf("%s/api/stats/fields?unit_id=%s&assessment_id=%s", base, platform.ID, assessment.ID)

	// The anonymity gate holds every aggregate back until enough distinct
	// respondents have answered.
	if status, body := doRaw(t, client, http.MethodGet, statsURL, token, nil); status != http.StatusForbidden {
		t.Fatalf("stats before responses: status %d body %s", status, body)
	}

	for i, tk := range tokensResp.Tokens {
		answers := make([]map[string]any, 0, len(survey.Questions))
		for _, q := range survey.Questions {
			answers = append(answers, map[string]any{"question_id": q.ID, "score": 2 + i})
		}
		var result struct {
			ResponseCount int `json:"response_count"`
		}
		doPost(t, client, base+"/api/responses/bulk", "", map[string]any{
			"token":   tk.ID,
			"answers": answers,
		}, &result)
		if result.ResponseCount != len(survey.Questions) {
			t.Fatalf("submission %d stored %d of %d answers", i, result.ResponseCount, len(survey.Questions))
		}
	}

	// A consumed token cannot attribute a second response set.
	reused, _ := json.Marshal(map[string]any{
		"token":   tokensResp.Tokens[0].ID,
		"answers": []map[string]any{{"question_id": survey.Questions[0].ID, "score": 3}},
	})
	if status, _ := doRaw(t, client, http.MethodPost, base+"/api/responses/bulk", "", reused); status != http.StatusConflict {
		t.Fatalf("token reuse: status %d", status)
	}

	var fieldsResp struct {
		Fields map[string]struct {
			AvgScore      float64 `json:"avg_score"`
			ResponseCount int     `json:"response_count"`
		} `json:"fields"`
	}
	doGet(t, client, statsURL, token, &fieldsResp)
	if len(fieldsResp.Fields) == 0 {
		t.Fatalf("expected field stats after gate opened")
	}
	for field, fs := range fieldsResp.Fields {
		if fs.ResponseCount == 0 {
			t.Fatalf("field %s has no responses", field)
		}
		if fs.AvgScore < 1 || fs.AvgScore > 5 {
			t.Fatalf("field %s average %v outside scale", field, fs.AvgScore)
		}
	}

	var overview struct {
		Anonymity struct {
			CanShowResults bool `json:"can_show_results"`
			ResponseCount  int  `json:"response_count"`
		} `json:"anonymity"`
		FieldStats      map[string]json.RawMessage `json:"field_stats"`
		Recommendations []json.RawMessage          `json:"recommendations"`
	}
	overviewURL := fmt.Sprintf("%s/api/stats/overview?unit_id=%s&assessment_id=%s", base, platform.ID, assessment.ID)
	doGet(t, client, overviewURL, token, &overview)
	if !overview.Anonymity.CanShowResults || overview.Anonymity.ResponseCount != 3 {
		t.Fatalf("unexpected anonymity verdict: %+v", overview.Anonymity)
	}
	if len(overview.FieldStats) == 0 {
		t.Fatalf("overview missing field stats")
	}

	exportURL := fmt.Sprintf("%s/api/stats/export?unit_id=%s&assessment_id=%s", base, platform.ID, assessment.ID)
	req, err := http.NewRequest(http.MethodGet, exportURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status %d body %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("export content type %q", ct)
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export data: %v", err)
	}
	if !strings.Contains(string(csvData), platform.ID) {
		t.Fatalf("export csv did not reference the unit; csv=%s", string(csvData))
	}
}

func TestAssessmentJourney_IdentifiedModeDiscloses(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	base := srv.URL

	var auth struct {
		Token string `json:"token"`
	}
	doPost(t, client, base+"/api/auth/register", "", map[string]any{
		"email":       fmt.Sprintf("lead_%d@example.com", time.Now().UnixNano()),
		"password":    "Secret123!",
		"tenant_name": "Identified Inc",
	}, &auth)

	var unit struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/units", auth.Token, map[string]any{"name": "Sales"}, &unit)

	var assessment struct {
		ID string `json:"id"`
	}
	doPost(t, client, base+"/api/assessments", auth.Token, map[string]any{
		"target_unit_id": unit.ID,
		"period":         "2026-Q3",
		"mode":           "identified",
	}, &assessment)
	doPost(t, client, base+"/api/assessments/"+assessment.ID+"/status", auth.Token,
		map[string]string{"status": "sent"}, nil)

	var tokensResp struct {
		Tokens []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"tokens"`
	}
	doPost(t, client, base+"/api/assessments/"+assessment.ID+"/tokens", auth.Token, map[string]any{
		"unit_id":         unit.ID,
		"respondent_type": "employee",
		"display_names":   []string{"Alex"},
	}, &tokensResp)
	if len(tokensResp.Tokens) != 1 || tokensResp.Tokens[0].DisplayName != "Alex" {
		t.Fatalf("identified tokens should carry display names: %+v", tokensResp)
	}

	var survey struct {
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	}
	doGet(t, client, base+"/api/survey?token="+tokensResp.Tokens[0].ID, "", &survey)
	answers := make([]map[string]any, 0, len(survey.Questions))
	for _, q := range survey.Questions {
		answers = append(answers, map[string]any{"question_id": q.ID, "score": 4})
	}
	doPost(t, client, base+"/api/responses/bulk", "", map[string]any{
		"token":   tokensResp.Tokens[0].ID,
		"answers": answers,
	}, nil)

	// Identified mode never withholds aggregates, even below the anonymous
	// threshold.
	var anon struct {
		CanShowResults bool   `json:"can_show_results"`
		Mode           string `json:"mode"`
	}
	anonURL := fmt.Sprintf("%s/api/stats/anonymity?unit_id=%s&assessment_id=%s", base, unit.ID, assessment.ID)
	doGet(t, client, anonURL, auth.Token, &anon)
	if !anon.CanShowResults || anon.Mode != "identified" {
		t.Fatalf("unexpected anonymity check: %+v", anon)
	}

	statsURL := fmt.Sprintf("%s/api/stats/fields?unit_id=%s&assessment_id=%s", base, unit.ID, assessment.ID)
	if status, body := doRaw(t, client, http.MethodGet, statsURL, auth.Token, nil); status != http.StatusOK {
		t.Fatalf("identified stats: status %d body %s", status, body)
	}
}

func doPost(t *testing.T, client *http.Client, url, token string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	status, respBody := doRaw(t, client, http.MethodPost, url, token, payload)
	if status < 200 || status >= 300 {
		t.Fatalf("unexpected status %d for %s: %s", status, url, respBody)
	}
	decode(t, url, respBody, out)
}

func doGet(t *testing.T, client *http.Client, url, token string, out any) {
	t.Helper()
	status, respBody := doRaw(t, client, http.MethodGet, url, token, nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d for %s: %s", status, url, respBody)
	}
	decode(t, url, respBody, out)
}

func doRaw(t *testing.T, client *http.Client, method, url, token string, payload []byte) (int, string) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response from %s: %v", url, err)
	}
	return resp.StatusCode, string(data)
}

func decode(t *testing.T, url, body string, out any) {
	t.Helper()
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("decode response from %s: %v (body %s)", url, err, body)
	}
}
