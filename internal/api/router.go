package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/frictionlens/frictionlens/internal/middleware"
	"github.com/frictionlens/frictionlens/internal/models"
	"github.com/frictionlens/frictionlens/internal/services"
	"github.com/frictionlens/frictionlens/internal/utils"
)

// Router wires the HTTP surface to the services. All dashboard routes are
// tenant-scoped through the auth claims; the survey routes are token-gated
// and public.
type Router struct {
	store       Store
	cfg         services.EngineConfig
	cache       *services.ResultCache
	auth        *services.AuthService
	org         *services.OrgService
	questions   *services.QuestionService
	assessments *services.AssessmentService
	submissions *services.SurveyResponseService
	stats       *services.StatsService
	anon        *services.AnonymityService
	overview    *services.OverviewService
}

func NewRouter(store Store, cfg services.EngineConfig) *Router {
	cache := services.NewResultCache(cfg.CacheTTL())
	stats := services.NewStatsService(store, cfg, cache)
	anon := services.NewAnonymityService(store, cfg)
	return &Router{
		store:       store,
		cfg:         cfg,
		cache:       cache,
		auth:        services.NewAuthService(store, middleware.SignToken),
		org:         services.NewOrgService(store),
		questions:   services.NewQuestionService(store),
		assessments: services.NewAssessmentService(store, cfg),
		submissions: services.NewSurveyResponseService(store, cfg, cache),
		stats:       stats,
		anon:        anon,
		overview:    services.NewOverviewService(stats, anon),
	}
}

// SeedDefaults installs the built-in question bank.
func (rt *Router) SeedDefaults() error {
	n, err := rt.questions.SeedDefaultBank()
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("seeded %d default questions", n)
	}
	return nil
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", rt.handleHealth)
	mux.HandleFunc("/api/auth/register", rt.handleRegister)
	mux.HandleFunc("/api/auth/login", rt.handleLogin)

	// respondent-facing, token-gated
	mux.HandleFunc("/api/survey", rt.handleSurvey)
	mux.HandleFunc("/api/responses/bulk", rt.handleBulkResponses)

	// dashboard, tenant-scoped
	mux.HandleFunc("/api/units", rt.handleUnits)
	mux.HandleFunc("/api/units/", rt.handleUnitScoped)
	mux.HandleFunc("/api/questions", rt.handleQuestions)
	mux.HandleFunc("/api/questions/", rt.handleQuestionScoped)
	mux.HandleFunc("/api/assessments", rt.handleAssessments)
	mux.HandleFunc("/api/assessments/", rt.handleAssessmentScoped)
	mux.HandleFunc("/api/stats/fields", rt.handleStatsFields)
	mux.HandleFunc("/api/stats/comparison", rt.handleStatsComparison)
	mux.HandleFunc("/api/stats/substitution", rt.handleStatsSubstitution)
	mux.HandleFunc("/api/stats/anonymity", rt.handleStatsAnonymity)
	mux.HandleFunc("/api/stats/recommendations", rt.handleStatsRecommendations)
	mux.HandleFunc("/api/stats/overview", rt.handleStatsOverview)
	mux.HandleFunc("/api/stats/export", rt.handleStatsExport)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service failures onto HTTP statuses. Unclassified
// errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": se.Code, "message": se.Message})
		return
	}
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal", "message": "internal error"})
}

func (rt *Router) tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tid, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		locale := middleware.LocaleFromContext(r.Context())
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized", "message": utils.T(locale, "error.unauthorized")})
		return "", false
	}
	return tid, true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid", "message": "malformed JSON body"})
		return false
	}
	return true
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": utils.T(locale, "health.ok")})
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantName string `json:"tenant_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.TenantName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/survey?token=... returns the questionnaire for one token with
// localized stems.
func (rt *Router) handleSurvey(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		writeServiceError(w, r, services.NewInvalidError("token required"))
		return
	}
	token, err := rt.store.GetToken(tokenID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if token == nil {
		writeServiceError(w, r, services.NewNotFoundError("token not found"))
		return
	}
	if token.IsUsed {
		writeServiceError(w, r, services.NewConflictError("token already used"))
		return
	}
	assessment, err := rt.store.GetAssessment(token.AssessmentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if assessment == nil {
		writeServiceError(w, r, services.NewNotFoundError("assessment not found"))
		return
	}
	questions, err := rt.questions.List(assessment.TenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	type surveyQuestion struct {
		ID    string       `json:"id"`
		Field models.Field `json:"field"`
		Stem  string       `json:"stem"`
	}
	out := make([]surveyQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, surveyQuestion{ID: q.ID, Field: q.Field, Stem: services.StemFor(q, locale)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessment_id":   assessment.ID,
		"period":          assessment.Period,
		"respondent_type": token.RespondentType,
		"display_name":    token.DisplayName,
		"scale_min":       rt.cfg.ScaleMin,
		"scale_max":       rt.cfg.ScaleMax,
		"questions":       out,
	})
}

// POST /api/responses/bulk
func (rt *Router) handleBulkResponses(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req services.SubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.submissions.Submit(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// /api/units: GET lists the tenant's tree, POST creates a node.
func (rt *Router) handleUnits(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		units, err := rt.store.ListUnits(tid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"units": units})
	case http.MethodPost:
		var req struct {
			ParentID string `json:"parent_id"`
			Name     string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		unit, err := rt.org.CreateUnit(tid, req.ParentID, req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, unit)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/units/{id}: PUT renames, DELETE cascades.
// /api/units/{id}/subtree: GET lists the subtree.
// /api/units/{id}/move: POST reparents.
func (rt *Router) handleUnitScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/units/")
	parts := strings.Split(rest, "/")
	unitID := parts[0]
	if unitID == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 && parts[1] == "subtree" {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		units, err := rt.org.Subtree(tid, unitID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"units": units})
		return
	}
	if len(parts) == 2 && parts[1] == "move" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ParentID string `json:"parent_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		unit, err := rt.org.MoveUnit(tid, unitID, req.ParentID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, unit)
		return
	}
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		unit, err := rt.org.RenameUnit(tid, unitID, req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, unit)
	case http.MethodDelete:
		if err := rt.org.DeleteUnit(tid, unitID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/questions: GET lists bank + tenant items, POST creates one.
func (rt *Router) handleQuestions(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		questions, err := rt.questions.List(tid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
	case http.MethodPost:
		var q models.Question
		if !decodeJSON(w, r, &q) {
			return
		}
		created, err := rt.questions.Create(tid, &q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// PUT /api/questions/{id}
func (rt *Router) handleQuestionScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	var q models.Question
	if !decodeJSON(w, r, &q) {
		return
	}
	q.ID = id
	updated, err := rt.questions.Update(tid, &q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// /api/assessments: GET lists rounds, POST creates one.
func (rt *Router) handleAssessments(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := rt.store.ListAssessments(tid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assessments": list})
	case http.MethodPost:
		var req services.CreateAssessmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := rt.assessments.Create(tid, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/assessments/{id}/status: POST moves the lifecycle.
// /api/assessments/{id}/tokens: POST issues a batch, GET lists them.
func (rt *Router) handleAssessmentScoped(w http.ResponseWriter, r *http.Request) {
	tid, ok := rt.tenantID(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/assessments/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	assessmentID := parts[0]
	switch parts[1] {
	case "status":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			Status models.AssessmentStatus `json:"status"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := rt.assessments.Transition(tid, assessmentID, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	case "tokens":
		switch r.Method {
		case http.MethodGet:
			tokens, err := rt.assessments.Tokens(tid, assessmentID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
		case http.MethodPost:
			var req services.IssueTokensRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			tokens, err := rt.assessments.IssueTokens(tid, assessmentID, req)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"tokens": tokens})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

// statsQuery pulls the shared stats parameters and checks that the unit
// belongs to the caller's tenant.
func (rt *Router) statsQuery(w http.ResponseWriter, r *http.Request) (unitID, assessmentID string, includeChildren bool, ok bool) {
	tid, tok := rt.tenantID(w, r)
	if !tok {
		return "", "", false, false
	}
	q := r.URL.Query()
	unitID = q.Get("unit_id")
	assessmentID = q.Get("assessment_id")
	if unitID == "" || assessmentID == "" {
		writeServiceError(w, r, services.NewInvalidError("unit_id and assessment_id required"))
		return "", "", false, false
	}
	unit, err := rt.store.GetUnit(unitID)
	if err != nil {
		writeServiceError(w, r, err)
		return "", "", false, false
	}
	if unit == nil || unit.TenantID != tid {
		writeServiceError(w, r, services.NewNotFoundError("unit not found"))
		return "", "", false, false
	}
	includeChildren = q.Get("include_children") == "true"
	return unitID, assessmentID, includeChildren, true
}

// requireDisclosure runs the anonymity gate before any aggregate leaves the
// system. A closed gate reports only the verdict and the missing count.
func (rt *Router) requireDisclosure(w http.ResponseWriter, r *http.Request, unitID, assessmentID string) bool {
	check, err := rt.anon.Check(unitID, assessmentID)
	if err != nil {
		writeServiceError(w, r, err)
		return false
	}
	if !check.CanShowResults {
		locale := middleware.LocaleFromContext(r.Context())
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":     "anonymity",
			"message":   utils.T(locale, "anonymity.blocked"),
			"anonymity": check,
		})
		return false
	}
	return true
}

func respondentTypeParam(r *http.Request) models.RespondentType {
	switch models.RespondentType(r.URL.Query().Get("respondent_type")) {
	case models.RespondentLeaderAssess:
		return models.RespondentLeaderAssess
	case models.RespondentLeaderSelf:
		return models.RespondentLeaderSelf
	default:
		return models.RespondentEmployee
	}
}

// GET /api/stats/fields
func (rt *Router) handleStatsFields(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, includeChildren, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	if !rt.requireDisclosure(w, r, unitID, assessmentID) {
		return
	}
	stats, err := rt.stats.FieldLayerStats(unitID, assessmentID, respondentTypeParam(r), includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": stats})
}

// GET /api/stats/comparison
func (rt *Router) handleStatsComparison(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, includeChildren, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	if !rt.requireDisclosure(w, r, unitID, assessmentID) {
		return
	}
	cmp, err := rt.stats.RespondentComparison(unitID, assessmentID, includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comparison": cmp})
}

// GET /api/stats/substitution
func (rt *Router) handleStatsSubstitution(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, _, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	if !rt.requireDisclosure(w, r, unitID, assessmentID) {
		return
	}
	sum, err := rt.stats.SubstitutionSummary(unitID, assessmentID, models.RespondentEmployee)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/stats/anonymity
func (rt *Router) handleStatsAnonymity(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, _, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	check, err := rt.anon.Check(unitID, assessmentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// GET /api/stats/recommendations
func (rt *Router) handleStatsRecommendations(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, includeChildren, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	if !rt.requireDisclosure(w, r, unitID, assessmentID) {
		return
	}
	stats, err := rt.stats.FieldLayerStats(unitID, assessmentID, models.RespondentEmployee, includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cmp, err := rt.stats.RespondentComparison(unitID, assessmentID, includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	recs := rt.cfg.Recommendations(stats, cmp)
	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": recs,
		"start_here":      services.StartHere(recs),
	})
}

// GET /api/stats/overview
func (rt *Router) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, includeChildren, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	ov, err := rt.overview.UnitOverview(unitID, assessmentID, includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// GET /api/stats/export: aggregate CSV, gated like every other aggregate.
func (rt *Router) handleStatsExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	unitID, assessmentID, includeChildren, ok := rt.statsQuery(w, r)
	if !ok {
		return
	}
	if !rt.requireDisclosure(w, r, unitID, assessmentID) {
		return
	}
	stats, err := rt.stats.FieldLayerStats(unitID, assessmentID, respondentTypeParam(r), includeChildren)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	b, err := services.ExportFieldStatsCSV(unitID, assessmentID, stats)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=field_stats.csv")
	_, _ = w.Write(b)
}
