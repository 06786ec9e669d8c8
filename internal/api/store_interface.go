package api

import (
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
	"github.com/frictionlens/frictionlens/internal/services"
)

// Store is the persistence surface the HTTP layer wires into the services.
// It is the union of the narrow per-service store interfaces; both the
// in-memory store and the SQLite store satisfy it.
type Store interface {
	// accounts
	AddTenant(t *models.Tenant) error
	AddUser(u *models.User) error
	FindUserByEmail(email string) (*models.User, error)

	// org tree
	InsertUnit(u *models.OrgUnit) error
	UpdateUnit(u *models.OrgUnit) error
	GetUnit(id string) (*models.OrgUnit, error)
	ListUnits(tenantID string) ([]*models.OrgUnit, error)
	ListChildren(parentID string) ([]*models.OrgUnit, error)
	ListUnitSubtreeIDs(unitID string) ([]string, error)
	DeleteUnits(ids []string) error

	// question bank
	InsertQuestion(q *models.Question) error
	GetQuestion(id string) (*models.Question, error)
	ListQuestions(tenantID string) ([]*models.Question, error)
	QuestionHasResponses(id string) (bool, error)
	UpdateQuestion(q *models.Question) error

	// assessments and tokens
	InsertAssessment(a *models.Assessment) error
	GetAssessment(id string) (*models.Assessment, error)
	ListAssessments(tenantID string) ([]*models.Assessment, error)
	UpdateAssessmentStatus(id string, st models.AssessmentStatus) error
	GetAssessmentConfig(assessmentID string) (*models.AssessmentConfig, error)
	InsertTokens(ts []*models.Token) error
	GetToken(id string) (*models.Token, error)
	ListTokens(assessmentID string) ([]*models.Token, error)
	MarkTokenUsed(id string, at time.Time) (bool, error)

	// responses
	InsertResponses(rs []*models.SurveyResponse) error
	ListScoredResponses(unitIDs []string, assessmentID string, rt models.RespondentType) ([]*models.ScoredResponse, error)
	CountDistinctEmployeeRespondents(unitID, assessmentID string) (int, error)

	// audit
	AddAudit(e models.AuditEntry)
	ListAudit() []models.AuditEntry
}

// The services accept Store directly; these assertions keep the union in
// sync with the narrow interfaces.
var (
	_ services.AuthStore       = Store(nil)
	_ services.OrgStore        = Store(nil)
	_ services.QuestionStore   = Store(nil)
	_ services.AssessmentStore = Store(nil)
	_ services.SubmissionStore = Store(nil)
	_ services.StatsStore      = Store(nil)
	_ services.AnonymityStore  = Store(nil)
)

var _ Store = (*memoryStore)(nil)
