package models

import "time"

// Field is one of the top-level friction dimensions measured by every
// assessment. The set is fixed: scoring, comparison and recommendations all
// iterate over exactly these four.
type Field string

const (
	FieldMeaning    Field = "MEANING"
	FieldSafety     Field = "SAFETY"
	FieldCapability Field = "CAPABILITY"
	FieldHassle     Field = "HASSLE"
)

// AllFields returns the friction fields in canonical order.
func AllFields() []Field {
	return []Field{FieldMeaning, FieldSafety, FieldCapability, FieldHassle}
}

// RespondentType is the role under which a response was submitted.
type RespondentType string

const (
	RespondentEmployee     RespondentType = "employee"
	RespondentLeaderAssess RespondentType = "leader_assess"
	RespondentLeaderSelf   RespondentType = "leader_self"
)

// AssessmentMode controls whether aggregate disclosure is gated on a
// minimum respondent count.
type AssessmentMode string

const (
	ModeAnonymous  AssessmentMode = "anonymous"
	ModeIdentified AssessmentMode = "identified"
)

// AssessmentStatus is the measurement-round lifecycle.
type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusScheduled AssessmentStatus = "scheduled"
	StatusSent      AssessmentStatus = "sent"
	StatusCompleted AssessmentStatus = "completed"
)

// Tenant is one customer organization. All data below is scoped to a tenant.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is an administrative dashboard account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgUnit is a node in the strict organizational tree. ParentID is empty for
// the root. FullPath is the materialized root-to-self path joined with "/",
// Level is 0 for the root.
type OrgUnit struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	FullPath  string    `json:"full_path"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is a survey item. Field/Layer place it in the friction model;
// ReverseScored marks stems phrased so that a high raw answer means less
// friction. Once responses reference a question only its stem may change.
type Question struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id,omitempty"`
	Field         Field             `json:"field"`
	Layer         string            `json:"layer,omitempty"`
	Sequence      int               `json:"sequence"`
	ReverseScored bool              `json:"reverse_scored"`
	IsDefault     bool              `json:"is_default"`
	StemI18n      map[string]string `json:"stem_i18n,omitempty"`
}

// Assessment is one measurement round over the subtree rooted at
// TargetUnitID. MinResponses applies only in anonymous mode.
type Assessment struct {
	ID                  string           `json:"id"`
	TenantID            string           `json:"tenant_id,omitempty"`
	TargetUnitID        string           `json:"target_unit_id"`
	Period              string           `json:"period"`
	Mode                AssessmentMode   `json:"mode"`
	MinResponses        int              `json:"min_responses"`
	CollectLeaderSelf   bool             `json:"collect_leader_self"`
	CollectLeaderAssess bool             `json:"collect_leader_assess"`
	Status              AssessmentStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
}

// AssessmentConfig is the slice of an assessment the anonymity gate reads.
type AssessmentConfig struct {
	Mode         AssessmentMode `json:"mode"`
	MinResponses int            `json:"min_responses"`
}

// Token is a single-use identity handed to one recipient. DisplayName is
// bound only in identified mode. A consumed token cannot be reused.
type Token struct {
	ID             string         `json:"id"`
	AssessmentID   string         `json:"assessment_id"`
	UnitID         string         `json:"unit_id"`
	RespondentType RespondentType `json:"respondent_type"`
	DisplayName    string         `json:"display_name,omitempty"`
	IsUsed         bool           `json:"is_used"`
	CreatedAt      time.Time      `json:"created_at"`
	UsedAt         time.Time      `json:"used_at,omitempty"`
}

// SurveyResponse is one raw answer. Immutable once written; RespondentID is
// the consuming token's id and groups the answers of one respondent.
type SurveyResponse struct {
	ID             string         `json:"id"`
	AssessmentID   string         `json:"assessment_id"`
	UnitID         string         `json:"unit_id"`
	QuestionID     string         `json:"question_id"`
	RespondentType RespondentType `json:"respondent_type"`
	RespondentID   string         `json:"respondent_id"`
	Score          int            `json:"score"`
	Comment        string         `json:"comment,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ScoredResponse is the bulk-fetch row the analysis engine consumes: a raw
// answer joined with its question's scoring metadata.
type ScoredResponse struct {
	QuestionID    string
	Field         Field
	Layer         string
	ReverseScored bool
	Score         int
	RespondentID  string
}

// AuditEntry records an administrative action.
type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
