package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frictionlens/frictionlens/internal/api"
	"github.com/frictionlens/frictionlens/internal/models"
)

// SQLiteStore is the durable api.Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Open opens (or creates) the database file and applies migrations.
func Open(path, migrationsDir string) (*SQLiteStore, error) {
	handle, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := RunMigrations(handle, migrationsDir); err != nil {
		return nil, err
	}
	return NewSQLiteStore(handle)
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ api.Store = (*SQLiteStore)(nil)

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func encodeStringMap(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStringMap(ns sql.NullString) map[string]string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode string map: %v", err)
		return nil
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) AddTenant(t *models.Tenant) error {
	_, err := s.db.Exec(`INSERT INTO tenants (id, name) VALUES (?, ?)`, t.ID, t.Name)
	return err
}

func (s *SQLiteStore) AddUser(u *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, pass_hash, tenant_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.TenantID, u.CreatedAt)
	return err
}

func (s *SQLiteStore) FindUserByEmail(email string) (*models.User, error) {
	row := s.db.QueryRow(
		`SELECT id, email, pass_hash, tenant_id, created_at FROM users WHERE email = ?`, email)
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.TenantID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteStore) InsertUnit(u *models.OrgUnit) error {
	_, err := s.db.Exec(
		`INSERT INTO org_units (id, tenant_id, parent_id, name, full_path, level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, toNullString(u.ParentID), u.Name, u.FullPath, u.Level, u.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateUnit(u *models.OrgUnit) error {
	_, err := s.db.Exec(
		`UPDATE org_units SET parent_id = ?, name = ?, full_path = ?, level = ? WHERE id = ?`,
		toNullString(u.ParentID), u.Name, u.FullPath, u.Level, u.ID)
	return err
}

func (s *SQLiteStore) scanUnit(row interface{ Scan(...any) error }) (*models.OrgUnit, error) {
	u := &models.OrgUnit{}
	var parent sql.NullString
	err := row.Scan(&u.ID, &u.TenantID, &parent, &u.Name, &u.FullPath, &u.Level, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.ParentID = fromNullString(parent)
	return u, nil
}

const unitColumns = `id, tenant_id, parent_id, name, full_path, level, created_at`

func (s *SQLiteStore) GetUnit(id string) (*models.OrgUnit, error) {
	u, err := s.scanUnit(s.db.QueryRow(
		`SELECT `+unitColumns+` FROM org_units WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLiteStore) listUnits(query string, args ...any) ([]*models.OrgUnit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.OrgUnit{}
	for rows.Next() {
		u, err := s.scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListUnits(tenantID string) ([]*models.OrgUnit, error) {
	return s.listUnits(
		`SELECT `+unitColumns+` FROM org_units WHERE tenant_id = ? ORDER BY full_path`, tenantID)
}

func (s *SQLiteStore) ListChildren(parentID string) ([]*models.OrgUnit, error) {
	return s.listUnits(
		`SELECT `+unitColumns+` FROM org_units WHERE parent_id = ? ORDER BY name`, parentID)
}

// ListUnitSubtreeIDs walks the tree breadth-first; one query per level.
func (s *SQLiteStore) ListUnitSubtreeIDs(unitID string) ([]string, error) {
	ids := []string{unitID}
	frontier := []string{unitID}
	for len(frontier) > 0 {
		rows, err := s.db.Query(
			`SELECT id FROM org_units WHERE parent_id IN (`+placeholders(len(frontier))+`)`,
			toAnySlice(frontier)...)
		if err != nil {
			return nil, err
		}
		next := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			next = append(next, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		ids = append(ids, next...)
		frontier = next
	}
	return ids, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// DeleteUnits removes the units and everything scoped to them in one
// transaction.
func (s *SQLiteStore) DeleteUnits(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := toAnySlice(ids)
	in := placeholders(len(ids))
	stmts := []string{
		`DELETE FROM survey_responses WHERE unit_id IN (` + in + `)`,
		`DELETE FROM tokens WHERE unit_id IN (` + in + `)`,
		`DELETE FROM assessments WHERE target_unit_id IN (` + in + `)`,
		`DELETE FROM org_units WHERE id IN (` + in + `)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertQuestion(q *models.Question) error {
	stems, err := encodeStringMap(q.StemI18n)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, tenant_id, field, layer, sequence, reverse_scored, is_default, stem_i18n)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, toNullString(q.TenantID), string(q.Field), toNullString(q.Layer),
		q.Sequence, boolToInt64(q.ReverseScored), boolToInt64(q.IsDefault), stems)
	return err
}

func (s *SQLiteStore) scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	q := &models.Question{}
	var tenant, layer, stems sql.NullString
	var field string
	err := row.Scan(&q.ID, &tenant, &field, &layer, &q.Sequence, &q.ReverseScored, &q.IsDefault, &stems)
	if err != nil {
		return nil, err
	}
	q.TenantID = fromNullString(tenant)
	q.Field = models.Field(field)
	q.Layer = fromNullString(layer)
	q.StemI18n = decodeStringMap(stems)
	return q, nil
}

const questionColumns = `id, tenant_id, field, layer, sequence, reverse_scored, is_default, stem_i18n`

func (s *SQLiteStore) GetQuestion(id string) (*models.Question, error) {
	q, err := s.scanQuestion(s.db.QueryRow(
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (s *SQLiteStore) ListQuestions(tenantID string) ([]*models.Question, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM questions
		 WHERE is_default = 1 OR tenant_id = ? ORDER BY sequence, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Question{}
	for rows.Next() {
		q, err := s.scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QuestionHasResponses(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM survey_responses WHERE question_id = ?`, id).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) UpdateQuestion(q *models.Question) error {
	stems, err := encodeStringMap(q.StemI18n)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE questions SET field = ?, layer = ?, sequence = ?, reverse_scored = ?, stem_i18n = ? WHERE id = ?`,
		string(q.Field), toNullString(q.Layer), q.Sequence, boolToInt64(q.ReverseScored), stems, q.ID)
	return err
}

func (s *SQLiteStore) InsertAssessment(a *models.Assessment) error {
	_, err := s.db.Exec(
		`INSERT INTO assessments
		 (id, tenant_id, target_unit_id, period, mode, min_responses, collect_leader_self, collect_leader_assess, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.TargetUnitID, a.Period, string(a.Mode), a.MinResponses,
		boolToInt64(a.CollectLeaderSelf), boolToInt64(a.CollectLeaderAssess), string(a.Status), a.CreatedAt)
	return err
}

func (s *SQLiteStore) scanAssessment(row interface{ Scan(...any) error }) (*models.Assessment, error) {
	a := &models.Assessment{}
	var mode, status string
	err := row.Scan(&a.ID, &a.TenantID, &a.TargetUnitID, &a.Period, &mode, &a.MinResponses,
		&a.CollectLeaderSelf, &a.CollectLeaderAssess, &status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Mode = models.AssessmentMode(mode)
	a.Status = models.AssessmentStatus(status)
	return a, nil
}

const assessmentColumns = `id, tenant_id, target_unit_id, period, mode, min_responses, collect_leader_self, collect_leader_assess, status, created_at`

func (s *SQLiteStore) GetAssessment(id string) (*models.Assessment, error) {
	a, err := s.scanAssessment(s.db.QueryRow(
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) ListAssessments(tenantID string) ([]*models.Assessment, error) {
	rows, err := s.db.Query(
		`SELECT `+assessmentColumns+` FROM assessments WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Assessment{}
	for rows.Next() {
		a, err := s.scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateAssessmentStatus(id string, st models.AssessmentStatus) error {
	_, err := s.db.Exec(`UPDATE assessments SET status = ? WHERE id = ?`, string(st), id)
	return err
}

func (s *SQLiteStore) GetAssessmentConfig(assessmentID string) (*models.AssessmentConfig, error) {
	var mode string
	cfg := &models.AssessmentConfig{}
	err := s.db.QueryRow(
		`SELECT mode, min_responses FROM assessments WHERE id = ?`, assessmentID).
		Scan(&mode, &cfg.MinResponses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Mode = models.AssessmentMode(mode)
	return cfg, nil
}

func (s *SQLiteStore) InsertTokens(ts []*models.Token) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(
		`INSERT INTO tokens (id, assessment_id, unit_id, respondent_type, display_name, is_used, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range ts {
		if _, err := stmt.Exec(t.ID, t.AssessmentID, t.UnitID, string(t.RespondentType),
			toNullString(t.DisplayName), t.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) scanToken(row interface{ Scan(...any) error }) (*models.Token, error) {
	t := &models.Token{}
	var rt string
	var name sql.NullString
	var usedAt sql.NullTime
	err := row.Scan(&t.ID, &t.AssessmentID, &t.UnitID, &rt, &name, &t.IsUsed, &t.CreatedAt, &usedAt)
	if err != nil {
		return nil, err
	}
	t.RespondentType = models.RespondentType(rt)
	t.DisplayName = fromNullString(name)
	if usedAt.Valid {
		t.UsedAt = usedAt.Time
	}
	return t, nil
}

const tokenColumns = `id, assessment_id, unit_id, respondent_type, display_name, is_used, created_at, used_at`

func (s *SQLiteStore) GetToken(id string) (*models.Token, error) {
	t, err := s.scanToken(s.db.QueryRow(
		`SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) ListTokens(assessmentID string) ([]*models.Token, error) {
	rows, err := s.db.Query(
		`SELECT `+tokenColumns+` FROM tokens WHERE assessment_id = ? ORDER BY id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Token{}
	for rows.Next() {
		t, err := s.scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkTokenUsed consumes atomically: the guarded UPDATE flips the flag only
// when it is still clear, so exactly one submit wins a race.
func (s *SQLiteStore) MarkTokenUsed(id string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE tokens SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) InsertResponses(rs []*models.SurveyResponse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(
		`INSERT INTO survey_responses
		 (id, assessment_id, unit_id, question_id, respondent_type, respondent_id, score, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rs {
		if _, err := stmt.Exec(r.ID, r.AssessmentID, r.UnitID, r.QuestionID,
			string(r.RespondentType), r.RespondentID, r.Score, toNullString(r.Comment), r.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListScoredResponses is the engine's bulk fetch: raw answers joined with
// question scoring metadata over the given unit set.
func (s *SQLiteStore) ListScoredResponses(unitIDs []string, assessmentID string, rt models.RespondentType) ([]*models.ScoredResponse, error) {
	if len(unitIDs) == 0 {
		return []*models.ScoredResponse{}, nil
	}
	args := []any{assessmentID, string(rt)}
	args = append(args, toAnySlice(unitIDs)...)
	rows, err := s.db.Query(
		`SELECT r.question_id, q.field, q.layer, q.reverse_scored, r.score, r.respondent_id
		 FROM survey_responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE r.assessment_id = ? AND r.respondent_type = ?
		   AND r.unit_id IN (`+placeholders(len(unitIDs))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.ScoredResponse{}
	for rows.Next() {
		sr := &models.ScoredResponse{}
		var field string
		var layer sql.NullString
		if err := rows.Scan(&sr.QuestionID, &field, &layer, &sr.ReverseScored, &sr.Score, &sr.RespondentID); err != nil {
			return nil, err
		}
		sr.Field = models.Field(field)
		sr.Layer = fromNullString(layer)
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountDistinctEmployeeRespondents(unitID, assessmentID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(DISTINCT respondent_id) FROM survey_responses
		 WHERE assessment_id = ? AND unit_id = ? AND respondent_type = ?`,
		assessmentID, unitID, string(models.RespondentEmployee)).Scan(&n)
	return n, err
}

// AddAudit is fire-and-forget; a failed audit write is logged, never fatal.
func (s *SQLiteStore) AddAudit(e models.AuditEntry) {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		e.Time, toNullString(e.Actor), e.Action, toNullString(e.Target), toNullString(e.Note))
	if err != nil {
		log.Printf("sqlite store: add audit: %v", err)
	}
}

func (s *SQLiteStore) ListAudit() []models.AuditEntry {
	rows, err := s.db.Query(
		`SELECT at, actor, action, target, note FROM audit_log ORDER BY at`)
	if err != nil {
		log.Printf("sqlite store: list audit: %v", err)
		return nil
	}
	defer rows.Close()
	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var actor, target, note sql.NullString
		if err := rows.Scan(&e.Time, &actor, &e.Action, &target, &note); err != nil {
			log.Printf("sqlite store: list audit: %v", err)
			return out
		}
		e.Actor = fromNullString(actor)
		e.Target = fromNullString(target)
		e.Note = fromNullString(note)
		out = append(out, e)
	}
	return out
}
