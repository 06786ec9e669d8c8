package services

import (
	"strings"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// pathSeparator joins the materialized root-to-self unit path.
const pathSeparator = "/"

// OrgStore persists the organizational tree. DeleteUnits removes the given
// units together with everything scoped to them (tokens, responses,
// assessments targeting them) in one cascade.
type OrgStore interface {
	InsertUnit(u *models.OrgUnit) error
	UpdateUnit(u *models.OrgUnit) error
	GetUnit(id string) (*models.OrgUnit, error)
	ListChildren(parentID string) ([]*models.OrgUnit, error)
	ListUnitSubtreeIDs(unitID string) ([]string, error)
	DeleteUnits(ids []string) error
	AddAudit(e models.AuditEntry)
}

// OrgService maintains the strict unit tree: every non-root unit has exactly
// one existing parent, paths and levels are derived, deletion cascades.
type OrgService struct {
	store OrgStore
	now   func() time.Time
	idGen func() string
}

func NewOrgService(store OrgStore) *OrgService {
	return &OrgService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// CreateUnit adds a node under parentID, or a new root when parentID is
// empty. FullPath and Level are derived from the parent.
func (s *OrgService) CreateUnit(tenantID, parentID, name string) (*models.OrgUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("unit name required")
	}
	if strings.Contains(name, pathSeparator) {
		return nil, NewInvalidError("unit name must not contain " + pathSeparator)
	}
	unit := &models.OrgUnit{
		ID:        s.idGen(),
		TenantID:  tenantID,
		Name:      name,
		FullPath:  name,
		Level:     0,
		CreatedAt: s.now(),
	}
	if parentID != "" {
		parent, err := s.store.GetUnit(parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.TenantID != tenantID {
			return nil, NewNotFoundError("parent unit not found")
		}
		unit.ParentID = parent.ID
		unit.FullPath = parent.FullPath + pathSeparator + name
		unit.Level = parent.Level + 1
	}
	if err := s.store.InsertUnit(unit); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "unit.create", Target: unit.ID, Note: unit.FullPath})
	return unit, nil
}

// RenameUnit changes a unit's name and rewrites the materialized paths of
// the unit and all its descendants.
func (s *OrgService) RenameUnit(tenantID, unitID, name string) (*models.OrgUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("unit name required")
	}
	if strings.Contains(name, pathSeparator) {
		return nil, NewInvalidError("unit name must not contain " + pathSeparator)
	}
	unit, err := s.store.GetUnit(unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil || unit.TenantID != tenantID {
		return nil, NewNotFoundError("unit not found")
	}
	unit.Name = name
	unit.FullPath = name
	if unit.ParentID != "" {
		parent, err := s.store.GetUnit(unit.ParentID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			unit.FullPath = parent.FullPath + pathSeparator + name
		}
	}
	if err := s.store.UpdateUnit(unit); err != nil {
		return nil, err
	}
	if err := s.rewriteDescendantPaths(unit); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "unit.rename", Target: unit.ID, Note: unit.FullPath})
	return unit, nil
}

func (s *OrgService) rewriteDescendantPaths(parent *models.OrgUnit) error {
	children, err := s.store.ListChildren(parent.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		child.FullPath = parent.FullPath + pathSeparator + child.Name
		child.Level = parent.Level + 1
		if err := s.store.UpdateUnit(child); err != nil {
			return err
		}
		if err := s.rewriteDescendantPaths(child); err != nil {
			return err
		}
	}
	return nil
}

// MoveUnit reparents a unit (empty newParentID makes it a root) and rewrites
// the paths and levels of its whole subtree. Moving a unit under itself or
// one of its descendants is rejected.
func (s *OrgService) MoveUnit(tenantID, unitID, newParentID string) (*models.OrgUnit, error) {
	unit, err := s.store.GetUnit(unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil || unit.TenantID != tenantID {
		return nil, NewNotFoundError("unit not found")
	}
	unit.ParentID = ""
	unit.FullPath = unit.Name
	unit.Level = 0
	if newParentID != "" {
		parent, err := s.store.GetUnit(newParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.TenantID != tenantID {
			return nil, NewNotFoundError("parent unit not found")
		}
		subtree, err := s.store.ListUnitSubtreeIDs(unitID)
		if err != nil {
			return nil, err
		}
		for _, id := range subtree {
			if id == parent.ID {
				return nil, NewInvalidError("cannot move a unit into its own subtree")
			}
		}
		unit.ParentID = parent.ID
		unit.FullPath = parent.FullPath + pathSeparator + unit.Name
		unit.Level = parent.Level + 1
	}
	if err := s.store.UpdateUnit(unit); err != nil {
		return nil, err
	}
	if err := s.rewriteDescendantPaths(unit); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "unit.move", Target: unit.ID, Note: unit.FullPath})
	return unit, nil
}

// DeleteUnit removes the unit and its whole subtree; the store cascades to
// everything scoped to those units.
func (s *OrgService) DeleteUnit(tenantID, unitID string) error {
	unit, err := s.store.GetUnit(unitID)
	if err != nil {
		return err
	}
	if unit == nil || unit.TenantID != tenantID {
		return NewNotFoundError("unit not found")
	}
	ids, err := s.store.ListUnitSubtreeIDs(unitID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = []string{unitID}
	}
	if err := s.store.DeleteUnits(ids); err != nil {
		return err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "unit.delete", Target: unitID, Note: unit.FullPath})
	return nil
}

// Subtree lists the unit and all its descendants ordered by path.
func (s *OrgService) Subtree(tenantID, unitID string) ([]*models.OrgUnit, error) {
	root, err := s.store.GetUnit(unitID)
	if err != nil {
		return nil, err
	}
	if root == nil || root.TenantID != tenantID {
		return nil, NewNotFoundError("unit not found")
	}
	out := []*models.OrgUnit{root}
	var walk func(parent *models.OrgUnit) error
	walk = func(parent *models.OrgUnit) error {
		children, err := s.store.ListChildren(parent.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			out = append(out, child)
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
