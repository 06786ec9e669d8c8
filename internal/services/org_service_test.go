package services

import (
	"sort"
	"testing"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// stubOrgStore is a map-backed OrgStore for exercising tree maintenance.
type stubOrgStore struct {
	units   map[string]*models.OrgUnit
	deleted []string
	audits  []models.AuditEntry
}

func newStubOrgStore() *stubOrgStore {
	return &stubOrgStore{units: map[string]*models.OrgUnit{}}
}

func (s *stubOrgStore) InsertUnit(u *models.OrgUnit) error {
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *stubOrgStore) UpdateUnit(u *models.OrgUnit) error {
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *stubOrgStore) GetUnit(id string) (*models.OrgUnit, error) {
	u, ok := s.units[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *stubOrgStore) ListChildren(parentID string) ([]*models.OrgUnit, error) {
	out := []*models.OrgUnit{}
	for _, u := range s.units {
		if u.ParentID == parentID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubOrgStore) ListUnitSubtreeIDs(unitID string) ([]string, error) {
	ids := []string{unitID}
	for i := 0; i < len(ids); i++ {
		children, _ := s.ListChildren(ids[i])
		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (s *stubOrgStore) DeleteUnits(ids []string) error {
	for _, id := range ids {
		delete(s.units, id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}

func (s *stubOrgStore) AddAudit(e models.AuditEntry) { s.audits = append(s.audits, e) }

func isServiceError(err error) bool {
	_, ok := AsServiceError(err)
	return ok
}

func newTestOrgService(store *stubOrgStore) *OrgService {
	svc := NewOrgService(store)
	svc.now = func() time.Time { return time.Unix(0, 0).UTC() }
	n := 0
	svc.idGen = func() string {
		n++
		return "unit-" + string(rune('0'+n))
	}
	return svc
}

func TestCreateUnitDerivesPathAndLevel(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)

	root, err := svc.CreateUnit("t1", "", "Engineering")
	if err != nil {
		t.Fatal(err)
	}
	if root.FullPath != "Engineering" || root.Level != 0 || root.ParentID != "" {
		t.Fatalf("root = %+v", root)
	}

	child, err := svc.CreateUnit("t1", root.ID, "Platform")
	if err != nil {
		t.Fatal(err)
	}
	if child.FullPath != "Engineering/Platform" || child.Level != 1 || child.ParentID != root.ID {
		t.Fatalf("child = %+v", child)
	}
	if len(store.audits) != 2 || store.audits[1].Action != "unit.create" {
		t.Fatalf("audits = %+v", store.audits)
	}
}

func TestCreateUnitValidation(t *testing.T) {
	svc := newTestOrgService(newStubOrgStore())
	if _, err := svc.CreateUnit("t1", "", "  "); !isServiceError(err) {
		t.Fatalf("blank name: %v", err)
	}
	if _, err := svc.CreateUnit("t1", "", "a/b"); !isServiceError(err) {
		t.Fatalf("separator in name: %v", err)
	}
	if _, err := svc.CreateUnit("t1", "nope", "Team"); !isServiceError(err) {
		t.Fatalf("missing parent: %v", err)
	}
}

func TestCreateUnitRejectsForeignParent(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, err := svc.CreateUnit("t1", "", "Engineering")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateUnit("t2", root.ID, "Team"); !isServiceError(err) {
		t.Fatalf("cross-tenant parent: %v", err)
	}
}

func TestRenameUnitRewritesDescendantPaths(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	mid, _ := svc.CreateUnit("t1", root.ID, "Platform")
	leaf, _ := svc.CreateUnit("t1", mid.ID, "Build")

	if _, err := svc.RenameUnit("t1", root.ID, "Tech"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetUnit(leaf.ID)
	if got.FullPath != "Tech/Platform/Build" {
		t.Fatalf("leaf path = %q", got.FullPath)
	}
	gotMid, _ := store.GetUnit(mid.ID)
	if gotMid.FullPath != "Tech/Platform" || gotMid.Level != 1 {
		t.Fatalf("mid = %+v", gotMid)
	}
}

func TestMoveUnitRewritesSubtree(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	mid, _ := svc.CreateUnit("t1", root.ID, "Platform")
	leaf, _ := svc.CreateUnit("t1", mid.ID, "Build")
	dest, _ := svc.CreateUnit("t1", root.ID, "Infra")

	moved, err := svc.MoveUnit("t1", mid.ID, dest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ParentID != dest.ID || moved.FullPath != "Engineering/Infra/Platform" || moved.Level != 2 {
		t.Fatalf("moved = %+v", moved)
	}
	got, _ := store.GetUnit(leaf.ID)
	if got.FullPath != "Engineering/Infra/Platform/Build" || got.Level != 3 {
		t.Fatalf("leaf = %+v", got)
	}
}

func TestMoveUnitToRoot(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	mid, _ := svc.CreateUnit("t1", root.ID, "Platform")

	moved, err := svc.MoveUnit("t1", mid.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if moved.ParentID != "" || moved.FullPath != "Platform" || moved.Level != 0 {
		t.Fatalf("moved = %+v", moved)
	}
}

func TestMoveUnitRejectsCycles(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	mid, _ := svc.CreateUnit("t1", root.ID, "Platform")
	leaf, _ := svc.CreateUnit("t1", mid.ID, "Build")

	if _, err := svc.MoveUnit("t1", mid.ID, leaf.ID); !isServiceError(err) {
		t.Fatalf("move into descendant: %v", err)
	}
	if _, err := svc.MoveUnit("t1", mid.ID, mid.ID); !isServiceError(err) {
		t.Fatalf("move into itself: %v", err)
	}
	if _, err := svc.MoveUnit("t2", mid.ID, root.ID); !isServiceError(err) {
		t.Fatalf("cross-tenant move: %v", err)
	}
}

func TestDeleteUnitCascadesSubtree(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	mid, _ := svc.CreateUnit("t1", root.ID, "Platform")
	leaf, _ := svc.CreateUnit("t1", mid.ID, "Build")
	other, _ := svc.CreateUnit("t1", root.ID, "Product")

	if err := svc.DeleteUnit("t1", mid.ID); err != nil {
		t.Fatal(err)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("deleted = %v", store.deleted)
	}
	for _, gone := range []string{mid.ID, leaf.ID} {
		if u, _ := store.GetUnit(gone); u != nil {
			t.Fatalf("unit %s survived", gone)
		}
	}
	if u, _ := store.GetUnit(other.ID); u == nil {
		t.Fatal("sibling deleted")
	}
}

func TestSubtreeListsDepthFirst(t *testing.T) {
	store := newStubOrgStore()
	svc := newTestOrgService(store)
	root, _ := svc.CreateUnit("t1", "", "Engineering")
	a, _ := svc.CreateUnit("t1", root.ID, "Alpha")
	_, _ = svc.CreateUnit("t1", a.ID, "Deep")
	_, _ = svc.CreateUnit("t1", root.ID, "Beta")

	units, err := svc.Subtree("t1", root.ID)
	if err != nil {
		t.Fatal(err)
	}
	paths := make([]string, len(units))
	for i, u := range units {
		paths[i] = u.FullPath
	}
	want := []string{"Engineering", "Engineering/Alpha", "Engineering/Alpha/Deep", "Engineering/Beta"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}

	if _, err := svc.Subtree("t2", root.ID); !isServiceError(err) {
		t.Fatalf("cross-tenant subtree: %v", err)
	}
}
