package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
)

type departmentRepository struct {
	depts  *departmentTable
	mships *membershipTable
}

var _ department.Repository = (*departmentRepository)(nil) // interface compliance check

func NewDepartmentRepository(db *DB) department.Repository {
	return &departmentRepository{depts: db.department, mships: db.membership}
}

func copyDepartment(dept department.Department) department.Department {
	dept.ParentID = copyStrPtr(dept.ParentID)
	return dept
}

func copyMembership(m department.Membership) department.Membership {
	m.Roles = copyStrings(m.Roles)
	return m
}

// sortDepartments orders by name then id, for stable listings.
func sortDepartments(depts []department.Department) {
	sort.Slice(depts, func(i, j int) bool {
		if depts[i].Name != depts[j].Name {
			return depts[i].Name < depts[j].Name
		}
		return depts[i].ID < depts[j].ID
	})
}

func (repo *departmentRepository) CheckCodeUniqueness(_ context.Context, code string, excludedDepts ...department.Department) error {
	repo.depts.mutex.RLock()
	defer repo.depts.mutex.RUnlock()

	for _, dept := range repo.depts.table {
		if dept.Code != code {
			continue
		}
		excluded := false
		for _, excl := range excludedDepts {
			if excl.ID == dept.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return department.ErrCodeExists
		}
	}
	return nil
}

func (repo *departmentRepository) CreateDepartment(_ context.Context, dept department.Department) (department.Department, error) {
	repo.depts.mutex.Lock()
	defer repo.depts.mutex.Unlock()

	dept = copyDepartment(dept)
	if dept.ID == "" {
		dept.ID = uuid.New().String()
	}
	repo.depts.table[dept.ID] = &dept
	return copyDepartment(dept), nil
}

func (repo *departmentRepository) GetDepartment(_ context.Context, id string) (department.Department, error) {
	repo.depts.mutex.RLock()
	defer repo.depts.mutex.RUnlock()

	if dept, ok := repo.depts.table[id]; ok {
		return copyDepartment(*dept), nil
	}
	return department.Department{}, department.ErrNotFound
}

func (repo *departmentRepository) QueryDepartments(
	_ context.Context,
	filter department.QueryFilter,
	page core.PageRequest,
) ([]department.Department, int, error) {
	repo.depts.mutex.RLock()
	defer repo.depts.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	depts := make([]department.Department, 0, len(repo.depts.table))
	for _, dept := range repo.depts.table {
		if search != "" && !strings.Contains(strings.ToLower(dept.Name), search) && !strings.Contains(dept.Code, search) {
			continue
		}
		if filter.RootsOnly && !dept.IsRoot() {
			continue
		}
		if filter.ParentID != "" && (dept.ParentID == nil || *dept.ParentID != filter.ParentID) {
			continue
		}
		depts = append(depts, copyDepartment(*dept))
	}
	sortDepartments(depts)

	start, end := core.Paginate(page, len(depts))
	return depts[start:end], len(depts), nil
}

func (repo *departmentRepository) ListChildren(_ context.Context, parentID string) ([]department.Department, error) {
	repo.depts.mutex.RLock()
	defer repo.depts.mutex.RUnlock()

	var children []department.Department
	for _, dept := range repo.depts.table {
		if dept.ParentID != nil && *dept.ParentID == parentID {
			children = append(children, copyDepartment(*dept))
		}
	}
	sortDepartments(children)
	return children, nil
}

func (repo *departmentRepository) UpdateDepartment(_ context.Context, dept department.Department) (department.Department, error) {
	repo.depts.mutex.Lock()
	defer repo.depts.mutex.Unlock()

	if _, ok := repo.depts.table[dept.ID]; !ok {
		return department.Department{}, department.ErrNotFound
	}
	dept = copyDepartment(dept)
	repo.depts.table[dept.ID] = &dept
	return copyDepartment(dept), nil
}

// DeleteDepartment deletes the department along with its memberships.
func (repo *departmentRepository) DeleteDepartment(_ context.Context, id string) error {
	repo.depts.mutex.Lock()
	defer repo.depts.mutex.Unlock()
	repo.mships.mutex.Lock()
	defer repo.mships.mutex.Unlock()

	if _, ok := repo.depts.table[id]; !ok {
		return department.ErrNotFound
	}
	delete(repo.depts.table, id)
	for key := range repo.mships.table {
		if key.departmentID == id {
			delete(repo.mships.table, key)
		}
	}
	return nil
}

func (repo *departmentRepository) UpsertMembership(_ context.Context, mship department.Membership) (department.Membership, error) {
	repo.mships.mutex.Lock()
	defer repo.mships.mutex.Unlock()

	mship = copyMembership(mship)
	repo.mships.table[membershipKey{userID: mship.UserID, departmentID: mship.DepartmentID}] = &mship
	return copyMembership(mship), nil
}

func (repo *departmentRepository) GetMembership(_ context.Context, userID, departmentID string) (department.Membership, error) {
	repo.mships.mutex.RLock()
	defer repo.mships.mutex.RUnlock()

	if m, ok := repo.mships.table[membershipKey{userID: userID, departmentID: departmentID}]; ok {
		return copyMembership(*m), nil
	}
	return department.Membership{}, department.ErrNotFound
}

func (repo *departmentRepository) ListMemberships(
	_ context.Context,
	departmentID string,
	page core.PageRequest,
) ([]department.Membership, int, error) {
	repo.mships.mutex.RLock()
	defer repo.mships.mutex.RUnlock()

	var mships []department.Membership
	for key, m := range repo.mships.table {
		if key.departmentID == departmentID {
			mships = append(mships, copyMembership(*m))
		}
	}
	sort.Slice(mships, func(i, j int) bool {
		if !mships[i].CreatedAt.Equal(mships[j].CreatedAt) {
			return mships[i].CreatedAt.Before(mships[j].CreatedAt)
		}
		return mships[i].UserID < mships[j].UserID
	})

	start, end := core.Paginate(page, len(mships))
	return mships[start:end], len(mships), nil
}

func (repo *departmentRepository) ListUserMemberships(_ context.Context, userID string) ([]department.Membership, error) {
	repo.mships.mutex.RLock()
	defer repo.mships.mutex.RUnlock()

	var mships []department.Membership
	for key, m := range repo.mships.table {
		if key.userID == userID {
			mships = append(mships, copyMembership(*m))
		}
	}
	sort.Slice(mships, func(i, j int) bool { return mships[i].DepartmentID < mships[j].DepartmentID })
	return mships, nil
}

func (repo *departmentRepository) DeleteMembership(_ context.Context, userID, departmentID string) error {
	repo.mships.mutex.Lock()
	defer repo.mships.mutex.Unlock()

	key := membershipKey{userID: userID, departmentID: departmentID}
	if _, ok := repo.mships.table[key]; !ok {
		return department.ErrNotFound
	}
	delete(repo.mships.table, key)
	return nil
}
