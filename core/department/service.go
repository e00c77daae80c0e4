package department

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
)

var (
	// errors
	ErrNotFound       = core.ErrNotFound
	ErrCodeExists     = errors.New("a department with this code already exists")
	ErrParentNotFound = errors.New("parent department not found")
	ErrCycle          = errors.New("a department cannot be moved under itself or one of its descendants")
	ErrHasChildren    = errors.New("department has sub-departments")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, excludedDepts ...Department) error
		CreateDepartment(ctx context.Context, dept Department) (Department, error)
		GetDepartment(ctx context.Context, id string) (Department, error)
		QueryDepartments(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Department, int, error)
		ListChildren(ctx context.Context, parentID string) ([]Department, error)
		UpdateDepartment(ctx context.Context, dept Department) (Department, error)
		DeleteDepartment(ctx context.Context, id string) error

		UpsertMembership(ctx context.Context, mship Membership) (Membership, error)
		GetMembership(ctx context.Context, userID, departmentID string) (Membership, error)
		ListMemberships(ctx context.Context, departmentID string, page core.PageRequest) ([]Membership, int, error)
		ListUserMemberships(ctx context.Context, userID string) ([]Membership, error)
		DeleteMembership(ctx context.Context, userID, departmentID string) error
	}

	Service interface {
		Resolver

		Create(ctx context.Context, nd NewDepartment) (Department, error)
		Get(ctx context.Context, id string) (Department, error)
		Query(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Department, core.Pagination, error)
		Update(ctx context.Context, id string, ud UpdateDepartment) (Department, error)
		Delete(ctx context.Context, id string) error
		Ancestors(ctx context.Context, id string) ([]Department, error)
		Descendants(ctx context.Context, id string) ([]Department, error)

		AssignRoles(ctx context.Context, departmentID, userID string, roles []string) (Membership, error)
		Members(ctx context.Context, departmentID string, page core.PageRequest) ([]Membership, core.Pagination, error)
		Memberships(ctx context.Context, userID string) ([]Membership, error)
		RemoveMember(ctx context.Context, departmentID, userID string) error
	}

	service struct {
		conf     *core.Config
		logger   core.Logger
		repo     Repository
		policy   CascadePolicy
		maxDepth int
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, logger core.Logger, repo Repository) Service {
	maxDepth := conf.Departments.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &service{
		conf:     conf,
		logger:   logger,
		repo:     repo,
		policy:   NewCascadePolicy(conf.Departments.CascadingRoles...),
		maxDepth: maxDepth,
	}
}

func (svc *service) checkCodeUniqueness(ctx context.Context, code string, exclDepts ...Department) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, exclDepts...); err != nil {
		if errors.Cause(err) == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return nil
}

func (svc *service) getParent(ctx context.Context, parentID string) (Department, error) {
	parent, err := svc.repo.GetDepartment(ctx, parentID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Department{}, core.NewValidationError(
				ErrParentNotFound, core.FieldError{Field: "parent_id", Error: ErrParentNotFound.Error()},
			)
		}
		return Department{}, errors.Wrap(err, "finding parent department")
	}
	return parent, nil
}

func (svc *service) Create(ctx context.Context, nd NewDepartment) (Department, error) {
	if err := svc.checkCodeUniqueness(ctx, nd.Code); err != nil {
		return Department{}, err
	}
	if nd.ParentID != nil {
		if _, err := svc.getParent(ctx, *nd.ParentID); err != nil {
			return Department{}, err
		}
	}

	now := time.Now().UTC()
	return svc.repo.CreateDepartment(ctx, Department{
		Name:      nd.Name,
		Code:      nd.Code,
		ParentID:  nd.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Get(ctx context.Context, id string) (Department, error) {
	return svc.repo.GetDepartment(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Department, core.Pagination, error) {
	filter.Clean()
	page = page.Clean(svc.conf.Pagination)

	depts, total, err := svc.repo.QueryDepartments(ctx, filter, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying departments")
	}
	return depts, core.NewPagination(page.Page, page.PerPage, total), nil
}

// Update applies a validated UpdateDepartment. Re-parenting under the department itself
// or one of its descendants is rejected.
func (svc *service) Update(ctx context.Context, id string, ud UpdateDepartment) (Department, error) {
	dept, err := svc.repo.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	if ud.Code != dept.Code {
		if err = svc.checkCodeUniqueness(ctx, ud.Code, dept); err != nil {
			return Department{}, err
		}
	}

	if ud.ParentID != nil {
		if *ud.ParentID == "" {
			dept.ParentID = nil
		} else {
			parent, err := svc.getParent(ctx, *ud.ParentID)
			if err != nil {
				return Department{}, err
			}
			if err = svc.checkNoCycle(ctx, dept, parent); err != nil {
				return Department{}, err
			}
			dept.ParentID = &parent.ID
		}
	}

	dept.Name = ud.Name
	dept.Code = ud.Code
	dept.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateDepartment(ctx, dept)
}

func (svc *service) checkNoCycle(ctx context.Context, dept, newParent Department) error {
	cycleErr := core.NewValidationError(ErrCycle, core.FieldError{Field: "parent_id", Error: ErrCycle.Error()})
	if newParent.ID == dept.ID {
		return cycleErr
	}
	// no depth limit: dept may sit any number of levels above newParent
	ancestors, err := svc.ancestors(ctx, newParent, 0)
	if err != nil {
		return errors.Wrap(err, "walking department ancestors")
	}
	for _, anc := range ancestors {
		if anc.ID == dept.ID {
			return cycleErr
		}
	}
	return nil
}

// Delete removes a leaf department along with its memberships.
func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetDepartment(ctx, id); err != nil {
		return err
	}
	children, err := svc.repo.ListChildren(ctx, id)
	if err != nil {
		return errors.Wrap(err, "listing sub-departments")
	}
	if len(children) > 0 {
		return core.NewValidationError(ErrHasChildren)
	}
	return svc.repo.DeleteDepartment(ctx, id)
}

func (svc *service) Ancestors(ctx context.Context, id string) ([]Department, error) {
	dept, err := svc.repo.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.ancestors(ctx, dept, svc.maxDepth)
}

// Descendants returns every department below id, breadth first.
func (svc *service) Descendants(ctx context.Context, id string) ([]Department, error) {
	if _, err := svc.repo.GetDepartment(ctx, id); err != nil {
		return nil, err
	}

	var descendants []Department
	visited := map[string]struct{}{id: {}}
	queue := []string{id}
	for depth := 0; len(queue) > 0 && depth < svc.maxDepth; depth++ {
		var next []string
		for _, parentID := range queue {
			children, err := svc.repo.ListChildren(ctx, parentID)
			if err != nil {
				return nil, errors.Wrap(err, "listing sub-departments")
			}
			for _, child := range children {
				if _, ok := visited[child.ID]; ok {
					continue
				}
				visited[child.ID] = struct{}{}
				descendants = append(descendants, child)
				next = append(next, child.ID)
			}
		}
		queue = next
	}
	return descendants, nil
}

// AssignRoles replaces the roles held by the user in the department.
func (svc *service) AssignRoles(ctx context.Context, departmentID, userID string, roles []string) (Membership, error) {
	if _, err := svc.repo.GetDepartment(ctx, departmentID); err != nil {
		return Membership{}, err
	}

	now := time.Now().UTC()
	mship := Membership{
		UserID:       userID,
		DepartmentID: departmentID,
		Roles:        core.CleanRoles(roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := svc.repo.GetMembership(ctx, userID, departmentID); err == nil {
		mship.CreatedAt = existing.CreatedAt
	} else if errors.Cause(err) != ErrNotFound {
		return Membership{}, errors.Wrap(err, "finding membership")
	}

	mship, err := svc.repo.UpsertMembership(ctx, mship)
	if err != nil {
		return Membership{}, errors.Wrap(err, "saving membership")
	}
	svc.logger.Info("department roles assigned", map[string]interface{}{
		"department_id": departmentID,
		"user_id":       userID,
		"roles":         mship.Roles,
	})
	return mship, nil
}

func (svc *service) Members(ctx context.Context, departmentID string, page core.PageRequest) ([]Membership, core.Pagination, error) {
	if _, err := svc.repo.GetDepartment(ctx, departmentID); err != nil {
		return nil, core.Pagination{}, err
	}
	page = page.Clean(svc.conf.Pagination)

	mships, total, err := svc.repo.ListMemberships(ctx, departmentID, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "listing memberships")
	}
	return mships, core.NewPagination(page.Page, page.PerPage, total), nil
}

func (svc *service) Memberships(ctx context.Context, userID string) ([]Membership, error) {
	return svc.repo.ListUserMemberships(ctx, userID)
}

func (svc *service) RemoveMember(ctx context.Context, departmentID, userID string) error {
	return svc.repo.DeleteMembership(ctx, userID, departmentID)
}
