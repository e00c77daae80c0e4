package department

import (
	"context"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
)

// Resolver determines the roles a principal effectively holds in a department.
type Resolver interface {
	// Resolve returns ErrNotFound when the department does not exist.
	// A principal without any membership gets a Context with no roles.
	Resolve(ctx context.Context, principalID, departmentID string) (*Context, error)
}

// CascadePolicy is the set of membership roles that propagate from a department to all its descendants.
// Roles outside of the set only apply to the department they were assigned in.
type CascadePolicy struct {
	roles []string
}

func NewCascadePolicy(roles ...string) CascadePolicy {
	return CascadePolicy{roles: core.CleanRoles(roles)}
}

func (p CascadePolicy) Cascades(role string) bool {
	return core.ContainsFold(p.roles, role)
}

func (p CascadePolicy) Roles() []string {
	return append([]string(nil), p.roles...)
}

// Resolve computes the department Context of a principal: the direct roles held in the department,
// followed by the cascading roles held in its ancestors, nearest ancestor first.
// A role both held directly and inherited counts as direct.
func (svc *service) Resolve(ctx context.Context, principalID, departmentID string) (*Context, error) {
	dept, err := svc.repo.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	ancestors, err := svc.ancestors(ctx, dept, svc.maxDepth)
	if err != nil {
		return nil, errors.Wrap(err, "walking department ancestors")
	}

	mships, err := svc.repo.ListUserMemberships(ctx, principalID)
	if err != nil {
		return nil, errors.Wrap(err, "listing user memberships")
	}
	rolesByDept := make(map[string][]string, len(mships))
	for _, m := range mships {
		rolesByDept[m.DepartmentID] = m.Roles
	}

	dctx := &Context{
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
		Roles:          []string{},
		CascadedRoles:  []string{},
	}
	for _, role := range rolesByDept[dept.ID] {
		if !core.ContainsFold(dctx.Roles, role) {
			dctx.Roles = append(dctx.Roles, role)
		}
	}
	for _, anc := range ancestors {
		for _, role := range rolesByDept[anc.ID] {
			if !svc.policy.Cascades(role) || core.ContainsFold(dctx.Roles, role) {
				continue
			}
			dctx.Roles = append(dctx.Roles, role)
			dctx.CascadedRoles = append(dctx.CascadedRoles, role)
		}
	}
	dctx.IsCascaded = len(dctx.CascadedRoles) > 0
	return dctx, nil
}

// ancestors returns the ancestors of dept, nearest first.
// The walk stops on a cycle, on a dangling parent reference or after maxDepth steps; a maxDepth <= 0 means no limit.
func (svc *service) ancestors(ctx context.Context, dept Department, maxDepth int) ([]Department, error) {
	var ancestors []Department
	visited := map[string]struct{}{dept.ID: {}}

	for parentID := dept.ParentID; parentID != nil && *parentID != ""; {
		fields := map[string]interface{}{"department_id": dept.ID, "parent_id": *parentID}
		if _, ok := visited[*parentID]; ok {
			svc.logger.Error("department hierarchy contains a cycle", fields)
			break
		}
		if maxDepth > 0 && len(ancestors) >= maxDepth {
			svc.logger.Warn("department hierarchy exceeds max depth", fields)
			break
		}
		visited[*parentID] = struct{}{}

		parent, err := svc.repo.GetDepartment(ctx, *parentID)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				svc.logger.Warn("department has a dangling parent reference", fields)
				break
			}
			return nil, err
		}
		ancestors = append(ancestors, parent)
		parentID = parent.ParentID
	}
	return ancestors, nil
}
