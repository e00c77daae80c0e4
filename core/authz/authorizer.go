// Package authz gates department scoped operations on the roles a principal effectively holds
// in the department targeted by a request.
package authz

import (
	"context"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
)

// Decision describes a granted authorization.
type Decision struct {
	// MatchedRole is the first role of the caller's effective roles, in their order, that is allowed.
	MatchedRole string
	// Cascaded reports whether MatchedRole was inherited from an ancestor department.
	Cascaded bool
}

// DepartmentRoleAuthorizer permits a request when the caller holds at least one of the allowed roles
// in the department of the request. Role labels are compared case-insensitively.
// Its allowed roles never change after construction; it is safe for concurrent use.
type DepartmentRoleAuthorizer struct {
	allowed []string
	logger  core.Logger
}

// NewDepartmentRoleAuthorizer returns ErrNoAllowedRoles if no (non blank) allowed role is provided.
func NewDepartmentRoleAuthorizer(logger core.Logger, allowed ...string) (*DepartmentRoleAuthorizer, error) {
	roles := core.CleanRoles(allowed)
	if len(roles) == 0 {
		return nil, ErrNoAllowedRoles
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &DepartmentRoleAuthorizer{allowed: roles, logger: logger}, nil
}

// MustDepartmentRoleAuthorizer is like NewDepartmentRoleAuthorizer but panics on error.
// Meant for route registration.
func MustDepartmentRoleAuthorizer(logger core.Logger, allowed ...string) *DepartmentRoleAuthorizer {
	authorizer, err := NewDepartmentRoleAuthorizer(logger, allowed...)
	if err != nil {
		panic(err)
	}
	return authorizer
}

// AllowedRoles returns a copy of the allowed roles.
func (a *DepartmentRoleAuthorizer) AllowedRoles() []string {
	return append([]string(nil), a.allowed...)
}

// Authorize checks, in order: that a principal is present, that a department context is present,
// then that the caller's effective roles intersect the allowed roles.
// Failures are *Error values; neither p nor dctx is modified.
func (a *DepartmentRoleAuthorizer) Authorize(p *Principal, dctx *department.Context) (Decision, error) {
	if p == nil {
		return Decision{}, &Error{Kind: KindUnauthenticated}
	}

	if dctx == nil {
		a.logger.Error(
			"department role authorizer invoked without a department context: the membership resolver must run before it",
			map[string]interface{}{"principal_id": p.ID, "required_roles": a.allowed},
			*p,
		)
		return Decision{}, &Error{Kind: KindMissingContext, Required: a.AllowedRoles()}
	}

	for _, role := range dctx.Roles {
		if core.ContainsFold(a.allowed, role) {
			decision := Decision{MatchedRole: role, Cascaded: dctx.RoleIsCascaded(role)}
			a.logger.Info("department access granted", map[string]interface{}{
				"principal_id":    p.ID,
				"principal":       p.Label,
				"department_id":   dctx.DepartmentID,
				"department_name": dctx.DepartmentName,
				"matched_role":    decision.MatchedRole,
				"cascaded":        decision.Cascaded,
			})
			return decision, nil
		}
	}

	a.logger.Warn(
		"department access denied",
		map[string]interface{}{
			"principal_id":    p.ID,
			"principal":       p.Label,
			"caller_roles":    dctx.Roles,
			"department_id":   dctx.DepartmentID,
			"department_name": dctx.DepartmentName,
			"required_roles":  a.allowed,
		},
		*p,
	)
	return Decision{}, &Error{Kind: KindForbidden, Required: a.AllowedRoles()}
}

// AuthorizeContext authorizes the principal and department context attached to ctx.
func (a *DepartmentRoleAuthorizer) AuthorizeContext(ctx context.Context) (Decision, error) {
	p, _ := PrincipalFrom(ctx)
	dctx, _ := department.ContextFrom(ctx)
	return a.Authorize(p, dctx)
}

// HasDepartmentRole reports whether role is one of the effective roles of dctx.
// A nil context holds no roles.
func HasDepartmentRole(dctx *department.Context, role string) bool {
	if dctx == nil {
		return false
	}
	return core.ContainsFold(dctx.Roles, role)
}

// HasAnyDepartmentRole reports whether at least one of roles is an effective role of dctx.
func HasAnyDepartmentRole(dctx *department.Context, roles ...string) bool {
	for _, role := range roles {
		if HasDepartmentRole(dctx, role) {
			return true
		}
	}
	return false
}

// HasAllDepartmentRoles reports whether every one of roles is an effective role of dctx.
// A nil context never satisfies it, not even for an empty list.
func HasAllDepartmentRoles(dctx *department.Context, roles ...string) bool {
	if dctx == nil {
		return false
	}
	for _, role := range roles {
		if !HasDepartmentRole(dctx, role) {
			return false
		}
	}
	return true
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
