package department

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/masomo/lms/core"
)

// Well-known membership roles. Membership roles are open-set labels: other ones may be assigned.
const (
	RoleDepartmentAdmin = "department-admin"
	RoleInstructor      = "instructor"
	RoleMember          = "member"
)

// Department is a node of the organizational hierarchy. Root departments have no parent.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (d Department) IsRoot() bool {
	return d.ParentID == nil || *d.ParentID == ""
}

// Membership grants a user a set of role labels in one department.
type Membership struct {
	UserID       string    `json:"user_id"`
	DepartmentID string    `json:"department_id"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Context is the resolved view of a principal's effective roles within one department.
// It is computed per request and never persisted.
type Context struct {
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	// Roles holds the direct roles first, then the roles inherited from ancestors, nearest first.
	Roles []string `json:"roles"`
	// IsCascaded reports whether at least one of Roles was inherited rather than directly assigned.
	IsCascaded bool `json:"is_cascaded"`
	// CascadedRoles is the subset of Roles that was inherited.
	CascadedRoles []string `json:"cascaded_roles"`
}

// RoleIsCascaded reports whether role (case-insensitive) was inherited from an ancestor.
func (c *Context) RoleIsCascaded(role string) bool {
	if c == nil {
		return false
	}
	return core.ContainsFold(c.CascadedRoles, role)
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying the department context.
func WithContext(ctx context.Context, dctx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, dctx)
}

// ContextFrom returns the department context attached to ctx, if any.
func ContextFrom(ctx context.Context) (*Context, bool) {
	dctx, ok := ctx.Value(contextKey{}).(*Context)
	return dctx, ok && dctx != nil
}

// NewDepartment contains information needed to create a new Department.
type NewDepartment struct {
	Name     string  `json:"name" validate:"required,notblank,max=128"`
	Code     string  `json:"code" validate:"required,max=32,deptcode"`
	ParentID *string `json:"parent_id"`
}

func (nd *NewDepartment) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name)
	nd.Code = core.CleanString(nd.Code, true /* lower */)
	nd.ParentID = cleanParentID(nd.ParentID)
	return validate.Struct(nd)
}

// UpdateDepartment defines what information may be provided to modify an existing Department.
// A nil ParentID leaves the parent unchanged; an empty one moves the department to the root.
type UpdateDepartment struct {
	Name     string  `json:"name" validate:"omitempty,max=128"`
	Code     string  `json:"code" validate:"omitempty,max=32,deptcode"`
	ParentID *string `json:"parent_id"`
}

func (ud *UpdateDepartment) Validate(origDept Department, validate *validator.Validate) error {
	if name := core.CleanString(ud.Name); name != "" {
		ud.Name = name
	} else {
		ud.Name = origDept.Name
	}
	if code := core.CleanString(ud.Code, true /* lower */); code != "" {
		ud.Code = code
	} else {
		ud.Code = origDept.Code
	}
	if ud.ParentID != nil {
		pid := core.CleanString(*ud.ParentID)
		ud.ParentID = &pid
	}
	return validate.Struct(ud)
}

// AssignRoles sets the roles a user holds in a department.
type AssignRoles struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,notblank,max=64"`
}

func (ar *AssignRoles) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ar); err != nil {
		return err
	}
	ar.Roles = core.CleanRoles(ar.Roles)
	return nil
}

type QueryFilter struct {
	Search    string
	ParentID  string
	RootsOnly bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ParentID = core.CleanString(qf.ParentID)
}

func cleanParentID(pid *string) *string {
	if pid == nil {
		return nil
	}
	if cleaned := core.CleanString(*pid); cleaned != "" {
		return &cleaned
	}
	return nil
}
