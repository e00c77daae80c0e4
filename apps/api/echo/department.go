package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/authz"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/user"
)

type departmentApi struct {
	logger   core.Logger
	svc      department.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerDepartmentAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps *Deps) {
	api := departmentApi{
		logger:   deps.Logger,
		svc:      deps.DeptSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	var (
		deptAdmin  = requireDepartmentRoles(api.logger, department.RoleDepartmentAdmin)
		staff      = requireDepartmentRoles(api.logger, department.RoleInstructor, department.RoleDepartmentAdmin)
		membership = requireMembership()
	)

	dg := g.Group("/departments", auth...)
	dg.GET("", api.query)
	dg.POST("", api.create, adminMiddleware())

	// detail endpoints
	ddg := dg.Group("/:deptID", departmentMiddleware(api.svc))
	ddg.GET("", api.retrieve, membership)
	ddg.GET("/me", api.me)
	ddg.GET("/ancestors", api.ancestors, membership)
	ddg.GET("/descendants", api.descendants, membership)
	ddg.PUT("", api.update, deptAdmin)
	ddg.DELETE("", api.destroy, adminMiddleware())

	ddg.GET("/members", api.members, staff)
	ddg.PUT("/members/:userID", api.assignRoles, deptAdmin)
	ddg.DELETE("/members/:userID", api.removeMember, deptAdmin)

	registerReportAPI(ddg, staff, deps)
}

// requireMembership only lets through callers holding at least one role in the department, whatever it is.
func requireMembership() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			dctx, err := getContextDepartment(ctx)
			if err != nil {
				return err
			}
			if len(dctx.Roles) == 0 {
				return &authz.Error{Kind: authz.KindForbidden}
			}
			return next(ctx)
		}
	}
}

// Handlers

func (api *departmentApi) query(ctx echo.Context) error {
	depts, pagination, err := api.svc.Query(ctx.Request().Context(), bindDepartmentFilter(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying departments")
	}
	if depts == nil {
		depts = []department.Department{}
	}
	return ctx.JSON(http.StatusOK, listResponse{Results: depts, Pagination: pagination})
}

// create makes the creator the first department admin of the new department.
func (api *departmentApi) create(ctx echo.Context) error {
	var data department.NewDepartment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDepartment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	dept, err := api.svc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	if _, err = api.svc.AssignRoles(reqCtx, dept.ID, p.ID, []string{department.RoleDepartmentAdmin}); err != nil {
		return errors.Wrap(err, "assigning department admin")
	}
	return ctx.JSON(http.StatusCreated, dept)
}

func (api *departmentApi) retrieve(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	dept, err := api.svc.Get(ctx.Request().Context(), dctx.DepartmentID)
	if err != nil {
		return errors.Wrap(err, "finding department")
	}
	return ctx.JSON(http.StatusOK, dept)
}

// me returns the caller's effective roles in the department.
func (api *departmentApi) me(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dctx)
}

func (api *departmentApi) ancestors(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	depts, err := api.svc.Ancestors(ctx.Request().Context(), dctx.DepartmentID)
	if err != nil {
		return errors.Wrap(err, "walking department ancestors")
	}
	if depts == nil {
		depts = []department.Department{}
	}
	return ctx.JSON(http.StatusOK, depts)
}

func (api *departmentApi) descendants(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	depts, err := api.svc.Descendants(ctx.Request().Context(), dctx.DepartmentID)
	if err != nil {
		return errors.Wrap(err, "listing sub-departments")
	}
	if depts == nil {
		depts = []department.Department{}
	}
	return ctx.JSON(http.StatusOK, depts)
}

// update requires, on top of the department admin role, the right to attach the department to its new parent:
// department admin of the new parent, or global admin to move it to the root.
func (api *departmentApi) update(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	dept, err := api.svc.Get(reqCtx, dctx.DepartmentID)
	if err != nil {
		return errors.Wrap(err, "finding department")
	}

	var data department.UpdateDepartment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDepartment")
	}
	if err = data.Validate(dept, api.validate); err != nil {
		return err
	}

	if data.ParentID != nil {
		if err = api.checkCanAttach(ctx, p, *data.ParentID); err != nil {
			return err
		}
	}

	dept, err = api.svc.Update(reqCtx, dept.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating department")
	}
	return ctx.JSON(http.StatusOK, dept)
}

func (api *departmentApi) checkCanAttach(ctx echo.Context, p *authz.Principal, parentID string) error {
	if parentID == "" {
		if !p.HasRole(user.RoleAdmin) {
			return errHttpForbidden
		}
		return nil
	}

	pctx, err := api.svc.Resolve(ctx.Request().Context(), p.ID, parentID)
	if err != nil {
		if errors.Cause(err) == department.ErrNotFound {
			return core.NewValidationError(
				department.ErrParentNotFound,
				core.FieldError{Field: "parent_id", Error: department.ErrParentNotFound.Error()},
			)
		}
		return errors.Wrap(err, "resolving parent department context")
	}
	if !authz.HasDepartmentRole(pctx, department.RoleDepartmentAdmin) {
		return &authz.Error{Kind: authz.KindForbidden, Required: []string{department.RoleDepartmentAdmin}}
	}
	return nil
}

func (api *departmentApi) destroy(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), dctx.DepartmentID); err != nil {
		return errors.Wrap(err, "deleting department")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *departmentApi) members(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	mships, pagination, err := api.svc.Members(ctx.Request().Context(), dctx.DepartmentID, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing department members")
	}
	if mships == nil {
		mships = []department.Membership{}
	}
	return ctx.JSON(http.StatusOK, listResponse{Results: mships, Pagination: pagination})
}

func (api *departmentApi) assignRoles(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}

	var data department.AssignRoles
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRoles")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.usrSvc.GetByID(reqCtx, ctx.Param("userID"))
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}

	mship, err := api.svc.AssignRoles(reqCtx, dctx.DepartmentID, usr.ID, data.Roles)
	if err != nil {
		return errors.Wrap(err, "assigning department roles")
	}
	return ctx.JSON(http.StatusOK, mship)
}

func (api *departmentApi) removeMember(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveMember(ctx.Request().Context(), dctx.DepartmentID, ctx.Param("userID")); err != nil {
		return errors.Wrap(err, "removing department member")
	}
	return ctx.NoContent(http.StatusNoContent)
}
