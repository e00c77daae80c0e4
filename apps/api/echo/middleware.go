package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/authz"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/user"
)

const decisionContextKey = "authzDecision"

// adminMiddleware only lets global admins through.
func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, ok := authz.PrincipalFrom(ctx.Request().Context())
			if !ok {
				return errUnauthorized
			}
			if !p.HasRole(user.RoleAdmin) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// departmentMiddleware resolves the caller's effective roles in the `:deptID` department
// and attaches them to the request context.
func departmentMiddleware(resolver department.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			p, ok := authz.PrincipalFrom(req.Context())
			if !ok {
				return &authz.Error{Kind: authz.KindUnauthenticated}
			}

			dctx, err := resolver.Resolve(req.Context(), p.ID, ctx.Param("deptID"))
			if err != nil {
				if errors.Cause(err) == core.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "resolving department context")
			}
			ctx.SetRequest(req.WithContext(department.WithContext(req.Context(), dctx)))
			return next(ctx)
		}
	}
}

// requireDepartmentRoles guards a route with a DepartmentRoleAuthorizer.
// It panics when no role is given so that a misconfigured route prevents the server from starting.
func requireDepartmentRoles(logger core.Logger, roles ...string) echo.MiddlewareFunc {
	authorizer := authz.MustDepartmentRoleAuthorizer(logger, roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			decision, err := authorizer.AuthorizeContext(ctx.Request().Context())
			if err != nil {
				return err
			}
			ctx.Set(decisionContextKey, decision)
			return next(ctx)
		}
	}
}

// getContextDecision returns the decision stored by requireDepartmentRoles.
func getContextDecision(ctx echo.Context) (authz.Decision, bool) {
	decision, ok := ctx.Get(decisionContextKey).(authz.Decision)
	return decision, ok
}

func getContextDepartment(ctx echo.Context) (*department.Context, error) {
	dctx, ok := department.ContextFrom(ctx.Request().Context())
	if !ok {
		return nil, &authz.Error{Kind: authz.KindMissingContext}
	}
	return dctx, nil
}

func getContextPrincipal(ctx echo.Context) (*authz.Principal, error) {
	p, ok := authz.PrincipalFrom(ctx.Request().Context())
	if !ok {
		return nil, &authz.Error{Kind: authz.KindUnauthenticated}
	}
	return p, nil
}
