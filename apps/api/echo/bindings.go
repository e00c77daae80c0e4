package echoapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
	"github.com/masomo/lms/core/user"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	perPageParam  = "per_page"
)

// listResponse is the envelope of every paginated listing.
type listResponse struct {
	Results    interface{}     `json:"results"`
	Pagination core.Pagination `json:"pagination"`
}

func bindOrderings(ctx echo.Context) []core.DBOrdering {
	val := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if val == "" {
		return nil
	}

	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}

// bindPage reads the `page` & `per_page` query params; invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.PageRequest {
	var pr core.PageRequest
	pr.Page, _ = strconv.Atoi(ctx.QueryParam(pageParam))
	pr.PerPage, _ = strconv.Atoi(ctx.QueryParam(perPageParam))
	return pr
}

func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	params := ctx.QueryParams()
	filter := user.QueryFilter{
		Search: params.Get("search"),
		Roles:  params["role"],
	}

	if val := params.Get("is_active"); val != "" {
		active, err := strconv.ParseBool(val)
		if err != nil {
			return filter, fieldError("is_active", "must be a boolean")
		}
		filter.IsActive = &active
	}

	var err error
	if filter.CreatedFrom, err = parseTimeParam(params, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTimeParam(params, "created_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func bindDepartmentFilter(ctx echo.Context) department.QueryFilter {
	roots, _ := strconv.ParseBool(ctx.QueryParam("roots"))
	return department.QueryFilter{
		Search:    ctx.QueryParam("search"),
		ParentID:  ctx.QueryParam("parent_id"),
		RootsOnly: roots,
	}
}

func bindReportFilter(ctx echo.Context, departmentID string) report.QueryFilter {
	return report.QueryFilter{
		DepartmentID: departmentID,
		Status:       ctx.QueryParam("status"),
		Kind:         ctx.QueryParam("kind"),
	}
}

// parseTimeParam parses an RFC 3339 query param; a missing param is the zero time.
func parseTimeParam(params url.Values, name string) (time.Time, error) {
	val := params.Get(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fieldError(name, "must be an RFC 3339 date-time")
	}
	return t, nil
}

func fieldError(field, msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
}
