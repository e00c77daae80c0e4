package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

const csvContentType = "text/csv; charset=utf-8"

type reportApi struct {
	svc      report.Service
	validate *validator.Validate
}

// registerReportAPI registers the report endpoints of a department; g must resolve the department context.
func registerReportAPI(g *echo.Group, authorize echo.MiddlewareFunc, deps *Deps) {
	api := reportApi{
		svc:      deps.ReportSvc,
		validate: deps.Validate,
	}

	rg := g.Group("/reports", authorize)
	rg.POST("", api.create)
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
	rg.GET("/:id/download", api.download)
	rg.DELETE("/:id", api.cancel)
}

// Handlers

func (api *reportApi) create(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data report.NewJob
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewJob")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if decision, ok := getContextDecision(ctx); ok {
		data.RequestedAs = decision.MatchedRole
		data.RequestedViaCascade = decision.Cascaded
	}

	job, err := api.svc.Schedule(ctx.Request().Context(), dctx.DepartmentID, p.ID, data)
	if err != nil {
		return errors.Wrap(err, "scheduling report job")
	}
	return ctx.JSON(http.StatusCreated, job)
}

func (api *reportApi) query(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}

	filter := bindReportFilter(ctx, dctx.DepartmentID)
	jobs, pagination, err := api.svc.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying report jobs")
	}
	if jobs == nil {
		jobs = []report.Job{}
	}
	return ctx.JSON(http.StatusOK, listResponse{Results: jobs, Pagination: pagination})
}

func (api *reportApi) getJob(ctx echo.Context) (report.Job, error) {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return report.Job{}, err
	}
	job, err := api.svc.Get(ctx.Request().Context(), dctx.DepartmentID, ctx.Param("id"))
	if err != nil {
		return report.Job{}, errors.Wrap(err, "finding report job")
	}
	return job, nil
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	job, err := api.getJob(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, job)
}

func (api *reportApi) download(ctx echo.Context) error {
	job, err := api.getJob(ctx)
	if err != nil {
		return err
	}
	if !job.HasResult() {
		return core.NewValidationError(report.ErrNoResult)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", job.Filename()))
	return ctx.Blob(http.StatusOK, csvContentType, job.Result)
}

func (api *reportApi) cancel(ctx echo.Context) error {
	dctx, err := getContextDepartment(ctx)
	if err != nil {
		return err
	}
	job, err := api.svc.Cancel(ctx.Request().Context(), dctx.DepartmentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling report job")
	}
	return ctx.JSON(http.StatusOK, job)
}
