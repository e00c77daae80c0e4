package tests

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
)

func (f *orgFixture) createJob(t *testing.T, dept department.Department, token, body string) report.Job {
	t.Helper()
	rec := f.serve(httpTest{method: http.MethodPost, path: deptPath(dept, "/reports"), token: token, body: []byte(body)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job report.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func Test_reportApi_create(t *testing.T) {
	f := newOrgFixture(t)
	profToken := f.getToken(t, f.prof)

	f.run(t, []httpTest{
		{
			name: "member", method: http.MethodPost, path: deptPath(f.opt, "/reports"), token: f.getToken(t, f.student),
			body:     []byte(`{"kind": "department-roster"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, forbiddenErr{
				Error: "insufficient permissions", RequiredRoles: []string{department.RoleInstructor, department.RoleDepartmentAdmin},
			}),
		},
		{
			name: "unknown kind", method: http.MethodPost, path: deptPath(f.phy, "/reports"), token: profToken,
			body: []byte(`{"kind": "grades"}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"kind": "unknown report kind"}),
		},
		{
			name: "invalid schedule", method: http.MethodPost, path: deptPath(f.phy, "/reports"), token: profToken,
			body:     []byte(`{"kind": "department-roster", "schedule": "every tuesday"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"schedule": "invalid cron schedule"}),
		},
		{
			name: "run_at in the past", method: http.MethodPost, path: deptPath(f.phy, "/reports"), token: profToken,
			body:     []byte(`{"kind": "department-roster", "run_at": "2001-01-01T00:00:00Z"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"run_at": report.ErrRunAtInPast.Error()}),
		},
	})

	t.Run("one-off", func(t *testing.T) {
		job := f.createJob(t, f.phy, profToken, `{"kind": " Department-Roster "}`)
		assert.Equal(t, report.KindDepartmentRoster, job.Kind)
		assert.Equal(t, report.StatusPending, job.Status)
		assert.Equal(t, f.phy.ID, job.DepartmentID)
		assert.Equal(t, f.prof.ID, job.RequestedBy)
		assert.Equal(t, department.RoleInstructor, job.RequestedAs)
		assert.False(t, job.RequestedViaCascade)

		require.Len(t, f.queue.enqueued, 1)
		assert.Equal(t, job.ID, f.queue.enqueued[0].ID)
	})

	t.Run("recurring", func(t *testing.T) {
		job := f.createJob(t, f.opt, f.getToken(t, f.dean), `{"kind": "membership-summary", "schedule": "@daily"}`)
		assert.Equal(t, report.StatusScheduled, job.Status)
		assert.Equal(t, "@daily", job.Schedule)
		assert.Equal(t, department.RoleDepartmentAdmin, job.RequestedAs)
		assert.True(t, job.RequestedViaCascade, "dean's role is inherited from the faculty")
		assert.True(t, job.RunAt.After(job.CreatedAt))

		// recurring jobs are picked up by the scheduler, not queued
		assert.Len(t, f.queue.enqueued, 1)
	})
}

func Test_reportApi_lifecycle(t *testing.T) {
	f := newOrgFixture(t)
	profToken := f.getToken(t, f.prof)
	deanToken := f.getToken(t, f.dean)

	roster := f.createJob(t, f.phy, profToken, `{"kind": "department-roster"}`)
	summary := f.createJob(t, f.phy, deanToken, `{"kind": "membership-summary"}`)
	jobPath := func(job report.Job, suffix ...string) string {
		return deptPath(f.phy, append([]string{"/reports/", job.ID}, suffix...)...)
	}

	f.run(t, []httpTest{
		{name: "retrieve", path: jobPath(roster), token: profToken, wantData: marchallObj(t, roster)},
		{name: "retrieve from another department", path: deptPath(f.sci, "/reports/", roster.ID), token: deanToken, wantCode: http.StatusNotFound},
		{name: "unknown", path: deptPath(f.phy, "/reports/unknown"), token: profToken, wantCode: http.StatusNotFound},
		{
			name: "download before run", path: jobPath(roster, "/download"), token: profToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: report.ErrNoResult.Error()}),
		},
		{
			name: "query", path: deptPath(f.phy, "/reports?kind=membership-summary"), token: profToken,
			wantData: marchallPage(t, 1, 1, f.conf.Pagination.DefaultPerPage, []report.Job{summary}),
		},
		{
			name: "query another department", path: deptPath(f.sci, "/reports"), token: deanToken,
			wantData: marchallPage(t, 0, 1, f.conf.Pagination.DefaultPerPage, []report.Job{}),
		},
	})

	t.Run("download", func(t *testing.T) {
		require.NoError(t, f.reportSvc.Run(context.Background(), roster.ID))

		rec := f.serve(httpTest{path: jobPath(roster, "/download"), token: profToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="`+roster.Filename()+`"`, rec.Header().Get("Content-Disposition"))

		records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"user_id", "name", "username", "email", "roles"},
			{f.prof.ID, f.prof.Name, f.prof.Username, f.prof.Email, department.RoleInstructor},
		}, records)

		rec = f.serve(httpTest{path: jobPath(roster), token: profToken})
		var job report.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, report.StatusCompleted, job.Status)
		assert.Equal(t, 1, job.ResultRows)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := f.serve(httpTest{method: http.MethodDelete, path: jobPath(summary), token: profToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var job report.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, report.StatusCancelled, job.Status)
		require.Len(t, f.queue.cancelled, 1)
		assert.Equal(t, summary.ID, f.queue.cancelled[0].ID)

		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: report.ErrNotCancellable.Error()}),
		}, f.serve(httpTest{method: http.MethodDelete, path: jobPath(summary), token: profToken}))

		// completed jobs can't be cancelled either
		rec = f.serve(httpTest{method: http.MethodDelete, path: jobPath(roster), token: profToken})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
