package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

const reportJobColumns = `id, kind, department_id, requested_by, requested_as, requested_via_cascade, schedule, run_at, ` +
	`status, result, result_rows, error, task_id, created_at, updated_at, completed_at`

type reportJobRow struct {
	ID                  string      `db:"id"`
	Kind                string      `db:"kind"`
	DepartmentID        string      `db:"department_id"`
	RequestedBy         null.String `db:"requested_by"`
	RequestedAs         null.String `db:"requested_as"`
	RequestedViaCascade bool        `db:"requested_via_cascade"`
	Schedule            null.String `db:"schedule"`
	RunAt               null.Time   `db:"run_at"`
	Status              string      `db:"status"`
	Result              null.Bytes  `db:"result"`
	ResultRows          int         `db:"result_rows"`
	Error               null.String `db:"error"`
	TaskID              null.String `db:"task_id"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
	CompletedAt         null.Time   `db:"completed_at"`
}

func toReportJobRow(job report.Job) reportJobRow {
	return reportJobRow{
		ID:                  job.ID,
		Kind:                job.Kind,
		DepartmentID:        job.DepartmentID,
		RequestedBy:         null.NewString(job.RequestedBy, validID(job.RequestedBy)),
		RequestedAs:         null.NewString(job.RequestedAs, job.RequestedAs != ""),
		RequestedViaCascade: job.RequestedViaCascade,
		Schedule:            null.NewString(job.Schedule, job.Schedule != ""),
		RunAt:               null.NewTime(job.RunAt.UTC(), !job.RunAt.IsZero()),
		Status:              job.Status,
		Result:              null.NewBytes(job.Result, len(job.Result) > 0),
		ResultRows:          job.ResultRows,
		Error:               null.NewString(job.Error, job.Error != ""),
		TaskID:              null.NewString(job.TaskID, job.TaskID != ""),
		CreatedAt:           job.CreatedAt.UTC(),
		UpdatedAt:           job.UpdatedAt.UTC(),
		CompletedAt:         null.NewTime(job.CompletedAt.UTC(), !job.CompletedAt.IsZero()),
	}
}

func nullTime(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func (row reportJobRow) job() report.Job {
	return report.Job{
		ID:                  row.ID,
		Kind:                row.Kind,
		DepartmentID:        row.DepartmentID,
		RequestedBy:         row.RequestedBy.String,
		RequestedAs:         row.RequestedAs.String,
		RequestedViaCascade: row.RequestedViaCascade,
		Schedule:            row.Schedule.String,
		RunAt:               nullTime(row.RunAt),
		Status:              row.Status,
		Result:              row.Result.Bytes,
		ResultRows:          row.ResultRows,
		Error:               row.Error.String,
		TaskID:              row.TaskID.String,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
		CompletedAt:         nullTime(row.CompletedAt),
	}
}

func reportJobs(rows []reportJobRow) []report.Job {
	jobs := make([]report.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.job())
	}
	return jobs
}

type reportJobRepository struct {
	db *sqlx.DB
}

var _ report.Repository = (*reportJobRepository)(nil) // interface compliance check

func NewReportJobRepository(db *sqlx.DB) report.Repository {
	return &reportJobRepository{db: db}
}

func (repo *reportJobRepository) CreateJob(ctx context.Context, job report.Job) (report.Job, error) {
	job.ID = uuid.New().String()
	row := toReportJobRow(job)

	q := `INSERT INTO report_job (` + reportJobColumns + `) VALUES (
		:id, :kind, :department_id, :requested_by, :requested_as, :requested_via_cascade, :schedule, :run_at,
		:status, :result, :result_rows, :error, :task_id, :created_at, :updated_at, :completed_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return report.Job{}, errors.Wrap(err, "inserting report job")
	}
	return row.job(), nil
}

func (repo *reportJobRepository) GetJob(ctx context.Context, id string) (report.Job, error) {
	if !validID(id) {
		return report.Job{}, report.ErrNotFound
	}
	var row reportJobRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+reportJobColumns+` FROM report_job WHERE id = $1`, id); err != nil {
		return report.Job{}, trapNoRowsErr(err, "finding report job")
	}
	return row.job(), nil
}

func (repo *reportJobRepository) QueryJobs(ctx context.Context, filter report.QueryFilter, page core.PageRequest) ([]report.Job, int, error) {
	var c conds
	if filter.DepartmentID != "" {
		if !validID(filter.DepartmentID) {
			return []report.Job{}, 0, nil
		}
		c.add("department_id = ?", filter.DepartmentID)
	}
	if filter.Status != "" {
		c.add("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		c.add("kind = ?", filter.Kind)
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM report_job`+c.where(), c.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting report jobs")
	}

	limit, args := c.page(page)
	var rows []reportJobRow
	q := `SELECT ` + reportJobColumns + ` FROM report_job` + c.where() + ` ORDER BY created_at DESC, id` + limit
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying report jobs")
	}
	return reportJobs(rows), total, nil
}

func (repo *reportJobRepository) ListRecurringJobs(ctx context.Context) ([]report.Job, error) {
	var rows []reportJobRow
	q := `SELECT ` + reportJobColumns + ` FROM report_job WHERE schedule IS NOT NULL AND status <> $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, q, report.StatusCancelled); err != nil {
		return nil, errors.Wrap(err, "listing recurring report jobs")
	}
	return reportJobs(rows), nil
}

func (repo *reportJobRepository) UpdateJob(ctx context.Context, job report.Job) (report.Job, error) {
	if !validID(job.ID) {
		return report.Job{}, report.ErrNotFound
	}
	row := toReportJobRow(job)

	q := `UPDATE report_job SET
		schedule = :schedule, run_at = :run_at, status = :status, result = :result, result_rows = :result_rows,
		error = :error, task_id = :task_id, updated_at = :updated_at, completed_at = :completed_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err = trapNoRowsAffected(res, err, "updating report job"); err != nil {
		return report.Job{}, err
	}
	return row.job(), nil
}
