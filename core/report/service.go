package report

import (
	"bytes"
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/user"
)

var (
	// errors
	ErrNotFound       = core.ErrNotFound
	ErrNotCancellable = errors.New("only pending or scheduled report jobs can be cancelled")
	ErrRunAtInPast    = errors.New("run_at cannot be in the past")
	ErrNoResult       = errors.New("report has no result yet")

	// runAtLeeway tolerates clock skew between the client and the server.
	runAtLeeway = time.Minute
)

type (
	Repository interface {
		CreateJob(ctx context.Context, job Job) (Job, error)
		GetJob(ctx context.Context, id string) (Job, error)
		QueryJobs(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Job, int, error)
		ListRecurringJobs(ctx context.Context) ([]Job, error)
		UpdateJob(ctx context.Context, job Job) (Job, error)
	}

	// Enqueuer hands one-off jobs over to the task queue.
	Enqueuer interface {
		// Enqueue returns the ID of the queued task.
		Enqueue(ctx context.Context, job Job) (string, error)
		Cancel(ctx context.Context, job Job) error
	}

	// Generator renders the CSV result of a job.
	Generator interface {
		Generate(ctx context.Context, job Job) (data []byte, rows int, err error)
	}

	Service interface {
		Schedule(ctx context.Context, departmentID, requestedBy string, nj NewJob) (Job, error)
		Get(ctx context.Context, departmentID, id string) (Job, error)
		Query(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Job, core.Pagination, error)
		Cancel(ctx context.Context, departmentID, id string) (Job, error)
		RecurringJobs(ctx context.Context) ([]Job, error)
		// Run executes a job; it is called by the worker for each queued task.
		Run(ctx context.Context, id string) error
	}

	service struct {
		conf      *core.Config
		logger    core.Logger
		repo      Repository
		enqueuer  Enqueuer
		generator Generator
		deptSvc   department.Service
		usrSvc    user.Service
		mailSvc   core.EmailService
		now       func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	logger core.Logger,
	repo Repository,
	enqueuer Enqueuer,
	generator Generator,
	deptSvc department.Service,
	usrSvc user.Service,
	mailSvc core.EmailService,
) Service {
	return &service{
		conf:      conf,
		logger:    logger,
		repo:      repo,
		enqueuer:  enqueuer,
		generator: generator,
		deptSvc:   deptSvc,
		usrSvc:    usrSvc,
		mailSvc:   mailSvc,
		now:       time.Now,
	}
}

// Schedule persists a validated NewJob then queues it.
// Recurring jobs are not queued here: the worker polls them through RecurringJobs.
func (svc *service) Schedule(ctx context.Context, departmentID, requestedBy string, nj NewJob) (Job, error) {
	if _, err := svc.deptSvc.Get(ctx, departmentID); err != nil {
		return Job{}, err
	}

	now := svc.now().UTC()
	job := Job{
		Kind:                nj.Kind,
		DepartmentID:        departmentID,
		RequestedBy:         requestedBy,
		RequestedAs:         nj.RequestedAs,
		RequestedViaCascade: nj.RequestedViaCascade,
		Schedule:            nj.Schedule,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if job.IsRecurring() {
		sched, err := core.ParseSchedule(job.Schedule)
		if err != nil {
			return Job{}, core.NewValidationError(err, core.FieldError{Field: "schedule", Error: "invalid cron schedule"})
		}
		job.Status = StatusScheduled
		job.RunAt = sched.Next(now)
	} else {
		runAt := nj.RunAt.UTC()
		if nj.RunAt.IsZero() {
			runAt = now
		} else if runAt.Before(now.Add(-runAtLeeway)) {
			return Job{}, core.NewValidationError(ErrRunAtInPast, core.FieldError{Field: "run_at", Error: ErrRunAtInPast.Error()})
		}
		job.Status = StatusPending
		job.RunAt = runAt
	}

	job, err := svc.repo.CreateJob(ctx, job)
	if err != nil {
		return Job{}, errors.Wrap(err, "creating report job")
	}
	if job.IsRecurring() {
		return job, nil
	}

	taskID, err := svc.enqueuer.Enqueue(ctx, job)
	if err != nil {
		job.Status = StatusFailed
		job.Error = "could not be queued"
		job.UpdatedAt = svc.now().UTC()
		if _, uErr := svc.repo.UpdateJob(ctx, job); uErr != nil {
			svc.logger.Error("marking unqueued report job as failed", uErr)
		}
		return Job{}, errors.Wrap(err, "enqueuing report job")
	}
	job.TaskID = taskID
	return svc.repo.UpdateJob(ctx, job)
}

// Get returns the job only when it belongs to departmentID.
func (svc *service) Get(ctx context.Context, departmentID, id string) (Job, error) {
	job, err := svc.repo.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.DepartmentID != departmentID {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, page core.PageRequest) ([]Job, core.Pagination, error) {
	filter.Clean()
	page = page.Clean(svc.conf.Pagination)

	jobs, total, err := svc.repo.QueryJobs(ctx, filter, page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying report jobs")
	}
	return jobs, core.NewPagination(page.Page, page.PerPage, total), nil
}

func (svc *service) Cancel(ctx context.Context, departmentID, id string) (Job, error) {
	job, err := svc.Get(ctx, departmentID, id)
	if err != nil {
		return Job{}, err
	}
	if !job.IsCancellable() {
		return Job{}, core.NewValidationError(ErrNotCancellable)
	}
	if !job.IsRecurring() {
		if err = svc.enqueuer.Cancel(ctx, job); err != nil {
			return Job{}, errors.Wrap(err, "cancelling queued task")
		}
	}

	job.Status = StatusCancelled
	job.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateJob(ctx, job)
}

func (svc *service) RecurringJobs(ctx context.Context) ([]Job, error) {
	return svc.repo.ListRecurringJobs(ctx)
}

func (svc *service) Run(ctx context.Context, id string) error {
	job, err := svc.repo.GetJob(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding report job")
	}
	switch job.Status {
	case StatusCancelled, StatusCompleted, StatusRunning:
		svc.logger.Info("skipping report job", map[string]interface{}{"job_id": job.ID, "status": job.Status})
		return nil
	}

	job.Status = StatusRunning
	job.UpdatedAt = svc.now().UTC()
	if job, err = svc.repo.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "marking report job as running")
	}

	data, rows, genErr := svc.generator.Generate(ctx, job)

	now := svc.now().UTC()
	job.UpdatedAt = now
	if genErr != nil {
		job.Error = genErr.Error()
		job.Status = StatusFailed
	} else {
		job.Error = ""
		job.Result = data
		job.ResultRows = rows
		job.CompletedAt = now
		job.Status = StatusCompleted
	}
	if job.IsRecurring() {
		job.Status = StatusScheduled
		if sched, err := core.ParseSchedule(job.Schedule); err == nil {
			job.RunAt = sched.Next(now)
		}
	}
	if job, err = svc.repo.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "saving report job")
	}

	svc.notify(ctx, job, genErr)
	if genErr != nil {
		return errors.Wrap(genErr, "generating report")
	}
	svc.logger.Info("report generated", map[string]interface{}{"job_id": job.ID, "kind": job.Kind, "rows": rows})
	return nil
}

// notify mails the outcome of a run to the requester; failures are only logged.
func (svc *service) notify(ctx context.Context, job Job, genErr error) {
	usr, err := svc.usrSvc.GetByID(ctx, job.RequestedBy)
	if err != nil {
		svc.logger.Warn("report requester not found", map[string]interface{}{"job_id": job.ID, "user_id": job.RequestedBy})
		return
	}
	if usr.Email == "" {
		return
	}
	var deptName string
	if dept, err := svc.deptSvc.Get(ctx, job.DepartmentID); err == nil {
		deptName = dept.Name
	}

	msg := &core.EmailMessage{To: []mail.Address{{Name: usr.Name, Address: usr.Email}}}
	if genErr != nil {
		msg.Subject = "Report failed"
		msg.TemplateName = "report_failed"
		msg.TemplateData = struct{ Name, Kind, DepartmentName, Error string }{
			Name:           usr.Name,
			Kind:           job.Kind,
			DepartmentName: deptName,
			Error:          genErr.Error(),
		}
	} else {
		msg.Subject = "Your report is ready"
		msg.TemplateName = "report_ready"
		msg.TemplateData = struct {
			Name, Kind, DepartmentName, DepartmentID, JobID string
			Rows                                            int
		}{
			Name:           usr.Name,
			Kind:           job.Kind,
			DepartmentName: deptName,
			DepartmentID:   job.DepartmentID,
			JobID:          job.ID,
			Rows:           job.ResultRows,
		}
		if err = msg.Attach(bytes.NewReader(job.Result), job.Filename(), "text/csv"); err != nil {
			svc.logger.Error("attaching report", err)
		}
	}
	svc.mailSvc.SendMessages(msg)
}
