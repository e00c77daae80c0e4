package report

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/masomo/lms/core"
)

// Report kinds
const (
	KindDepartmentRoster  = "department-roster"
	KindMembershipSummary = "membership-summary"
)

// Job statuses
const (
	StatusPending   = "pending"   // one-off job waiting for its run time
	StatusScheduled = "scheduled" // recurring job, runs on its cron schedule
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// TaskGenerate is the type of the queued tasks that run a Job.
const TaskGenerate = "report:generate"

var (
	AllKinds    = []string{KindDepartmentRoster, KindMembershipSummary}
	AllStatuses = []string{StatusPending, StatusScheduled, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
)

// Job is a report generation request on a department, either one-off (RunAt) or recurring (Schedule).
type Job struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	DepartmentID string `json:"department_id"`
	RequestedBy  string `json:"requested_by"`
	// RequestedAs is the department role that authorized the request, RequestedViaCascade
	// whether that role was inherited from an ancestor department.
	RequestedAs         string    `json:"requested_as,omitempty"`
	RequestedViaCascade bool      `json:"requested_via_cascade"`
	Schedule            string    `json:"schedule,omitempty"` // cron spec
	RunAt               time.Time `json:"run_at"`             // UTC
	Status              string    `json:"status"`
	Result              []byte    `json:"-"` // CSV
	ResultRows          int       `json:"result_rows"`
	Error               string    `json:"error,omitempty"`
	TaskID              string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`   // UTC
	UpdatedAt           time.Time `json:"updated_at"`   // UTC
	CompletedAt         time.Time `json:"completed_at"` // UTC, last successful run
}

func (j Job) IsRecurring() bool {
	return j.Schedule != ""
}

func (j Job) IsCancellable() bool {
	return j.Status == StatusPending || j.Status == StatusScheduled
}

func (j Job) HasResult() bool {
	return len(j.Result) > 0
}

// Filename is the name of the downloadable result.
func (j Job) Filename() string {
	return j.Kind + "-" + j.ID + ".csv"
}

// TaskPayload is the payload of TaskGenerate tasks.
type TaskPayload struct {
	JobID string `json:"job_id"`
}

// NewJob contains information needed to schedule a new Job.
// A zero RunAt means "now"; a Schedule makes the job recurring and RunAt is then ignored.
type NewJob struct {
	Kind     string    `json:"kind" validate:"required,reportkind"`
	Schedule string    `json:"schedule" validate:"omitempty,cron"`
	RunAt    time.Time `json:"run_at"`

	// set by the caller from its authorization decision, never bound from input
	RequestedAs         string `json:"-"`
	RequestedViaCascade bool   `json:"-"`
}

func (nj *NewJob) Validate(validate *validator.Validate) error {
	nj.Kind = core.CleanString(nj.Kind, true /* lower */)
	nj.Schedule = core.CleanString(nj.Schedule)
	return validate.Struct(nj)
}

type QueryFilter struct {
	DepartmentID string
	Status       string
	Kind         string
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}
