package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/report"
)

type reportJobRepository struct {
	db *reportJobTable
}

var _ report.Repository = (*reportJobRepository)(nil) // interface compliance check

func NewReportJobRepository(db *DB) report.Repository {
	return &reportJobRepository{db: db.reportJob}
}

func copyJob(job report.Job) report.Job {
	if job.Result != nil {
		job.Result = append([]byte{}, job.Result...)
	}
	return job
}

func (repo *reportJobRepository) CreateJob(_ context.Context, job report.Job) (report.Job, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	job = copyJob(job)
	job.ID = uuid.New().String()
	repo.db.table[job.ID] = &job
	return copyJob(job), nil
}

func (repo *reportJobRepository) GetJob(_ context.Context, id string) (report.Job, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if job, ok := repo.db.table[id]; ok {
		return copyJob(*job), nil
	}
	return report.Job{}, report.ErrNotFound
}

func (repo *reportJobRepository) QueryJobs(_ context.Context, filter report.QueryFilter, page core.PageRequest) ([]report.Job, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var jobs []report.Job
	for _, job := range repo.db.table {
		if filter.DepartmentID != "" && job.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && job.Kind != filter.Kind {
			continue
		}
		jobs = append(jobs, copyJob(*job))
	}
	// newest first
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})

	start, end := core.Paginate(page, len(jobs))
	return jobs[start:end], len(jobs), nil
}

func (repo *reportJobRepository) ListRecurringJobs(_ context.Context) ([]report.Job, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var jobs []report.Job
	for _, job := range repo.db.table {
		if job.IsRecurring() && job.Status != report.StatusCancelled {
			jobs = append(jobs, copyJob(*job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (repo *reportJobRepository) UpdateJob(_ context.Context, job report.Job) (report.Job, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[job.ID]; !ok {
		return report.Job{}, report.ErrNotFound
	}
	job = copyJob(job)
	repo.db.table[job.ID] = &job
	return copyJob(job), nil
}
