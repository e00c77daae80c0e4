// Package inmemdb provides mutex guarded in-memory implementations of the repositories,
// used by tests and the demo mode of the API.
package inmemdb

import (
	"context"
	"sync"

	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
	"github.com/masomo/lms/core/user"
)

type (
	DB struct {
		user       *userTable
		department *departmentTable
		membership *membershipTable
		reportJob  *reportJobTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	departmentTable struct {
		mutex sync.RWMutex
		table map[string]*department.Department
	}

	membershipKey struct {
		userID, departmentID string
	}

	membershipTable struct {
		mutex sync.RWMutex
		table map[membershipKey]*department.Membership
	}

	reportJobTable struct {
		mutex sync.RWMutex
		table map[string]*report.Job
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		department: &departmentTable{table: make(map[string]*department.Department)},
		membership: &membershipTable{table: make(map[membershipKey]*department.Membership)},
		reportJob:  &reportJobTable{table: make(map[string]*report.Job)},
	}
}

// PingContext always succeeds.
func (db *DB) PingContext(context.Context) error {
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.department.mutex.Lock()
	db.department.table = make(map[string]*department.Department)
	db.department.mutex.Unlock()

	db.membership.mutex.Lock()
	db.membership.table = make(map[membershipKey]*department.Membership)
	db.membership.mutex.Unlock()

	db.reportJob.mutex.Lock()
	db.reportJob.table = make(map[string]*report.Job)
	db.reportJob.mutex.Unlock()
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
