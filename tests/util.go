// Package testutil holds fixtures shared by the tests of several packages.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
	"github.com/masomo/lms/core/user"
)

// NewValidator returns a validator with every custom validation of the app registered, along with its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	department.InitValidators(validate, translator)
	report.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateDepartment creates a department under parent; a nil parent makes a root department.
func CreateDepartment(t *testing.T, repo department.Repository, name, code string, parent *department.Department) department.Department {
	t.Helper()
	now := time.Now().UTC()
	dept := department.Department{Name: name, Code: code, CreatedAt: now, UpdatedAt: now}
	if parent != nil {
		pid := parent.ID
		dept.ParentID = &pid
	}
	dept, err := repo.CreateDepartment(context.Background(), dept)
	if err != nil {
		t.Fatalf("CreateDepartment(): %v", err)
	}
	return dept
}

func AddMember(t *testing.T, repo department.Repository, usr user.User, dept department.Department, roles ...string) department.Membership {
	t.Helper()
	now := time.Now().UTC()
	mship, err := repo.UpsertMembership(context.Background(), department.Membership{
		UserID:       usr.ID,
		DepartmentID: dept.ID,
		Roles:        core.CleanRoles(roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("AddMember(): %v", err)
	}
	return mship
}
