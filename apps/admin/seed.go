package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/user"
	appfs "github.com/masomo/lms/fs"
)

type (
	seedUser struct {
		Username string   `yaml:"username"`
		Name     string   `yaml:"name"`
		Email    string   `yaml:"email"`
		Roles    []string `yaml:"roles"`
	}

	seedDepartment struct {
		Code   string `yaml:"code"`
		Name   string `yaml:"name"`
		Parent string `yaml:"parent"` // parent code
		// Members maps usernames to their department roles.
		Members map[string][]string `yaml:"members"`
	}

	dataset struct {
		Users       []seedUser       `yaml:"users"`
		Departments []seedDepartment `yaml:"departments"`
	}
)

// loadDataset reads the YAML dataset at path, or the built-in one when path is empty.
func loadDataset(path string) (dataset, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = fs.ReadFile(appfs.FS, appfs.DefaultSeed)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return dataset{}, errors.Wrap(err, "reading seed dataset")
	}

	var ds dataset
	if err = yaml.Unmarshal(data, &ds); err != nil {
		return dataset{}, errors.Wrap(err, "parsing seed dataset")
	}
	return ds, nil
}

// seed creates the missing users and departments of ds then assigns the department roles.
// Existing users and departments are left untouched, so seeding twice is harmless.
func (cli *commandLine) seed(ctx context.Context, ds dataset, pwd string) error {
	usersByName := make(map[string]user.User, len(ds.Users))
	for _, su := range ds.Users {
		usr, created, err := cli.seedUser(ctx, su, pwd)
		if err != nil {
			return errors.Wrapf(err, "seeding user %q", su.Username)
		}
		if created {
			fmt.Fprintf(cli.out, "user %q created\n", usr.Username)
		}
		usersByName[usr.Username] = usr
	}

	deptsByCode := make(map[string]department.Department, len(ds.Departments))
	for _, sd := range ds.Departments {
		dept, created, err := cli.seedDepartment(ctx, sd, deptsByCode)
		if err != nil {
			return errors.Wrapf(err, "seeding department %q", sd.Code)
		}
		if created {
			fmt.Fprintf(cli.out, "department %q created\n", dept.Code)
		}
		deptsByCode[dept.Code] = dept

		for uname, roles := range sd.Members {
			usr, ok := usersByName[core.CleanString(uname, true /* lower */)]
			if !ok {
				if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Username: core.CleanString(uname, true /* lower */)}); err != nil {
					return errors.Wrapf(err, "finding member %q of %q", uname, sd.Code)
				}
			}
			if _, err = cli.deptSvc.AssignRoles(ctx, dept.ID, usr.ID, roles); err != nil {
				return errors.Wrapf(err, "assigning roles of %q in %q", uname, sd.Code)
			}
		}
	}
	return nil
}

func (cli *commandLine) seedUser(ctx context.Context, su seedUser, pwd string) (user.User, bool, error) {
	uname := core.CleanString(su.Username, true /* lower */)
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err == nil {
		return usr, false, nil
	}
	if errors.Cause(err) != user.ErrNotFound {
		return user.User{}, false, err
	}

	now := time.Now().UTC()
	usr = user.User{
		Name:      core.CleanString(su.Name),
		Username:  uname,
		Email:     core.CleanString(su.Email, true /* lower */),
		Roles:     core.CleanRoles(su.Roles),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = cli.usrRepo.CheckUsernameUniqueness(ctx, usr.Username, usr.Email); err != nil {
		return user.User{}, false, err
	}
	usr.SetActive(true)
	if pwd != "" {
		if err = usr.SetPassword(pwd); err != nil {
			return user.User{}, false, err
		}
	}
	usr, err = cli.usrRepo.CreateUser(ctx, usr)
	return usr, err == nil, err
}

func (cli *commandLine) seedDepartment(
	ctx context.Context,
	sd seedDepartment,
	known map[string]department.Department,
) (department.Department, bool, error) {
	code := core.CleanString(sd.Code, true /* lower */)
	dept, err := cli.findDepartment(ctx, code)
	if err == nil {
		return dept, false, nil
	}
	if errors.Cause(err) != department.ErrNotFound {
		return department.Department{}, false, err
	}

	nd := department.NewDepartment{Name: sd.Name, Code: code}
	if pcode := core.CleanString(sd.Parent, true /* lower */); pcode != "" {
		parent, ok := known[pcode]
		if !ok {
			if parent, err = cli.findDepartment(ctx, pcode); err != nil {
				return department.Department{}, false, errors.Wrapf(err, "finding parent %q", pcode)
			}
		}
		nd.ParentID = &parent.ID
	}

	dept, err = cli.deptSvc.Create(ctx, nd)
	return dept, err == nil, err
}

// findDepartment looks a department up by its exact code.
func (cli *commandLine) findDepartment(ctx context.Context, code string) (department.Department, error) {
	page := core.PageRequest{Page: 1, PerPage: 100}
	for {
		depts, pagination, err := cli.deptSvc.Query(ctx, department.QueryFilter{Search: code}, page)
		if err != nil {
			return department.Department{}, err
		}
		for _, dept := range depts {
			if dept.Code == code {
				return dept, nil
			}
		}
		if !pagination.HasNext() {
			return department.Department{}, department.ErrNotFound
		}
		page.Page++
	}
}
