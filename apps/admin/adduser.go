package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}

	now := time.Now().UTC()
	exists := true
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email); err != nil {
			return err
		}
		exists = false
		usr = user.User{Username: uname, CreatedAt: now}
	}

	usr.Name = name
	usr.Email = email
	usr.UpdatedAt = now
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved\n", uname)
	return nil
}
