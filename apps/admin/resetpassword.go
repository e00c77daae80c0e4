package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/masomo/lms/core/user"
)

// resetPassword sets a new password for the user identified by `login`, a username or an email.
func (cli *commandLine) resetPassword(ctx context.Context, login, pwd string) error {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: login})
	if err != nil {
		return errors.Wrapf(err, "finding user %q", login)
	}

	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrapf(err, "saving user %q", usr.Username)
	}

	fmt.Fprintf(cli.out, "password of user %q reset\n", usr.Username)
	return nil
}
