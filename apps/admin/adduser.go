package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/user"
)

// addUser creates an account, or sets the password of an existing one with the same role.
func (cli *commandLine) addUser(ctx context.Context, uname, fullName, pwd, confirm, role string) error {
	c, err := cli.services(ctx)
	if err != nil {
		return err
	}

	na := user.NewAccount{Username: uname, FullName: fullName, Password: pwd, PasswordConfirm: confirm}
	if err = na.Validate(c.Validate); err != nil {
		return err
	}

	id, err := c.UserSvc.Get(ctx, na.Username)
	switch {
	case err == nil:
		if id.Role != role {
			return errors.Wrapf(core.ErrDuplicateName, "%s account %q", id.Role, id.Username)
		}
		if err = c.UserSvc.ChangePassword(ctx, id.Username, id.Role, na.Password); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Password of %s %q updated.\n", role, id.Username)
		return nil
	case !errors.Is(err, core.ErrNotFound):
		return err
	}

	if _, err = c.UserSvc.Create(ctx, na, role); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s account %q created.\n", role, na.Username)
	return nil
}
