package main

import (
	"context"
	"fmt"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	c, err := cli.services(ctx)
	if err != nil {
		return err
	}
	id, err := c.UserSvc.Get(ctx, core.CleanString(uname))
	if err != nil {
		return err
	}

	pc := user.PasswordChange{Username: id.Username, FullName: id.FullName, Password: pwd, PasswordConfirm: pwd}
	if err = pc.Validate(c.Validate); err != nil {
		return err
	}
	if err = c.UserSvc.ChangePassword(ctx, id.Username, id.Role, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Password of %q updated.\n", id.Username)
	return nil
}

// resetToken prints a password reset token to hand over to the account holder.
func (cli *commandLine) resetToken(ctx context.Context, uname string) error {
	c, err := cli.services(ctx)
	if err != nil {
		return err
	}
	token, err := c.UserSvc.RequestPasswordReset(ctx, core.CleanString(uname))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
