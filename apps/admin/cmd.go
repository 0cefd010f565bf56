package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/trezcool/classdrive/apps/container"
	"github.com/trezcool/classdrive/core"
)

var (
	readPasswordFunc = readPassword // mockable

	errHelp = errors.New("help provided")
)

// readPassword reads a password without echo from a terminal, or a line from piped input.
func readPassword(fd int) ([]byte, error) {
	if isatty.IsTerminal(uintptr(fd)) || isatty.IsCygwinTerminal(uintptr(fd)) {
		return term.ReadPassword(fd)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer
	c      *container.Container // built on first use
}

func (cli *commandLine) services(ctx context.Context) (*container.Container, error) {
	if cli.c == nil {
		c, err := container.New(ctx, cli.conf, cli.logger)
		if err != nil {
			return nil, err
		}
		cli.c = c
	}
	return cli.c, nil
}

func (cli *commandLine) close() error {
	if cli.c == nil {
		return nil
	}
	return cli.c.Close()
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -fullname NAME [-teacher] - create an account, or set the password of an existing one")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME - set an account's password")
	fmt.Fprintln(cli.out, "  resettoken -username USERNAME - issue a password reset token")
	fmt.Fprintln(cli.out, "  showdoc - print the document, without password hashes")
	fmt.Fprintln(cli.out, "  migrate - apply the SQL store migrations")
}

func (cli *commandLine) prompt(msg string) (string, error) {
	fmt.Fprint(cli.out, msg)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	return string(pwd), err
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserUname := addUserCmd.String("username", "", "The account's username. The password will be prompted next.")
	addUserName := addUserCmd.String("fullname", "", "The account holder's full name.")
	addUserTeacher := addUserCmd.Bool("teacher", false, "Create a teacher account instead of a student one.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The account's username. The password will be prompted next.")

	resetTokenCmd := flag.NewFlagSet("resettoken", flag.ContinueOnError)
	resetTokenCmd.SetOutput(cli.out)
	resetTokenUname := resetTokenCmd.String("username", "", "The account's username.")

	switch args[1] {
	case "adduser":
		if err := parseFlags(addUserCmd, args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		confirm, err := cli.prompt("Confirm password:")
		if err != nil {
			return err
		}
		role := core.RoleStudent
		if *addUserTeacher {
			role = core.RoleTeacher
		}
		return cli.addUser(ctx, *addUserUname, *addUserName, pwd, confirm, role)

	case "resetpassword":
		if err := parseFlags(resetPasswordCmd, args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "resettoken":
		if err := parseFlags(resetTokenCmd, args[2:]); err != nil {
			return err
		}
		if *resetTokenUname == "" {
			resetTokenCmd.Usage()
			return errHelp
		}
		return cli.resetToken(ctx, *resetTokenUname)

	case "showdoc":
		return cli.showDoc(ctx)

	case "migrate":
		return cli.migrate(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
