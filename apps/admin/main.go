package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/classdrive/apps/container"
	"github.com/trezcool/classdrive/core"
)

func main() {
	conf := core.NewConfig()
	cli := commandLine{
		conf:   conf,
		logger: container.NewLogger(conf, "ADMIN : "),
		out:    os.Stdout,
	}

	err := cli.run(context.Background(), os.Args)
	if cErr := cli.close(); cErr != nil {
		fmt.Fprintf(os.Stderr, "closing stores: %v\n", cErr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", cli.describe(err))
		}
		os.Exit(1)
	}
}

// describe lists the failed fields of validation errors.
func (cli *commandLine) describe(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || cli.c == nil {
		return err.Error()
	}
	msg := "invalid input"
	for _, fe := range vErrs {
		msg += fmt.Sprintf("\n  %s: %s", fe.Field(), fe.Translate(cli.c.Translator))
	}
	return msg
}
