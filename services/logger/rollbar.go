package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/classdrive/core"
)

// RollbarLogger writes every entry to a std logger and reports it to Rollbar when enabled.
type RollbarLogger struct {
	std    *log.Logger
	client *rollbar.Client
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, client: client}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled)
}

// splitArgs pulls the first core.Identity out of args. Other identities are dropped.
// args are errors and maps of extra data otherwise.
func splitArgs(args []interface{}) (*core.Identity, []interface{}) {
	var who *core.Identity
	payload := make([]interface{}, 0, len(args))
	for _, arg := range args {
		id, ok := arg.(core.Identity)
		switch {
		case !ok:
			payload = append(payload, arg)
		case who == nil:
			who = &id
		}
	}
	return who, payload
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	who, payload := splitArgs(args)
	if who != nil {
		l.client.SetPerson(who.Username, who.Username, "")
		l.client.SetCustom(map[string]interface{}{"role": who.Role, "fullName": who.FullName})
	} else {
		l.client.ClearPerson()
		l.client.SetCustom(nil)
	}
	l.client.Log(level, append([]interface{}{msg}, payload...)...)

	if who != nil {
		l.std.Printf("%s: %s (user=%s)", level, msg, who.Username)
	} else {
		l.std.Printf("%s: %s", level, msg)
	}
	for _, arg := range payload {
		l.std.Printf("  %+v", arg)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.client.Wait()
	l.std.Fatal(msg)
}
