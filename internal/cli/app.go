package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/subcommands"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

// App holds what every command needs. It is built once in main.
type App struct {
	Txs     *services.TransactionService
	Goals   *services.GoalService
	Budgets *budget.Watcher
	Out     io.Writer
	Logger  *log.Logger
}

// Register adds every command to the commander, grouped by area.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&balanceCmd{app: app}, "ledger")
	c.Register(&txListCmd{app: app}, "ledger")
	c.Register(&txAddCmd{app: app}, "ledger")
	c.Register(&txEditCmd{app: app}, "ledger")
	c.Register(&txVoidCmd{app: app}, "ledger")

	c.Register(&goalListCmd{app: app}, "goals")
	c.Register(&goalAddCmd{app: app}, "goals")
	c.Register(&goalEditCmd{app: app}, "goals")
	c.Register(&goalContributeCmd{app: app}, "goals")
	c.Register(&goalCancelCmd{app: app}, "goals")
	c.Register(&goalDistributeCmd{app: app}, "goals")

	c.Register(&budgetSetCmd{app: app}, "budgets")
	c.Register(&budgetListCmd{app: app}, "budgets")
	c.Register(&budgetCheckCmd{app: app}, "budgets")
}

// Outcome is printed as JSON on stdout by every command.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	// Kind is the error kind of a failed command.
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// run executes one command body, logs the operation and prints its outcome.
func (a *App) run(ctx context.Context, op, user string, fn func(ctx context.Context) (string, any, error)) subcommands.ExitStatus {
	started := time.Now()
	msg, data, err := fn(ctx)
	if a.Logger != nil {
		log.NewStructuredLogger(a.Logger).LogOperation(ctx, op, user, started, err)
	}
	if err != nil {
		return a.fail(err)
	}
	a.print(Outcome{OK: true, Message: msg, Data: data})
	return subcommands.ExitSuccess
}

// fail prints err as a failed outcome. Bad flags exit with a usage status.
func (a *App) fail(err error) subcommands.ExitStatus {
	var ue *usageErr
	if errors.As(err, &ue) {
		a.print(Outcome{OK: false, Message: ue.msg, Kind: string(core.KindValidation)})
		return subcommands.ExitUsageError
	}
	a.print(Outcome{OK: false, Message: core.Message(err), Kind: string(core.KindOf(err))})
	return subcommands.ExitFailure
}

func (a *App) print(o Outcome) {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil && a.Logger != nil {
		a.Logger.Error("Failed to write outcome", log.FieldError, err)
	}
}

// usageErr is a flag value that could not be used.
type usageErr struct {
	msg string
}

func (e *usageErr) Error() string { return e.msg }

func usageError(format string, args ...any) error {
	return &usageErr{msg: fmt.Sprintf(format, args...)}
}

// userFlag is the -user flag every command takes.
type userFlag struct {
	user string
}

func (u *userFlag) setUser(f *flag.FlagSet) {
	f.StringVar(&u.user, "user", "", "Id of the user the command acts for (required).")
}

func (u *userFlag) requireUser() error {
	if strings.TrimSpace(u.user) == "" {
		return usageError("-user is required")
	}
	return nil
}

// setFlags lists the flags given on the command line.
func setFlags(f *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}

func parseAmount(name, s string) (core.Money, error) {
	m, err := core.ParseAmount(s)
	if err != nil {
		return core.Money{}, usageError("-%s %q: %v", name, s, err)
	}
	return m, nil
}

func parseNonNegative(name, s string) (core.Money, error) {
	m, err := core.ParseNonNegativeAmount(s)
	if err != nil {
		return core.Money{}, usageError("-%s %q: %v", name, s, err)
	}
	return m, nil
}

func parseDate(name, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, usageError("-%s %q: expected YYYY-MM-DD", name, s)
	}
	return d, nil
}
