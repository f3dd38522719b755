package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"bilancio/internal/log"
)

type budgetSetCmd struct {
	app *App
	userFlag
	category string
	limit    string
}

func (*budgetSetCmd) Name() string     { return "budget-set" }
func (*budgetSetCmd) Synopsis() string { return "set the monthly spending limit of a category" }
func (*budgetSetCmd) Usage() string {
	return `bilancio budget-set -user <id> -category <name> -limit <euros>
`
}

func (c *budgetSetCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.category, "category", "", "Expense category.")
	f.StringVar(&c.limit, "limit", "", "Monthly limit in euros.")
}

func (c *budgetSetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpBudgetSet, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		limit, err := parseAmount("limit", c.limit)
		if err != nil {
			return "", nil, err
		}
		b, err := c.app.Budgets.Set(ctx, c.user, c.category, limit)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("budget for %s set to %s", b.Category, b.Limit), newBudgetView(b), nil
	})
}

type budgetListCmd struct {
	app *App
	userFlag
}

func (*budgetListCmd) Name() string     { return "budget-list" }
func (*budgetListCmd) Synopsis() string { return "list the monthly budgets of a user" }
func (*budgetListCmd) Usage() string {
	return `bilancio budget-list -user <id>
`
}

func (c *budgetListCmd) SetFlags(f *flag.FlagSet) { c.setUser(f) }

func (c *budgetListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpList, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		budgets, err := c.app.Budgets.List(ctx, c.user)
		if err != nil {
			return "", nil, err
		}
		views := make([]budgetView, 0, len(budgets))
		for _, b := range budgets {
			views = append(views, newBudgetView(b))
		}
		return fmt.Sprintf("%d budgets", len(views)), views, nil
	})
}

type budgetCheckCmd struct {
	app *App
	userFlag
	category string
}

func (*budgetCheckCmd) Name() string     { return "budget-check" }
func (*budgetCheckCmd) Synopsis() string { return "show this month's spending against a budget" }
func (*budgetCheckCmd) Usage() string {
	return `bilancio budget-check -user <id> -category <name>
`
}

func (c *budgetCheckCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.category, "category", "", "Expense category.")
}

func (c *budgetCheckCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpRead, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.category == "" {
			return "", nil, usageError("-category is required")
		}
		status, ok, err := c.app.Budgets.Check(ctx, c.user, c.category)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return fmt.Sprintf("no budget for %s", c.category), nil, nil
		}
		msg := fmt.Sprintf("%s of %s spent", status.Spent, status.Budget.Limit)
		if status.Exceeded {
			msg = fmt.Sprintf("over budget: %s of %s spent", status.Spent, status.Budget.Limit)
		}
		return msg, newBudgetStatusView(status), nil
	})
}
