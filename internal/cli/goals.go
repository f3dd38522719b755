package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"bilancio/internal/log"
	"bilancio/internal/services"
)

type goalListCmd struct {
	app *App
	userFlag
}

func (*goalListCmd) Name() string     { return "goal-list" }
func (*goalListCmd) Synopsis() string { return "list the savings goals of a user" }
func (*goalListCmd) Usage() string {
	return `bilancio goal-list -user <id>
`
}

func (c *goalListCmd) SetFlags(f *flag.FlagSet) { c.setUser(f) }

func (c *goalListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpList, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		goals, err := c.app.Goals.List(ctx, c.user)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d goals", len(goals)), newGoalViews(goals), nil
	})
}

type goalFlags struct {
	name    string
	target  string
	accrued string
	start   string
	end     string
}

func (g *goalFlags) set(f *flag.FlagSet) {
	f.StringVar(&g.name, "name", "", "Name of the goal.")
	f.StringVar(&g.target, "target", "", "Target amount in euros.")
	f.StringVar(&g.accrued, "accrued", "", "Amount already saved, in euros.")
	f.StringVar(&g.start, "start", "", "Start date, YYYY-MM-DD.")
	f.StringVar(&g.end, "end", "", "End date, YYYY-MM-DD.")
}

func (g *goalFlags) apply(in *services.GoalInput, given map[string]bool) error {
	if given["name"] {
		in.Name = g.name
	}
	if given["target"] {
		m, err := parseAmount("target", g.target)
		if err != nil {
			return err
		}
		in.Target = m
	}
	if given["accrued"] {
		m, err := parseNonNegative("accrued", g.accrued)
		if err != nil {
			return err
		}
		in.Accrued = m
	}
	if given["start"] {
		d, err := parseDate("start", g.start)
		if err != nil {
			return err
		}
		in.StartDate = d
	}
	if given["end"] {
		d, err := parseDate("end", g.end)
		if err != nil {
			return err
		}
		in.EndDate = d
	}
	return nil
}

type goalAddCmd struct {
	app *App
	userFlag
	goalFlags
}

func (*goalAddCmd) Name() string     { return "goal-add" }
func (*goalAddCmd) Synopsis() string { return "create a savings goal" }
func (*goalAddCmd) Usage() string {
	return `bilancio goal-add -user <id> -name <name> -target <euros> -start <date> -end <date> [-accrued <euros>]
`
}

func (c *goalAddCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	c.goalFlags.set(f)
}

func (c *goalAddCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpCreate, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		given := setFlags(f)
		for _, name := range []string{"name", "target", "start", "end"} {
			given[name] = true
		}
		var in services.GoalInput
		if err := c.goalFlags.apply(&in, given); err != nil {
			return "", nil, err
		}
		g, err := c.app.Goals.Create(ctx, c.user, in)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("goal %q created", g.Name), newGoalView(g), nil
	})
}

type goalEditCmd struct {
	app *App
	userFlag
	goalFlags
	id string
}

func (*goalEditCmd) Name() string     { return "goal-edit" }
func (*goalEditCmd) Synopsis() string { return "change a goal, keeping the fields not given" }
func (*goalEditCmd) Usage() string {
	return `bilancio goal-edit -user <id> -id <goal> [-name ...] [-target ...] [-accrued ...] [-start ...] [-end ...]
`
}

func (c *goalEditCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	c.goalFlags.set(f)
	f.StringVar(&c.id, "id", "", "Id of the goal to change.")
}

func (c *goalEditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpUpdate, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.id == "" {
			return "", nil, usageError("-id is required")
		}
		current, err := c.app.Goals.Get(ctx, c.id, c.user)
		if err != nil {
			return "", nil, err
		}
		in := services.GoalInput{
			Name:      current.Name,
			Target:    current.Target,
			Accrued:   current.Accrued,
			StartDate: current.StartDate,
			EndDate:   current.EndDate,
		}
		if err := c.goalFlags.apply(&in, setFlags(f)); err != nil {
			return "", nil, err
		}
		g, err := c.app.Goals.Update(ctx, c.id, c.user, in)
		if err != nil {
			return "", nil, err
		}
		return "goal updated", newGoalView(g), nil
	})
}

type goalContributeCmd struct {
	app *App
	userFlag
	id     string
	amount string
}

func (*goalContributeCmd) Name() string { return "goal-contribute" }
func (*goalContributeCmd) Synopsis() string {
	return "move money from the balance into a goal"
}
func (*goalContributeCmd) Usage() string {
	return `bilancio goal-contribute -user <id> -id <goal> -amount <euros>
`
}

func (c *goalContributeCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.id, "id", "", "Id of the goal.")
	f.StringVar(&c.amount, "amount", "", "Amount in euros.")
}

func (c *goalContributeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpContribute, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.id == "" {
			return "", nil, usageError("-id is required")
		}
		amount, err := parseAmount("amount", c.amount)
		if err != nil {
			return "", nil, err
		}
		res, err := c.app.Goals.Contribute(ctx, c.id, c.user, amount)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s added to %q", res.Applied, res.Goal.Name), newContributionView(res), nil
	})
}

type goalCancelCmd struct {
	app *App
	userFlag
	id string
}

func (*goalCancelCmd) Name() string { return "goal-cancel" }
func (*goalCancelCmd) Synopsis() string {
	return "cancel an active goal and refund it, or delete a completed one"
}
func (*goalCancelCmd) Usage() string {
	return `bilancio goal-cancel -user <id> -id <goal>
`
}

func (c *goalCancelCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.id, "id", "", "Id of the goal.")
}

func (c *goalCancelCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpCancel, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.id == "" {
			return "", nil, usageError("-id is required")
		}
		res, err := c.app.Goals.Cancel(ctx, c.id, c.user)
		if err != nil {
			return "", nil, err
		}
		msg := fmt.Sprintf("goal %q cancelled, %s refunded", res.Goal.Name, res.Refunded)
		if res.Deleted {
			msg = fmt.Sprintf("goal %q deleted", res.Goal.Name)
		}
		return msg, newCancellationView(res), nil
	})
}

type goalDistributeCmd struct {
	app *App
	userFlag
	amount string
}

func (*goalDistributeCmd) Name() string { return "goal-distribute" }
func (*goalDistributeCmd) Synopsis() string {
	return "credit active goals with their share of an income amount"
}
func (*goalDistributeCmd) Usage() string {
	return `bilancio goal-distribute -user <id> -amount <euros>
`
}

func (c *goalDistributeCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.amount, "amount", "", "Income amount in euros.")
}

func (c *goalDistributeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpContribute, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		amount, err := parseAmount("amount", c.amount)
		if err != nil {
			return "", nil, err
		}
		goals, err := c.app.Goals.AutoDistribute(ctx, c.user, amount)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d goals credited", len(goals)), newGoalViews(goals), nil
	})
}
