package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

type balanceCmd struct {
	app *App
	userFlag
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the current balance of a user" }
func (*balanceCmd) Usage() string {
	return `bilancio balance -user <id>
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) { c.setUser(f) }

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpRead, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		b, err := c.app.Txs.Balance(ctx, c.user)
		if err != nil {
			return "", nil, err
		}
		return "balance " + b.String(), balanceView{User: c.user, Balance: b.String(), BalanceCents: b.Cents}, nil
	})
}

type txListCmd struct {
	app *App
	userFlag
}

func (*txListCmd) Name() string     { return "tx-list" }
func (*txListCmd) Synopsis() string { return "list the entries of a user, newest first" }
func (*txListCmd) Usage() string {
	return `bilancio tx-list -user <id>
`
}

func (c *txListCmd) SetFlags(f *flag.FlagSet) { c.setUser(f) }

func (c *txListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpList, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		entries, err := c.app.Txs.List(ctx, c.user)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d entries", len(entries)), newEntryViews(entries), nil
	})
}

// entryFlags are the editable fields shared by tx-add and tx-edit.
type entryFlags struct {
	kind        string
	category    string
	amount      string
	description string
}

func (e *entryFlags) set(f *flag.FlagSet) {
	f.StringVar(&e.kind, "kind", "", "INCOME or EXPENSE.")
	f.StringVar(&e.category, "category", "", "Category of the entry.")
	f.StringVar(&e.amount, "amount", "", "Amount in euros, e.g. 12.50.")
	f.StringVar(&e.description, "desc", "", "Optional description.")
}

// apply overrides the fields of in named in given.
func (e *entryFlags) apply(in *services.EntryInput, given map[string]bool) error {
	if given["kind"] {
		k, err := core.ParseKind(e.kind)
		if err != nil {
			return usageError("-kind %q: %v", e.kind, err)
		}
		in.Kind = k
	}
	if given["category"] {
		in.Category = e.category
	}
	if given["amount"] {
		m, err := parseAmount("amount", e.amount)
		if err != nil {
			return err
		}
		in.Amount = m
	}
	if given["desc"] {
		in.Description = e.description
	}
	return nil
}

type txAddCmd struct {
	app *App
	userFlag
	entryFlags
}

func (*txAddCmd) Name() string     { return "tx-add" }
func (*txAddCmd) Synopsis() string { return "record an income or an expense" }
func (*txAddCmd) Usage() string {
	return `bilancio tx-add -user <id> -kind INCOME|EXPENSE -category <name> -amount <euros> [-desc <text>]
`
}

func (c *txAddCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	c.entryFlags.set(f)
}

func (c *txAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpCreate, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		var in services.EntryInput
		if err := c.entryFlags.apply(&in, map[string]bool{"kind": true, "category": true, "amount": true, "desc": true}); err != nil {
			return "", nil, err
		}
		e, err := c.app.Txs.Create(ctx, c.user, in)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s of %s recorded", strings.ToLower(string(e.Kind)), e.Amount), newEntryView(e), nil
	})
}

type txEditCmd struct {
	app *App
	userFlag
	entryFlags
	id string
}

func (*txEditCmd) Name() string     { return "tx-edit" }
func (*txEditCmd) Synopsis() string { return "correct an entry, changing only the given fields" }
func (*txEditCmd) Usage() string {
	return `bilancio tx-edit -user <id> -id <entry> [-kind ...] [-category ...] [-amount ...] [-desc ...]
`
}

func (c *txEditCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	c.entryFlags.set(f)
	f.StringVar(&c.id, "id", "", "Id of the entry to change.")
}

func (c *txEditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpUpdate, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.id == "" {
			return "", nil, usageError("-id is required")
		}
		current, err := c.app.Txs.Get(ctx, c.id, c.user)
		if err != nil {
			return "", nil, err
		}
		in := services.EntryInput{
			Kind:        current.Kind,
			Category:    current.Category,
			Amount:      current.Amount,
			Description: current.Description,
		}
		if err := c.entryFlags.apply(&in, setFlags(f)); err != nil {
			return "", nil, err
		}
		e, err := c.app.Txs.Update(ctx, c.id, c.user, in)
		if err != nil {
			return "", nil, err
		}
		return "entry updated", newEntryView(e), nil
	})
}

type txVoidCmd struct {
	app *App
	userFlag
	id string
}

func (*txVoidCmd) Name() string     { return "tx-void" }
func (*txVoidCmd) Synopsis() string { return "void an entry and reverse its effect on the balance" }
func (*txVoidCmd) Usage() string {
	return `bilancio tx-void -user <id> -id <entry>
`
}

func (c *txVoidCmd) SetFlags(f *flag.FlagSet) {
	c.setUser(f)
	f.StringVar(&c.id, "id", "", "Id of the entry to void.")
}

func (c *txVoidCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, log.OpVoid, c.user, func(ctx context.Context) (string, any, error) {
		if err := c.requireUser(); err != nil {
			return "", nil, err
		}
		if c.id == "" {
			return "", nil, usageError("-id is required")
		}
		e, err := c.app.Txs.Void(ctx, c.id, c.user)
		if err != nil {
			return "", nil, err
		}
		return "entry voided", newEntryView(e), nil
	})
}
