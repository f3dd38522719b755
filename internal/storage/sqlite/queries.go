package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries implements storage.Tx on top of a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

var _ storage.Tx = (*Queries)(nil)

const getBalance = `SELECT amount_cents FROM balances WHERE user_id = ?`

func (q *Queries) Balance(ctx context.Context, userID string) (core.Money, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, getBalance, userID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("get balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

const upsertBalance = `
INSERT INTO balances (user_id, amount_cents, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = excluded.updated_at`

func (q *Queries) SetBalance(ctx context.Context, userID string, balance core.Money) error {
	if _, err := q.db.ExecContext(ctx, upsertBalance, userID, balance.Cents, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

const entryColumns = `id, owner, kind, category, amount_cents, description, created_at, voided`

const getEntry = `SELECT ` + entryColumns + ` FROM entries WHERE id = ? AND owner = ?`

func (q *Queries) GetEntry(ctx context.Context, id, owner string) (core.Entry, error) {
	e, err := scanEntry(q.db.QueryRowContext(ctx, getEntry, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

const upsertEntry = `
INSERT INTO entries (` + entryColumns + `, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    kind = excluded.kind,
    category = excluded.category,
    amount_cents = excluded.amount_cents,
    description = excluded.description,
    voided = excluded.voided,
    updated_at = excluded.updated_at`

func (q *Queries) SaveEntry(ctx context.Context, e core.Entry) error {
	_, err := q.db.ExecContext(ctx, upsertEntry,
		e.ID, e.Owner, string(e.Kind), e.Category, e.Amount.Cents, e.Description,
		e.CreatedAt.UnixNano(), boolToInt(e.Voided), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

const listEntries = `SELECT ` + entryColumns + ` FROM entries WHERE owner = ? ORDER BY created_at DESC, id DESC`

func (q *Queries) ListEntries(ctx context.Context, owner string) ([]core.Entry, error) {
	rows, err := q.db.QueryContext(ctx, listEntries, owner)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const sumExpenses = `
SELECT COALESCE(SUM(amount_cents), 0) FROM entries
WHERE owner = ? AND category = ? AND kind = 'EXPENSE' AND voided = 0
  AND created_at >= ? AND created_at < ?`

func (q *Queries) SumExpenses(ctx context.Context, owner, category string, from, to time.Time) (core.Money, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, sumExpenses, owner, category, from.UnixNano(), to.UnixNano()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

const goalColumns = `id, owner, name, target_cents, accrued_cents, start_date, end_date, state, created_at`

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ? AND owner = ?`

func (q *Queries) GetGoal(ctx context.Context, id, owner string) (core.Goal, error) {
	g, err := scanGoal(q.db.QueryRowContext(ctx, getGoal, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal %s: %w", id, err)
	}
	return g, nil
}

const upsertGoal = `
INSERT INTO goals (` + goalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    target_cents = excluded.target_cents,
    accrued_cents = excluded.accrued_cents,
    start_date = excluded.start_date,
    end_date = excluded.end_date,
    state = excluded.state`

func (q *Queries) SaveGoal(ctx context.Context, g core.Goal) error {
	_, err := q.db.ExecContext(ctx, upsertGoal,
		g.ID, g.Owner, g.Name, g.Target.Cents, g.Accrued.Cents,
		g.StartDate.String(), g.EndDate.String(), string(g.State), g.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save goal %s: %w", g.ID, err)
	}
	return nil
}

const deleteGoal = `DELETE FROM goals WHERE id = ? AND owner = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id, owner string) error {
	res, err := q.db.ExecContext(ctx, deleteGoal, id, owner)
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const listGoals = `SELECT ` + goalColumns + ` FROM goals WHERE owner = ? ORDER BY start_date DESC, created_at DESC`

func (q *Queries) ListGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	return q.queryGoals(ctx, listGoals, owner)
}

const activeGoals = `SELECT ` + goalColumns + ` FROM goals WHERE owner = ? AND state = 'ACTIVE' ORDER BY created_at ASC, id ASC`

func (q *Queries) ActiveGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	return q.queryGoals(ctx, activeGoals, owner)
}

func (q *Queries) queryGoals(ctx context.Context, query, owner string) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const upsertBudget = `
INSERT INTO budgets (owner, category, limit_cents) VALUES (?, ?, ?)
ON CONFLICT (owner, category) DO UPDATE SET limit_cents = excluded.limit_cents`

func (q *Queries) SetBudget(ctx context.Context, b core.Budget) error {
	if _, err := q.db.ExecContext(ctx, upsertBudget, b.Owner, b.Category, b.Limit.Cents); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

const getBudget = `SELECT owner, category, limit_cents FROM budgets WHERE owner = ? AND category = ?`

func (q *Queries) GetBudget(ctx context.Context, owner, category string) (core.Budget, error) {
	var b core.Budget
	err := q.db.QueryRowContext(ctx, getBudget, owner, category).Scan(&b.Owner, &b.Category, &b.Limit.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

const listBudgets = `SELECT owner, category, limit_cents FROM budgets WHERE owner = ? ORDER BY category`

func (q *Queries) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, owner)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.Owner, &b.Category, &b.Limit.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (core.Entry, error) {
	var (
		e         core.Entry
		kind      string
		createdAt int64
		voided    int64
	)
	if err := s.Scan(&e.ID, &e.Owner, &kind, &e.Category, &e.Amount.Cents, &e.Description, &createdAt, &voided); err != nil {
		return core.Entry{}, err
	}
	e.Kind = core.Kind(kind)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.Voided = voided != 0
	return e, nil
}

func scanGoal(s scanner) (core.Goal, error) {
	var (
		g          core.Goal
		start, end string
		state      string
		createdAt  int64
	)
	if err := s.Scan(&g.ID, &g.Owner, &g.Name, &g.Target.Cents, &g.Accrued.Cents, &start, &end, &state, &createdAt); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.StartDate, err = core.ParseDate(start); err != nil {
		return core.Goal{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	if g.EndDate, err = core.ParseDate(end); err != nil {
		return core.Goal{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	g.State = core.GoalState(state)
	g.CreatedAt = time.Unix(0, createdAt).UTC()
	return g, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
