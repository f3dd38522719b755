// Package worker consumes ledger events from the broker and acts on them.
package worker

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// Dispatcher routes each envelope to the component that handles its type.
// Returning an error requeues the message, so only failures that may succeed
// on retry are returned; malformed or unknown messages are logged and dropped.
type Dispatcher struct {
	budgets *budget.Watcher
	// mirror is nil when no spreadsheet is configured.
	mirror sheets.EntryMirror
	logger *log.Logger
	events *log.StructuredLogger
}

func NewDispatcher(budgets *budget.Watcher, mirror sheets.EntryMirror, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentWorker)
	return &Dispatcher{
		budgets: budgets,
		mirror:  mirror,
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
	}
}

func (d *Dispatcher) Handle(ctx context.Context, env *amqp.Envelope) error {
	started := time.Now()
	var err error

	switch env.Type {
	case amqp.TypeExpenseRecorded:
		err = d.expenseRecorded(ctx, env)
	case amqp.TypeGoalCompleted:
		err = d.goalCompleted(ctx, env)
	case amqp.TypeEntryChanged:
		err = d.entryChanged(ctx, env)
	default:
		d.logger.WarnContext(ctx, "Dropping message of unknown type", log.FieldMessageType, env.Type)
		return nil
	}

	if err != nil {
		d.events.LogError(ctx, "Message handling failed", err, log.OpDispatch,
			log.LogFields{log.FieldMessageType: env.Type})
		return err
	}
	d.logger.DebugContext(ctx, "Message handled",
		log.FieldMessageType, env.Type,
		log.FieldDuration, time.Since(started).Milliseconds())
	return nil
}

func (d *Dispatcher) expenseRecorded(ctx context.Context, env *amqp.Envelope) error {
	var msg amqp.ExpenseRecorded
	if !d.decode(ctx, env, &msg) {
		return nil
	}
	status, ok, err := d.budgets.Check(ctx, msg.UserID, msg.Category)
	if err != nil {
		return fmt.Errorf("check budget: %w", err)
	}
	if ok && !status.Exceeded {
		d.logger.DebugContext(ctx, "Budget within limit",
			log.FieldUserID, msg.UserID,
			log.FieldCategory, msg.Category,
			log.FieldSpentCents, status.Spent.Cents,
			log.FieldLimitCents, status.Budget.Limit.Cents)
	}
	return nil
}

func (d *Dispatcher) goalCompleted(ctx context.Context, env *amqp.Envelope) error {
	var msg amqp.GoalCompleted
	if !d.decode(ctx, env, &msg) {
		return nil
	}
	d.events.LogGoalCompleted(ctx, msg.UserID, msg.GoalID, msg.GoalName)
	return nil
}

func (d *Dispatcher) entryChanged(ctx context.Context, env *amqp.Envelope) error {
	var msg amqp.EntryChanged
	if !d.decode(ctx, env, &msg) {
		return nil
	}
	if d.mirror == nil {
		return nil
	}
	ref, err := d.mirror.MirrorEntry(ctx, msg.Entry(), core.EntryOp(msg.Op))
	if err != nil {
		return fmt.Errorf("mirror entry %s: %w", msg.EntryID, err)
	}
	d.logger.InfoContext(ctx, "Entry mirrored",
		log.FieldEntryID, msg.EntryID,
		log.FieldOperation, log.OpMirror,
		log.FieldSheetsRef, ref)
	return nil
}

// decode reports whether the payload could be read. A payload that cannot be
// decoded never will be, so the caller drops it.
func (d *Dispatcher) decode(ctx context.Context, env *amqp.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		d.logger.ErrorContext(ctx, "Dropping malformed message",
			log.FieldMessageType, env.Type,
			log.FieldError, err)
		return false
	}
	return true
}
