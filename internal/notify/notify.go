// Package notify delivers committed ledger events to out-of-band consumers.
package notify

import (
	"context"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

// Publisher is the part of the AMQP client the queue sink needs.
type Publisher interface {
	PublishExpenseRecorded(ctx context.Context, userID, category string, amount core.Money) error
	PublishGoalCompleted(ctx context.Context, userID, goalID, goalName string) error
	PublishEntryChanged(ctx context.Context, e core.Entry, op core.EntryOp) error
}

var (
	_ services.Notifier = (*Queue)(nil)
	_ services.Notifier = (*Log)(nil)
)

// Queue forwards every event to the message broker for the worker.
type Queue struct {
	pub Publisher
}

func NewQueue(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) NotifyExpense(ctx context.Context, userID, category string, amount core.Money) error {
	return q.pub.PublishExpenseRecorded(ctx, userID, category, amount)
}

func (q *Queue) NotifyGoalCompleted(ctx context.Context, userID, goalID, goalName string) error {
	return q.pub.PublishGoalCompleted(ctx, userID, goalID, goalName)
}

func (q *Queue) NotifyEntryChanged(ctx context.Context, e core.Entry, op core.EntryOp) error {
	return q.pub.PublishEntryChanged(ctx, e, op)
}

// Log only writes events to the logger. It is used when no broker is configured.
type Log struct {
	logger *log.Logger
	events *log.StructuredLogger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentBackend)
	return &Log{logger: logger, events: log.NewStructuredLogger(logger)}
}

func (l *Log) NotifyExpense(ctx context.Context, userID, category string, amount core.Money) error {
	l.logger.InfoContext(ctx, "Expense recorded",
		log.FieldUserID, userID,
		log.FieldCategory, category,
		log.FieldAmountCents, amount.Cents)
	return nil
}

func (l *Log) NotifyGoalCompleted(ctx context.Context, userID, goalID, goalName string) error {
	l.events.LogGoalCompleted(ctx, userID, goalID, goalName)
	return nil
}

func (l *Log) NotifyEntryChanged(ctx context.Context, e core.Entry, op core.EntryOp) error {
	fields := log.NewFields().WithEntry(e)
	fields[log.FieldOperation] = string(op)
	l.logger.DebugContext(ctx, "Entry changed", fields.ToSlice()...)
	return nil
}
