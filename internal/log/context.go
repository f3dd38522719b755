package log

import (
	"context"
	"log/slog"
	"time"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from ctx, falling back to the default one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger logs the outcome of domain operations with a fixed field set
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogOperation records one finished operation. Expected failures such as
// insufficient funds are warnings; internal ones are errors.
func (sl *StructuredLogger) LogOperation(ctx context.Context, op, userID string, started time.Time, err error) {
	fields := NewFields().
		WithOperation(op).
		WithUser(userID).
		WithError(err)
	fields[FieldDuration] = time.Since(started).Milliseconds()
	fields[FieldSuccess] = err == nil

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		if fields[FieldErrorKind] == "internal_error" {
			level = slog.LevelError
		}
	}
	sl.logger.Logger.Log(ctx, level, "Operation finished", append([]any{FieldComponent, sl.logger.component}, fields.ToSlice()...)...)
}

// LogBudgetExceeded reports a category whose month-to-date spending passed its limit.
func (sl *StructuredLogger) LogBudgetExceeded(ctx context.Context, userID, category string, spentCents, limitCents int64) {
	fields := NewFields().WithUser(userID).WithComponent(ComponentBudget)
	fields[FieldCategory] = category
	fields[FieldSpentCents] = spentCents
	fields[FieldLimitCents] = limitCents
	sl.logger.Logger.WarnContext(ctx, "Monthly budget exceeded", fields.ToSlice()...)
}

// LogGoalCompleted reports a goal that reached its target.
func (sl *StructuredLogger) LogGoalCompleted(ctx context.Context, userID, goalID, goalName string) {
	fields := NewFields().WithComponent(ComponentGoals).WithUser(userID)
	fields[FieldGoalID] = goalID
	fields[FieldGoalName] = goalName
	sl.logger.Logger.InfoContext(ctx, "Savings goal completed", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(sl.logger.component)
	sl.logger.Logger.ErrorContext(ctx, msg, all.ToSlice()...)
}
