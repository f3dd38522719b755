package log

import (
	"bilancio/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldOperation    = "operation"
	FieldError        = "error"
	FieldErrorKind    = "error_kind"
	FieldSuccess      = "success"
	FieldDuration     = "duration_ms"
	FieldUserID       = "user_id"
	FieldEntryID      = "entry_id"
	FieldGoalID       = "goal_id"
	FieldGoalName     = "goal_name"
	FieldKind         = "kind"
	FieldCategory     = "category"
	FieldAmountCents  = "amount_cents"
	FieldBalanceCents = "balance_cents"
	FieldLimitCents   = "limit_cents"
	FieldSpentCents   = "spent_cents"
	FieldMessageType  = "message_type"
	FieldSheetsRef    = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentLedger  = "ledger"
	ComponentGoals   = "goals"
	ComponentBudget  = "budget"
	ComponentStorage = "storage"
	ComponentLock    = "lock"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpCreate     = "create"
	OpRead       = "read"
	OpUpdate     = "update"
	OpVoid       = "void"
	OpList       = "list"
	OpContribute = "contribute"
	OpCancel     = "cancel"
	OpBudgetSet  = "budget_set"
	OpDispatch   = "dispatch"
	OpMirror     = "mirror"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithError adds the error text and, for service errors, its kind.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorKind] = string(core.KindOf(err))
	}
	return f
}

func (f LogFields) WithEntry(e core.Entry) LogFields {
	f[FieldUserID] = e.Owner
	f[FieldEntryID] = e.ID
	f[FieldKind] = string(e.Kind)
	f[FieldCategory] = e.Category
	f[FieldAmountCents] = e.Amount.Cents
	return f
}

func (f LogFields) WithGoal(g core.Goal) LogFields {
	f[FieldUserID] = g.Owner
	f[FieldGoalID] = g.ID
	f[FieldGoalName] = g.Name
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
