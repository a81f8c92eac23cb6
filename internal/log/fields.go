package log

import "cloudledger/internal/core"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldPeriod      = "period"
	FieldYear        = "year"
	FieldTxID        = "tx_id"
	FieldTxType      = "tx_type"
	FieldCategory    = "category"
	FieldAmount      = "amount"
	FieldIndex       = "index"
	FieldRevision    = "revision"
	FieldRows        = "rows"
	FieldDroppedRows = "dropped_rows"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpAppend   = "append"
	OpDelete   = "delete"
	OpMirror   = "mirror"
	OpRender   = "render"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Fields is a small builder for slog key/value pairs.
type Fields []any

func NewFields() Fields { return Fields{} }

func (f Fields) WithOperation(op string) Fields {
	return append(f, FieldOperation, op)
}

func (f Fields) WithError(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

// WithTransaction adds the fields that identify a ledger entry.
func (f Fields) WithTransaction(tx core.Transaction) Fields {
	return append(f,
		FieldTxID, tx.ID,
		FieldTxType, tx.Type.English(),
		FieldCategory, tx.Category,
		FieldAmount, tx.Amount.String(),
	)
}

func (f Fields) With(key string, value any) Fields {
	return append(f, key, value)
}
