package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldOutcome       = "outcome"
	FieldMonth         = "month"
	FieldAccountID     = "account_id"
	FieldTransactionID = "transaction_id"
	FieldCategoryID    = "category_id"
	FieldAmountCents   = "amount_cents"
	FieldCount         = "count"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSync    = "sync"
	ComponentAssign  = "assign"
	ComponentExport  = "export"
	ComponentBank    = "bank"
)

// Outcomes for the category assignment workflow
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeRejected   = "rejected"
)
