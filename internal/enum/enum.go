package enum

// ── State machines (CHECK constrained in DB) ──

const (
	TableStatusOpen   = "open"
	TableStatusClosed = "closed"
)

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPending = "pending"
)

// ── Configurable labels (CHECK constrained in DB) ──

const (
	PaymentMethodCash   = "cash"
	PaymentMethodOnline = "online"
)

const (
	PortionHalf = "half"
	PortionFull = "full"
)

// ── Duplicate-add resolution modes (request-level, no DB constraint) ──

const (
	DuplicateModeAdd      = "add"
	DuplicateModeDecrease = "decrease"
)

// ── WebSocket event types ──

const (
	EventTableCreated  = "table.created"
	EventTableClosed   = "table.closed"
	EventTableReopened = "table.reopened"
	EventBillCreated   = "bill.created"
	EventBillUpdated   = "bill.updated"
)
