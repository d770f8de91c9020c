package ledger

import (
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event types for the ledger domain
const (
	EventTypePaymentRecorded          = "ledger.payment.recorded"
	EventTypeInvoiceAllocationApplied = "ledger.invoice.allocation_applied"
)

// PaymentRecordedEvent is raised when a payment row is created
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	Amount   decimal.Decimal `json:"amount"`
	Method   PaymentMethod   `json:"method"`
	IsCredit bool            `json:"is_credit"`
}

// NewPaymentRecordedEvent creates a PaymentRecordedEvent
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, "Payment", p.ID, p.OrganizationID),
		Amount:          p.Amount,
		Method:          p.Method,
		IsCredit:        p.IsCredit(),
	}
}

// InvoiceAllocationAppliedEvent is raised when an allocation increments an
// invoice's paid amount
type InvoiceAllocationAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber   string          `json:"invoice_number"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	Outstanding     decimal.Decimal `json:"outstanding_amount"`
}

// NewInvoiceAllocationAppliedEvent creates an InvoiceAllocationAppliedEvent
func NewInvoiceAllocationAppliedEvent(inv *Invoice, allocated decimal.Decimal) *InvoiceAllocationAppliedEvent {
	return &InvoiceAllocationAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceAllocationApplied, "Invoice", inv.ID, inv.OrganizationID),
		InvoiceNumber:   inv.InvoiceNumber,
		AllocatedAmount: allocated,
		PaidAmount:      inv.PaidAmount,
		Outstanding:     inv.OutstandingAmount(),
	}
}
