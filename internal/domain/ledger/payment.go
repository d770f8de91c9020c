package ledger

import (
	"time"

	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxReferenceNumberLength is the longest reference number a payment row
// accepts; derived references must stay within it too.
const MaxReferenceNumberLength = 100

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodOnline       PaymentMethod = "online"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodBankTransfer,
		PaymentMethodCreditCard, PaymentMethodOnline:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentStatus represents the status of a payment row
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsValid checks if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Payment represents money received against the ledger. A payment either
// settles part of one invoice (InvoiceID set) or holds an unallocated
// credit left over after every targeted invoice was fully settled
// (InvoiceID nil). Use NewInvoicePayment / NewCreditPayment so the two
// cases stay explicit at construction.
//
// Completed payments are immutable; the allocation engine only inserts them.
type Payment struct {
	shared.TenantAggregateRoot
	InvoiceID       *uuid.UUID      `json:"invoice_id"` // nil denotes an unallocated credit
	UserID          uuid.UUID       `json:"user_id"`    // user who recorded the payment
	PaymentDate     time.Time       `json:"payment_date"`
	Amount          decimal.Decimal `json:"amount"`
	Method          PaymentMethod   `json:"method"`
	ReferenceNumber string          `json:"reference_number"`
	Status          PaymentStatus   `json:"status"`
	Notes           string          `json:"notes"`
}

func newPayment(
	organizationID uuid.UUID,
	invoiceID *uuid.UUID,
	userID uuid.UUID,
	paymentDate time.Time,
	amount valueobject.Money,
	method PaymentMethod,
	referenceNumber string,
	notes string,
) (*Payment, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_METHOD", "Payment method is not valid")
	}
	if len(referenceNumber) > MaxReferenceNumberLength {
		return nil, shared.NewValidationError("INVALID_REFERENCE", "Reference number cannot exceed 100 characters")
	}
	if len(notes) > 500 {
		return nil, shared.NewValidationError("INVALID_NOTES", "Notes cannot exceed 500 characters")
	}

	p := &Payment{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(organizationID),
		InvoiceID:           invoiceID,
		UserID:              userID,
		PaymentDate:         DateOnly(paymentDate),
		Amount:              amount.Amount().Round(2),
		Method:              method,
		ReferenceNumber:     referenceNumber,
		Status:              PaymentStatusCompleted,
		Notes:               notes,
	}

	p.AddDomainEvent(NewPaymentRecordedEvent(p))

	return p, nil
}

// NewInvoicePayment creates a completed payment allocated to one invoice
func NewInvoicePayment(
	organizationID uuid.UUID,
	invoiceID uuid.UUID,
	userID uuid.UUID,
	paymentDate time.Time,
	amount valueobject.Money,
	method PaymentMethod,
	referenceNumber string,
	notes string,
) (*Payment, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	id := invoiceID
	return newPayment(organizationID, &id, userID, paymentDate, amount, method, referenceNumber, notes)
}

// NewCreditPayment creates a completed payment holding an unallocated credit
func NewCreditPayment(
	organizationID uuid.UUID,
	userID uuid.UUID,
	paymentDate time.Time,
	amount valueobject.Money,
	method PaymentMethod,
	referenceNumber string,
	notes string,
) (*Payment, error) {
	return newPayment(organizationID, nil, userID, paymentDate, amount, method, referenceNumber, notes)
}

// IsCredit returns true if the payment is an unallocated credit
func (p *Payment) IsCredit() bool {
	return p.InvoiceID == nil
}

// IsCompleted returns true if the payment settled successfully
func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// GetAmountMoney returns the payment amount as Money
func (p *Payment) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(p.Amount)
}
