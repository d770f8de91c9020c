package ledger

import (
	"fmt"
	"time"

	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle status of an invoice.
// Transitions are driven by the surrounding invoicing subsystem; the
// reconciliation core only reads the status and increments PaidAmount.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsOpen returns true if the invoice can still receive allocations
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// CountsTowardAging returns true if invoices in this status appear in aging reports
func (s InvoiceStatus) CountsTowardAging() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue || s == InvoiceStatusPaid
}

// OpenInvoiceStatuses returns the statuses eligible for payment allocation
func OpenInvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusSent, InvoiceStatusOverdue}
}

// AgingInvoiceStatuses returns the statuses included in aging reports
func AgingInvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPaid}
}

// Invoice represents a receivable invoice in the organization's ledger.
// Rows are created and transitioned by the external invoicing subsystem;
// this core owns only the PaidAmount field, which it increments when
// payment allocations are applied.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	UserID        uuid.UUID       `json:"user_id"`
	InvoiceDate   time.Time       `json:"invoice_date"` // calendar date, normalized to UTC midnight
	DueDate       time.Time       `json:"due_date"`     // calendar date, normalized to UTC midnight
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        InvoiceStatus   `json:"status"`
	Notes         string          `json:"notes"`
}

// NewInvoice creates a new invoice owned by the given organization
func NewInvoice(
	organizationID uuid.UUID,
	invoiceNumber string,
	customerID uuid.UUID,
	customerName string,
	userID uuid.UUID,
	invoiceDate time.Time,
	dueDate time.Time,
	totalAmount valueobject.Money,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewValidationError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewValidationError("INVALID_INVOICE_NUMBER", "Invoice number cannot exceed 50 characters")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if totalAmount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Total amount must be positive")
	}
	if dueDate.Before(invoiceDate) {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date cannot precede invoice date")
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(organizationID),
		InvoiceNumber:       invoiceNumber,
		CustomerID:          customerID,
		CustomerName:        customerName,
		UserID:              userID,
		InvoiceDate:         DateOnly(invoiceDate),
		DueDate:             DateOnly(dueDate),
		Subtotal:            totalAmount.Amount(),
		TaxAmount:           decimal.Zero,
		TotalAmount:         totalAmount.Amount(),
		PaidAmount:          decimal.Zero,
		Status:              InvoiceStatusDraft,
	}
	return inv, nil
}

// OutstandingAmount returns total_amount minus paid_amount
func (i *Invoice) OutstandingAmount() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// GetOutstandingMoney returns the outstanding balance as Money
func (i *Invoice) GetOutstandingMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(i.OutstandingAmount())
}

// IsOutstanding returns true if the invoice is open and has an unpaid balance
func (i *Invoice) IsOutstanding() bool {
	return i.Status.IsOpen() && i.OutstandingAmount().IsPositive()
}

// DaysOverdue returns whole days between the due date and asOf.
// Negative values mean the invoice is not yet due.
func (i *Invoice) DaysOverdue(asOf time.Time) int {
	return DaysBetween(i.DueDate, asOf)
}

// AgingBucketAsOf returns the aging bucket the invoice falls into as of the given date
func (i *Invoice) AgingBucketAsOf(asOf time.Time) AgingBucket {
	return BucketForDaysOverdue(i.DaysOverdue(asOf))
}

// ApplyAllocation increments the paid amount by the allocated amount.
// The allocation must be positive and must not exceed the outstanding
// balance; callers validate the full batch before applying anything.
func (i *Invoice) ApplyAllocation(amount valueobject.Money) error {
	if !i.Status.IsOpen() {
		return shared.NewConflictError("INVOICE_NOT_OPEN",
			fmt.Sprintf("Cannot allocate payment to invoice %s in %s status", i.InvoiceNumber, i.Status))
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Allocated amount must be positive")
	}
	if amount.Amount().GreaterThan(i.OutstandingAmount()) {
		return shared.NewConflictError("EXCEEDS_OUTSTANDING",
			fmt.Sprintf("Allocation amount %s exceeds outstanding balance %s for invoice %s",
				amount.StringFixed(2), i.OutstandingAmount().StringFixed(2), i.InvoiceNumber))
	}

	i.PaidAmount = i.PaidAmount.Add(amount.Amount())
	i.UpdatedAt = time.Now()
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceAllocationAppliedEvent(i, amount.Amount()))

	return nil
}

// PaidPercentage returns the percentage of the total that has been paid (0-100)
func (i *Invoice) PaidPercentage() decimal.Decimal {
	if i.TotalAmount.IsZero() {
		return decimal.NewFromInt(100)
	}
	return i.PaidAmount.Div(i.TotalAmount).Mul(decimal.NewFromInt(100)).Round(2)
}
