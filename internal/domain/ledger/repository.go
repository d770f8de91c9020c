package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceRepository defines the narrow persistence interface the
// reconciliation core consumes for invoices. Implementations must scope
// every query to the given organization.
type InvoiceRepository interface {
	// FindByIDForOrganization finds an invoice by ID within an organization
	FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*Invoice, error)

	// FindByIDsForOrganization batch-fetches invoices by ID within an organization.
	// IDs that don't resolve are simply absent from the result.
	FindByIDsForOrganization(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]Invoice, error)

	// FindOutstanding finds open invoices (status sent or overdue) with a
	// positive outstanding balance, ordered by due date ascending. A non-nil
	// customerID restricts the result to one customer.
	FindOutstanding(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID) ([]Invoice, error)

	// FindForAging finds invoices eligible for aging reports (status sent,
	// overdue or paid), ordered by due date ascending. Fully paid invoices
	// are excluded unless includePaid is true.
	FindForAging(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID, includePaid bool) ([]Invoice, error)

	// FindOverdue finds open invoices with due_date on or before the cutoff
	// and a positive outstanding balance, ordered by due date ascending.
	FindOverdue(ctx context.Context, organizationID uuid.UUID, cutoff time.Time, customerID *uuid.UUID) ([]Invoice, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates an invoice with an optimistic version check.
	// Returns a conflict error when another transaction already bumped the
	// version, so concurrent allocations can never jointly overdraw.
	SaveWithLock(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository defines the persistence interface for payment rows
type PaymentRepository interface {
	// FindByIDForOrganization finds a payment by ID within an organization
	FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*Payment, error)

	// FindByInvoice finds all payments referencing an invoice
	FindByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) ([]Payment, error)

	// ExistsByReferenceNumber checks reference-number uniqueness within an organization
	ExistsByReferenceNumber(ctx context.Context, organizationID uuid.UUID, referenceNumber string) (bool, error)

	// SumCompletedByInvoice sums completed payment amounts referencing an invoice
	SumCompletedByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) (decimal.Decimal, error)

	// Insert persists a new payment row
	Insert(ctx context.Context, payment *Payment) error
}

// Repositories bundles the repositories participating in one unit of work
type Repositories struct {
	Invoices InvoiceRepository
	Payments PaymentRepository
}

// UnitOfWork executes a function atomically against the ledger store. The
// repositories passed to fn are bound to the transaction; nothing fn writes
// is observable until fn returns nil, and returning an error discards
// every write.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
