package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentAllocationService records payments against invoices: explicit
// allocation across a chosen set of invoices, automatic oldest-due-first
// allocation, and read-only allocation previews.
//
// Mutations run inside one unit of work. The entire batch is validated
// against invoice outstanding balances before any row is written, and
// invoice updates carry an optimistic version check, so a concurrent
// allocation against the same invoice surfaces as a conflict instead of an
// overdraw. The service never retries conflicts; the caller decides.
type PaymentAllocationService struct {
	uow         ledger.UnitOfWork
	invoiceRepo ledger.InvoiceRepository
	reportCache ReportCache
	events      shared.EventPublisher
	logger      *zap.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// AllocationServiceOption configures a PaymentAllocationService
type AllocationServiceOption func(*PaymentAllocationService)

// WithAllocationLogger sets the logger
func WithAllocationLogger(logger *zap.Logger) AllocationServiceOption {
	return func(s *PaymentAllocationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllocationReportCache sets the aging report cache invalidated after commits
func WithAllocationReportCache(cache ReportCache) AllocationServiceOption {
	return func(s *PaymentAllocationService) {
		s.reportCache = cache
	}
}

// WithAllocationEventPublisher sets the publisher that receives domain
// events after a successful commit
func WithAllocationEventPublisher(events shared.EventPublisher) AllocationServiceOption {
	return func(s *PaymentAllocationService) {
		s.events = events
	}
}

// WithAllocationClock overrides the time source (used in tests)
func WithAllocationClock(now func() time.Time) AllocationServiceOption {
	return func(s *PaymentAllocationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPaymentAllocationService creates a new PaymentAllocationService.
// invoiceRepo serves read-only previews; all mutations go through uow.
func NewPaymentAllocationService(
	uow ledger.UnitOfWork,
	invoiceRepo ledger.InvoiceRepository,
	opts ...AllocationServiceOption,
) *PaymentAllocationService {
	s := &PaymentAllocationService{
		uow:         uow,
		invoiceRepo: invoiceRepo,
		logger:      zap.NewNop(),
		validate:    validator.New(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllocationInput is one requested allocation of a payment to an invoice
type AllocationInput struct {
	InvoiceID       uuid.UUID       `validate:"required"`
	AllocatedAmount decimal.Decimal `validate:"-"`
}

// AllocatePaymentRequest carries an explicit multi-invoice allocation
type AllocatePaymentRequest struct {
	OrganizationID  uuid.UUID            `validate:"required"`
	UserID          uuid.UUID            `validate:"required"`
	PaymentDate     time.Time            `validate:"required"`
	Amount          decimal.Decimal      `validate:"-"`
	Method          ledger.PaymentMethod `validate:"required,oneof=cash check bank_transfer credit_card online"`
	ReferenceNumber string               `validate:"max=100"`
	Notes           string               `validate:"max=500"`
	Allocations     []AllocationInput    `validate:"required,min=1,dive"`
}

// AllocationDetail describes one payment row the engine created
type AllocationDetail struct {
	InvoiceID         *uuid.UUID      `json:"invoice_id"` // nil for the unallocated credit row
	InvoiceNumber     string          `json:"invoice_number"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	OutstandingBefore decimal.Decimal `json:"outstanding_before"`
	OutstandingAfter  decimal.Decimal `json:"outstanding_after"`
	IsCredit          bool            `json:"is_credit"`
}

// AllocatePaymentResult is the outcome of an explicit allocation
type AllocatePaymentResult struct {
	PrimaryPayment *ledger.Payment    `json:"primary_payment"`
	Payments       []ledger.Payment   `json:"payments"`
	Details        []AllocationDetail `json:"details"`
}

const creditInvoiceNumber = "CREDIT"

// creditReference derives the reference number for an unallocated credit row
func creditReference(referenceNumber string) string {
	if referenceNumber == "" {
		referenceNumber = creditInvoiceNumber
	}
	return withReferenceSuffix(referenceNumber, "-OVERPAYMENT")
}

// derivedReference derives the reference number for a follow-on payment row
// of the same logical transfer. The invoice ID suffix keeps every row's
// reference distinct so the per-organization uniqueness constraint holds
// across the whole batch.
func derivedReference(referenceNumber string, invoiceID uuid.UUID) string {
	if referenceNumber == "" {
		return ""
	}
	return withReferenceSuffix(referenceNumber, "-"+invoiceID.String())
}

// withReferenceSuffix appends a suffix to a reference, truncating the base
// so the result stays within the payment reference limit. The suffix is
// what keeps derived references distinct, so it always survives intact.
func withReferenceSuffix(referenceNumber, suffix string) string {
	if overrun := len(referenceNumber) + len(suffix) - ledger.MaxReferenceNumberLength; overrun > 0 {
		referenceNumber = referenceNumber[:len(referenceNumber)-overrun]
	}
	return referenceNumber + suffix
}

// requireCents rejects amounts carrying more than two fractional digits
func requireCents(amount decimal.Decimal, code, what string) error {
	if !amount.Round(2).Equal(amount) {
		return shared.NewValidationError(code, fmt.Sprintf("%s cannot have more than two decimal places", what))
	}
	return nil
}

func (s *PaymentAllocationService) validateAllocateRequest(req *AllocatePaymentRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return shared.NewValidationError("INVALID_REQUEST", err.Error())
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if err := requireCents(req.Amount, "INVALID_AMOUNT", "Payment amount"); err != nil {
		return err
	}
	if ledger.DateOnly(req.PaymentDate).After(ledger.DateOnly(s.now())) {
		return shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date cannot be in the future")
	}

	seen := make(map[uuid.UUID]bool, len(req.Allocations))
	total := decimal.Zero
	for _, allocation := range req.Allocations {
		if allocation.AllocatedAmount.LessThanOrEqual(decimal.Zero) {
			return shared.NewValidationError("INVALID_ALLOCATION", "Allocated amount must be positive")
		}
		if err := requireCents(allocation.AllocatedAmount, "INVALID_ALLOCATION", "Allocated amount"); err != nil {
			return err
		}
		if seen[allocation.InvoiceID] {
			return shared.NewValidationError("DUPLICATE_ALLOCATION",
				fmt.Sprintf("Invoice %s appears in more than one allocation", allocation.InvoiceID))
		}
		seen[allocation.InvoiceID] = true
		total = total.Add(allocation.AllocatedAmount)
	}
	if total.GreaterThan(req.Amount) {
		return shared.NewConflictError("ALLOCATION_EXCEEDS_PAYMENT",
			fmt.Sprintf("Total allocated amount %s exceeds payment amount %s",
				total.StringFixed(2), req.Amount.StringFixed(2)))
	}
	return nil
}

// AllocatePayment applies an explicit allocation of one payment across one
// or more invoices. The first allocation's invoice receives the primary
// payment row; every further allocation becomes its own payment row tagged
// as derived from the same transfer. Funds left after all allocations
// become an unallocated credit row, so the sum of created payment rows
// always equals the requested amount.
func (s *PaymentAllocationService) AllocatePayment(ctx context.Context, req AllocatePaymentRequest) (*AllocatePaymentResult, error) {
	if err := s.validateAllocateRequest(&req); err != nil {
		return nil, err
	}

	result := &AllocatePaymentResult{}
	var events []shared.DomainEvent

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		events = events[:0]
		invoiceIDs := make([]uuid.UUID, len(req.Allocations))
		for i, allocation := range req.Allocations {
			invoiceIDs[i] = allocation.InvoiceID
		}

		invoices, err := repos.Invoices.FindByIDsForOrganization(ctx, req.OrganizationID, invoiceIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch invoices: %w", err)
		}
		byID := make(map[uuid.UUID]*ledger.Invoice, len(invoices))
		for i := range invoices {
			byID[invoices[i].ID] = &invoices[i]
		}
		if len(byID) != len(invoiceIDs) {
			return shared.NewNotFoundError("INVOICE_NOT_FOUND", "One or more invoices not found")
		}

		if req.ReferenceNumber != "" {
			exists, err := repos.Payments.ExistsByReferenceNumber(ctx, req.OrganizationID, req.ReferenceNumber)
			if err != nil {
				return fmt.Errorf("failed to check reference number: %w", err)
			}
			if exists {
				return shared.NewConflictError("DUPLICATE_REFERENCE",
					fmt.Sprintf("Reference number %s already exists", req.ReferenceNumber))
			}
		}

		// Validate the whole batch against outstanding balances before
		// mutating anything.
		for _, allocation := range req.Allocations {
			invoice := byID[allocation.InvoiceID]
			if !invoice.Status.IsOpen() {
				return shared.NewConflictError("INVOICE_NOT_OPEN",
					fmt.Sprintf("Cannot allocate payment to invoice %s in %s status", invoice.InvoiceNumber, invoice.Status))
			}
			if allocation.AllocatedAmount.GreaterThan(invoice.OutstandingAmount()) {
				return shared.NewConflictError("EXCEEDS_OUTSTANDING",
					fmt.Sprintf("Allocation amount %s exceeds outstanding balance %s for invoice %s",
						allocation.AllocatedAmount.StringFixed(2),
						invoice.OutstandingAmount().StringFixed(2),
						invoice.InvoiceNumber))
			}
		}

		allocated := decimal.Zero
		for i, allocation := range req.Allocations {
			invoice := byID[allocation.InvoiceID]
			outstandingBefore := invoice.OutstandingAmount()

			if err := invoice.ApplyAllocation(valueobject.NewMoneyUSD(allocation.AllocatedAmount)); err != nil {
				return err
			}
			if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
				return fmt.Errorf("failed to save invoice %s: %w", invoice.InvoiceNumber, err)
			}
			events = append(events, drainEvents(invoice)...)

			reference := req.ReferenceNumber
			notes := req.Notes
			if i > 0 {
				reference = derivedReference(req.ReferenceNumber, invoice.ID)
				notes = fmt.Sprintf("Allocated from payment %s", req.ReferenceNumber)
			}

			payment, err := ledger.NewInvoicePayment(
				req.OrganizationID, invoice.ID, req.UserID, req.PaymentDate,
				valueobject.NewMoneyUSD(allocation.AllocatedAmount), req.Method, reference, notes,
			)
			if err != nil {
				return err
			}
			if err := repos.Payments.Insert(ctx, payment); err != nil {
				return fmt.Errorf("failed to insert payment: %w", err)
			}
			events = append(events, drainEvents(payment)...)

			if i == 0 {
				result.PrimaryPayment = payment
			}
			result.Payments = append(result.Payments, *payment)
			result.Details = append(result.Details, AllocationDetail{
				InvoiceID:         &invoice.ID,
				InvoiceNumber:     invoice.InvoiceNumber,
				AllocatedAmount:   allocation.AllocatedAmount,
				PaymentID:         payment.ID,
				OutstandingBefore: outstandingBefore,
				OutstandingAfter:  invoice.OutstandingAmount(),
			})
			allocated = allocated.Add(allocation.AllocatedAmount)
		}

		// The remainder of an under-allocated payment becomes an
		// unallocated credit so no funds are silently dropped and the sum
		// of created payment rows equals the requested amount.
		remainder := req.Amount.Sub(allocated)
		if remainder.IsPositive() {
			credit, err := ledger.NewCreditPayment(
				req.OrganizationID, req.UserID, req.PaymentDate,
				valueobject.NewMoneyUSD(remainder), req.Method,
				creditReference(req.ReferenceNumber),
				fmt.Sprintf("Unallocated credit: %s", remainder.StringFixed(2)),
			)
			if err != nil {
				return err
			}
			if err := repos.Payments.Insert(ctx, credit); err != nil {
				return fmt.Errorf("failed to insert credit payment: %w", err)
			}
			events = append(events, drainEvents(credit)...)
			result.Payments = append(result.Payments, *credit)
			result.Details = append(result.Details, AllocationDetail{
				InvoiceNumber:   creditInvoiceNumber,
				AllocatedAmount: remainder,
				PaymentID:       credit.ID,
				IsCredit:        true,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx, req.OrganizationID)
	s.publishEvents(ctx, events)
	s.logger.Info("payment allocated",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Int("invoices", len(req.Allocations)),
	)

	return result, nil
}

// AutoAllocatePaymentRequest carries an automatic allocation request
type AutoAllocatePaymentRequest struct {
	OrganizationID  uuid.UUID            `validate:"required"`
	UserID          uuid.UUID            `validate:"required"`
	PaymentAmount   decimal.Decimal      `validate:"-"`
	Method          ledger.PaymentMethod `validate:"required,oneof=cash check bank_transfer credit_card online"`
	PaymentDate     time.Time            `validate:"required"`
	ReferenceNumber string               `validate:"max=100"`
	Notes           string               `validate:"max=500"`
	CustomerID      *uuid.UUID           `validate:"-"`
}

// AutoAllocatePaymentResult is the outcome of an automatic allocation
type AutoAllocatePaymentResult struct {
	Payments []ledger.Payment   `json:"payments"`
	Details  []AllocationDetail `json:"details"`
}

func (s *PaymentAllocationService) validateAutoAllocateRequest(req *AutoAllocatePaymentRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return shared.NewValidationError("INVALID_REQUEST", err.Error())
	}
	if req.PaymentAmount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if err := requireCents(req.PaymentAmount, "INVALID_AMOUNT", "Payment amount"); err != nil {
		return err
	}
	if ledger.DateOnly(req.PaymentDate).After(ledger.DateOnly(s.now())) {
		return shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date cannot be in the future")
	}
	return nil
}

// AutoAllocatePayment distributes a payment across the organization's
// outstanding invoices, oldest due date first. Funds left after every
// outstanding invoice is settled become an unallocated credit row, so the
// sum of created payment rows always equals the payment amount.
func (s *PaymentAllocationService) AutoAllocatePayment(ctx context.Context, req AutoAllocatePaymentRequest) (*AutoAllocatePaymentResult, error) {
	if err := s.validateAutoAllocateRequest(&req); err != nil {
		return nil, err
	}

	result := &AutoAllocatePaymentResult{}
	var events []shared.DomainEvent

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		events = events[:0]
		invoices, err := repos.Invoices.FindOutstanding(ctx, req.OrganizationID, req.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to fetch outstanding invoices: %w", err)
		}
		if len(invoices) == 0 {
			return shared.NewConflictError("NO_OUTSTANDING_INVOICES", "No outstanding invoices found for allocation")
		}

		byID := make(map[uuid.UUID]*ledger.Invoice, len(invoices))
		targets := make([]ledger.AllocationTarget, len(invoices))
		for i := range invoices {
			byID[invoices[i].ID] = &invoices[i]
			targets[i] = ledger.TargetFromInvoice(&invoices[i])
		}

		plan, err := ledger.BuildFIFOPlan(valueobject.NewMoneyUSD(req.PaymentAmount), targets)
		if err != nil {
			return err
		}

		for i, line := range plan.Lines {
			invoice := byID[line.InvoiceID]

			if err := invoice.ApplyAllocation(valueobject.NewMoneyUSD(line.Amount)); err != nil {
				return err
			}
			if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
				return fmt.Errorf("failed to save invoice %s: %w", invoice.InvoiceNumber, err)
			}
			events = append(events, drainEvents(invoice)...)

			reference := "AUTO-" + invoice.InvoiceNumber
			if req.ReferenceNumber != "" {
				reference = req.ReferenceNumber
				if i > 0 {
					reference = derivedReference(req.ReferenceNumber, invoice.ID)
				}
			}
			notes := req.Notes
			if notes == "" {
				notes = "Auto-allocated payment"
			}

			payment, err := ledger.NewInvoicePayment(
				req.OrganizationID, invoice.ID, req.UserID, req.PaymentDate,
				valueobject.NewMoneyUSD(line.Amount), req.Method, reference, notes,
			)
			if err != nil {
				return err
			}
			if err := repos.Payments.Insert(ctx, payment); err != nil {
				return fmt.Errorf("failed to insert payment: %w", err)
			}
			events = append(events, drainEvents(payment)...)

			result.Payments = append(result.Payments, *payment)
			result.Details = append(result.Details, AllocationDetail{
				InvoiceID:         &invoice.ID,
				InvoiceNumber:     invoice.InvoiceNumber,
				AllocatedAmount:   line.Amount,
				PaymentID:         payment.ID,
				OutstandingBefore: line.OutstandingBefore,
				OutstandingAfter:  line.OutstandingAfter,
			})
		}

		if plan.HasCredit() {
			credit, err := ledger.NewCreditPayment(
				req.OrganizationID, req.UserID, req.PaymentDate,
				valueobject.NewMoneyUSD(plan.CreditAmount), req.Method,
				creditReference(req.ReferenceNumber),
				fmt.Sprintf("Overpayment credit: %s", plan.CreditAmount.StringFixed(2)),
			)
			if err != nil {
				return err
			}
			if err := repos.Payments.Insert(ctx, credit); err != nil {
				return fmt.Errorf("failed to insert credit payment: %w", err)
			}
			events = append(events, drainEvents(credit)...)
			result.Payments = append(result.Payments, *credit)
			result.Details = append(result.Details, AllocationDetail{
				InvoiceNumber:   creditInvoiceNumber,
				AllocatedAmount: plan.CreditAmount,
				PaymentID:       credit.ID,
				IsCredit:        true,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx, req.OrganizationID)
	s.publishEvents(ctx, events)
	s.logger.Info("payment auto-allocated",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("amount", req.PaymentAmount.StringFixed(2)),
		zap.Int("payments", len(result.Payments)),
	)

	return result, nil
}

// AllocationSuggestion is one proposed allocation from a preview run
type AllocationSuggestion struct {
	InvoiceID           *uuid.UUID      `json:"invoice_id"` // nil for the overpayment entry
	InvoiceNumber       string          `json:"invoice_number"`
	InvoiceDate         time.Time       `json:"invoice_date"`
	DueDate             time.Time       `json:"due_date"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	OutstandingBalance  decimal.Decimal `json:"outstanding_balance"`
	SuggestedAllocation decimal.Decimal `json:"suggested_allocation"`
	DaysOverdue         int             `json:"days_overdue"`
	IsOverpayment       bool            `json:"is_overpayment"`
}

// GetAllocationSuggestions simulates the automatic allocation walk without
// mutating anything. It uses the same ordering and greedy logic as
// AutoAllocatePayment, so the preview matches the committed outcome for an
// unchanged ledger.
func (s *PaymentAllocationService) GetAllocationSuggestions(
	ctx context.Context,
	organizationID uuid.UUID,
	paymentAmount decimal.Decimal,
	customerID *uuid.UUID,
) ([]AllocationSuggestion, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if paymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	invoices, err := s.invoiceRepo.FindOutstanding(ctx, organizationID, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outstanding invoices: %w", err)
	}

	targets := make([]ledger.AllocationTarget, len(invoices))
	byID := make(map[uuid.UUID]*ledger.Invoice, len(invoices))
	for i := range invoices {
		targets[i] = ledger.TargetFromInvoice(&invoices[i])
		byID[invoices[i].ID] = &invoices[i]
	}

	plan, err := ledger.BuildFIFOPlan(valueobject.NewMoneyUSD(paymentAmount), targets)
	if err != nil {
		return nil, err
	}

	today := ledger.DateOnly(s.now())
	suggestions := make([]AllocationSuggestion, 0, len(plan.Lines)+1)
	for _, line := range plan.Lines {
		invoice := byID[line.InvoiceID]
		daysOverdue := invoice.DaysOverdue(today)
		if daysOverdue < 0 {
			daysOverdue = 0
		}
		suggestions = append(suggestions, AllocationSuggestion{
			InvoiceID:           &invoice.ID,
			InvoiceNumber:       invoice.InvoiceNumber,
			InvoiceDate:         invoice.InvoiceDate,
			DueDate:             invoice.DueDate,
			TotalAmount:         invoice.TotalAmount,
			PaidAmount:          invoice.PaidAmount,
			OutstandingBalance:  line.OutstandingBefore,
			SuggestedAllocation: line.Amount,
			DaysOverdue:         daysOverdue,
		})
	}

	if plan.HasCredit() {
		suggestions = append(suggestions, AllocationSuggestion{
			InvoiceNumber:       "OVERPAYMENT",
			SuggestedAllocation: plan.CreditAmount,
			IsOverpayment:       true,
		})
	}

	return suggestions, nil
}

// drainEvents moves the pending domain events off an aggregate so a
// retried transaction cannot publish them twice
func drainEvents(aggregate shared.AggregateRoot) []shared.DomainEvent {
	events := aggregate.GetDomainEvents()
	aggregate.ClearDomainEvents()
	return events
}

// publishEvents delivers domain events after a successful commit. Event
// delivery is best effort; the allocation already committed.
func (s *PaymentAllocationService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func (s *PaymentAllocationService) invalidateReports(ctx context.Context, organizationID uuid.UUID) {
	if s.reportCache == nil {
		return
	}
	if err := s.reportCache.InvalidateOrganization(ctx, organizationID); err != nil {
		s.logger.Warn("failed to invalidate cached aging reports",
			zap.String("organization_id", organizationID.String()),
			zap.Error(err),
		)
	}
}
