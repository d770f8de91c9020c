package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockInvoiceRepository is a testify mock of ledger.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*ledger.Invoice, error) {
	args := m.Called(ctx, organizationID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDsForOrganization(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]ledger.Invoice, error) {
	args := m.Called(ctx, organizationID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindOutstanding(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	args := m.Called(ctx, organizationID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindForAging(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID, includePaid bool) ([]ledger.Invoice, error) {
	args := m.Called(ctx, organizationID, customerID, includePaid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindOverdue(ctx context.Context, organizationID uuid.UUID, cutoff time.Time, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	args := m.Called(ctx, organizationID, cutoff, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *ledger.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *ledger.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

// MockReportCache is a testify mock of ReportCache
type MockReportCache struct {
	mock.Mock
}

func (m *MockReportCache) GetAgingReport(ctx context.Context, key string) (*AgingReport, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AgingReport), args.Error(1)
}

func (m *MockReportCache) SetAgingReport(ctx context.Context, key string, report *AgingReport, ttl time.Duration) error {
	args := m.Called(ctx, key, report, ttl)
	return args.Error(0)
}

func (m *MockReportCache) InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error {
	args := m.Called(ctx, organizationID)
	return args.Error(0)
}

// ledgerStore is an in-memory ledger backing the fake repositories. The
// fake unit of work snapshots it before the transactional function runs and
// restores the snapshot on error, mirroring a database rollback.
type ledgerStore struct {
	invoices map[uuid.UUID]ledger.Invoice
	payments []ledger.Payment
}

func newLedgerStore(invoices ...*ledger.Invoice) *ledgerStore {
	s := &ledgerStore{invoices: make(map[uuid.UUID]ledger.Invoice)}
	for _, inv := range invoices {
		s.invoices[inv.ID] = *inv
	}
	return s
}

func (s *ledgerStore) snapshot() ledgerStore {
	invoices := make(map[uuid.UUID]ledger.Invoice, len(s.invoices))
	for id, inv := range s.invoices {
		invoices[id] = inv
	}
	payments := make([]ledger.Payment, len(s.payments))
	copy(payments, s.payments)
	return ledgerStore{invoices: invoices, payments: payments}
}

func (s *ledgerStore) invoice(id uuid.UUID) ledger.Invoice {
	return s.invoices[id]
}

func (s *ledgerStore) paymentSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

type fakeInvoiceRepo struct {
	store *ledgerStore
}

func (r *fakeInvoiceRepo) FindByIDForOrganization(_ context.Context, organizationID, id uuid.UUID) (*ledger.Invoice, error) {
	inv, ok := r.store.invoices[id]
	if !ok || !inv.BelongsTo(organizationID) {
		return nil, shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	found := inv
	return &found, nil
}

func (r *fakeInvoiceRepo) FindByIDsForOrganization(_ context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]ledger.Invoice, error) {
	var result []ledger.Invoice
	for _, id := range ids {
		if inv, ok := r.store.invoices[id]; ok && inv.BelongsTo(organizationID) {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (r *fakeInvoiceRepo) FindOutstanding(_ context.Context, organizationID uuid.UUID, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	var result []ledger.Invoice
	for _, inv := range r.store.invoices {
		if !inv.BelongsTo(organizationID) || !inv.IsOutstanding() {
			continue
		}
		if customerID != nil && inv.CustomerID != *customerID {
			continue
		}
		result = append(result, inv)
	}
	sortByDueDate(result)
	return result, nil
}

func (r *fakeInvoiceRepo) FindForAging(_ context.Context, organizationID uuid.UUID, customerID *uuid.UUID, includePaid bool) ([]ledger.Invoice, error) {
	var result []ledger.Invoice
	for _, inv := range r.store.invoices {
		if !inv.BelongsTo(organizationID) || !inv.Status.CountsTowardAging() {
			continue
		}
		if customerID != nil && inv.CustomerID != *customerID {
			continue
		}
		if !includePaid && !inv.OutstandingAmount().IsPositive() {
			continue
		}
		result = append(result, inv)
	}
	sortByDueDate(result)
	return result, nil
}

func (r *fakeInvoiceRepo) FindOverdue(_ context.Context, organizationID uuid.UUID, cutoff time.Time, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	var result []ledger.Invoice
	for _, inv := range r.store.invoices {
		if !inv.BelongsTo(organizationID) || !inv.IsOutstanding() {
			continue
		}
		if inv.DueDate.After(cutoff) {
			continue
		}
		if customerID != nil && inv.CustomerID != *customerID {
			continue
		}
		result = append(result, inv)
	}
	sortByDueDate(result)
	return result, nil
}

func (r *fakeInvoiceRepo) Save(_ context.Context, invoice *ledger.Invoice) error {
	r.store.invoices[invoice.ID] = *invoice
	return nil
}

func (r *fakeInvoiceRepo) SaveWithLock(_ context.Context, invoice *ledger.Invoice) error {
	existing, ok := r.store.invoices[invoice.ID]
	if !ok {
		return shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	if existing.Version != invoice.Version-1 {
		return shared.NewConflictError("CONCURRENT_UPDATE", "Invoice was modified by another transaction")
	}
	r.store.invoices[invoice.ID] = *invoice
	return nil
}

func sortByDueDate(invoices []ledger.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		if !invoices[i].DueDate.Equal(invoices[j].DueDate) {
			return invoices[i].DueDate.Before(invoices[j].DueDate)
		}
		return invoices[i].InvoiceNumber < invoices[j].InvoiceNumber
	})
}

type fakePaymentRepo struct {
	store *ledgerStore
}

func (r *fakePaymentRepo) FindByIDForOrganization(_ context.Context, organizationID, id uuid.UUID) (*ledger.Payment, error) {
	for _, p := range r.store.payments {
		if p.ID == id && p.BelongsTo(organizationID) {
			found := p
			return &found, nil
		}
	}
	return nil, shared.NewNotFoundError("PAYMENT_NOT_FOUND", "Payment not found")
}

func (r *fakePaymentRepo) FindByInvoice(_ context.Context, organizationID, invoiceID uuid.UUID) ([]ledger.Payment, error) {
	var result []ledger.Payment
	for _, p := range r.store.payments {
		if p.BelongsTo(organizationID) && p.InvoiceID != nil && *p.InvoiceID == invoiceID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *fakePaymentRepo) ExistsByReferenceNumber(_ context.Context, organizationID uuid.UUID, referenceNumber string) (bool, error) {
	for _, p := range r.store.payments {
		if p.BelongsTo(organizationID) && p.ReferenceNumber == referenceNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePaymentRepo) SumCompletedByInvoice(_ context.Context, organizationID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range r.store.payments {
		if p.BelongsTo(organizationID) && p.IsCompleted() && p.InvoiceID != nil && *p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *fakePaymentRepo) Insert(_ context.Context, payment *ledger.Payment) error {
	r.store.payments = append(r.store.payments, *payment)
	return nil
}

// fakeUnitOfWork runs the function against the shared store and rolls the
// store back to its pre-transaction state when the function errors.
type fakeUnitOfWork struct {
	store *ledgerStore
}

func (u *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	before := u.store.snapshot()
	err := fn(ctx, ledger.Repositories{
		Invoices: &fakeInvoiceRepo{store: u.store},
		Payments: &fakePaymentRepo{store: u.store},
	})
	if err != nil {
		*u.store = before
	}
	return err
}
