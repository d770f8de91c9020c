package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements ledger.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByIDForOrganization finds an invoice by ID within an organization
func (r *GormInvoiceRepository) FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDsForOrganization batch-fetches invoices by ID within an organization
func (r *GormInvoiceRepository) FindByIDsForOrganization(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]ledger.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", organizationID, ids).
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindOutstanding finds open invoices with a positive outstanding balance,
// ordered by due date ascending
func (r *GormInvoiceRepository) FindOutstanding(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("status IN ?", statusStrings(ledger.OpenInvoiceStatuses())).
		Where("total_amount > paid_amount")
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	var invoiceModels []models.InvoiceModel
	if err := query.Order("due_date ASC, invoice_number ASC").Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindForAging finds invoices eligible for aging reports
func (r *GormInvoiceRepository) FindForAging(ctx context.Context, organizationID uuid.UUID, customerID *uuid.UUID, includePaid bool) ([]ledger.Invoice, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("status IN ?", statusStrings(ledger.AgingInvoiceStatuses()))
	if !includePaid {
		query = query.Where("total_amount > paid_amount")
	}
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	var invoiceModels []models.InvoiceModel
	if err := query.Order("due_date ASC, invoice_number ASC").Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindOverdue finds open invoices due on or before the cutoff with a
// positive outstanding balance
func (r *GormInvoiceRepository) FindOverdue(ctx context.Context, organizationID uuid.UUID, cutoff time.Time, customerID *uuid.UUID) ([]ledger.Invoice, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("status IN ?", statusStrings(ledger.OpenInvoiceStatuses())).
		Where("total_amount > paid_amount").
		Where("due_date <= ?", ledger.DateOnly(cutoff))
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	var invoiceModels []models.InvoiceModel
	if err := query.Order("due_date ASC, invoice_number ASC").Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// Save creates or updates an invoice without a version check
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock updates an invoice guarded by an optimistic version check.
// The domain aggregate increments its version before saving; the update
// matches the previous version, so a row already bumped by a concurrent
// transaction updates nothing and surfaces as a conflict.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND organization_id = ? AND version = ?", model.ID, model.OrganizationID, model.Version-1).
		Updates(map[string]any{
			"paid_amount": model.PaidAmount,
			"status":      model.Status,
			"version":     model.Version,
			"updated_at":  model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("CONCURRENT_UPDATE", "Invoice was modified by another transaction")
	}
	return nil
}

func toDomainInvoices(invoiceModels []models.InvoiceModel) []ledger.Invoice {
	invoices := make([]ledger.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = *invoiceModels[i].ToDomain()
	}
	return invoices
}

func statusStrings(statuses []ledger.InvoiceStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
