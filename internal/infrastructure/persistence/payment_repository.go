package persistence

import (
	"context"
	"errors"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPaymentRepository implements ledger.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByIDForOrganization finds a payment by ID within an organization
func (r *GormPaymentRepository) FindByIDForOrganization(ctx context.Context, organizationID, id uuid.UUID) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("PAYMENT_NOT_FOUND", "Payment not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds all payments referencing an invoice, oldest first
func (r *GormPaymentRepository) FindByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) ([]ledger.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND invoice_id = ?", organizationID, invoiceID).
		Order("payment_date ASC, created_at ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, err
	}

	payments := make([]ledger.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}

// ExistsByReferenceNumber checks reference-number uniqueness within an organization
func (r *GormPaymentRepository) ExistsByReferenceNumber(ctx context.Context, organizationID uuid.UUID, referenceNumber string) (bool, error) {
	if referenceNumber == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("organization_id = ? AND reference_number = ?", organizationID, referenceNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumCompletedByInvoice sums completed payment amounts referencing an invoice
func (r *GormPaymentRepository) SumCompletedByInvoice(ctx context.Context, organizationID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select("SUM(amount)").
		Where("organization_id = ? AND invoice_id = ? AND status = ?",
			organizationID, invoiceID, ledger.PaymentStatusCompleted).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// Insert persists a new payment row
func (r *GormPaymentRepository) Insert(ctx context.Context, payment *ledger.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).Create(model).Error
}
