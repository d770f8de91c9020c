package persistence

import (
	"context"

	"github.com/arledger/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormUnitOfWork implements ledger.UnitOfWork on a GORM transaction. The
// repositories handed to the function are bound to the transaction, so
// every read inside fn sees the transaction's snapshot and every write
// commits or rolls back as one unit.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// WithinTx runs fn inside one database transaction
func (u *GormUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, ledger.Repositories{
			Invoices: NewGormInvoiceRepository(tx),
			Payments: NewGormPaymentRepository(tx),
		})
	})
}
