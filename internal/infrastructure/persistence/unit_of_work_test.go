package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormUnitOfWork_Commit(t *testing.T) {
	db := setupLedgerTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	org := uuid.New()
	inv := persistedInvoice(t, db, org, uuid.New(), "INV-001", "500.00", date(2026, 3, 1), ledger.InvoiceStatusSent)

	err := uow.WithinTx(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		loaded, err := repos.Invoices.FindByIDForOrganization(ctx, org, inv.ID)
		if err != nil {
			return err
		}
		if err := loaded.ApplyAllocation(valueobject.NewMoneyUSD(decimal.RequireFromString("200.00"))); err != nil {
			return err
		}
		if err := repos.Invoices.SaveWithLock(ctx, loaded); err != nil {
			return err
		}

		payment, err := ledger.NewInvoicePayment(org, inv.ID, uuid.New(), date(2026, 3, 10),
			valueobject.NewMoneyUSD(decimal.RequireFromString("200.00")),
			ledger.PaymentMethodCash, "PAY-001", "")
		if err != nil {
			return err
		}
		return repos.Payments.Insert(ctx, payment)
	})
	require.NoError(t, err)

	stored, err := NewGormInvoiceRepository(db).FindByIDForOrganization(ctx, org, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", stored.PaidAmount.StringFixed(2))

	sum, err := NewGormPaymentRepository(db).SumCompletedByInvoice(ctx, org, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", sum.StringFixed(2))
}

func TestGormUnitOfWork_RollbackOnError(t *testing.T) {
	db := setupLedgerTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	org := uuid.New()
	inv := persistedInvoice(t, db, org, uuid.New(), "INV-001", "500.00", date(2026, 3, 1), ledger.InvoiceStatusSent)

	err := uow.WithinTx(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		loaded, err := repos.Invoices.FindByIDForOrganization(ctx, org, inv.ID)
		if err != nil {
			return err
		}
		if err := loaded.ApplyAllocation(valueobject.NewMoneyUSD(decimal.RequireFromString("200.00"))); err != nil {
			return err
		}
		if err := repos.Invoices.SaveWithLock(ctx, loaded); err != nil {
			return err
		}

		payment, err := ledger.NewInvoicePayment(org, inv.ID, uuid.New(), date(2026, 3, 10),
			valueobject.NewMoneyUSD(decimal.RequireFromString("200.00")),
			ledger.PaymentMethodCash, "PAY-001", "")
		if err != nil {
			return err
		}
		if err := repos.Payments.Insert(ctx, payment); err != nil {
			return err
		}

		return fmt.Errorf("validation failed downstream")
	})
	require.Error(t, err)

	// both writes rolled back together
	stored, err := NewGormInvoiceRepository(db).FindByIDForOrganization(ctx, org, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", stored.PaidAmount.StringFixed(2))
	assert.Equal(t, 1, stored.Version)

	sum, err := NewGormPaymentRepository(db).SumCompletedByInvoice(ctx, org, inv.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}
