package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvoicePayment(t *testing.T) {
	org := uuid.New()
	invoiceID := uuid.New()
	paymentDate := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)

	p, err := NewInvoicePayment(org, invoiceID, uuid.New(), paymentDate,
		valueobject.NewMoneyUSD(decimal.RequireFromString("150.555")),
		PaymentMethodCheck, "CHK-100", "march payment")
	require.NoError(t, err)

	require.NotNil(t, p.InvoiceID)
	assert.Equal(t, invoiceID, *p.InvoiceID)
	assert.False(t, p.IsCredit())
	assert.True(t, p.IsCompleted())
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	// amount rounded to cents, date normalized to midnight
	assert.Equal(t, "150.56", p.Amount.StringFixed(2))
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), p.PaymentDate)

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePaymentRecorded, events[0].EventType())
}

func TestNewCreditPayment(t *testing.T) {
	p, err := NewCreditPayment(uuid.New(), uuid.New(), time.Now(),
		valueobject.NewMoneyUSD(decimal.RequireFromString("25.00")),
		PaymentMethodBankTransfer, "WIRE-9-OVERPAYMENT", "Overpayment credit: 25.00")
	require.NoError(t, err)

	assert.Nil(t, p.InvoiceID)
	assert.True(t, p.IsCredit())
	assert.Equal(t, "25.00", p.Amount.StringFixed(2))
}

func TestNewPayment_Validation(t *testing.T) {
	org := uuid.New()
	invoiceID := uuid.New()
	user := uuid.New()
	now := time.Now()

	tests := []struct {
		name string
		run  func() (*Payment, error)
	}{
		{
			name: "zero amount",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, invoiceID, user, now,
					valueobject.ZeroUSD(), PaymentMethodCash, "", "")
			},
		},
		{
			name: "negative amount",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, invoiceID, user, now,
					valueobject.NewMoneyUSD(decimal.NewFromInt(-5)), PaymentMethodCash, "", "")
			},
		},
		{
			name: "invalid method",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, invoiceID, user, now,
					valueobject.NewMoneyUSD(decimal.NewFromInt(5)), "barter", "", "")
			},
		},
		{
			name: "nil invoice",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, uuid.Nil, user, now,
					valueobject.NewMoneyUSD(decimal.NewFromInt(5)), PaymentMethodCash, "", "")
			},
		},
		{
			name: "reference too long",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, invoiceID, user, now,
					valueobject.NewMoneyUSD(decimal.NewFromInt(5)), PaymentMethodCash,
					strings.Repeat("R", 101), "")
			},
		},
		{
			name: "notes too long",
			run: func() (*Payment, error) {
				return NewInvoicePayment(org, invoiceID, user, now,
					valueobject.NewMoneyUSD(decimal.NewFromInt(5)), PaymentMethodCash,
					"", strings.Repeat("n", 501))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestPaymentMethodIsValid(t *testing.T) {
	for _, m := range []PaymentMethod{
		PaymentMethodCash, PaymentMethodCheck, PaymentMethodBankTransfer,
		PaymentMethodCreditCard, PaymentMethodOnline,
	} {
		assert.True(t, m.IsValid(), m)
	}
	assert.False(t, PaymentMethod("venmo").IsValid())
}
