package models

import (
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber string               `gorm:"type:varchar(50);not null;index"` // unique per organization, enforced in migrations
	CustomerID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerName  string               `gorm:"type:varchar(200);not null"`
	UserID        uuid.UUID            `gorm:"type:uuid;not null"`
	InvoiceDate   time.Time            `gorm:"type:date;not null"`
	DueDate       time.Time            `gorm:"type:date;not null;index"`
	Subtotal      decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	TaxAmount     decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount   decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	PaidAmount    decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	Status        ledger.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	Notes         string               `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	return &ledger.Invoice{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		InvoiceNumber:       m.InvoiceNumber,
		CustomerID:          m.CustomerID,
		CustomerName:        m.CustomerName,
		UserID:              m.UserID,
		InvoiceDate:         ledger.DateOnly(m.InvoiceDate),
		DueDate:             ledger.DateOnly(m.DueDate),
		Subtotal:            m.Subtotal,
		TaxAmount:           m.TaxAmount,
		TotalAmount:         m.TotalAmount,
		PaidAmount:          m.PaidAmount,
		Status:              m.Status,
		Notes:               m.Notes,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *ledger.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.CustomerID = inv.CustomerID
	m.CustomerName = inv.CustomerName
	m.UserID = inv.UserID
	m.InvoiceDate = inv.InvoiceDate
	m.DueDate = inv.DueDate
	m.Subtotal = inv.Subtotal
	m.TaxAmount = inv.TaxAmount
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.Status = inv.Status
	m.Notes = inv.Notes
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
// A NULL InvoiceID marks an unallocated credit row.
type PaymentModel struct {
	TenantAggregateModel
	InvoiceID       *uuid.UUID           `gorm:"type:uuid;index"`
	UserID          uuid.UUID            `gorm:"type:uuid;not null"`
	PaymentDate     time.Time            `gorm:"type:date;not null;index"`
	Amount          decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Method          ledger.PaymentMethod `gorm:"type:varchar(20);not null"`
	ReferenceNumber string               `gorm:"type:varchar(100);index"` // unique per organization when set, enforced in migrations
	Status          ledger.PaymentStatus `gorm:"type:varchar(20);not null;default:'completed';index"`
	Notes           string               `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *ledger.Payment {
	return &ledger.Payment{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		InvoiceID:           m.InvoiceID,
		UserID:              m.UserID,
		PaymentDate:         ledger.DateOnly(m.PaymentDate),
		Amount:              m.Amount,
		Method:              m.Method,
		ReferenceNumber:     m.ReferenceNumber,
		Status:              m.Status,
		Notes:               m.Notes,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *ledger.Payment) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.InvoiceID = p.InvoiceID
	m.UserID = p.UserID
	m.PaymentDate = p.PaymentDate
	m.Amount = p.Amount
	m.Method = p.Method
	m.ReferenceNumber = p.ReferenceNumber
	m.Status = p.Status
	m.Notes = p.Notes
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *ledger.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}
