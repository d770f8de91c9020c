package ledger

import (
	"sort"
	"time"

	"github.com/arledger/backend/internal/domain/shared"
	"github.com/arledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationTarget is an outstanding invoice viewed as a candidate for
// allocation. It carries just enough state to run the greedy walk without
// mutating anything.
type AllocationTarget struct {
	InvoiceID         uuid.UUID
	InvoiceNumber     string
	InvoiceDate       time.Time
	DueDate           time.Time
	TotalAmount       decimal.Decimal
	PaidAmount        decimal.Decimal
	OutstandingAmount decimal.Decimal
}

// TargetFromInvoice builds an allocation target from an invoice snapshot
func TargetFromInvoice(inv *Invoice) AllocationTarget {
	return AllocationTarget{
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		InvoiceDate:       inv.InvoiceDate,
		DueDate:           inv.DueDate,
		TotalAmount:       inv.TotalAmount,
		PaidAmount:        inv.PaidAmount,
		OutstandingAmount: inv.OutstandingAmount(),
	}
}

// PlanLine is one allocation the plan proposes against one invoice
type PlanLine struct {
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	Amount            decimal.Decimal `json:"amount"`
	OutstandingBefore decimal.Decimal `json:"outstanding_before"`
	OutstandingAfter  decimal.Decimal `json:"outstanding_after"`
}

// AllocationPlan is the result of the greedy oldest-due-first walk. The sum
// of line amounts plus the credit amount always equals the payment amount.
type AllocationPlan struct {
	Lines          []PlanLine      `json:"lines"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	CreditAmount   decimal.Decimal `json:"credit_amount"` // funds left after all targets are settled
	FullyAllocated bool            `json:"fully_allocated"` // every outstanding target was settled
}

// HasCredit returns true if the plan leaves unallocated funds
func (p *AllocationPlan) HasCredit() bool {
	return p.CreditAmount.IsPositive()
}

// BuildFIFOPlan walks the targets oldest obligation first, allocating
// min(remaining, outstanding) to each until the amount is exhausted or no
// targets remain. It does not mutate anything; AutoAllocatePayment and
// GetAllocationSuggestions both run this exact walk so previews match
// committed outcomes.
func BuildFIFOPlan(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	// Oldest due date first; invoice date then number break ties so the
	// ordering is deterministic for equal due dates.
	ordered := make([]AllocationTarget, len(targets))
	copy(ordered, targets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].DueDate.Equal(ordered[j].DueDate) {
			return ordered[i].DueDate.Before(ordered[j].DueDate)
		}
		if !ordered[i].InvoiceDate.Equal(ordered[j].InvoiceDate) {
			return ordered[i].InvoiceDate.Before(ordered[j].InvoiceDate)
		}
		return ordered[i].InvoiceNumber < ordered[j].InvoiceNumber
	})

	plan := &AllocationPlan{
		Lines:          make([]PlanLine, 0, len(ordered)),
		TotalAllocated: decimal.Zero,
		CreditAmount:   decimal.Zero,
	}

	remaining := amount.Amount()
	totalOutstanding := decimal.Zero
	for _, target := range ordered {
		if target.OutstandingAmount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		totalOutstanding = totalOutstanding.Add(target.OutstandingAmount)
		if remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}

		allocation := decimal.Min(remaining, target.OutstandingAmount)
		plan.Lines = append(plan.Lines, PlanLine{
			InvoiceID:         target.InvoiceID,
			InvoiceNumber:     target.InvoiceNumber,
			Amount:            allocation,
			OutstandingBefore: target.OutstandingAmount,
			OutstandingAfter:  target.OutstandingAmount.Sub(allocation),
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(allocation)
		remaining = remaining.Sub(allocation)
	}

	plan.CreditAmount = remaining
	plan.FullyAllocated = len(plan.Lines) > 0 && plan.TotalAllocated.Equal(totalOutstanding)

	return plan, nil
}
