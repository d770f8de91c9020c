package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultReportCacheTTL = 5 * time.Minute

// AgingReportService builds accounts-receivable aging reports: bucketed
// summaries, per-customer rollups, overdue invoice listings, month-over-month
// trends, and headline collection metrics.
//
// Report generation is a pure read; running it twice against an unchanged
// ledger yields identical output. Generated reports may be cached; the
// allocation engine invalidates the organization's cached reports after
// every committed mutation.
type AgingReportService struct {
	invoiceRepo ledger.InvoiceRepository
	cache       ReportCache
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// AgingServiceOption configures an AgingReportService
type AgingServiceOption func(*AgingReportService)

// WithAgingLogger sets the logger
func WithAgingLogger(logger *zap.Logger) AgingServiceOption {
	return func(s *AgingReportService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAgingReportCache sets the report cache
func WithAgingReportCache(cache ReportCache) AgingServiceOption {
	return func(s *AgingReportService) {
		s.cache = cache
	}
}

// WithAgingCacheTTL overrides how long generated reports stay cached
func WithAgingCacheTTL(ttl time.Duration) AgingServiceOption {
	return func(s *AgingReportService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithAgingClock overrides the time source (used in tests)
func WithAgingClock(now func() time.Time) AgingServiceOption {
	return func(s *AgingReportService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAgingReportService creates a new AgingReportService
func NewAgingReportService(invoiceRepo ledger.InvoiceRepository, opts ...AgingServiceOption) *AgingReportService {
	s := &AgingReportService{
		invoiceRepo: invoiceRepo,
		cacheTTL:    defaultReportCacheTTL,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BucketTotals holds the invoice count and amount aged into one bucket
type BucketTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AgingSummary is the organization-wide aging breakdown
type AgingSummary struct {
	Current    BucketTotals `json:"current"`
	Days1To30  BucketTotals `json:"days_1_30"`
	Days31To60 BucketTotals `json:"days_31_60"`
	Days61To90 BucketTotals `json:"days_61_90"`
	Over90     BucketTotals `json:"days_over_90"`
	Total      BucketTotals `json:"total"`
}

func (s *AgingSummary) add(bucket ledger.AgingBucket, amount decimal.Decimal) {
	totals := s.totalsFor(bucket)
	totals.Count++
	totals.Amount = totals.Amount.Add(amount)
	s.Total.Count++
	s.Total.Amount = s.Total.Amount.Add(amount)
}

func (s *AgingSummary) totalsFor(bucket ledger.AgingBucket) *BucketTotals {
	switch bucket {
	case ledger.BucketCurrent:
		return &s.Current
	case ledger.BucketDays1To30:
		return &s.Days1To30
	case ledger.BucketDays31To60:
		return &s.Days31To60
	case ledger.BucketDays61To90:
		return &s.Days61To90
	default:
		return &s.Over90
	}
}

// OverdueAmount returns the summed amount of every past-due bucket
func (s *AgingSummary) OverdueAmount() decimal.Decimal {
	return s.Days1To30.Amount.
		Add(s.Days31To60.Amount).
		Add(s.Days61To90.Amount).
		Add(s.Over90.Amount)
}

// CustomerAgingSummary is one customer's aging rollup
type CustomerAgingSummary struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	Current          decimal.Decimal `json:"current"`
	Days1To30        decimal.Decimal `json:"days_1_30"`
	Days31To60       decimal.Decimal `json:"days_31_60"`
	Days61To90       decimal.Decimal `json:"days_61_90"`
	Over90           decimal.Decimal `json:"days_over_90"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	InvoiceCount     int             `json:"invoice_count"`
}

func (c *CustomerAgingSummary) add(bucket ledger.AgingBucket, amount decimal.Decimal) {
	switch bucket {
	case ledger.BucketCurrent:
		c.Current = c.Current.Add(amount)
	case ledger.BucketDays1To30:
		c.Days1To30 = c.Days1To30.Add(amount)
	case ledger.BucketDays31To60:
		c.Days31To60 = c.Days31To60.Add(amount)
	case ledger.BucketDays61To90:
		c.Days61To90 = c.Days61To90.Add(amount)
	default:
		c.Over90 = c.Over90.Add(amount)
	}
	c.TotalOutstanding = c.TotalOutstanding.Add(amount)
	c.InvoiceCount++
}

// InvoiceAgingDetail is one invoice line of an aging report
type InvoiceAgingDetail struct {
	InvoiceID         uuid.UUID            `json:"invoice_id"`
	InvoiceNumber     string               `json:"invoice_number"`
	CustomerID        uuid.UUID            `json:"customer_id"`
	CustomerName      string               `json:"customer_name"`
	InvoiceDate       time.Time            `json:"invoice_date"`
	DueDate           time.Time            `json:"due_date"`
	TotalAmount       decimal.Decimal      `json:"total_amount"`
	PaidAmount        decimal.Decimal      `json:"paid_amount"`
	OutstandingAmount decimal.Decimal      `json:"outstanding_amount"`
	DaysOverdue       int                  `json:"days_overdue"`
	Bucket            ledger.AgingBucket   `json:"bucket"`
	Status            ledger.InvoiceStatus `json:"status"`
}

// AgingReport is a complete aging report as of one date
type AgingReport struct {
	ReportDate        time.Time              `json:"report_date"`
	OrganizationID    uuid.UUID              `json:"organization_id"`
	CustomerFilter    *uuid.UUID             `json:"customer_filter,omitempty"`
	IncludePaid       bool                   `json:"include_paid"`
	Summary           AgingSummary           `json:"summary"`
	CustomerSummaries []CustomerAgingSummary `json:"customer_summaries"`
	InvoiceDetails    []InvoiceAgingDetail   `json:"invoice_details"`
	TotalCustomers    int                    `json:"total_customers"`
	TotalInvoices     int                    `json:"total_invoices"`
}

// AgingTrendPoint is one month's snapshot in a trend series
type AgingTrendPoint struct {
	ReportDate     time.Time    `json:"report_date"`
	MonthYear      string       `json:"month_year"`
	Summary        AgingSummary `json:"summary"`
	TotalCustomers int          `json:"total_customers"`
	TotalInvoices  int          `json:"total_invoices"`
}

// AgingMetrics carries headline collection KPIs derived from a report
type AgingMetrics struct {
	TotalOutstanding       decimal.Decimal `json:"total_outstanding"`
	TotalOverdue           decimal.Decimal `json:"total_overdue"`
	OverduePercentage      decimal.Decimal `json:"overdue_percentage"`
	AverageDaysOutstanding decimal.Decimal `json:"average_days_outstanding"`
	WorstAgingCustomer     string          `json:"worst_aging_customer"`
	WorstAgingAmount       decimal.Decimal `json:"worst_aging_amount"`
	CollectionEfficiency   decimal.Decimal `json:"collection_efficiency"`
}

func reportCacheKey(organizationID uuid.UUID, asOf time.Time, customerID *uuid.UUID, includePaid bool) string {
	customer := "all"
	if customerID != nil {
		customer = customerID.String()
	}
	return fmt.Sprintf("aging:%s:%s:%s:%t", organizationID, asOf.Format("2006-01-02"), customer, includePaid)
}

// GenerateAgingReport builds the aging report for an organization as of a
// date. A nil asOf means today. Every open invoice with an outstanding
// balance is aged by whole calendar days past its due date into one of five
// buckets; includePaid additionally lists settled invoices in the detail
// and customer sections with a zero outstanding amount.
func (s *AgingReportService) GenerateAgingReport(
	ctx context.Context,
	organizationID uuid.UUID,
	asOf *time.Time,
	customerID *uuid.UUID,
	includePaid bool,
) (*AgingReport, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}

	asOfDate := ledger.DateOnly(s.now())
	if asOf != nil {
		asOfDate = ledger.DateOnly(*asOf)
	}

	cacheKey := reportCacheKey(organizationID, asOfDate, customerID, includePaid)
	if s.cache != nil {
		cached, err := s.cache.GetAgingReport(ctx, cacheKey)
		if err != nil {
			s.logger.Warn("aging report cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	invoices, err := s.invoiceRepo.FindForAging(ctx, organizationID, customerID, includePaid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoices for aging: %w", err)
	}

	report := &AgingReport{
		ReportDate:     asOfDate,
		OrganizationID: organizationID,
		CustomerFilter: customerID,
		IncludePaid:    includePaid,
	}
	customers := make(map[uuid.UUID]*CustomerAgingSummary)

	for i := range invoices {
		invoice := &invoices[i]
		outstanding := invoice.OutstandingAmount()
		if outstanding.LessThanOrEqual(decimal.Zero) && !includePaid {
			continue
		}

		daysOverdue := invoice.DaysOverdue(asOfDate)
		bucket := ledger.BucketForDaysOverdue(daysOverdue)

		// Settled invoices selected via includePaid still count in the
		// bucket totals; they just contribute a zero amount.
		report.Summary.add(bucket, outstanding)

		customer, ok := customers[invoice.CustomerID]
		if !ok {
			customer = &CustomerAgingSummary{
				CustomerID:   invoice.CustomerID,
				CustomerName: invoice.CustomerName,
			}
			customers[invoice.CustomerID] = customer
		}
		customer.add(bucket, outstanding)

		report.InvoiceDetails = append(report.InvoiceDetails, InvoiceAgingDetail{
			InvoiceID:         invoice.ID,
			InvoiceNumber:     invoice.InvoiceNumber,
			CustomerID:        invoice.CustomerID,
			CustomerName:      invoice.CustomerName,
			InvoiceDate:       invoice.InvoiceDate,
			DueDate:           invoice.DueDate,
			TotalAmount:       invoice.TotalAmount,
			PaidAmount:        invoice.PaidAmount,
			OutstandingAmount: outstanding,
			DaysOverdue:       daysOverdue,
			Bucket:            bucket,
			Status:            invoice.Status,
		})
	}

	sort.SliceStable(report.InvoiceDetails, func(i, j int) bool {
		return report.InvoiceDetails[i].DaysOverdue > report.InvoiceDetails[j].DaysOverdue
	})

	report.CustomerSummaries = make([]CustomerAgingSummary, 0, len(customers))
	for _, customer := range customers {
		report.CustomerSummaries = append(report.CustomerSummaries, *customer)
	}
	sort.SliceStable(report.CustomerSummaries, func(i, j int) bool {
		a, b := report.CustomerSummaries[i], report.CustomerSummaries[j]
		if !a.TotalOutstanding.Equal(b.TotalOutstanding) {
			return a.TotalOutstanding.GreaterThan(b.TotalOutstanding)
		}
		return a.CustomerName < b.CustomerName
	})

	report.TotalCustomers = len(report.CustomerSummaries)
	report.TotalInvoices = len(report.InvoiceDetails)

	if s.cache != nil {
		if err := s.cache.SetAgingReport(ctx, cacheKey, report, s.cacheTTL); err != nil {
			s.logger.Warn("aging report cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	return report, nil
}

// GetAgingSummaryByCustomer returns per-customer aging rollups, most
// indebted customer first. A nil asOf means today.
func (s *AgingReportService) GetAgingSummaryByCustomer(ctx context.Context, organizationID uuid.UUID, asOf *time.Time) ([]CustomerAgingSummary, error) {
	report, err := s.GenerateAgingReport(ctx, organizationID, asOf, nil, false)
	if err != nil {
		return nil, err
	}
	return report.CustomerSummaries, nil
}

// GetOverdueInvoices lists invoices at least minDaysOverdue whole days past
// due with an outstanding balance, most overdue first. minDaysOverdue
// values below one are treated as one.
func (s *AgingReportService) GetOverdueInvoices(
	ctx context.Context,
	organizationID uuid.UUID,
	minDaysOverdue int,
	customerID *uuid.UUID,
) ([]InvoiceAgingDetail, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if minDaysOverdue < 1 {
		minDaysOverdue = 1
	}

	today := ledger.DateOnly(s.now())
	cutoff := today.AddDate(0, 0, -minDaysOverdue)

	invoices, err := s.invoiceRepo.FindOverdue(ctx, organizationID, cutoff, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue invoices: %w", err)
	}

	details := make([]InvoiceAgingDetail, 0, len(invoices))
	for i := range invoices {
		invoice := &invoices[i]
		daysOverdue := invoice.DaysOverdue(today)
		details = append(details, InvoiceAgingDetail{
			InvoiceID:         invoice.ID,
			InvoiceNumber:     invoice.InvoiceNumber,
			CustomerID:        invoice.CustomerID,
			CustomerName:      invoice.CustomerName,
			InvoiceDate:       invoice.InvoiceDate,
			DueDate:           invoice.DueDate,
			TotalAmount:       invoice.TotalAmount,
			PaidAmount:        invoice.PaidAmount,
			OutstandingAmount: invoice.OutstandingAmount(),
			DaysOverdue:       daysOverdue,
			Bucket:            ledger.BucketForDaysOverdue(daysOverdue),
			Status:            invoice.Status,
		})
	}

	sort.SliceStable(details, func(i, j int) bool {
		return details[i].DaysOverdue > details[j].DaysOverdue
	})

	return details, nil
}

// GetAgingTrends regenerates the aging summary as of today and as of the
// first day of each of the preceding months, most recent first.
func (s *AgingReportService) GetAgingTrends(ctx context.Context, organizationID uuid.UUID, monthsBack int) ([]AgingTrendPoint, error) {
	if monthsBack < 1 {
		return nil, shared.NewValidationError("INVALID_MONTHS", "Months back must be at least 1")
	}

	points := make([]AgingTrendPoint, 0, monthsBack)
	for i := 0; i < monthsBack; i++ {
		asOf := ledger.DateOnly(s.now())
		if i > 0 {
			asOf = ledger.MonthsBack(s.now(), i)
		}

		report, err := s.GenerateAgingReport(ctx, organizationID, &asOf, nil, false)
		if err != nil {
			return nil, err
		}

		points = append(points, AgingTrendPoint{
			ReportDate:     asOf,
			MonthYear:      asOf.Format("2006-01"),
			Summary:        report.Summary,
			TotalCustomers: report.TotalCustomers,
			TotalInvoices:  report.TotalInvoices,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ReportDate.After(points[j].ReportDate)
	})

	return points, nil
}

var hundred = decimal.NewFromInt(100)

// GetAgingMetrics derives headline KPIs from the aging report: overdue
// percentage, outstanding-weighted average days past due, the customer
// holding the largest over-90 balance, and the share of receivables still
// current (reported as 100 when nothing is outstanding).
func (s *AgingReportService) GetAgingMetrics(ctx context.Context, organizationID uuid.UUID, asOf *time.Time) (*AgingMetrics, error) {
	report, err := s.GenerateAgingReport(ctx, organizationID, asOf, nil, false)
	if err != nil {
		return nil, err
	}

	metrics := &AgingMetrics{
		TotalOutstanding:     report.Summary.Total.Amount,
		TotalOverdue:         report.Summary.OverdueAmount(),
		CollectionEfficiency: hundred,
	}

	if metrics.TotalOutstanding.GreaterThan(decimal.Zero) {
		metrics.OverduePercentage = metrics.TotalOverdue.
			Div(metrics.TotalOutstanding).Mul(hundred).Round(2)
		metrics.CollectionEfficiency = report.Summary.Current.Amount.
			Div(metrics.TotalOutstanding).Mul(hundred).Round(2)

		weighted := decimal.Zero
		for _, detail := range report.InvoiceDetails {
			if detail.OutstandingAmount.GreaterThan(decimal.Zero) {
				weighted = weighted.Add(detail.OutstandingAmount.Mul(decimal.NewFromInt(int64(detail.DaysOverdue))))
			}
		}
		metrics.AverageDaysOutstanding = weighted.Div(metrics.TotalOutstanding).Round(1)
	}

	for _, customer := range report.CustomerSummaries {
		if customer.Over90.GreaterThan(metrics.WorstAgingAmount) {
			metrics.WorstAgingCustomer = customer.CustomerName
			metrics.WorstAgingAmount = customer.Over90
		}
	}

	return metrics, nil
}
