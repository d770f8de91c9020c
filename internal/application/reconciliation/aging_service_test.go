package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/arledger/backend/internal/domain/ledger"
	"github.com/arledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAgingService(repo ledger.InvoiceRepository, opts ...AgingServiceOption) *AgingReportService {
	opts = append([]AgingServiceOption{WithAgingClock(testClock)}, opts...)
	return NewAgingReportService(repo, opts...)
}

func TestGenerateAgingReport_BucketBoundaries(t *testing.T) {
	org := uuid.New()
	customer := uuid.New()

	tests := []struct {
		daysOverdue int
		bucket      ledger.AgingBucket
	}{
		{-5, ledger.BucketCurrent},
		{0, ledger.BucketCurrent},
		{1, ledger.BucketDays1To30},
		{30, ledger.BucketDays1To30},
		{31, ledger.BucketDays31To60},
		{60, ledger.BucketDays31To60},
		{61, ledger.BucketDays61To90},
		{90, ledger.BucketDays61To90},
		{91, ledger.BucketOver90},
	}

	invoices := make([]ledger.Invoice, 0, len(tests))
	for i, tt := range tests {
		inv := sentInvoice(t, org, customer, "Acme Corp",
			"INV-"+string(rune('A'+i)), "100.00", daysAgo(tt.daysOverdue))
		invoices = append(invoices, *inv)
	}

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).Return(invoices, nil)

	report, err := newAgingService(repo).GenerateAgingReport(context.Background(), org, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Current.Count)
	assert.Equal(t, 2, report.Summary.Days1To30.Count)
	assert.Equal(t, 2, report.Summary.Days31To60.Count)
	assert.Equal(t, 2, report.Summary.Days61To90.Count)
	assert.Equal(t, 1, report.Summary.Over90.Count)
	assert.Equal(t, 9, report.Summary.Total.Count)
	assert.Equal(t, "900.00", report.Summary.Total.Amount.StringFixed(2))

	byNumber := make(map[string]InvoiceAgingDetail)
	for _, d := range report.InvoiceDetails {
		byNumber[d.InvoiceNumber] = d
	}
	for i, tt := range tests {
		detail := byNumber["INV-"+string(rune('A'+i))]
		assert.Equal(t, tt.bucket, detail.Bucket, "days overdue %d", tt.daysOverdue)
	}
}

func TestGenerateAgingReport_ConservesMoney(t *testing.T) {
	org := uuid.New()
	customer := uuid.New()
	a := sentInvoice(t, org, customer, "Acme Corp", "INV-001", "1000.00", daysAgo(45))
	a.PaidAmount = decimal.RequireFromString("250.00")
	b := sentInvoice(t, org, customer, "Acme Corp", "INV-002", "500.00", daysAgo(5))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{*a, *b}, nil)

	report, err := newAgingService(repo).GenerateAgingReport(context.Background(), org, nil, nil, false)
	require.NoError(t, err)

	bucketSum := report.Summary.Current.Amount.
		Add(report.Summary.OverdueAmount())
	assert.Equal(t, "1250.00", bucketSum.StringFixed(2))
	assert.Equal(t, "1250.00", report.Summary.Total.Amount.StringFixed(2))

	customerTotal := decimal.Zero
	for _, c := range report.CustomerSummaries {
		customerTotal = customerTotal.Add(c.TotalOutstanding)
	}
	assert.Equal(t, "1250.00", customerTotal.StringFixed(2))
}

func TestGenerateAgingReport_SortsMostOverdueFirst(t *testing.T) {
	org := uuid.New()
	acme := uuid.New()
	globex := uuid.New()
	small := sentInvoice(t, org, acme, "Acme Corp", "INV-001", "100.00", daysAgo(95))
	large := sentInvoice(t, org, globex, "Globex", "INV-002", "900.00", daysAgo(10))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{*large, *small}, nil)

	report, err := newAgingService(repo).GenerateAgingReport(context.Background(), org, nil, nil, false)
	require.NoError(t, err)

	require.Len(t, report.InvoiceDetails, 2)
	assert.Equal(t, "INV-001", report.InvoiceDetails[0].InvoiceNumber)
	assert.Equal(t, 95, report.InvoiceDetails[0].DaysOverdue)

	// customers ranked by outstanding balance, not by age
	require.Len(t, report.CustomerSummaries, 2)
	assert.Equal(t, "Globex", report.CustomerSummaries[0].CustomerName)
	assert.Equal(t, "Acme Corp", report.CustomerSummaries[1].CustomerName)
	assert.Equal(t, 2, report.TotalCustomers)
	assert.Equal(t, 2, report.TotalInvoices)
}

func TestGenerateAgingReport_IncludePaid(t *testing.T) {
	org := uuid.New()
	customer := uuid.New()
	paid := sentInvoice(t, org, customer, "Acme Corp", "INV-001", "300.00", daysAgo(20))
	paid.PaidAmount = paid.TotalAmount
	paid.Status = ledger.InvoiceStatusPaid
	open := sentInvoice(t, org, customer, "Acme Corp", "INV-002", "200.00", daysAgo(20))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), true).
		Return([]ledger.Invoice{*paid, *open}, nil)

	report, err := newAgingService(repo).GenerateAgingReport(context.Background(), org, nil, nil, true)
	require.NoError(t, err)

	// settled invoices count in the buckets but contribute zero amount
	assert.Equal(t, 2, report.TotalInvoices)
	assert.Equal(t, "200.00", report.Summary.Total.Amount.StringFixed(2))
	assert.Equal(t, 2, report.Summary.Total.Count)
	assert.Equal(t, 2, report.Summary.Days1To30.Count)
	assert.Equal(t, "200.00", report.Summary.Days1To30.Amount.StringFixed(2))
}

func TestGenerateAgingReport_AsOfDate(t *testing.T) {
	org := uuid.New()
	inv := sentInvoice(t, org, uuid.New(), "Acme Corp", "INV-001", "100.00", daysAgo(10))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{*inv}, nil)

	// two months before today the invoice was not yet due
	asOf := testToday().AddDate(0, -2, 0)
	report, err := newAgingService(repo).GenerateAgingReport(context.Background(), org, &asOf, nil, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Current.Count)
	assert.Equal(t, 0, report.Summary.Days1To30.Count)
	assert.True(t, report.InvoiceDetails[0].DaysOverdue < 0)
}

func TestGenerateAgingReport_UsesCache(t *testing.T) {
	org := uuid.New()
	cached := &AgingReport{OrganizationID: org}

	repo := new(MockInvoiceRepository)
	cache := new(MockReportCache)
	cache.On("GetAgingReport", mock.Anything, mock.Anything).Return(cached, nil).Once()

	report, err := newAgingService(repo, WithAgingReportCache(cache)).
		GenerateAgingReport(context.Background(), org, nil, nil, false)
	require.NoError(t, err)
	assert.Same(t, cached, report)

	repo.AssertNotCalled(t, "FindForAging", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestGenerateAgingReport_CacheMissPopulates(t *testing.T) {
	org := uuid.New()

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{}, nil)

	cache := new(MockReportCache)
	cache.On("GetAgingReport", mock.Anything, mock.Anything).Return(nil, nil).Once()
	cache.On("SetAgingReport", mock.Anything, mock.Anything, mock.Anything, defaultReportCacheTTL).Return(nil).Once()

	_, err := newAgingService(repo, WithAgingReportCache(cache)).
		GenerateAgingReport(context.Background(), org, nil, nil, false)
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestGenerateAgingReport_InvalidOrganization(t *testing.T) {
	svc := newAgingService(new(MockInvoiceRepository))

	_, err := svc.GenerateAgingReport(context.Background(), uuid.Nil, nil, nil, false)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetAgingSummaryByCustomer(t *testing.T) {
	org := uuid.New()
	acme := uuid.New()
	globex := uuid.New()
	invoices := []ledger.Invoice{
		*sentInvoice(t, org, acme, "Acme Corp", "INV-001", "100.00", daysAgo(40)),
		*sentInvoice(t, org, acme, "Acme Corp", "INV-002", "50.00", daysAgo(3)),
		*sentInvoice(t, org, globex, "Globex", "INV-003", "400.00", daysAgo(100)),
	}

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).Return(invoices, nil)

	summaries, err := newAgingService(repo).GetAgingSummaryByCustomer(context.Background(), org, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "Globex", summaries[0].CustomerName)
	assert.Equal(t, "400.00", summaries[0].Over90.StringFixed(2))
	assert.Equal(t, 1, summaries[0].InvoiceCount)

	assert.Equal(t, "Acme Corp", summaries[1].CustomerName)
	assert.Equal(t, "150.00", summaries[1].TotalOutstanding.StringFixed(2))
	assert.Equal(t, "100.00", summaries[1].Days31To60.StringFixed(2))
	assert.Equal(t, "50.00", summaries[1].Days1To30.StringFixed(2))
	assert.Equal(t, 2, summaries[1].InvoiceCount)
}

func TestGetAgingSummaryByCustomer_AsOfDate(t *testing.T) {
	org := uuid.New()
	customer := uuid.New()
	invoices := []ledger.Invoice{
		// 40 days overdue today, only 10 days overdue a month ago
		*sentInvoice(t, org, customer, "Acme Corp", "INV-001", "100.00", daysAgo(40)),
	}

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).Return(invoices, nil)

	asOf := testToday().AddDate(0, -1, 0)
	summaries, err := newAgingService(repo).GetAgingSummaryByCustomer(context.Background(), org, &asOf)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, "100.00", summaries[0].Days1To30.StringFixed(2))
	assert.Equal(t, "0.00", summaries[0].Days31To60.StringFixed(2))
}

func TestGetOverdueInvoices(t *testing.T) {
	org := uuid.New()
	customer := uuid.New()
	veryLate := sentInvoice(t, org, customer, "Acme Corp", "INV-001", "100.00", daysAgo(75))
	late := sentInvoice(t, org, customer, "Acme Corp", "INV-002", "200.00", daysAgo(12))

	repo := new(MockInvoiceRepository)
	expectedCutoff := testToday().AddDate(0, 0, -10)
	repo.On("FindOverdue", mock.Anything, org, expectedCutoff, (*uuid.UUID)(nil)).
		Return([]ledger.Invoice{*late, *veryLate}, nil)

	details, err := newAgingService(repo).GetOverdueInvoices(context.Background(), org, 10, nil)
	require.NoError(t, err)
	require.Len(t, details, 2)

	assert.Equal(t, "INV-001", details[0].InvoiceNumber)
	assert.Equal(t, 75, details[0].DaysOverdue)
	assert.Equal(t, ledger.BucketDays61To90, details[0].Bucket)
	assert.Equal(t, "INV-002", details[1].InvoiceNumber)
	assert.Equal(t, 12, details[1].DaysOverdue)
	repo.AssertExpectations(t)
}

func TestGetOverdueInvoices_DefaultsToOneDay(t *testing.T) {
	org := uuid.New()

	repo := new(MockInvoiceRepository)
	expectedCutoff := testToday().AddDate(0, 0, -1)
	repo.On("FindOverdue", mock.Anything, org, expectedCutoff, (*uuid.UUID)(nil)).
		Return([]ledger.Invoice{}, nil)

	_, err := newAgingService(repo).GetOverdueInvoices(context.Background(), org, 0, nil)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestGetAgingTrends(t *testing.T) {
	org := uuid.New()
	inv := sentInvoice(t, org, uuid.New(), "Acme Corp", "INV-001", "100.00", daysAgo(10))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{*inv}, nil)

	points, err := newAgingService(repo).GetAgingTrends(context.Background(), org, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// most recent first: today, then the first of the two prior months
	assert.Equal(t, "2026-03", points[0].MonthYear)
	assert.Equal(t, "2026-02", points[1].MonthYear)
	assert.Equal(t, "2026-01", points[2].MonthYear)
	assert.Equal(t, testToday(), points[0].ReportDate)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), points[1].ReportDate)

	// the invoice was overdue today but not yet due in January
	assert.Equal(t, 1, points[0].Summary.Days1To30.Count)
	assert.Equal(t, 1, points[2].Summary.Current.Count)
}

func TestGetAgingTrends_InvalidMonths(t *testing.T) {
	svc := newAgingService(new(MockInvoiceRepository))

	_, err := svc.GetAgingTrends(context.Background(), uuid.New(), 0)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetAgingMetrics(t *testing.T) {
	org := uuid.New()
	acme := uuid.New()
	globex := uuid.New()
	current := sentInvoice(t, org, acme, "Acme Corp", "INV-001", "500.00", daysAgo(0))
	ancient := sentInvoice(t, org, globex, "Globex", "INV-002", "500.00", daysAgo(95))

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{*current, *ancient}, nil)

	metrics, err := newAgingService(repo).GetAgingMetrics(context.Background(), org, nil)
	require.NoError(t, err)

	assert.Equal(t, "1000.00", metrics.TotalOutstanding.StringFixed(2))
	assert.Equal(t, "500.00", metrics.TotalOverdue.StringFixed(2))
	assert.Equal(t, "50.00", metrics.OverduePercentage.StringFixed(2))
	assert.Equal(t, "50.00", metrics.CollectionEfficiency.StringFixed(2))
	// (500*0 + 500*95) / 1000
	assert.Equal(t, "47.5", metrics.AverageDaysOutstanding.StringFixed(1))
	assert.Equal(t, "Globex", metrics.WorstAgingCustomer)
	assert.Equal(t, "500.00", metrics.WorstAgingAmount.StringFixed(2))
}

func TestGetAgingMetrics_EmptyLedger(t *testing.T) {
	org := uuid.New()

	repo := new(MockInvoiceRepository)
	repo.On("FindForAging", mock.Anything, org, (*uuid.UUID)(nil), false).
		Return([]ledger.Invoice{}, nil)

	metrics, err := newAgingService(repo).GetAgingMetrics(context.Background(), org, nil)
	require.NoError(t, err)

	assert.True(t, metrics.TotalOutstanding.IsZero())
	assert.True(t, metrics.TotalOverdue.IsZero())
	assert.Equal(t, "100.00", metrics.CollectionEfficiency.StringFixed(2))
	assert.Empty(t, metrics.WorstAgingCustomer)
}
