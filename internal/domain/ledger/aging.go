package ledger

import "time"

// AgingBucket classifies how overdue an invoice is as of a reference date.
// Both the allocation engine and the aging report engine derive buckets
// through BucketForDaysOverdue so their semantics never diverge.
type AgingBucket string

const (
	BucketCurrent    AgingBucket = "current"      // not yet due (daysOverdue <= 0)
	BucketDays1To30  AgingBucket = "days_1_30"    // 1-30 days overdue
	BucketDays31To60 AgingBucket = "days_31_60"   // 31-60 days overdue
	BucketDays61To90 AgingBucket = "days_61_90"   // 61-90 days overdue
	BucketOver90     AgingBucket = "days_over_90" // more than 90 days overdue
)

// String returns the string representation of AgingBucket
func (b AgingBucket) String() string {
	return string(b)
}

// AllAgingBuckets returns the buckets in ascending age order
func AllAgingBuckets() []AgingBucket {
	return []AgingBucket{BucketCurrent, BucketDays1To30, BucketDays31To60, BucketDays61To90, BucketOver90}
}

// BucketForDaysOverdue assigns the aging bucket for the given whole days
// overdue. The first matching rule wins.
func BucketForDaysOverdue(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return BucketDays1To30
	case daysOverdue <= 60:
		return BucketDays31To60
	case daysOverdue <= 90:
		return BucketDays61To90
	default:
		return BucketOver90
	}
}

// DateOnly strips the time-of-day component, normalizing to UTC midnight.
// Ledger dates are timezone-naive calendar dates.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from one date to
// another. Positive when to is after from.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// MonthStart returns the first calendar day of the month containing t
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBack returns the first calendar day of the month n months before t
func MonthsBack(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, -n, 0)
}
