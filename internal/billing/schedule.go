package billing

import (
	"time"

	"storebill/internal/common"
	"storebill/internal/models"
)

// Period is one billing cycle boundary pair, half-open [Start, End).
// TrialEnd is set only on a first period that begins with a trial window.
type Period struct {
	Start    time.Time
	End      time.Time
	TrialEnd *time.Time
}

// Normalize truncates a boundary to UTC midnight. Every date the calculator
// returns passes through here, so repeated advancement never accumulates
// timezone or intra-day drift.
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FirstPeriod computes the opening billing period of a subscription.
//
// With trialDays > 0 the paid period is anchored at the trial's end, not at
// startDate: the subscriber is billed for [trialEnd, trialEnd+interval).
// A startDate in the past stays the anchor; there is no silent skip-forward
// to the next occurrence.
//
// Returns common.ErrTermComplete when the computed period end would exceed
// endDate; the caller cancels with reason term_complete and bills nothing.
func FirstPeriod(startDate time.Time, interval models.Interval, trialDays int, endDate *time.Time) (Period, error) {
	start := Normalize(startDate)

	var trialEnd *time.Time
	billingStart := start
	if trialDays > 0 {
		te := start.AddDate(0, 0, trialDays)
		trialEnd = &te
		billingStart = te
	}

	end := addInterval(billingStart, billingStart.Day(), interval)
	if exceedsTerm(end, endDate) {
		return Period{}, common.ErrTermComplete
	}

	return Period{Start: billingStart, End: end, TrialEnd: trialEnd}, nil
}

// NextPeriod advances from the current period end, preserving the original
// anchor's day-of-month so that a Jan 31 anchor yields Feb 28 and then
// Mar 31, not Feb 28 then Mar 28.
func NextPeriod(anchor, currentPeriodEnd time.Time, interval models.Interval, endDate *time.Time) (Period, error) {
	start := Normalize(currentPeriodEnd)
	end := addInterval(start, Normalize(anchor).Day(), interval)
	if exceedsTerm(end, endDate) {
		return Period{}, common.ErrTermComplete
	}
	return Period{Start: start, End: end}, nil
}

func exceedsTerm(periodEnd time.Time, endDate *time.Time) bool {
	return endDate != nil && periodEnd.After(Normalize(*endDate))
}

// addInterval advances t by one interval. Month and year advancement clamp
// to the last valid day of the target month when the anchor day-of-month
// does not exist there (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 in non-leap
// years). time.AddDate would normalize those overflows into the following
// month instead, which is exactly the Jan 31 -> Mar 3 bug this avoids.
func addInterval(t time.Time, anchorDay int, interval models.Interval) time.Time {
	switch interval {
	case models.IntervalDay:
		return t.AddDate(0, 0, 1)
	case models.IntervalWeek:
		return t.AddDate(0, 0, 7)
	case models.IntervalMonth:
		return clampedDate(t.Year(), t.Month()+1, anchorDay)
	case models.IntervalYear:
		return clampedDate(t.Year()+1, t.Month(), anchorDay)
	}
	// Interval validity is checked at creation time.
	panic("billing: unknown interval " + string(interval))
}

// clampedDate builds a UTC-midnight date, clamping day to the length of the
// target month. Month may be January+12 style overflow; time.Date handles it.
func clampedDate(year int, month time.Month, day int) time.Time {
	last := daysInMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
