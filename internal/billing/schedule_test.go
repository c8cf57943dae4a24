package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebill/internal/common"
	"storebill/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFirstPeriodDayAndWeek(t *testing.T) {
	p, err := FirstPeriod(date(2025, time.March, 10), models.IntervalDay, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 10), p.Start)
	assert.Equal(t, date(2025, time.March, 11), p.End)
	assert.Nil(t, p.TrialEnd)

	p, err = FirstPeriod(date(2025, time.March, 10), models.IntervalWeek, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 17), p.End)
}

func TestFirstPeriodMonthEndClamp(t *testing.T) {
	// Jan 31 + one month must land on the last day of February, never Mar 3.
	p, err := FirstPeriod(date(2025, time.January, 31), models.IntervalMonth, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28), p.End)

	// Leap year February keeps day 29.
	p, err = FirstPeriod(date(2024, time.January, 31), models.IntervalMonth, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), p.End)
}

func TestFirstPeriodLeapYearAnchor(t *testing.T) {
	p, err := FirstPeriod(date(2024, time.February, 29), models.IntervalYear, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28), p.End)
}

func TestNextPeriodPreservesAnchorDay(t *testing.T) {
	anchor := date(2025, time.January, 31)

	p, err := NextPeriod(anchor, date(2025, time.February, 28), models.IntervalMonth, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28), p.Start)
	// The clamped February end does not shift the anchor: March gets day 31 back.
	assert.Equal(t, date(2025, time.March, 31), p.End)
}

func TestNextPeriodStrictlyAdvances(t *testing.T) {
	anchors := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.January, 31),
		date(2024, time.February, 29),
		date(2025, time.December, 31),
	}
	intervals := []models.Interval{
		models.IntervalDay, models.IntervalWeek, models.IntervalMonth, models.IntervalYear,
	}

	for _, anchor := range anchors {
		for _, interval := range intervals {
			p, err := FirstPeriod(anchor, interval, 0, nil)
			require.NoError(t, err)
			for i := 0; i < 24; i++ {
				assert.True(t, p.End.After(p.Start),
					"period end %v must be after start %v (anchor %v, %s)", p.End, p.Start, anchor, interval)
				p, err = NextPeriod(anchor, p.End, interval, nil)
				require.NoError(t, err)
			}
		}
	}
}

func TestFirstPeriodTrialWindow(t *testing.T) {
	p, err := FirstPeriod(date(2025, time.January, 1), models.IntervalMonth, 14, nil)
	require.NoError(t, err)
	require.NotNil(t, p.TrialEnd)
	assert.Equal(t, date(2025, time.January, 15), *p.TrialEnd)
	// Billing begins when the trial ends, not at the start date.
	assert.Equal(t, date(2025, time.January, 15), p.Start)
	assert.Equal(t, date(2025, time.February, 15), p.End)
}

func TestFirstPeriodTermComplete(t *testing.T) {
	end := date(2025, time.January, 15)
	_, err := FirstPeriod(date(2025, time.January, 1), models.IntervalMonth, 0, &end)
	assert.ErrorIs(t, err, common.ErrTermComplete)
}

func TestNextPeriodTermComplete(t *testing.T) {
	anchor := date(2025, time.January, 1)
	end := date(2025, time.February, 15)

	p, err := NextPeriod(anchor, date(2025, time.February, 1), models.IntervalMonth, &end)
	assert.ErrorIs(t, err, common.ErrTermComplete)
	assert.Zero(t, p)

	// A period that lands exactly on the end date still bills.
	exact := date(2025, time.March, 1)
	p, err = NextPeriod(anchor, date(2025, time.February, 1), models.IntervalMonth, &exact)
	require.NoError(t, err)
	assert.Equal(t, exact, p.End)
}

func TestNormalizeStripsTimeAndZone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2025, time.June, 1, 23, 45, 0, 0, loc)
	got := Normalize(in)
	assert.Equal(t, date(2025, time.June, 1), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestBackfillKeepsPastAnchor(t *testing.T) {
	// Creating a subscription with a start date in the past anchors billing
	// there; the calculator never skips forward to the next occurrence.
	p, err := FirstPeriod(date(2020, time.May, 5), models.IntervalMonth, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2020, time.May, 5), p.Start)
	assert.Equal(t, date(2020, time.June, 5), p.End)
}
