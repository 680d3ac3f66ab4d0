package plans_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/plans"
	"pgregory.net/rapid"
)

func TestDefaultCatalog_PricesAndValidity(t *testing.T) {
	c := plans.DefaultCatalog()

	cases := []struct {
		code  generic.PlanCode
		price string
		days  int
	}{
		{plans.Daily, "5000.00", 1},
		{plans.Biweekly, "35000.00", 15},
		{plans.Monthly, "70000.00", 30},
		{plans.Student, "50000.00", 30},
		{plans.Guided, "130000.00", 30},
		{plans.Custom, "250000.00", 30},
	}
	for _, tc := range cases {
		price, err := c.PriceOf(tc.code)
		require.NoError(t, err)
		assert.Equal(t, tc.price, price.String(), tc.code)

		days, err := c.ValidityDaysOf(tc.code)
		require.NoError(t, err)
		assert.Equal(t, tc.days, days, tc.code)
	}
	assert.Len(t, c.Plans(), 6)
}

func TestCatalog_UnknownPlan(t *testing.T) {
	c := plans.DefaultCatalog()

	_, err := c.PriceOf("WEEKLY")
	var unknown *generic.UnknownPlanError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, generic.PlanCode("WEEKLY"), unknown.Plan)

	_, err = c.ComputeExpiration(generic.NewDate(2024, time.January, 1), "WEEKLY")
	assert.ErrorIs(t, err, generic.ErrUnknownPlan)
}

func TestParseCode(t *testing.T) {
	assert.Equal(t, plans.Monthly, plans.ParseCode("Monthly"))
	assert.Equal(t, plans.Monthly, plans.ParseCode(" mensual "))
	assert.Equal(t, plans.Custom, plans.ParseCode("Personalizado"))
	assert.Equal(t, generic.PlanCode("WEEKLY"), plans.ParseCode("weekly"))
}

func TestComputeExpiration_Scenario(t *testing.T) {
	c := plans.DefaultCatalog()

	exp, err := c.ComputeExpiration(generic.NewDate(2024, time.January, 1), plans.Monthly)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", exp.String())

	period, err := c.PlanPeriod(generic.NewDate(2024, time.January, 1), plans.Monthly)
	require.NoError(t, err)
	assert.Equal(t, "[2024-01-01, 2024-01-31)", period.String())
}

func TestNewCatalog_RejectsBadEntries(t *testing.T) {
	_, err := plans.NewCatalog(
		plans.Plan{Code: plans.Daily, ValidityDays: 1},
		plans.Plan{Code: plans.Daily, ValidityDays: 1},
	)
	assert.Error(t, err)

	_, err = plans.NewCatalog(plans.Plan{Code: plans.Daily, ValidityDays: 0})
	assert.Error(t, err)
}

// For all plans P and start dates d: expiration(d, P) - d == validity(P).
func TestComputeExpiration_Property(t *testing.T) {
	c := plans.DefaultCatalog()
	codes := c.Codes()

	rapid.Check(t, func(t *rapid.T) {
		code := rapid.SampledFrom(codes).Draw(t, "plan")
		offset := rapid.IntRange(-20000, 20000).Draw(t, "offset")
		start := generic.NewDate(2024, time.January, 1).AddDays(offset)

		exp, err := c.ComputeExpiration(start, code)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		days, _ := c.ValidityDaysOf(code)
		if got := start.DaysUntil(exp); got != days {
			t.Fatalf("%s from %s: got %d days, want %d", code, start, got, days)
		}
	})
}
