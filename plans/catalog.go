/*
Package plans provides the membership plan catalog and expiration arithmetic.

PURPOSE:
  The catalog is the single source of plan prices and validity lengths.
  Every other component asks it instead of hardcoding either.

PLANS:
  DAILY     1 day     5000
  BIWEEKLY  15 days   35000
  MONTHLY   30 days   70000
  STUDENT   30 days   50000
  GUIDED    30 days   130000
  CUSTOM    30 days   250000

EXPIRATION:
  ComputeExpiration(start, plan) = start + validity days, calendar days.
  The paid period is [start, expiration).

SEE ALSO:
  - membership/manager.go: Snapshots PriceOf at registration and renewal
  - finance/engine.go: PlanDistribution zero-fills every catalog plan
*/
package plans

import (
	"fmt"
	"strings"

	"github.com/warp/gymdesk/generic"
)

// =============================================================================
// PLAN CODES
// =============================================================================

const (
	Daily    generic.PlanCode = "DAILY"
	Biweekly generic.PlanCode = "BIWEEKLY"
	Monthly  generic.PlanCode = "MONTHLY"
	Student  generic.PlanCode = "STUDENT"
	Guided   generic.PlanCode = "GUIDED"
	Custom   generic.PlanCode = "CUSTOM"
)

// aliases accepts the front desk's Spanish plan names.
var aliases = map[string]generic.PlanCode{
	"DIARIO":        Daily,
	"QUINCENAL":     Biweekly,
	"MENSUAL":       Monthly,
	"ESTUDIANTIL":   Student,
	"DIRIGIDO":      Guided,
	"PERSONALIZADO": Custom,
}

// ParseCode normalizes a user-supplied plan name ("Monthly", "mensual").
// It does not check the catalog; Lookup does.
func ParseCode(s string) generic.PlanCode {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if code, ok := aliases[upper]; ok {
		return code
	}
	return generic.PlanCode(upper)
}

// =============================================================================
// CATALOG
// =============================================================================

// Plan is a static catalog entry. It is never persisted.
type Plan struct {
	Code         generic.PlanCode
	Name         string
	Price        generic.Amount
	ValidityDays int
}

// Catalog maps plan codes to plans, preserving declaration order.
type Catalog struct {
	plans map[generic.PlanCode]Plan
	order []generic.PlanCode
}

// NewCatalog builds a catalog. Codes must be unique and validity positive.
func NewCatalog(entries ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[generic.PlanCode]Plan, len(entries))}
	for _, p := range entries {
		if _, dup := c.plans[p.Code]; dup {
			return nil, fmt.Errorf("duplicate plan %s", p.Code)
		}
		if p.ValidityDays <= 0 {
			return nil, fmt.Errorf("plan %s: validity must be positive", p.Code)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("plan %s: price must not be negative", p.Code)
		}
		c.plans[p.Code] = p
		c.order = append(c.order, p.Code)
	}
	return c, nil
}

// DefaultCatalog returns the six fixed plans.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(
		Plan{Code: Daily, Name: "Daily", Price: generic.NewAmountFromInt(5000), ValidityDays: 1},
		Plan{Code: Biweekly, Name: "Biweekly", Price: generic.NewAmountFromInt(35000), ValidityDays: 15},
		Plan{Code: Monthly, Name: "Monthly", Price: generic.NewAmountFromInt(70000), ValidityDays: 30},
		Plan{Code: Student, Name: "Student", Price: generic.NewAmountFromInt(50000), ValidityDays: 30},
		Plan{Code: Guided, Name: "Guided", Price: generic.NewAmountFromInt(130000), ValidityDays: 30},
		Plan{Code: Custom, Name: "Custom", Price: generic.NewAmountFromInt(250000), ValidityDays: 30},
	)
	return c
}

// Lookup returns the plan or UnknownPlanError.
func (c *Catalog) Lookup(code generic.PlanCode) (Plan, error) {
	p, ok := c.plans[code]
	if !ok {
		return Plan{}, &generic.UnknownPlanError{Plan: code}
	}
	return p, nil
}

func (c *Catalog) PriceOf(code generic.PlanCode) (generic.Amount, error) {
	p, err := c.Lookup(code)
	if err != nil {
		return generic.Amount{}, err
	}
	return p.Price, nil
}

func (c *Catalog) ValidityDaysOf(code generic.PlanCode) (int, error) {
	p, err := c.Lookup(code)
	if err != nil {
		return 0, err
	}
	return p.ValidityDays, nil
}

// Plans returns every plan in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.plans[code])
	}
	return out
}

// Codes returns every plan code in catalog order.
func (c *Catalog) Codes() []generic.PlanCode {
	return append([]generic.PlanCode(nil), c.order...)
}

// =============================================================================
// EXPIRATION CALCULATOR
// =============================================================================

// ComputeExpiration returns start plus the plan's validity in calendar days.
func (c *Catalog) ComputeExpiration(start generic.Date, code generic.PlanCode) (generic.Date, error) {
	days, err := c.ValidityDaysOf(code)
	if err != nil {
		return generic.Date{}, err
	}
	return start.AddDays(days), nil
}

// PlanPeriod returns the paid period [start, expiration) for a plan.
func (c *Catalog) PlanPeriod(start generic.Date, code generic.PlanCode) (generic.Period, error) {
	end, err := c.ComputeExpiration(start, code)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(start, end)
}
