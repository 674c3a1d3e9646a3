package process

import (
	"fmt"
	"sort"

	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// FundingSource identifies where the money for a purchase comes from.
type FundingSource string

const (
	SourceDownPayment      FundingSource = "down_payment"
	SourceBankCredit       FundingSource = "bank_credit"
	SourceHousingSubsidy   FundingSource = "housing_subsidy"
	SourceCompensationFund FundingSource = "compensation_fund_subsidy"

	// SourceDiscountWaiver is not part of any plan. It marks the payment
	// record that closes out a forgiven balance.
	SourceDiscountWaiver FundingSource = "discount_waiver"
)

// PlanSources lists the sources a FinancialPlan can carry, in display order.
var PlanSources = []FundingSource{
	SourceDownPayment,
	SourceBankCredit,
	SourceHousingSubsidy,
	SourceCompensationFund,
}

// IsPlanSource reports whether s can appear in a FinancialPlan.
func (s FundingSource) IsPlanSource() bool {
	for _, p := range PlanSources {
		if p == s {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known payment source.
func (s FundingSource) IsValid() bool {
	return s == SourceDiscountWaiver || s.IsPlanSource()
}

// SourcePlan is the pledge for a single funding source.
type SourcePlan struct {
	Applied bool            `json:"applied"`
	Amount  decimal.Decimal `json:"amount"`
}

// FinancialPlan records which funding sources apply to a purchase and how
// much each one pledges.
type FinancialPlan struct {
	Sources map[FundingSource]SourcePlan `json:"sources"`
}

// NewFinancialPlan builds a plan where every given source is applied.
func NewFinancialPlan(amounts map[FundingSource]decimal.Decimal) FinancialPlan {
	p := FinancialPlan{Sources: make(map[FundingSource]SourcePlan, len(amounts))}
	for s, amt := range amounts {
		p.Sources[s] = SourcePlan{Applied: true, Amount: amt}
	}
	return p
}

// Applies reports whether the plan uses the given source.
func (p FinancialPlan) Applies(s FundingSource) bool {
	sp, ok := p.Sources[s]
	return ok && sp.Applied
}

// Pledged returns the pledged amount for a source, zero if not applied.
func (p FinancialPlan) Pledged(s FundingSource) decimal.Decimal {
	if !p.Applies(s) {
		return decimal.Zero
	}
	return p.Sources[s].Amount
}

// AppliedSources returns the applied sources in PlanSources order.
func (p FinancialPlan) AppliedSources() []FundingSource {
	out := make([]FundingSource, 0, len(p.Sources))
	for _, s := range PlanSources {
		if p.Applies(s) {
			out = append(out, s)
		}
	}
	return out
}

// Total sums the pledged amounts of applied sources.
func (p FinancialPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.AppliedSources() {
		total = total.Add(p.Sources[s].Amount)
	}
	return total
}

// IsEmpty reports whether no source is applied.
func (p FinancialPlan) IsEmpty() bool {
	return len(p.AppliedSources()) == 0
}

// Clone returns a deep copy.
func (p FinancialPlan) Clone() FinancialPlan {
	c := FinancialPlan{Sources: make(map[FundingSource]SourcePlan, len(p.Sources))}
	for k, v := range p.Sources {
		c.Sources[k] = v
	}
	return c
}

// Equal compares two plans by applied sources and amounts.
func (p FinancialPlan) Equal(o FinancialPlan) bool {
	a, b := p.AppliedSources(), o.AppliedSources()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] || !p.Sources[a[i]].Amount.Equal(o.Sources[b[i]].Amount) {
			return false
		}
	}
	return true
}

// Validate checks the plan against the price it has to cover.
func (p FinancialPlan) Validate(finalPrice decimal.Decimal) error {
	details := make(map[string]string)
	keys := make([]string, 0, len(p.Sources))
	for s := range p.Sources {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := FundingSource(k)
		sp := p.Sources[s]
		if !s.IsPlanSource() {
			details["sources."+k] = "unknown funding source"
			continue
		}
		if sp.Applied && !sp.Amount.IsPositive() {
			details["sources."+k] = "pledged amount must be positive"
		}
	}
	if len(details) > 0 {
		return shared.NewValidationError("Invalid financial plan", details)
	}
	if p.IsEmpty() {
		return shared.NewValidationError("Invalid financial plan", map[string]string{
			"sources": "at least one funding source is required",
		})
	}
	if !p.Total().Equal(finalPrice) {
		return shared.NewValidationError("Invalid financial plan", map[string]string{
			"total": fmt.Sprintf("plan total %s must equal the house final price %s", p.Total().StringFixed(2), finalPrice.StringFixed(2)),
		})
	}
	return nil
}
