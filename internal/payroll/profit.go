package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"glowsalon/backend/internal/domain"
)

const (
	ModelFlatRate = "flat"
	ModelPerStaff = "per_staff"
)

// PayoutModel decides how much of a summary's revenue is owed to staff.
type PayoutModel interface {
	Name() string
	Payout(summary domain.DailyEarningsSummary) decimal.Decimal
}

// FlatRatePayoutModel books a fixed share of revenue as payout regardless
// of who earned it.
type FlatRatePayoutModel struct {
	Ratio decimal.Decimal
}

func NewFlatRatePayoutModel() FlatRatePayoutModel {
	return FlatRatePayoutModel{Ratio: decimal.NewFromFloat(DefaultFlatPayoutRatio)}
}

func (m FlatRatePayoutModel) Name() string { return ModelFlatRate }

func (m FlatRatePayoutModel) Payout(summary domain.DailyEarningsSummary) decimal.Decimal {
	return summary.TotalRevenue.Mul(m.Ratio)
}

// PerStaffRatePayoutModel pays each staff-linked summary at the linked
// member's commission rate. Summaries that link nobody fall back to the
// flat ratio.
type PerStaffRatePayoutModel struct {
	byID     map[string]int
	byName   map[string]int
	fallback FlatRatePayoutModel
}

func NewPerStaffRatePayoutModel(staff []domain.StaffMember) PerStaffRatePayoutModel {
	model := PerStaffRatePayoutModel{
		byID:     make(map[string]int, len(staff)),
		byName:   make(map[string]int, len(staff)),
		fallback: NewFlatRatePayoutModel(),
	}
	for _, member := range staff {
		rate := DailyCommissionRate(member)
		if member.ID != "" {
			model.byID[member.ID] = rate
		}
		if _, exists := model.byName[member.Name]; !exists && member.Name != "" {
			model.byName[member.Name] = rate
		}
	}
	return model
}

func (m PerStaffRatePayoutModel) Name() string { return ModelPerStaff }

func (m PerStaffRatePayoutModel) Payout(summary domain.DailyEarningsSummary) decimal.Decimal {
	rate, ok := m.byID[summary.StaffID]
	if !ok || summary.StaffID == "" {
		rate, ok = m.byName[summary.StaffName]
	}
	if !ok || !summary.IsStaffLinked() {
		return m.fallback.Payout(summary)
	}
	return summary.TotalRevenue.Mul(decimal.NewFromInt(int64(rate))).Div(hundred)
}

// ModelFor resolves a payout model by name; an empty name selects the flat
// model.
func ModelFor(name string, staff []domain.StaffMember) (PayoutModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModelFlatRate:
		return NewFlatRatePayoutModel(), nil
	case ModelPerStaff:
		return NewPerStaffRatePayoutModel(staff), nil
	default:
		return nil, fmt.Errorf("unknown payout model %q", name)
	}
}

type ProfitReport struct {
	Window             string          `json:"window"`
	Model              string          `json:"model"`
	TotalRev           decimal.Decimal `json:"total_rev"`
	StaffPayout        decimal.Decimal `json:"staff_payout"`
	TotalExpenseAmount decimal.Decimal `json:"total_expense_amount"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	TotalCredit        decimal.Decimal `json:"total_credit"`
	TotalCash          decimal.Decimal `json:"total_cash"`
	DaysCount          int             `json:"days_count"`
	ExpenseCount       int             `json:"expense_count"`
	ProfitMarginPct    decimal.Decimal `json:"profit_margin_pct"`
	ExpenseRatioPct    decimal.Decimal `json:"expense_ratio_pct"`
}

// MonthlyProfit aggregates the summaries and expenses dated in month into a
// profit report. A nil model selects the flat payout ratio.
func MonthlyProfit(summaries []domain.DailyEarningsSummary, expenses []domain.ExpenseRecord, month Window, model PayoutModel) ProfitReport {
	return ProfitForWindow(summaries, expenses, month, model)
}

// ProfitForWindow is MonthlyProfit for any day or month window. DaysCount
// counts summary records, not distinct dates.
func ProfitForWindow(summaries []domain.DailyEarningsSummary, expenses []domain.ExpenseRecord, window Window, model PayoutModel) ProfitReport {
	if model == nil {
		model = NewFlatRatePayoutModel()
	}

	report := ProfitReport{
		Window:             window.String(),
		Model:              model.Name(),
		TotalRev:           decimal.Zero,
		StaffPayout:        decimal.Zero,
		TotalExpenseAmount: decimal.Zero,
		TotalCredit:        decimal.Zero,
		TotalCash:          decimal.Zero,
	}

	for _, summary := range FilterSummaries(summaries, window) {
		report.TotalRev = report.TotalRev.Add(summary.TotalRevenue)
		report.TotalCredit = report.TotalCredit.Add(summary.TotalCredit)
		report.TotalCash = report.TotalCash.Add(summary.TotalCash)
		report.StaffPayout = report.StaffPayout.Add(model.Payout(summary))
		report.DaysCount++
	}

	for _, expense := range FilterExpenses(expenses, window) {
		report.TotalExpenseAmount = report.TotalExpenseAmount.Add(expense.Amount.Decimal())
		report.ExpenseCount++
	}

	report.NetProfit = report.TotalRev.Sub(report.StaffPayout).Sub(report.TotalExpenseAmount)
	report.ProfitMarginPct = percentOf(report.NetProfit, report.TotalRev)
	report.ExpenseRatioPct = percentOf(report.TotalExpenseAmount, report.TotalRev)
	return report
}

// percentOf returns part/whole*100 rounded to one decimal, or 0 when whole
// is not positive.
func percentOf(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(1)
}

// Sum adds reports of the same model field by field. Percentages are
// recomputed from the summed totals.
func Sum(window Window, reports ...ProfitReport) ProfitReport {
	total := ProfitReport{
		Window:             window.String(),
		TotalRev:           decimal.Zero,
		StaffPayout:        decimal.Zero,
		TotalExpenseAmount: decimal.Zero,
		TotalCredit:        decimal.Zero,
		TotalCash:          decimal.Zero,
	}
	for _, r := range reports {
		if total.Model == "" {
			total.Model = r.Model
		}
		total.TotalRev = total.TotalRev.Add(r.TotalRev)
		total.StaffPayout = total.StaffPayout.Add(r.StaffPayout)
		total.TotalExpenseAmount = total.TotalExpenseAmount.Add(r.TotalExpenseAmount)
		total.TotalCredit = total.TotalCredit.Add(r.TotalCredit)
		total.TotalCash = total.TotalCash.Add(r.TotalCash)
		total.DaysCount += r.DaysCount
		total.ExpenseCount += r.ExpenseCount
	}
	total.NetProfit = total.TotalRev.Sub(total.StaffPayout).Sub(total.TotalExpenseAmount)
	total.ProfitMarginPct = percentOf(total.NetProfit, total.TotalRev)
	total.ExpenseRatioPct = percentOf(total.TotalExpenseAmount, total.TotalRev)
	return total
}
