package payroll

import (
	"github.com/shopspring/decimal"

	"glowsalon/backend/internal/domain"
)

const (
	// DefaultTransactionRate applies in the technician payout view when no
	// staff record carries the technician's name or the matching record has
	// no commission rate. It differs from DefaultDailyCommissionRate.
	DefaultTransactionRate = 0.5
	// DefaultDailyCommissionRate is the whole-percent rate used by the daily
	// payroll view when a staff member has no commission rate.
	DefaultDailyCommissionRate = 60
	// DefaultFlatPayoutRatio is the share of revenue the monthly profit
	// report books as staff payout.
	DefaultFlatPayoutRatio = 0.60
)

var hundred = decimal.NewFromInt(100)

type PayoutResult struct {
	Technician   string          `json:"technician"`
	Transactions int             `json:"transactions"`
	Sales        decimal.Decimal `json:"sales"`
	Rate         decimal.Decimal `json:"rate"`
	Commission   decimal.Decimal `json:"commission"`
	Tips         decimal.Decimal `json:"tips"`
	TotalPayout  decimal.Decimal `json:"total_payout"`
}

// StaffPayout computes commission, tips and payout for one technician from
// raw transactions. Transactions are joined to the technician by exact
// display name; staff records are joined the same way.
func StaffPayout(transactions []domain.Transaction, staff []domain.StaffMember, technician string) PayoutResult {
	sales := decimal.Zero
	tips := decimal.Zero
	count := 0
	for _, tx := range transactions {
		if tx.Technician != technician {
			continue
		}
		sales = sales.Add(tx.BasePrice)
		tips = tips.Add(tx.Tip)
		count++
	}

	rate := decimal.NewFromFloat(DefaultTransactionRate)
	if member, ok := findStaffByName(staff, technician); ok && member.CommissionRate != nil {
		rate = decimal.NewFromInt(int64(*member.CommissionRate)).Div(hundred)
	}

	commission := sales.Mul(rate)
	return PayoutResult{
		Technician:   technician,
		Transactions: count,
		Sales:        sales,
		Rate:         rate,
		Commission:   commission,
		Tips:         tips,
		TotalPayout:  commission.Add(tips),
	}
}

type StaffDayPayroll struct {
	StaffID          string          `json:"staff_id"`
	StaffName        string          `json:"staff_name"`
	CommissionRate   int             `json:"commission_rate"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	CommissionEarned decimal.Decimal `json:"commission_earned"`
	TotalTips        decimal.Decimal `json:"total_tips"`
	TakeHomePay      decimal.Decimal `json:"take_home_pay"`
}

// Rounded returns the figures rounded to cents for display.
func (p StaffDayPayroll) Rounded() StaffDayPayroll {
	p.TotalRevenue = p.TotalRevenue.Round(2)
	p.CommissionEarned = p.CommissionEarned.Round(2)
	p.TotalTips = p.TotalTips.Round(2)
	p.TakeHomePay = p.TakeHomePay.Round(2)
	return p
}

// DailyPayroll computes one payroll row per non-admin staff member from the
// staff-linked summaries of a single day. A summary belongs to a member when
// either its staff id or its staff name matches.
func DailyPayroll(summaries []domain.DailyEarningsSummary, staff []domain.StaffMember, day Window) []StaffDayPayroll {
	inDay := FilterSummaries(summaries, day)

	rows := make([]StaffDayPayroll, 0, len(staff))
	for _, member := range staff {
		if member.Role == domain.RoleAdmin {
			continue
		}

		revenue := decimal.Zero
		tips := decimal.Zero
		for _, summary := range inDay {
			if !summaryBelongsTo(summary, member) {
				continue
			}
			revenue = revenue.Add(summary.Total)
			tips = tips.Add(summary.Tip)
		}

		rate := DailyCommissionRate(member)
		commission := revenue.Mul(decimal.NewFromInt(int64(rate))).Div(hundred)
		rows = append(rows, StaffDayPayroll{
			StaffID:          member.ID,
			StaffName:        member.Name,
			CommissionRate:   rate,
			TotalRevenue:     revenue,
			CommissionEarned: commission,
			TotalTips:        tips,
			TakeHomePay:      commission.Add(tips),
		})
	}
	return rows
}

// DailyCommissionRate is the member's whole-percent rate, or the daily
// default when unset.
func DailyCommissionRate(member domain.StaffMember) int {
	if member.CommissionRate == nil {
		return DefaultDailyCommissionRate
	}
	return *member.CommissionRate
}

// FilterSummaries keeps the summaries dated inside the window. The input
// slice is not modified.
func FilterSummaries(summaries []domain.DailyEarningsSummary, window Window) []domain.DailyEarningsSummary {
	out := make([]domain.DailyEarningsSummary, 0, len(summaries))
	for _, summary := range summaries {
		if window.Contains(RecordDate(summary.Date, summary.ID)) {
			out = append(out, summary)
		}
	}
	return out
}

func FilterExpenses(expenses []domain.ExpenseRecord, window Window) []domain.ExpenseRecord {
	out := make([]domain.ExpenseRecord, 0, len(expenses))
	for _, expense := range expenses {
		if window.Contains(RecordDate(expense.Date, expense.ID)) {
			out = append(out, expense)
		}
	}
	return out
}

// FilterTransactions keeps transactions dated inside the window, falling
// back to the creation timestamp when the date field is empty.
func FilterTransactions(transactions []domain.Transaction, window Window) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		date := RecordDate(tx.Date, tx.ID)
		if date == "" && !tx.CreatedAt.IsZero() {
			date = tx.CreatedAt.UTC().Format(dayLayout)
		}
		if window.Contains(date) {
			out = append(out, tx)
		}
	}
	return out
}

// DuplicateStaffNames lists display names shared by more than one staff
// record. Name-keyed joins silently merge such members.
func DuplicateStaffNames(staff []domain.StaffMember) []string {
	seen := make(map[string]int, len(staff))
	var duplicates []string
	for _, member := range staff {
		seen[member.Name]++
		if seen[member.Name] == 2 {
			duplicates = append(duplicates, member.Name)
		}
	}
	return duplicates
}

func summaryBelongsTo(summary domain.DailyEarningsSummary, member domain.StaffMember) bool {
	if summary.StaffID != "" && summary.StaffID == member.ID {
		return true
	}
	return summary.StaffName != "" && summary.StaffName == member.Name
}

func findStaffByName(staff []domain.StaffMember, name string) (domain.StaffMember, bool) {
	for _, member := range staff {
		if member.Name == name {
			return member, true
		}
	}
	return domain.StaffMember{}, false
}
