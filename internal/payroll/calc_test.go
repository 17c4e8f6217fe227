package payroll

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"glowsalon/backend/internal/domain"
)

func intPtr(v int) *int { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func mustWindow(t *testing.T, raw string) Window {
	t.Helper()
	w, err := ParseWindow(raw)
	if err != nil {
		t.Fatalf("parse window %q: %v", raw, err)
	}
	return w
}

func TestStaffPayoutUsesStaffCommissionRate(t *testing.T) {
	staff := []domain.StaffMember{{ID: "s1", Name: "Ana", CommissionRate: intPtr(70)}}
	transactions := []domain.Transaction{
		{Technician: "Ana", BasePrice: dec("100"), Tip: dec("10")},
		{Technician: "Ana", BasePrice: dec("50"), Tip: dec("5")},
		{Technician: "Bea", BasePrice: dec("999"), Tip: dec("99")},
	}

	got := StaffPayout(transactions, staff, "Ana")
	if !got.Commission.Equal(dec("105")) {
		t.Fatalf("expected commission 105, got %s", got.Commission)
	}
	if !got.Tips.Equal(dec("15")) {
		t.Fatalf("expected tips 15, got %s", got.Tips)
	}
	if !got.TotalPayout.Equal(dec("120")) {
		t.Fatalf("expected total payout 120, got %s", got.TotalPayout)
	}
	if got.Transactions != 2 {
		t.Fatalf("expected 2 transactions, got %d", got.Transactions)
	}
}

func TestStaffPayoutFallsBackToHalfRateWithoutStaffRecord(t *testing.T) {
	transactions := []domain.Transaction{{Technician: "Bob", BasePrice: dec("200"), Tip: dec("20")}}

	got := StaffPayout(transactions, nil, "Bob")
	if !got.Commission.Equal(dec("100")) {
		t.Fatalf("expected commission 100, got %s", got.Commission)
	}
	if !got.Tips.Equal(dec("20")) || !got.TotalPayout.Equal(dec("120")) {
		t.Fatalf("expected tips 20 and payout 120, got %s and %s", got.Tips, got.TotalPayout)
	}
}

func TestMatchedStaffWithoutRateUsesViewDefaults(t *testing.T) {
	staff := []domain.StaffMember{{ID: "s2", Name: "Bea", Role: domain.RoleStaff}}

	payout := StaffPayout([]domain.Transaction{{Technician: "Bea", BasePrice: dec("200")}}, staff, "Bea")
	if !payout.Rate.Equal(dec("0.5")) || !payout.Commission.Equal(dec("100")) {
		t.Fatalf("expected per-transaction view at 50%%, got rate %s commission %s", payout.Rate, payout.Commission)
	}

	day := mustWindow(t, "2025-06-10")
	rows := DailyPayroll([]domain.DailyEarningsSummary{{ID: "2025-06-10_s2", Date: "2025-06-10", StaffID: "s2", Total: dec("200")}}, staff, day)
	if len(rows) != 1 || rows[0].CommissionRate != 60 || !rows[0].CommissionEarned.Equal(dec("120")) {
		t.Fatalf("expected daily view at 60%%, got %+v", rows)
	}
}

func TestStaffPayoutMatchesNameCaseSensitively(t *testing.T) {
	staff := []domain.StaffMember{{ID: "s1", Name: "Ana", CommissionRate: intPtr(70)}}
	transactions := []domain.Transaction{{Technician: "ana", BasePrice: dec("100"), Tip: dec("10")}}

	got := StaffPayout(transactions, staff, "Ana")
	if !got.Commission.IsZero() || !got.Tips.IsZero() || !got.TotalPayout.IsZero() {
		t.Fatalf("expected zero payout for case-mismatched technician, got %+v", got)
	}
}

func TestStaffPayoutWithNoTransactionsIsZero(t *testing.T) {
	staff := []domain.StaffMember{{ID: "s1", Name: "Ana", CommissionRate: intPtr(70)}}

	got := StaffPayout(nil, staff, "Ana")
	if !got.Commission.IsZero() || !got.Tips.IsZero() || !got.TotalPayout.IsZero() {
		t.Fatalf("expected zero payout, got %+v", got)
	}
}

func TestStaffPayoutDoesNotMutateInputs(t *testing.T) {
	staff := []domain.StaffMember{{ID: "s1", Name: "Ana", CommissionRate: intPtr(70)}}
	transactions := []domain.Transaction{{ID: "t1", Technician: "Ana", BasePrice: dec("100"), Tip: dec("10"), Total: dec("110")}}
	before, _ := json.Marshal(transactions)

	_ = StaffPayout(transactions, staff, "Ana")

	after, _ := json.Marshal(transactions)
	if string(before) != string(after) {
		t.Fatalf("transactions mutated: %s -> %s", before, after)
	}
	if *staff[0].CommissionRate != 70 {
		t.Fatalf("staff mutated")
	}
}

func TestDailyPayrollJoinsByIDOrName(t *testing.T) {
	day := mustWindow(t, "2025-06-10")
	staff := []domain.StaffMember{
		{ID: "s1", Name: "Ana", CommissionRate: intPtr(70), Role: domain.RoleStaff},
		{ID: "s2", Name: "Cici", Role: domain.RoleStaff},
		{ID: "s3", Name: "Owner", Role: domain.RoleAdmin},
	}
	summaries := []domain.DailyEarningsSummary{
		{ID: "2025-06-10_s1", Date: "2025-06-10", StaffID: "s1", Total: dec("200"), Tip: dec("20")},
		{ID: "legacy-1", Date: "2025-06-10", StaffName: "Ana", Total: dec("100"), Tip: dec("5")},
		{ID: "2025-06-10_s2", StaffID: "s2", Total: dec("150.55"), Tip: dec("4.45")},
		{ID: "2025-06-11_s1", Date: "2025-06-11", StaffID: "s1", Total: dec("1000"), Tip: dec("100")},
		{ID: "2025-06-10_s3", Date: "2025-06-10", StaffID: "s3", Total: dec("500")},
	}

	rows := DailyPayroll(summaries, staff, day)
	if len(rows) != 2 {
		t.Fatalf("expected 2 non-admin rows, got %d", len(rows))
	}

	ana := rows[0]
	if ana.StaffID != "s1" || !ana.TotalRevenue.Equal(dec("300")) || !ana.TotalTips.Equal(dec("25")) {
		t.Fatalf("unexpected Ana row: %+v", ana)
	}
	if !ana.CommissionEarned.Equal(dec("210")) || !ana.TakeHomePay.Equal(dec("235")) {
		t.Fatalf("unexpected Ana commission/take-home: %s/%s", ana.CommissionEarned, ana.TakeHomePay)
	}

	cici := rows[1]
	if cici.CommissionRate != DefaultDailyCommissionRate {
		t.Fatalf("expected default rate %d, got %d", DefaultDailyCommissionRate, cici.CommissionRate)
	}
	if !cici.CommissionEarned.Equal(dec("90.33")) {
		t.Fatalf("expected commission 90.33, got %s", cici.CommissionEarned)
	}
	if !cici.TakeHomePay.Equal(dec("94.78")) {
		t.Fatalf("expected take-home 94.78, got %s", cici.TakeHomePay)
	}
}

func TestDailyPayrollRoundsOnlyForDisplay(t *testing.T) {
	day := mustWindow(t, "2025-06-10")
	staff := []domain.StaffMember{{ID: "s1", Name: "Ana", CommissionRate: intPtr(33)}}
	summaries := []domain.DailyEarningsSummary{{Date: "2025-06-10", StaffID: "s1", Total: dec("10.01")}}

	row := DailyPayroll(summaries, staff, day)[0]
	if !row.CommissionEarned.Equal(dec("3.3033")) {
		t.Fatalf("expected unrounded commission 3.3033, got %s", row.CommissionEarned)
	}
	if !row.Rounded().CommissionEarned.Equal(dec("3.30")) {
		t.Fatalf("expected rounded commission 3.30, got %s", row.Rounded().CommissionEarned)
	}
}

func TestDuplicateStaffNames(t *testing.T) {
	staff := []domain.StaffMember{{ID: "a", Name: "Ana"}, {ID: "b", Name: "Ana"}, {ID: "c", Name: "Bea"}, {ID: "d", Name: "Ana"}}
	dupes := DuplicateStaffNames(staff)
	if len(dupes) != 1 || dupes[0] != "Ana" {
		t.Fatalf("expected [Ana], got %v", dupes)
	}
}

func TestFilterTransactionsFallsBackToCreatedAt(t *testing.T) {
	day := mustWindow(t, "2025-06-10")
	created := day.Start.Add(15 * time.Hour)
	transactions := []domain.Transaction{
		{ID: "a", Date: "2025-06-10"},
		{ID: "b", CreatedAt: created},
		{ID: "c", Date: "2025-06-11", CreatedAt: created},
	}

	got := FilterTransactions(transactions, day)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected filtered transactions: %+v", got)
	}
}
