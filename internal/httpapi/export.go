package httpapi

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/service"
)

const profitSheet = "Sheet1"

// writePayoutPDF renders a one-page payout slip for a technician.
func writePayoutPDF(w io.Writer, payout payroll.PayoutResult, window string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payout Slip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Technician: %s", payout.Technician),
		fmt.Sprintf("Period: %s", window),
		fmt.Sprintf("Services: %d", payout.Transactions),
		fmt.Sprintf("Sales: %s", payout.Sales.StringFixed(2)),
		fmt.Sprintf("Commission rate: %s%%", payout.Rate.Shift(2).StringFixed(0)),
		fmt.Sprintf("Commission: %s", payout.Commission.StringFixed(2)),
		fmt.Sprintf("Tips: %s", payout.Tips.StringFixed(2)),
	}
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(7)
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total payout: %s", payout.TotalPayout.StringFixed(2)))

	return pdf.Output(w)
}

func writeDailyPayrollCSV(w io.Writer, report service.DailyPayrollReport) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"staff_id", "staff_name", "commission_rate", "total_revenue", "commission_earned", "total_tips", "take_home_pay"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.StaffID,
			row.StaffName,
			strconv.Itoa(row.CommissionRate),
			row.TotalRevenue.StringFixed(2),
			row.CommissionEarned.StringFixed(2),
			row.TotalTips.StringFixed(2),
			row.TakeHomePay.StringFixed(2),
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	if err := out.Write([]string{"", "TOTAL", "", report.TotalRevenue.StringFixed(2), report.TotalCommission.StringFixed(2), report.TotalTips.StringFixed(2), report.TotalTakeHome.StringFixed(2)}); err != nil {
		return err
	}
	out.Flush()
	return out.Error()
}

type profitRow struct {
	label string
	value any
}

// profitRows lays the report out as label/value pairs shared by the
// spreadsheet and CSV exports. Money stays a fixed two-decimal string in CSV
// and becomes a number in the spreadsheet.
func profitRows(report payroll.ProfitReport) []profitRow {
	return []profitRow{
		{"Window", report.Window},
		{"Payout model", report.Model},
		{"Total revenue", report.TotalRev},
		{"Credit", report.TotalCredit},
		{"Cash", report.TotalCash},
		{"Staff payout", report.StaffPayout},
		{"Expenses", report.TotalExpenseAmount},
		{"Net profit", report.NetProfit},
		{"Profit margin %", report.ProfitMarginPct},
		{"Expense ratio %", report.ExpenseRatioPct},
		{"Summary records", report.DaysCount},
		{"Expense records", report.ExpenseCount},
	}
}

func writeProfitXLSX(w io.Writer, report payroll.ProfitReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue(profitSheet, "A1", "Metric"); err != nil {
		return err
	}
	if err := f.SetCellValue(profitSheet, "B1", "Value"); err != nil {
		return err
	}
	for i, row := range profitRows(report) {
		rowNo := fmt.Sprint(i + 2)
		if err := f.SetCellValue(profitSheet, "A"+rowNo, row.label); err != nil {
			return err
		}
		value := row.value
		if amount, ok := value.(decimal.Decimal); ok {
			value = amount.Round(2).InexactFloat64()
		}
		if err := f.SetCellValue(profitSheet, "B"+rowNo, value); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(profitSheet, "A", "A", 22); err != nil {
		return err
	}
	return f.Write(w)
}

func writeProfitCSV(w io.Writer, report payroll.ProfitReport) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, row := range profitRows(report) {
		var value string
		switch v := row.value.(type) {
		case decimal.Decimal:
			value = v.StringFixed(2)
		default:
			value = fmt.Sprint(v)
		}
		if err := out.Write([]string{row.label, value}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
