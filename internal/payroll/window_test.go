package payroll

import "testing"

func TestParseWindow(t *testing.T) {
	day, err := ParseWindow("2025-06-15")
	if err != nil || day.Kind != WindowDay || day.String() != "2025-06-15" {
		t.Fatalf("unexpected day window %+v (%v)", day, err)
	}
	month, err := ParseWindow(" 2025-06 ")
	if err != nil || month.Kind != WindowMonth || month.String() != "2025-06" {
		t.Fatalf("unexpected month window %+v (%v)", month, err)
	}
	for _, raw := range []string{"", "2025", "2025-13", "06-2025", "2025-06-31"} {
		if _, err := ParseWindow(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestWindowContains(t *testing.T) {
	month := mustWindow(t, "2025-06")
	cases := map[string]bool{
		"2025-06-01":           true,
		"2025-06-30":           true,
		"2025-06-15T10:00:00Z": true,
		"2025-07-01":           false,
		"2025-05-31":           false,
		"garbage":              false,
		"":                     false,
	}
	for date, want := range cases {
		if got := month.Contains(date); got != want {
			t.Fatalf("Contains(%q) = %v, want %v", date, got, want)
		}
	}

	day := mustWindow(t, "2025-06-15")
	if !day.Contains("2025-06-15") || day.Contains("2025-06-16") {
		t.Fatalf("day window containment is wrong")
	}
}

func TestRecordDateFallsBackToIdentifier(t *testing.T) {
	if got := RecordDate("2025-06-01", "2025-07-01"); got != "2025-06-01" {
		t.Fatalf("expected own date, got %q", got)
	}
	if got := RecordDate("", "summary_2025-07-04_s1"); got != "2025-07-04" {
		t.Fatalf("expected date from id, got %q", got)
	}
	if got := RecordDate("", "no-date"); got != "" {
		t.Fatalf("expected empty date, got %q", got)
	}
}

func TestMonthDays(t *testing.T) {
	if n := len(mustWindow(t, "2024-02").Days()); n != 29 {
		t.Fatalf("expected 29 days in Feb 2024, got %d", n)
	}
	if n := len(mustWindow(t, "2024-02-10").Days()); n != 1 {
		t.Fatalf("expected a day window to have one day, got %d", n)
	}
}
