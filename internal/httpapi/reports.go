package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/payroll"
)

func (a *API) handlePayoutReport(w http.ResponseWriter, r *http.Request) {
	technician := r.URL.Query().Get("technician")
	window := r.URL.Query().Get("window")

	payout, err := a.service.StaffPayout(r.Context(), technician, window)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "pdf":
		if window == "" {
			window = time.Now().UTC().Format("2006-01-02")
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"payout-%s-%s.pdf\"", safeFilename(payout.Technician), safeFilename(window)))
		if err := writePayoutPDF(w, payout, window); err != nil {
			a.logger.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Error("render payout pdf")
		}
	default:
		writeJSON(w, http.StatusOK, payout)
	}
}

func (a *API) handleDailyPayroll(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.DailyPayroll(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-payroll-%s.csv\"", report.Day))
		if err := writeDailyPayrollCSV(w, report); err != nil {
			a.logger.WithError(err).Error("write daily payroll csv")
		}
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.MonthlyProfit(r.Context(), r.URL.Query().Get("month"), r.URL.Query().Get("model"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"profit-%s-%s.xlsx\"", report.Window, report.Model))
		if err := writeProfitXLSX(w, report); err != nil {
			a.logger.WithError(err).Error("write profit xlsx")
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"profit-%s-%s.csv\"", report.Window, report.Model))
		if err := writeProfitCSV(w, report); err != nil {
			a.logger.WithError(err).Error("write profit csv")
		}
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// handleProfitLive streams the profit report as datastar signal patches,
// recomputing it whenever a change lands that can move the figures.
func (a *API) handleProfitLive(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	model := r.URL.Query().Get("model")

	report, err := a.service.MonthlyProfit(r.Context(), month, model)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	window, err := payroll.ParseWindow(report.Window)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	changes, stop := a.service.Bus().Subscribe(r.Context())
	defer stop()

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse := datastar.NewSSE(w, r)
	send := func(report payroll.ProfitReport) error {
		payload, err := json.Marshal(map[string]any{"profit": report})
		if err != nil {
			return fmt.Errorf("marshal live profit: %w", err)
		}
		if err := sse.PatchSignals(payload); err != nil {
			return err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}
	if err := send(report); err != nil {
		a.logger.WithError(err).Debug("live profit client gone")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-changes:
			if !ok {
				return
			}
			if !movesProfit(event, window) {
				continue
			}
			report, err := a.service.MonthlyProfit(r.Context(), month, model)
			if err != nil {
				a.logger.WithError(err).WithField("window", window.String()).Warn("recompute live profit")
				continue
			}
			if err := send(report); err != nil {
				a.logger.WithError(err).Debug("live profit client gone")
				return
			}
		}
	}
}

// movesProfit reports whether a change can alter the profit report of
// window. Transactions only count once they are rolled up.
func movesProfit(event events.Event, window payroll.Window) bool {
	switch event.Collection {
	case events.CollectionSummaries, events.CollectionExpenses:
		return event.Date == "" || window.Contains(event.Date)
	case events.CollectionStaff:
		return true
	default:
		return false
	}
}

func safeFilename(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
