package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/service"
)

func (a *API) handlePublicServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.service.ListServices(r.Context(), false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if !a.decode(w, r, &req) {
		return
	}
	appt, err := a.service.Book(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": appt})
}

func (a *API) handleExamRedeem(w http.ResponseWriter, r *http.Request) {
	if !a.examLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errTooManyAttempts)
		return
	}

	var req domain.ExamRedeemRequest
	if !a.decode(w, r, &req) {
		return
	}
	code, err := a.service.RedeemExamCode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	access, err := a.auth.IssueExamToken(code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func (a *API) handleExamSession(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"candidate_name": actor.Username,
		"exam_code_id":   actor.ExamCodeID,
	})
}

func (a *API) handleMyPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := a.service.MyPayout(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (a *API) handleMyAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := a.service.MyAppointments(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	tx, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := a.service.ListTransactions(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.ListStaff(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	member, err := a.service.CreateStaff(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"staff": member})
}

func (a *API) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	member, err := a.service.UpdateStaff(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": member})
}

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	services, err := a.service.ListServices(r.Context(), includeInactive)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	svc, err := a.service.CreateService(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"service": svc})
}

type serviceActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (a *API) handleServiceActive(w http.ResponseWriter, r *http.Request) {
	var req serviceActiveRequest
	if !a.decode(w, r, &req) {
		return
	}
	svc, err := a.service.SetServiceActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc})
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := a.service.ListExpenses(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := a.service.ListAppointments(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

func (a *API) handleAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.AppointmentStatusRequest
	if !a.decode(w, r, &req) {
		return
	}
	appt, err := a.service.UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListInventory(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleUpsertInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryUpsertRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.service.UpsertInventoryItem(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryAdjustRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.service.AdjustInventory(r.Context(), chi.URLParam(r, "sku"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleListExamCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := a.service.ListExamCodes(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exam_codes": codes})
}

func (a *API) handleIssueExamCode(w http.ResponseWriter, r *http.Request) {
	var req domain.ExamCodeIssueRequest
	if !a.decode(w, r, &req) {
		return
	}
	issued, err := a.service.IssueExamCode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (a *API) handleRollup(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.TriggerRollup(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
