package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"glowsalon/backend/internal/cache"
	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/service"
	"glowsalon/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Cache: cache.NewMemoryReportCache(), Bus: events.NewLocalBus()})
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigin: "*", LoginRatePerMinute: 5})
}

func doRequest(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	if rec := doRequest(t, api, http.MethodGet, "/api/v1/staff", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(t, api, http.MethodGet, "/api/v1/staff", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestStaffCannotReachAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "ana", "staff123")

	for _, path := range []string{
		"/api/v1/staff",
		"/api/v1/transactions",
		"/api/v1/reports/profit",
		"/api/v1/reports/daily-payroll",
		"/api/v1/audit-logs",
	} {
		if rec := doRequest(t, api, http.MethodGet, path, token, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for staff, got %d", path, rec.Code)
		}
	}
}

func TestStaffCheckoutAndOwnPayout(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "ana", "staff123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"customer_name":  "Rina",
		"technician":     "Ana",
		"service":        "Gel Manicure",
		"base_price":     "30",
		"tip":            "5",
		"payment_method": "credit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	decodeBody(t, rec, &created)
	if !created.Transaction.Total.Equal(dec("35")) {
		t.Fatalf("expected total 35, got %s", created.Transaction.Total)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/me/payout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payout payroll.PayoutResult
	decodeBody(t, rec, &payout)
	if payout.Technician != "Ana" || payout.Transactions != 3 {
		t.Fatalf("unexpected payout %+v", payout)
	}
	if !payout.Sales.Equal(dec("120")) {
		t.Fatalf("expected sales 120, got %s", payout.Sales)
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"customer_name": "Rina",
		"technician":    "Ana",
		"service":       "Gel Manicure",
		"base_price":    "30",
		"discount":      "5",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestStaffPayoutReportForOtherTechnicianIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin123")

	rec := doRequest(t, api, http.MethodGet, "/api/v1/reports/payout?technician=Bea", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payout payroll.PayoutResult
	decodeBody(t, rec, &payout)
	if !payout.Commission.Equal(dec("20")) {
		t.Fatalf("expected default-rate commission 20, got %s", payout.Commission)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/payout?technician=Bea&format=pdf", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for pdf, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected a pdf document")
	}
}

func TestRollupThenDailyPayroll(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/rollup", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from rollup, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/daily-payroll", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report service.DailyPayrollReport
	decodeBody(t, rec, &report)
	if !report.TotalTakeHome.Equal(dec("157.9")) {
		t.Fatalf("expected take home 157.9, got %s", report.TotalTakeHome)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/daily-payroll?format=csv", token, nil)
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "TOTAL") {
		t.Fatalf("expected a totals row, got %s", rec.Body.String())
	}
}

func TestProfitReportFormats(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/rollup", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("rollup failed: %d", rec.Code)
	}

	rec := doRequest(t, api, http.MethodGet, "/api/v1/reports/profit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report payroll.ProfitReport
	decodeBody(t, rec, &report)
	if report.Model != payroll.ModelFlatRate || !report.NetProfit.Equal(dec("20.2")) {
		t.Fatalf("unexpected profit report %+v", report)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/profit?format=xlsx", token, nil)
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("expected xlsx content type, got %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container")
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/reports/profit?format=csv", token, nil)
	if !strings.Contains(rec.Body.String(), "Net profit,20.20") {
		t.Fatalf("expected net profit row, got %s", rec.Body.String())
	}

	if rec := doRequest(t, api, http.MethodGet, "/api/v1/reports/profit?model=bonus", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown model, got %d", rec.Code)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")
	today := time.Now().UTC().Format("2006-01-02")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"date":     today,
		"amount":   "12.50",
		"category": "supplies",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Expense domain.ExpenseRecord `json:"expense"`
	}
	decodeBody(t, rec, &created)

	rec = doRequest(t, api, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"date":     today,
		"amount":   "twelve",
		"category": "supplies",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparseable amount, got %d", rec.Code)
	}

	if rec := doRequest(t, api, http.MethodDelete, "/api/v1/expenses/"+created.Expense.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := doRequest(t, api, http.MethodDelete, "/api/v1/expenses/"+created.Expense.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestPublicBookingAndAdminConfirm(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/public/services", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for public services, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/public/bookings", "", map[string]any{
		"customer_name":  "Maya",
		"customer_phone": "0812345678",
		"service":        "gel manicure",
		"technician":     "Ana",
		"start_at":       time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var booked struct {
		Appointment domain.Appointment `json:"appointment"`
	}
	decodeBody(t, rec, &booked)
	if booked.Appointment.Status != domain.AppointmentPending {
		t.Fatalf("expected pending appointment, got %q", booked.Appointment.Status)
	}

	ana := login(t, api, "ana", "staff123")
	if rec := doRequest(t, api, http.MethodPatch, "/api/v1/appointments/"+booked.Appointment.ID+"/status", ana, domain.AppointmentStatusRequest{Status: domain.AppointmentConfirmed}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff status change, got %d", rec.Code)
	}

	admin := login(t, api, "admin", "admin123")
	rec = doRequest(t, api, http.MethodPatch, "/api/v1/appointments/"+booked.Appointment.ID+"/status", admin, domain.AppointmentStatusRequest{Status: domain.AppointmentConfirmed})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/me/appointments", ana, nil)
	var mine struct {
		Appointments []domain.Appointment `json:"appointments"`
	}
	decodeBody(t, rec, &mine)
	if len(mine.Appointments) != 1 || mine.Appointments[0].ID != booked.Appointment.ID {
		t.Fatalf("expected the confirmed booking on Ana's schedule, got %+v", mine.Appointments)
	}
}

func TestExamCodeRedeemFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/exam-codes", admin, domain.ExamCodeIssueRequest{Label: "March intake"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var issued domain.ExamCodeIssueResponse
	decodeBody(t, rec, &issued)

	rec = doRequest(t, api, http.MethodPost, "/api/v1/public/exam/redeem", "", domain.ExamRedeemRequest{Code: issued.Code, CandidateName: "Sari"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var access domain.ExamAccess
	decodeBody(t, rec, &access)

	rec = doRequest(t, api, http.MethodGet, "/api/v1/exam/session", access.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for candidate session, got %d", rec.Code)
	}
	var session map[string]string
	decodeBody(t, rec, &session)
	if session["candidate_name"] != "Sari" || session["exam_code_id"] != issued.ExamCode.ID {
		t.Fatalf("unexpected session %+v", session)
	}

	if rec := doRequest(t, api, http.MethodGet, "/api/v1/exam/session", admin, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin on candidate route, got %d", rec.Code)
	}
	if rec := doRequest(t, api, http.MethodGet, "/api/v1/staff", access.AccessToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for candidate on admin route, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/public/exam/redeem", "", domain.ExamRedeemRequest{Code: issued.Code, CandidateName: "Sari"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a used code, got %d", rec.Code)
	}
}

func TestInventoryAdjustConflictsWhenShort(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	rec := doRequest(t, api, http.MethodPost, "/api/v1/inventory/SUP-ACETONE/adjust", token, domain.InventoryAdjustRequest{Delta: -100, Reason: "spill"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/inventory/SUP-ACETONE/adjust", token, domain.InventoryAdjustRequest{Delta: -3, Reason: "used"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var adjusted struct {
		Item domain.InventoryItem `json:"item"`
	}
	decodeBody(t, rec, &adjusted)
	if adjusted.Item.Qty != 5 {
		t.Fatalf("expected qty 5, got %d", adjusted.Item.Qty)
	}
}

func TestAuditLogsRecordWrites(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")
	if rec := doRequest(t, api, http.MethodPost, "/api/v1/rollup", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("rollup failed: %d", rec.Code)
	}

	rec := doRequest(t, api, http.MethodGet, "/api/v1/audit-logs?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	decodeBody(t, rec, &body)
	if len(body.Logs) == 0 {
		t.Fatalf("expected at least one audit entry")
	}
}

// deadClient accepts headers but fails every body write.
type deadClient struct {
	header http.Header
}

func (d *deadClient) Header() http.Header { return d.header }

func (d *deadClient) WriteHeader(int) {}

func (d *deadClient) Flush() {}

func (d *deadClient) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestProfitLiveReturnsWhenClientIsGone(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/profit/live", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	done := make(chan struct{})
	go func() {
		defer close(done)
		api.Handler().ServeHTTP(&deadClient{header: make(http.Header)}, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("live profit stream kept running after the client write failed")
	}
}

func TestMovesProfit(t *testing.T) {
	march, err := payroll.ParseWindow("2025-03")
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	cases := []struct {
		name  string
		event events.Event
		want  bool
	}{
		{"summary in window", events.Event{Collection: events.CollectionSummaries, Date: "2025-03-04"}, true},
		{"summary outside window", events.Event{Collection: events.CollectionSummaries, Date: "2025-04-01"}, false},
		{"expense without date", events.Event{Collection: events.CollectionExpenses}, true},
		{"staff change", events.Event{Collection: events.CollectionStaff}, true},
		{"raw transaction", events.Event{Collection: events.CollectionTransactions, Date: "2025-03-04"}, false},
	}
	for _, tc := range cases {
		if got := movesProfit(tc.event, march); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
