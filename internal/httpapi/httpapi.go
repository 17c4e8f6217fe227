package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/logging"
	"glowsalon/backend/internal/service"
	"glowsalon/backend/internal/store"
)

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute int
	Logger             logrus.FieldLogger
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	examLimiter   *attemptLimiter
	validate      *validator.Validate
	logger        logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 10
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(opts.LoginRatePerMinute),
		examLimiter:   newAttemptLimiter(opts.LoginRatePerMinute),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        opts.Logger.WithField("module", "httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.requestID, a.recoverer, a.accessLog, securityHeaders)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.With(a.requireAuth(domain.RoleAdmin, domain.RoleStaff)).Post("/auth/password", a.handleChangePassword)

		r.Route("/public", func(r chi.Router) {
			r.Get("/services", a.handlePublicServices)
			r.Post("/bookings", a.handleBooking)
			r.Post("/exam/redeem", a.handleExamRedeem)
		})
		r.With(a.requireAuth(domain.RoleCandidate)).Get("/exam/session", a.handleExamSession)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin, domain.RoleStaff))
			r.Get("/me/payout", a.handleMyPayout)
			r.Get("/me/appointments", a.handleMyAppointments)
			r.Post("/transactions", a.handleCheckout)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))

			r.Get("/staff", a.handleListStaff)
			r.Post("/staff", a.handleCreateStaff)
			r.Patch("/staff/{id}", a.handleUpdateStaff)

			r.Get("/services", a.handleListServices)
			r.Post("/services", a.handleCreateService)
			r.Patch("/services/{id}/active", a.handleServiceActive)

			r.Get("/transactions", a.handleListTransactions)

			r.Get("/expenses", a.handleListExpenses)
			r.Post("/expenses", a.handleCreateExpense)
			r.Delete("/expenses/{id}", a.handleDeleteExpense)

			r.Get("/appointments", a.handleListAppointments)
			r.Patch("/appointments/{id}/status", a.handleAppointmentStatus)

			r.Get("/inventory", a.handleListInventory)
			r.Put("/inventory", a.handleUpsertInventory)
			r.Post("/inventory/{sku}/adjust", a.handleAdjustInventory)

			r.Get("/exam-codes", a.handleListExamCodes)
			r.Post("/exam-codes", a.handleIssueExamCode)

			r.Post("/rollup", a.handleRollup)
			r.Get("/audit-logs", a.handleAuditLogs)

			r.Get("/reports/payout", a.handlePayoutReport)
			r.Get("/reports/daily-payroll", a.handleDailyPayroll)
			r.Get("/reports/profit", a.handleProfitReport)
			r.Get("/reports/profit/live", a.handleProfitLive)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         600,
	}).Handler(r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	var req passwordChangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.auth.ChangePassword(r.Context(), actor.Username, req.CurrentPassword, req.NewPassword); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		a.writeError(w, r, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dest and validates it, writing a 400 on
// failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			err = fmt.Errorf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag())
		}
		a.writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrExamCodeInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.writeError(w, r, statusFor(err), err)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	if status >= 500 {
		logging.LogError(a.logger, "httpapi", "writeError", r.Method+" "+r.URL.Path, logrus.Fields{"request_id": requestIDFrom(r.Context()), "status": status}, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
