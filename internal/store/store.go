package store

import (
	"context"
	"errors"
	"time"

	"glowsalon/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the persistence boundary of the salon backend. Date-ranged
// listings use half-open [from, to) intervals.
type Repository interface {
	ListStaff(ctx context.Context) ([]domain.StaffMember, error)
	GetStaff(ctx context.Context, id string) (*domain.StaffMember, error)
	CreateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error)
	UpdateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error)

	ListServices(ctx context.Context, includeInactive bool) ([]domain.SalonService, error)
	CreateService(ctx context.Context, svc domain.SalonService) (*domain.SalonService, error)
	UpdateServiceActive(ctx context.Context, id string, active bool) (*domain.SalonService, error)

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error)

	UpsertDailySummary(ctx context.Context, summary domain.DailyEarningsSummary) error
	// ReplaceDailySummaries drops every summary filed under date and writes
	// summaries in their place as one step.
	ReplaceDailySummaries(ctx context.Context, date string, summaries []domain.DailyEarningsSummary) error
	ListDailySummaries(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyEarningsSummary, error)

	CreateExpense(ctx context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.ExpenseRecord, error)
	DeleteExpense(ctx context.Context, id string) (*domain.ExpenseRecord, error)

	CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	ListAppointments(ctx context.Context, from time.Time, to time.Time) ([]domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status string, technician string, at time.Time) (*domain.Appointment, error)

	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	UpsertInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	AdjustInventory(ctx context.Context, sku string, delta int) (*domain.InventoryItem, error)

	CreateExamCode(ctx context.Context, code domain.ExamCode) (*domain.ExamCode, error)
	ListExamCodes(ctx context.Context) ([]domain.ExamCode, error)
	MarkExamCodeUsed(ctx context.Context, id string, usedBy string, at time.Time) (*domain.ExamCode, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// DateKey is the YYYY-MM-DD key rows are filed under.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ValidDate reports whether date is a YYYY-MM-DD calendar date.
func ValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// InDateRange reports whether a YYYY-MM-DD key lies in [from, to).
func InDateRange(date string, from time.Time, to time.Time) bool {
	if len(date) < 10 {
		return false
	}
	day, err := time.Parse("2006-01-02", date[:10])
	if err != nil {
		return false
	}
	return !day.Before(from.UTC().Truncate(24*time.Hour)) && day.Before(to)
}
