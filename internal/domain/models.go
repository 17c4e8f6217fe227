package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin     = "admin"
	RoleStaff     = "staff"
	RoleCandidate = "candidate"

	PaymentCash   = "cash"
	PaymentCredit = "credit"

	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// StaffMember is a salon employee. CommissionRate is a whole percentage;
// nil means the record never had one set.
type StaffMember struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CommissionRate *int      `json:"commission_rate,omitempty"`
	Role           string    `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	CommissionRate *int   `json:"commission_rate,omitempty" validate:"omitempty,min=0,max=100"`
	Role           string `json:"role" validate:"omitempty,oneof=staff admin"`
	Phone          string `json:"phone,omitempty" validate:"max=40"`
	Username       string `json:"username,omitempty" validate:"omitempty,min=4,max=60"`
	Password       string `json:"password,omitempty" validate:"omitempty,min=6"`
}

type StaffUpdateRequest struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,max=120"`
	CommissionRate *int    `json:"commission_rate,omitempty" validate:"omitempty,min=0,max=100"`
	Role           *string `json:"role,omitempty" validate:"omitempty,oneof=staff admin"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Active         *bool   `json:"active,omitempty"`
}

// SalonService is one entry of the public service menu.
type SalonService struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
	Active          bool            `json:"active"`
}

type ServiceCreateRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Category        string          `json:"category" validate:"required,max=60"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes" validate:"min=5,max=600"`
}

// Transaction is a completed point-of-sale ticket. Technician holds the
// staff display name, not the staff id. Total is stored as given.
type Transaction struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	Technician    string          `json:"technician"`
	Service       string          `json:"service"`
	BasePrice     decimal.Decimal `json:"base_price"`
	Tip           decimal.Decimal `json:"tip"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Date          string          `json:"date,omitempty"`
	RetailItems   []RetailLine    `json:"retail_items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CheckoutRequest struct {
	CustomerName  string          `json:"customer_name" validate:"required,max=120"`
	Technician    string          `json:"technician" validate:"required,max=120"`
	Service       string          `json:"service" validate:"required,max=120"`
	BasePrice     decimal.Decimal `json:"base_price"`
	Tip           decimal.Decimal `json:"tip"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=cash credit"`
	Date          string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	RetailItems   []RetailLine    `json:"retail_items,omitempty" validate:"omitempty,dive"`
}

// RetailLine is a take-home product sold alongside a service.
type RetailLine struct {
	SKU string `json:"sku" validate:"required,max=60"`
	Qty int    `json:"qty" validate:"min=1,max=100"`
}

// DailyEarningsSummary is a per-day rollup. Salon-wide summaries carry the
// TotalRevenue/TotalCredit/TotalCash figures; staff summaries additionally
// link a staff member and carry Total/Tip.
type DailyEarningsSummary struct {
	ID           string          `json:"id"`
	Date         string          `json:"date,omitempty"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	TotalCash    decimal.Decimal `json:"total_cash"`
	Total        decimal.Decimal `json:"total"`
	Tip          decimal.Decimal `json:"tip"`
	StaffID      string          `json:"staff_id,omitempty"`
	StaffName    string          `json:"staff_name,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsStaffLinked reports whether the summary belongs to one staff member
// rather than to the whole salon.
func (s DailyEarningsSummary) IsStaffLinked() bool {
	return s.StaffID != "" || s.StaffName != ""
}

type ExpenseRecord struct {
	ID        string     `json:"id"`
	Date      string     `json:"date,omitempty"`
	Amount    FlexAmount `json:"amount"`
	Category  string     `json:"category,omitempty"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Date     string     `json:"date" validate:"required,datetime=2006-01-02"`
	Amount   FlexAmount `json:"amount"`
	Category string     `json:"category" validate:"required,max=60"`
	Note     string     `json:"note,omitempty" validate:"max=500"`
}

type Appointment struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Service       string    `json:"service"`
	Technician    string    `json:"technician,omitempty"`
	StartAt       time.Time `json:"start_at"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type BookingRequest struct {
	CustomerName  string    `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string    `json:"customer_phone" validate:"required,min=6,max=40"`
	Service       string    `json:"service" validate:"required,max=120"`
	Technician    string    `json:"technician,omitempty" validate:"max=120"`
	StartAt       time.Time `json:"start_at" validate:"required"`
	Notes         string    `json:"notes,omitempty" validate:"max=500"`
}

type AppointmentStatusRequest struct {
	Status     string `json:"status" validate:"required,oneof=confirmed completed cancelled"`
	Technician string `json:"technician,omitempty" validate:"max=120"`
}

type InventoryItem struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Qty          int             `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReorderLevel int             `json:"reorder_level"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type InventoryUpsertRequest struct {
	SKU          string          `json:"sku" validate:"required,max=60"`
	Name         string          `json:"name" validate:"required,max=120"`
	Category     string          `json:"category" validate:"required,max=60"`
	Qty          int             `json:"qty" validate:"min=0"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReorderLevel int             `json:"reorder_level" validate:"min=0"`
}

type InventoryAdjustRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// ExamCode gates access to the theory exam. Only the bcrypt hash of the
// code is stored.
// ExamCode is a single-use exam login. LookupPrefix holds the first
// characters of the plain code and narrows which hashes a redemption checks.
type ExamCode struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	CodeHash     string     `json:"-"`
	LookupPrefix string     `json:"-"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	UsedBy       string     `json:"used_by,omitempty"`
}

type ExamCodeIssueRequest struct {
	Label string `json:"label" validate:"required,max=120"`
}

type ExamCodeIssueResponse struct {
	ExamCode ExamCode `json:"exam_code"`
	Code     string   `json:"code"`
}

type ExamRedeemRequest struct {
	Code          string `json:"code" validate:"required,min=6,max=32"`
	CandidateName string `json:"candidate_name" validate:"required,max=120"`
}

type ExamAccess struct {
	ExamCodeID    string `json:"exam_code_id"`
	CandidateName string `json:"candidate_name"`
	AccessToken   string `json:"access_token"`
	ExpiresAt     string `json:"expires_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StaffID     string `json:"staff_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller. ExamCodeID is only set for exam
// candidates.
type Actor struct {
	Username   string
	Role       string
	StaffID    string
	ExamCodeID string
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	StaffID   string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type RollupResponse struct {
	Date           string                 `json:"date"`
	Transactions   int                    `json:"transactions"`
	SalonSummary   DailyEarningsSummary   `json:"salon_summary"`
	StaffSummaries []DailyEarningsSummary `json:"staff_summaries"`
}

var appointmentTransitions = map[string][]string{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCompleted, AppointmentCancelled},
}

// CanTransitionAppointment reports whether an appointment may move from one
// status to another. Completed and cancelled are terminal.
func CanTransitionAppointment(from string, to string) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BlocksSlot reports whether the appointment still occupies its
// technician's start time.
func (a Appointment) BlocksSlot() bool {
	return a.Status != AppointmentCancelled
}
