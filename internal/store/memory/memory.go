package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/store"
	"glowsalon/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	staffByID        map[string]domain.StaffMember
	servicesByID     map[string]domain.SalonService
	transactions     []domain.Transaction
	summariesByID    map[string]domain.DailyEarningsSummary
	expensesByID     map[string]domain.ExpenseRecord
	appointmentsByID map[string]domain.Appointment
	inventory        map[string]domain.InventoryItem
	examCodesByID    map[string]domain.ExamCode
	usersByUsername  map[string]domain.UserAccount
	auditLogs        []domain.AuditLog
}

// New returns an empty store holding only the seed user accounts.
func New() *Store {
	return &Store{
		staffByID:        make(map[string]domain.StaffMember),
		servicesByID:     make(map[string]domain.SalonService),
		transactions:     make([]domain.Transaction, 0, 64),
		summariesByID:    make(map[string]domain.DailyEarningsSummary),
		expensesByID:     make(map[string]domain.ExpenseRecord),
		appointmentsByID: make(map[string]domain.Appointment),
		inventory:        make(map[string]domain.InventoryItem),
		examCodesByID:    make(map[string]domain.ExamCode),
		usersByUsername:  seedUsers(),
		auditLogs:        make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back to dev defaults
// with a warning. The postgres store never uses these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		staffID  string
	}{
		{"admin", adminPwd, domain.RoleAdmin, "stf-dewi"},
		{"ana", staffPwd, domain.RoleStaff, "stf-ana"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StaffID:   u.staffID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store populated with a small demo salon: four staff
// members, a service menu, retail stock and today's tickets and expenses.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	today := store.DateKey(now)

	rate := func(v int) *int { return &v }
	for _, m := range []domain.StaffMember{
		{ID: "stf-ana", Name: "Ana", CommissionRate: rate(70), Role: domain.RoleStaff},
		{ID: "stf-bea", Name: "Bea", Role: domain.RoleStaff},
		{ID: "stf-cici", Name: "Cici", CommissionRate: rate(55), Role: domain.RoleStaff},
		{ID: "stf-dewi", Name: "Dewi", CommissionRate: rate(0), Role: domain.RoleAdmin},
	} {
		m.Active = true
		m.CreatedAt = now
		s.staffByID[m.ID] = m
	}

	for _, svc := range []domain.SalonService{
		{ID: "svc-gel-mani", Name: "Gel Manicure", Category: "nails", Price: decimal.NewFromInt(35), DurationMinutes: 45},
		{ID: "svc-pedi", Name: "Classic Pedicure", Category: "nails", Price: decimal.NewFromInt(40), DurationMinutes: 50},
		{ID: "svc-acrylic", Name: "Acrylic Full Set", Category: "nails", Price: decimal.NewFromInt(55), DurationMinutes: 75},
		{ID: "svc-brow", Name: "Brow Shaping", Category: "beauty", Price: decimal.NewFromInt(18), DurationMinutes: 20},
		{ID: "svc-lash", Name: "Lash Lift", Category: "beauty", Price: decimal.NewFromInt(60), DurationMinutes: 60},
	} {
		svc.Active = true
		s.servicesByID[svc.ID] = svc
	}

	for _, item := range []domain.InventoryItem{
		{SKU: "RET-CUTICLE-OIL", Name: "Cuticle Oil 15ml", Category: "retail", Qty: 24, UnitCost: decimal.RequireFromString("4.50"), ReorderLevel: 6},
		{SKU: "RET-HAND-CREAM", Name: "Hand Cream 50ml", Category: "retail", Qty: 18, UnitCost: decimal.RequireFromString("6.25"), ReorderLevel: 5},
		{SKU: "SUP-ACETONE", Name: "Acetone 1L", Category: "supplies", Qty: 8, UnitCost: decimal.RequireFromString("9.90"), ReorderLevel: 3},
	} {
		item.UpdatedAt = now
		s.inventory[item.SKU] = item
	}

	for i, tx := range []domain.Transaction{
		{CustomerName: "Maya", Technician: "Ana", Service: "Gel Manicure", BasePrice: decimal.NewFromInt(35), Tip: decimal.NewFromInt(5), PaymentMethod: domain.PaymentCredit},
		{CustomerName: "Lina", Technician: "Ana", Service: "Acrylic Full Set", BasePrice: decimal.NewFromInt(55), Tip: decimal.NewFromInt(10), PaymentMethod: domain.PaymentCash},
		{CustomerName: "Rosa", Technician: "Bea", Service: "Classic Pedicure", BasePrice: decimal.NewFromInt(40), Tip: decimal.Zero, PaymentMethod: domain.PaymentCredit},
		{CustomerName: "Tari", Technician: "Cici", Service: "Lash Lift", BasePrice: decimal.NewFromInt(60), Tip: decimal.NewFromInt(8), PaymentMethod: domain.PaymentCash},
	} {
		tx.ID = xid.New("trx")
		tx.Total = tx.BasePrice.Add(tx.Tip)
		tx.Date = today
		tx.CreatedAt = now.Add(time.Duration(i-4) * time.Minute)
		s.transactions = append(s.transactions, tx)
	}

	for _, e := range []domain.ExpenseRecord{
		{Category: "supplies", Amount: domain.NewFlexAmount(decimal.NewFromInt(45)), Note: "gel polish restock"},
		{Category: "utilities", Amount: domain.NewFlexAmount(decimal.NewFromInt(20)), Note: "water"},
	} {
		e.ID = xid.New("exp")
		e.Date = today
		e.CreatedAt = now
		s.expensesByID[e.ID] = e
	}

	return s
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff := make([]domain.StaffMember, 0, len(s.staffByID))
	for _, m := range s.staffByID {
		staff = append(staff, cloneStaff(m))
	}
	slices.SortFunc(staff, func(a, b domain.StaffMember) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return staff, nil
}

func (s *Store) GetStaff(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, exists := s.staffByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneStaff(member)
	return &dup, nil
}

func (s *Store) CreateStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if err := validateStaff(member); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if member.ID == "" {
		member.ID = xid.New("stf")
	}
	if _, exists := s.staffByID[member.ID]; exists {
		return nil, store.ErrConflict
	}
	if member.Role == "" {
		member.Role = domain.RoleStaff
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	member.Active = true
	s.staffByID[member.ID] = cloneStaff(member)
	created := cloneStaff(member)
	return &created, nil
}

func (s *Store) UpdateStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if err := validateStaff(member); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.staffByID[member.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	member.CreatedAt = existing.CreatedAt
	s.staffByID[member.ID] = cloneStaff(member)
	updated := cloneStaff(member)
	return &updated, nil
}

func (s *Store) ListServices(_ context.Context, includeInactive bool) ([]domain.SalonService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.SalonService, 0, len(s.servicesByID))
	for _, svc := range s.servicesByID {
		if !svc.Active && !includeInactive {
			continue
		}
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.SalonService) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return services, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.SalonService) (*domain.SalonService, error) {
	if strings.TrimSpace(svc.Name) == "" || strings.TrimSpace(svc.Category) == "" || svc.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.servicesByID {
		if strings.EqualFold(existing.Name, svc.Name) {
			return nil, store.ErrConflict
		}
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	svc.Active = true
	s.servicesByID[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) UpdateServiceActive(_ context.Context, id string, active bool) (*domain.SalonService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, exists := s.servicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	svc.Active = active
	s.servicesByID[id] = svc
	updated := svc
	return &updated, nil
}

// CreateTransaction records a ticket and takes its retail lines out of
// stock. Nothing is written when any line is short.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if strings.TrimSpace(tx.Technician) == "" || tx.BasePrice.IsNegative() || tx.Tip.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needed := make(map[string]int, len(tx.RetailItems))
	for _, line := range tx.RetailItems {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		needed[line.SKU] += line.Qty
	}
	for sku, qty := range needed {
		item, exists := s.inventory[sku]
		if !exists {
			return nil, store.ErrNotFound
		}
		if item.Qty < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("trx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Date == "" {
		tx.Date = store.DateKey(tx.CreatedAt)
	}

	now := time.Now().UTC()
	for sku, qty := range needed {
		item := s.inventory[sku]
		item.Qty -= qty
		item.UpdatedAt = now
		s.inventory[sku] = item
	}

	s.transactions = append(s.transactions, cloneTransaction(tx))
	created := cloneTransaction(tx)
	return &created, nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if !store.InDateRange(tx.Date, from, to) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) UpsertDailySummary(_ context.Context, summary domain.DailyEarningsSummary) error {
	if strings.TrimSpace(summary.ID) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now().UTC()
	}
	s.summariesByID[summary.ID] = summary
	return nil
}

func (s *Store) ReplaceDailySummaries(_ context.Context, date string, summaries []domain.DailyEarningsSummary) error {
	if !store.ValidDate(date) {
		return store.ErrInvalidInput
	}
	for _, summary := range summaries {
		if strings.TrimSpace(summary.ID) == "" || summaryDay(summary) != date {
			return store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.summariesByID {
		if summaryDay(existing) == date {
			delete(s.summariesByID, id)
		}
	}
	now := time.Now().UTC()
	for _, summary := range summaries {
		if summary.UpdatedAt.IsZero() {
			summary.UpdatedAt = now
		}
		s.summariesByID[summary.ID] = summary
	}
	return nil
}

func (s *Store) ListDailySummaries(_ context.Context, from time.Time, to time.Time) ([]domain.DailyEarningsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailyEarningsSummary, 0, len(s.summariesByID))
	for _, summary := range s.summariesByID {
		if !store.InDateRange(summaryDate(summary), from, to) {
			continue
		}
		result = append(result, summary)
	}
	slices.SortFunc(result, func(a, b domain.DailyEarningsSummary) int {
		if da, db := summaryDate(a), summaryDate(b); da != db {
			return cmpString(da, db)
		}
		return cmpString(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error) {
	if !store.ValidDate(expense.Date) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if _, exists := s.expensesByID[expense.ID]; exists {
		return nil, store.ErrConflict
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExpenseRecord, 0, len(s.expensesByID))
	for _, expense := range s.expensesByID {
		if !store.InDateRange(expense.Date, from, to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.ExpenseRecord) int {
		if a.Date == b.Date {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) (*domain.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return &expense, nil
}

func (s *Store) CreateAppointment(_ context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if strings.TrimSpace(appt.CustomerName) == "" || strings.TrimSpace(appt.Service) == "" || appt.StartAt.IsZero() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slotTakenLocked(appt.Technician, appt.StartAt, "") {
		return nil, store.ErrConflict
	}
	if appt.ID == "" {
		appt.ID = xid.New("apt")
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentPending
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = appt.CreatedAt
	appt.StartAt = appt.StartAt.UTC()
	s.appointmentsByID[appt.ID] = appt
	created := appt
	return &created, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, exists := s.appointmentsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &appt, nil
}

func (s *Store) ListAppointments(_ context.Context, from time.Time, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Appointment, 0, len(s.appointmentsByID))
	for _, appt := range s.appointmentsByID {
		if appt.StartAt.Before(from) || !appt.StartAt.Before(to) {
			continue
		}
		result = append(result, appt)
	}
	slices.SortFunc(result, func(a, b domain.Appointment) int {
		if a.StartAt.Equal(b.StartAt) {
			return cmpString(a.ID, b.ID)
		}
		return a.StartAt.Compare(b.StartAt)
	})
	return result, nil
}

// UpdateAppointmentStatus moves an appointment along its lifecycle. A
// non-empty technician reassigns the booking, subject to the same
// double-booking rule as creation.
func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status string, technician string, at time.Time) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, exists := s.appointmentsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransitionAppointment(appt.Status, status) {
		return nil, store.ErrConflict
	}
	if technician != "" && technician != appt.Technician {
		if status != domain.AppointmentCancelled && s.slotTakenLocked(technician, appt.StartAt, appt.ID) {
			return nil, store.ErrConflict
		}
		appt.Technician = technician
	}
	appt.Status = status
	appt.UpdatedAt = at.UTC()
	s.appointmentsByID[id] = appt
	updated := appt
	return &updated, nil
}

func (s *Store) slotTakenLocked(technician string, startAt time.Time, exceptID string) bool {
	if technician == "" {
		return false
	}
	for _, other := range s.appointmentsByID {
		if other.ID == exceptID || !other.BlocksSlot() {
			continue
		}
		if other.Technician == technician && other.StartAt.Equal(startAt) {
			return true
		}
	}
	return false
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return items, nil
}

func (s *Store) UpsertInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.SKU) == "" || strings.TrimSpace(item.Name) == "" || item.Qty < 0 || item.ReorderLevel < 0 || item.UnitCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	s.inventory[item.SKU] = item
	saved := item
	return &saved, nil
}

func (s *Store) AdjustInventory(_ context.Context, sku string, delta int) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.inventory[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	if item.Qty+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	item.Qty += delta
	item.UpdatedAt = time.Now().UTC()
	s.inventory[sku] = item
	adjusted := item
	return &adjusted, nil
}

func (s *Store) CreateExamCode(_ context.Context, code domain.ExamCode) (*domain.ExamCode, error) {
	if strings.TrimSpace(code.CodeHash) == "" || code.ExpiresAt.IsZero() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code.ID == "" {
		code.ID = xid.New("exam")
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	s.examCodesByID[code.ID] = cloneExamCode(code)
	created := cloneExamCode(code)
	return &created, nil
}

func (s *Store) ListExamCodes(_ context.Context) ([]domain.ExamCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]domain.ExamCode, 0, len(s.examCodesByID))
	for _, code := range s.examCodesByID {
		codes = append(codes, cloneExamCode(code))
	}
	slices.SortFunc(codes, func(a, b domain.ExamCode) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return codes, nil
}

func (s *Store) MarkExamCodeUsed(_ context.Context, id string, usedBy string, at time.Time) (*domain.ExamCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, exists := s.examCodesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if code.UsedAt != nil {
		return nil, store.ErrConflict
	}
	usedAt := at.UTC()
	code.UsedAt = &usedAt
	code.UsedBy = usedBy
	s.examCodesByID[id] = code
	marked := cloneExamCode(code)
	return &marked, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func validateStaff(member domain.StaffMember) error {
	if strings.TrimSpace(member.Name) == "" {
		return store.ErrInvalidInput
	}
	if member.CommissionRate != nil && (*member.CommissionRate < 0 || *member.CommissionRate > 100) {
		return store.ErrInvalidInput
	}
	if member.Role != "" && member.Role != domain.RoleStaff && member.Role != domain.RoleAdmin {
		return store.ErrInvalidInput
	}
	return nil
}

// summaryDate falls back to the id prefix for summaries written without a
// date field.
func summaryDate(summary domain.DailyEarningsSummary) string {
	if summary.Date != "" {
		return summary.Date
	}
	return summary.ID
}

func summaryDay(summary domain.DailyEarningsSummary) string {
	day := summaryDate(summary)
	if len(day) > 10 {
		day = day[:10]
	}
	return day
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneStaff(src domain.StaffMember) domain.StaffMember {
	dup := src
	if src.CommissionRate != nil {
		rate := *src.CommissionRate
		dup.CommissionRate = &rate
	}
	return dup
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	if src.RetailItems != nil {
		dup.RetailItems = make([]domain.RetailLine, len(src.RetailItems))
		copy(dup.RetailItems, src.RetailItems)
	}
	return dup
}

func cloneExamCode(src domain.ExamCode) domain.ExamCode {
	dup := src
	if src.UsedAt != nil {
		usedAt := *src.UsedAt
		dup.UsedAt = &usedAt
	}
	return dup
}
