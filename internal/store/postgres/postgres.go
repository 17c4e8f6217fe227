package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/store"
	"glowsalon/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const staffColumns = `id, name, commission_rate, role, phone, active, created_at`

func scanStaff(row interface{ Scan(...any) error }) (domain.StaffMember, error) {
	var member domain.StaffMember
	var rate sql.NullInt32
	if err := row.Scan(&member.ID, &member.Name, &rate, &member.Role, &member.Phone, &member.Active, &member.CreatedAt); err != nil {
		return member, err
	}
	if rate.Valid {
		v := int(rate.Int32)
		member.CommissionRate = &v
	}
	member.CreatedAt = member.CreatedAt.UTC()
	return member, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff_members ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]domain.StaffMember, 0, 16)
	for rows.Next() {
		member, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Store) GetStaff(ctx context.Context, id string) (*domain.StaffMember, error) {
	member, err := scanStaff(s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (s *Store) CreateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if err := validateStaff(member); err != nil {
		return nil, err
	}
	if member.ID == "" {
		member.ID = xid.New("stf")
	}
	if member.Role == "" {
		member.Role = domain.RoleStaff
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	member.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_members (id, name, commission_rate, role, phone, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, member.ID, member.Name, nullRate(member.CommissionRate), member.Role, member.Phone, member.Active, member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := member
	return &created, nil
}

func (s *Store) UpdateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if err := validateStaff(member); err != nil {
		return nil, err
	}

	updated, err := scanStaff(s.db.QueryRowContext(ctx, `
		UPDATE staff_members
		SET name = $2, commission_rate = $3, role = $4, phone = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+staffColumns,
		member.ID, member.Name, nullRate(member.CommissionRate), member.Role, member.Phone, member.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]domain.SalonService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, duration_minutes, active
		FROM salon_services
		WHERE active = true OR $1
		ORDER BY category, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.SalonService, 0, 32)
	for rows.Next() {
		var svc domain.SalonService
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMinutes, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.SalonService) (*domain.SalonService, error) {
	if strings.TrimSpace(svc.Name) == "" || strings.TrimSpace(svc.Category) == "" || svc.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	svc.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salon_services (id, name, category, price, duration_minutes, active)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, svc.ID, svc.Name, svc.Category, svc.Price, svc.DurationMinutes, svc.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) UpdateServiceActive(ctx context.Context, id string, active bool) (*domain.SalonService, error) {
	var svc domain.SalonService
	err := s.db.QueryRowContext(ctx, `
		UPDATE salon_services SET active = $2 WHERE id = $1
		RETURNING id, name, category, price, duration_minutes, active
	`, id, active).Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMinutes, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// CreateTransaction inserts the ticket and takes its retail lines out of
// stock in one transaction; stock rows are locked in SKU order.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if strings.TrimSpace(tx.Technician) == "" || tx.BasePrice.IsNegative() || tx.Tip.IsNegative() {
		return nil, store.ErrInvalidInput
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
	if !store.ValidDate(tx.Date) {
		return nil, store.ErrInvalidInput
	}
	retail := tx.RetailItems
	if retail == nil {
		retail = []domain.RetailLine{}
	}
	retailJSON, err := json.Marshal(retail)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	lines := make([]domain.RetailLine, len(tx.RetailItems))
	copy(lines, tx.RetailItems)
	sort.Slice(lines, func(i, j int) bool { return lines[i].SKU < lines[j].SKU })
	for _, line := range lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		var qty int
		err := pgTx.QueryRowContext(ctx, `SELECT qty FROM inventory_items WHERE sku = $1 FOR UPDATE`, line.SKU).Scan(&qty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if qty < line.Qty {
			return nil, store.ErrInsufficientStock
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_items SET qty = qty - $2, updated_at = now() WHERE sku = $1
		`, line.SKU, line.Qty); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, customer_name, technician, service, base_price, tip, total, payment_method, date, retail_items, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tx.ID, tx.CustomerName, tx.Technician, tx.Service, tx.BasePrice, tx.Tip, tx.Total, tx.PaymentMethod, tx.Date, string(retailJSON), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, technician, service, base_price, tip, total, payment_method, date::text, retail_items, created_at
		FROM transactions
		WHERE date >= $1::date AND date < $2::date
		ORDER BY created_at, id
	`, store.DateKey(from), store.DateKey(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 128)
	for rows.Next() {
		var tx domain.Transaction
		var retailJSON []byte
		if err := rows.Scan(&tx.ID, &tx.CustomerName, &tx.Technician, &tx.Service, &tx.BasePrice, &tx.Tip, &tx.Total, &tx.PaymentMethod, &tx.Date, &retailJSON, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if len(retailJSON) > 0 {
			if err := json.Unmarshal(retailJSON, &tx.RetailItems); err != nil {
				return nil, fmt.Errorf("decode retail items of %s: %w", tx.ID, err)
			}
			if len(tx.RetailItems) == 0 {
				tx.RetailItems = nil
			}
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const upsertSummarySQL = `
	INSERT INTO daily_summaries (
		id, date, total_revenue, total_credit, total_cash, total, tip, staff_id, staff_name, updated_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (id) DO UPDATE SET
		date = EXCLUDED.date,
		total_revenue = EXCLUDED.total_revenue,
		total_credit = EXCLUDED.total_credit,
		total_cash = EXCLUDED.total_cash,
		total = EXCLUDED.total,
		tip = EXCLUDED.tip,
		staff_id = EXCLUDED.staff_id,
		staff_name = EXCLUDED.staff_name,
		updated_at = EXCLUDED.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) UpsertDailySummary(ctx context.Context, summary domain.DailyEarningsSummary) error {
	return upsertSummary(ctx, s.db, summary)
}

func (s *Store) ReplaceDailySummaries(ctx context.Context, date string, summaries []domain.DailyEarningsSummary) error {
	if !store.ValidDate(date) {
		return store.ErrInvalidInput
	}
	for _, summary := range summaries {
		if summaryDay(summary) != date {
			return store.ErrInvalidInput
		}
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM daily_summaries WHERE date = $1::date`, date); err != nil {
		return err
	}
	for _, summary := range summaries {
		if err := upsertSummary(ctx, pgTx, summary); err != nil {
			return err
		}
	}
	return pgTx.Commit()
}

func upsertSummary(ctx context.Context, db execer, summary domain.DailyEarningsSummary) error {
	date := summaryDay(summary)
	if strings.TrimSpace(summary.ID) == "" || !store.ValidDate(date) {
		return store.ErrInvalidInput
	}
	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, upsertSummarySQL,
		summary.ID, date, summary.TotalRevenue, summary.TotalCredit, summary.TotalCash,
		summary.Total, summary.Tip, summary.StaffID, summary.StaffName, summary.UpdatedAt)
	return err
}

// summaryDay is the date a summary is filed under, taken from the id prefix
// when the date field is empty.
func summaryDay(summary domain.DailyEarningsSummary) string {
	if summary.Date != "" {
		return summary.Date
	}
	if len(summary.ID) >= 10 {
		return summary.ID[:10]
	}
	return ""
}

func (s *Store) ListDailySummaries(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyEarningsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date::text, total_revenue, total_credit, total_cash, total, tip, staff_id, staff_name, updated_at
		FROM daily_summaries
		WHERE date >= $1::date AND date < $2::date
		ORDER BY date, id
	`, store.DateKey(from), store.DateKey(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailyEarningsSummary, 0, 64)
	for rows.Next() {
		var summary domain.DailyEarningsSummary
		if err := rows.Scan(&summary.ID, &summary.Date, &summary.TotalRevenue, &summary.TotalCredit, &summary.TotalCash, &summary.Total, &summary.Tip, &summary.StaffID, &summary.StaffName, &summary.UpdatedAt); err != nil {
			return nil, err
		}
		summary.UpdatedAt = summary.UpdatedAt.UTC()
		result = append(result, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error) {
	if !store.ValidDate(expense.Date) {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, date, amount, category, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, expense.ID, expense.Date, expense.Amount, expense.Category, expense.Note, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date::text, amount, category, note, created_at
		FROM expenses
		WHERE date >= $1::date AND date < $2::date
		ORDER BY date, id
	`, store.DateKey(from), store.DateKey(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ExpenseRecord, 0, 64)
	for rows.Next() {
		var expense domain.ExpenseRecord
		if err := rows.Scan(&expense.ID, &expense.Date, &expense.Amount, &expense.Category, &expense.Note, &expense.CreatedAt); err != nil {
			return nil, err
		}
		expense.CreatedAt = expense.CreatedAt.UTC()
		result = append(result, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) (*domain.ExpenseRecord, error) {
	var expense domain.ExpenseRecord
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM expenses WHERE id = $1
		RETURNING id, date::text, amount, category, note, created_at
	`, id).Scan(&expense.ID, &expense.Date, &expense.Amount, &expense.Category, &expense.Note, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

const appointmentColumns = `id, customer_name, customer_phone, service, technician, start_at, status, notes, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (domain.Appointment, error) {
	var appt domain.Appointment
	err := row.Scan(&appt.ID, &appt.CustomerName, &appt.CustomerPhone, &appt.Service, &appt.Technician, &appt.StartAt, &appt.Status, &appt.Notes, &appt.CreatedAt, &appt.UpdatedAt)
	appt.StartAt = appt.StartAt.UTC()
	appt.CreatedAt = appt.CreatedAt.UTC()
	appt.UpdatedAt = appt.UpdatedAt.UTC()
	return appt, err
}

// CreateAppointment relies on the partial unique index over
// (technician, start_at) to reject double bookings.
func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if strings.TrimSpace(appt.CustomerName) == "" || strings.TrimSpace(appt.Service) == "" || appt.StartAt.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if appt.ID == "" {
		appt.ID = xid.New("apt")
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentPending
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	appt.UpdatedAt = appt.CreatedAt
	appt.StartAt = appt.StartAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, appt.ID, appt.CustomerName, appt.CustomerPhone, appt.Service, appt.Technician, appt.StartAt, appt.Status, appt.Notes, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := appt
	return &created, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appt, err := scanAppointment(s.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, from time.Time, to time.Time) ([]domain.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_at >= $1 AND start_at < $2
		ORDER BY start_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Appointment, 0, 64)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string, technician string, at time.Time) (*domain.Appointment, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	appt, err := scanAppointment(pgTx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !domain.CanTransitionAppointment(appt.Status, status) {
		return nil, store.ErrConflict
	}
	if technician != "" {
		appt.Technician = technician
	}
	appt.Status = status
	appt.UpdatedAt = at.UTC()

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE appointments SET status = $2, technician = $3, updated_at = $4 WHERE id = $1
	`, appt.ID, appt.Status, appt.Technician, appt.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, qty, unit_cost, reorder_level, updated_at
		FROM inventory_items
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.SKU, &item.Name, &item.Category, &item.Qty, &item.UnitCost, &item.ReorderLevel, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.SKU) == "" || strings.TrimSpace(item.Name) == "" || item.Qty < 0 || item.ReorderLevel < 0 || item.UnitCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (sku, name, category, qty, unit_cost, reorder_level, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			qty = EXCLUDED.qty,
			unit_cost = EXCLUDED.unit_cost,
			reorder_level = EXCLUDED.reorder_level,
			updated_at = EXCLUDED.updated_at
	`, item.SKU, item.Name, item.Category, item.Qty, item.UnitCost, item.ReorderLevel, item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := item
	return &saved, nil
}

func (s *Store) AdjustInventory(ctx context.Context, sku string, delta int) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET qty = qty + $2, updated_at = now()
		WHERE sku = $1 AND qty + $2 >= 0
		RETURNING sku, name, category, qty, unit_cost, reorder_level, updated_at
	`, sku, delta).Scan(&item.SKU, &item.Name, &item.Category, &item.Qty, &item.UnitCost, &item.ReorderLevel, &item.UpdatedAt)
	if err == nil {
		item.UpdatedAt = item.UpdatedAt.UTC()
		return &item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE sku = $1)`, sku).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrInsufficientStock
}

const examCodeColumns = `id, label, code_hash, lookup_prefix, created_by, created_at, expires_at, used_at, used_by`

func scanExamCode(row interface{ Scan(...any) error }) (domain.ExamCode, error) {
	var code domain.ExamCode
	var usedAt sql.NullTime
	if err := row.Scan(&code.ID, &code.Label, &code.CodeHash, &code.LookupPrefix, &code.CreatedBy, &code.CreatedAt, &code.ExpiresAt, &usedAt, &code.UsedBy); err != nil {
		return code, err
	}
	code.CreatedAt = code.CreatedAt.UTC()
	code.ExpiresAt = code.ExpiresAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		code.UsedAt = &t
	}
	return code, nil
}

func (s *Store) CreateExamCode(ctx context.Context, code domain.ExamCode) (*domain.ExamCode, error) {
	if strings.TrimSpace(code.CodeHash) == "" || code.ExpiresAt.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if code.ID == "" {
		code.ID = xid.New("exam")
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exam_codes (`+examCodeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, code.ID, code.Label, code.CodeHash, code.LookupPrefix, code.CreatedBy, code.CreatedAt, code.ExpiresAt, nullTime(code.UsedAt), code.UsedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := code
	return &created, nil
}

func (s *Store) ListExamCodes(ctx context.Context) ([]domain.ExamCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examCodeColumns+` FROM exam_codes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]domain.ExamCode, 0, 32)
	for rows.Next() {
		code, err := scanExamCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}

// MarkExamCodeUsed claims the code only while it is still unused, so two
// concurrent redemptions cannot both succeed.
func (s *Store) MarkExamCodeUsed(ctx context.Context, id string, usedBy string, at time.Time) (*domain.ExamCode, error) {
	code, err := scanExamCode(s.db.QueryRowContext(ctx, `
		UPDATE exam_codes SET used_at = $2, used_by = $3
		WHERE id = $1 AND used_at IS NULL
		RETURNING `+examCodeColumns, id, at.UTC(), usedBy))
	if err == nil {
		return &code, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM exam_codes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrConflict
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, staff_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, user.Role, user.StaffID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, staff_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.StaffID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullRate(rate *int) any {
	if rate == nil {
		return nil
	}
	return *rate
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
