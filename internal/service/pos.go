package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/store"
)

const upcomingAppointmentDays = 30

// Checkout records a completed ticket. Retail lines take stock in the same
// store call, so a short SKU fails the whole checkout.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	if err := requireRole(ctx, domain.RoleAdmin, domain.RoleStaff); err != nil {
		return domain.Transaction{}, err
	}
	if req.BasePrice.IsNegative() || req.Tip.IsNegative() {
		return domain.Transaction{}, fmt.Errorf("%w: base price and tip must not be negative", store.ErrInvalidInput)
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = store.DateKey(s.now())
	} else if !store.ValidDate(date) {
		return domain.Transaction{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	retail := make([]domain.RetailLine, 0, len(req.RetailItems))
	for _, line := range req.RetailItems {
		if line.Qty < 1 {
			return domain.Transaction{}, fmt.Errorf("%w: retail quantity must be positive", store.ErrInvalidInput)
		}
		retail = append(retail, domain.RetailLine{SKU: strings.ToUpper(strings.TrimSpace(line.SKU)), Qty: line.Qty})
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Technician:    strings.TrimSpace(req.Technician),
		Service:       strings.TrimSpace(req.Service),
		BasePrice:     req.BasePrice,
		Tip:           req.Tip,
		Total:         req.BasePrice.Add(req.Tip),
		PaymentMethod: defaultString(req.PaymentMethod, domain.PaymentCash),
		Date:          date,
		RetailItems:   retail,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if id := strings.TrimSpace(req.AppointmentID); id != "" {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, id, domain.AppointmentCompleted, created.Technician, s.now()); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"appointment_id": id, "transaction_id": created.ID}).
				Warn("checkout recorded but appointment not completed")
		} else {
			s.publish(ctx, events.Event{Collection: events.CollectionAppointments, Action: "complete", EntityID: id})
		}
	}

	s.logAudit(ctx, "checkout", "transaction", created.ID, fmt.Sprintf("technician=%s,total=%s,method=%s,retail_lines=%d",
		created.Technician, created.Total.StringFixed(2), created.PaymentMethod, len(created.RetailItems)))
	s.publish(ctx, events.Event{Collection: events.CollectionTransactions, Action: "create", Date: created.Date, EntityID: created.ID})
	if len(created.RetailItems) > 0 {
		s.publish(ctx, events.Event{Collection: events.CollectionInventory, Action: "sale", Date: created.Date, EntityID: created.ID})
	}
	return *created, nil
}

func (s *Service) ListTransactions(ctx context.Context, rawWindow string) ([]domain.Transaction, error) {
	window, err := s.parseWindowOrToday(rawWindow)
	if err != nil {
		return nil, err
	}
	from, to := window.Bounds()
	return s.repo.ListTransactions(ctx, from, to)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.ExpenseRecord, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ExpenseRecord{}, err
	}
	if !store.ValidDate(req.Date) {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	// Unparsable amounts are tolerated when reading old records, not when
	// recording new ones.
	if !req.Amount.Valid() || req.Amount.Decimal().IsNegative() {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: amount must be a non-negative number", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateExpense(ctx, domain.ExpenseRecord{
		Date:     req.Date,
		Amount:   domain.NewFlexAmount(req.Amount.Decimal()),
		Category: strings.ToLower(strings.TrimSpace(req.Category)),
		Note:     strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.ExpenseRecord{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("date=%s,amount=%s,category=%s", created.Date, created.Amount.Decimal().StringFixed(2), created.Category))
	s.invalidateDate(ctx, created.Date)
	s.publish(ctx, events.Event{Collection: events.CollectionExpenses, Action: "create", Date: created.Date, EntityID: created.ID})
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, rawWindow string) ([]domain.ExpenseRecord, error) {
	window, err := s.parseWindowOrToday(rawWindow)
	if err != nil {
		return nil, err
	}
	from, to := window.Bounds()
	return s.repo.ListExpenses(ctx, from, to)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}

	s.logAudit(ctx, "expense_delete", "expense", deleted.ID, fmt.Sprintf("date=%s,amount=%s", deleted.Date, deleted.Amount.Raw))
	s.invalidateDate(ctx, deleted.Date)
	s.publish(ctx, events.Event{Collection: events.CollectionExpenses, Action: "delete", Date: deleted.Date, EntityID: deleted.ID})
	return nil
}

// Book creates a pending appointment from the public booking form. It needs
// no actor.
func (s *Service) Book(ctx context.Context, req domain.BookingRequest) (domain.Appointment, error) {
	startAt := req.StartAt.UTC()
	if !startAt.After(s.now()) {
		return domain.Appointment{}, fmt.Errorf("%w: start time must be in the future", store.ErrInvalidInput)
	}

	serviceName, err := s.activeServiceName(ctx, req.Service)
	if err != nil {
		return domain.Appointment{}, err
	}

	technician := strings.TrimSpace(req.Technician)
	if technician != "" {
		if err := s.requireActiveTechnician(ctx, technician); err != nil {
			return domain.Appointment{}, err
		}
	}

	created, err := s.repo.CreateAppointment(ctx, domain.Appointment{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Service:       serviceName,
		Technician:    technician,
		StartAt:       startAt,
		Status:        domain.AppointmentPending,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.logAudit(ctx, "booking_create", "appointment", created.ID, fmt.Sprintf("service=%s,technician=%s,start_at=%s", created.Service, created.Technician, created.StartAt.Format(time.RFC3339)))
	s.publish(ctx, events.Event{Collection: events.CollectionAppointments, Action: "create", Date: store.DateKey(created.StartAt), EntityID: created.ID})
	return *created, nil
}

func (s *Service) ListAppointments(ctx context.Context, rawWindow string) ([]domain.Appointment, error) {
	window, err := s.parseWindowOrToday(rawWindow)
	if err != nil {
		return nil, err
	}
	from, to := window.Bounds()
	return s.repo.ListAppointments(ctx, from, to)
}

// MyAppointments lists the calling staff member's non-cancelled bookings
// from today onwards.
func (s *Service) MyAppointments(ctx context.Context) ([]domain.Appointment, error) {
	member, err := s.actorStaff(ctx)
	if err != nil {
		return nil, err
	}

	from := payroll.DayWindow(s.now()).Start
	all, err := s.repo.ListAppointments(ctx, from, from.AddDate(0, 0, upcomingAppointmentDays))
	if err != nil {
		return nil, err
	}

	mine := make([]domain.Appointment, 0, len(all))
	for _, appt := range all {
		if appt.Technician == member.Name && appt.BlocksSlot() {
			mine = append(mine, appt)
		}
	}
	return mine, nil
}

func (s *Service) UpdateAppointmentStatus(ctx context.Context, id string, req domain.AppointmentStatusRequest) (domain.Appointment, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Appointment{}, err
	}

	technician := strings.TrimSpace(req.Technician)
	if technician != "" {
		if err := s.requireActiveTechnician(ctx, technician); err != nil {
			return domain.Appointment{}, err
		}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, strings.TrimSpace(id), req.Status, technician, s.now())
	if err != nil {
		return domain.Appointment{}, err
	}

	s.logAudit(ctx, "appointment_"+updated.Status, "appointment", updated.ID, fmt.Sprintf("technician=%s", updated.Technician))
	s.publish(ctx, events.Event{Collection: events.CollectionAppointments, Action: updated.Status, Date: store.DateKey(updated.StartAt), EntityID: updated.ID})
	return *updated, nil
}

func (s *Service) activeServiceName(ctx context.Context, name string) (string, error) {
	services, err := s.repo.ListServices(ctx, false)
	if err != nil {
		return "", err
	}
	for _, svc := range services {
		if strings.EqualFold(svc.Name, strings.TrimSpace(name)) {
			return svc.Name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown service %q", store.ErrInvalidInput, name)
}

func (s *Service) requireActiveTechnician(ctx context.Context, name string) error {
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return err
	}
	for _, member := range staff {
		if member.Name == name && member.Active && member.Role != domain.RoleAdmin {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown technician %q", store.ErrInvalidInput, name)
}

// actorStaff resolves the staff record linked to the calling login.
func (s *Service) actorStaff(ctx context.Context) (domain.StaffMember, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.StaffID == "" {
		return domain.StaffMember{}, ErrForbidden
	}
	member, err := s.repo.GetStaff(ctx, actor.StaffID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.StaffMember{}, ErrForbidden
	}
	if err != nil {
		return domain.StaffMember{}, err
	}
	return *member, nil
}

func (s *Service) parseWindowOrToday(raw string) (payroll.Window, error) {
	if strings.TrimSpace(raw) == "" {
		return payroll.DayWindow(s.now()), nil
	}
	window, err := payroll.ParseWindow(raw)
	if err != nil {
		return payroll.Window{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return window, nil
}
