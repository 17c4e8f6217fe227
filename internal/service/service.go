package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"glowsalon/backend/internal/cache"
	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/logging"
	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/store"
	"glowsalon/backend/internal/xid"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrExamCodeInvalid = errors.New("exam code invalid or expired")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache       cache.ReportCache
	Bus         events.Bus
	Logger      logrus.FieldLogger
	CacheTTL    time.Duration
	ExamCodeTTL time.Duration
}

type Service struct {
	repo        store.Repository
	cache       cache.ReportCache
	bus         events.Bus
	logger      logrus.FieldLogger
	cacheTTL    time.Duration
	examCodeTTL time.Duration
	now         func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewLocalBus()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.ExamCodeTTL <= 0 {
		opts.ExamCodeTTL = 72 * time.Hour
	}

	return &Service{
		repo:        repo,
		cache:       opts.Cache,
		bus:         opts.Bus,
		logger:      opts.Logger.WithField("module", "service"),
		cacheTTL:    opts.CacheTTL,
		examCodeTTL: opts.ExamCodeTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Bus exposes the change-event bus so transports can subscribe.
func (s *Service) Bus() events.Bus {
	return s.bus
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	return s.repo.ListStaff(ctx)
}

// CreateStaff adds a staff member and, when credentials are given, a login
// linked to the new record.
func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffMember, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.StaffMember{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.StaffMember{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if err := validateRate(req.CommissionRate); err != nil {
		return domain.StaffMember{}, err
	}
	role := defaultString(req.Role, domain.RoleStaff)

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if (username == "") != (req.Password == "") {
		return domain.StaffMember{}, fmt.Errorf("%w: username and password go together", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateStaff(ctx, domain.StaffMember{
		Name:           req.Name,
		CommissionRate: req.CommissionRate,
		Role:           role,
		Phone:          strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.StaffMember{}, err
	}

	if username != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.StaffMember{}, err
		}
		if err := s.repo.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  string(hash),
			Role:      role,
			StaffID:   created.ID,
			Active:    true,
			CreatedAt: s.now(),
		}); err != nil {
			return domain.StaffMember{}, fmt.Errorf("create login for %s: %w", created.ID, err)
		}
	}

	s.logAudit(ctx, "staff_create", "staff", created.ID, fmt.Sprintf("name=%s,role=%s,rate=%s", created.Name, created.Role, rateString(created.CommissionRate)))
	s.staffChanged(ctx, created.ID)
	return *created, nil
}

func (s *Service) UpdateStaff(ctx context.Context, id string, req domain.StaffUpdateRequest) (domain.StaffMember, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.StaffMember{}, err
	}

	existing, err := s.repo.GetStaff(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.StaffMember{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.StaffMember{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.CommissionRate != nil {
		if err := validateRate(req.CommissionRate); err != nil {
			return domain.StaffMember{}, err
		}
		rate := *req.CommissionRate
		updated.CommissionRate = &rate
	}
	if req.Role != nil {
		updated.Role = *req.Role
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateStaff(ctx, updated)
	if err != nil {
		return domain.StaffMember{}, err
	}

	detail := fmt.Sprintf("rate:%s->%s", rateString(existing.CommissionRate), rateString(saved.CommissionRate))
	if existing.Name != saved.Name {
		// Transactions keep the old display name, so past tickets stop
		// matching this member.
		detail += fmt.Sprintf(",name:%s->%s", existing.Name, saved.Name)
		s.logger.WithFields(logrus.Fields{"staff_id": saved.ID, "old_name": existing.Name, "new_name": saved.Name}).
			Warn("staff renamed; transactions recorded under the old name no longer join")
	}
	s.logAudit(ctx, "staff_update", "staff", saved.ID, detail)
	s.staffChanged(ctx, saved.ID)
	return *saved, nil
}

func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]domain.SalonService, error) {
	return s.repo.ListServices(ctx, includeInactive)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.SalonService, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.SalonService{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if req.Name == "" || req.Category == "" {
		return domain.SalonService{}, fmt.Errorf("%w: name and category are required", store.ErrInvalidInput)
	}
	if req.Price.IsNegative() {
		return domain.SalonService{}, fmt.Errorf("%w: price must not be negative", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateService(ctx, domain.SalonService{
		Name:            req.Name,
		Category:        req.Category,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return domain.SalonService{}, err
	}
	s.logAudit(ctx, "service_create", "service", created.ID, fmt.Sprintf("name=%s,price=%s", created.Name, created.Price.StringFixed(2)))
	return *created, nil
}

func (s *Service) SetServiceActive(ctx context.Context, id string, active bool) (domain.SalonService, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.SalonService{}, err
	}
	updated, err := s.repo.UpdateServiceActive(ctx, strings.TrimSpace(id), active)
	if err != nil {
		return domain.SalonService{}, err
	}
	s.logAudit(ctx, "service_active", "service", updated.ID, fmt.Sprintf("active=%t", active))
	return *updated, nil
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListInventory(ctx)
}

func (s *Service) UpsertInventoryItem(ctx context.Context, req domain.InventoryUpsertRequest) (domain.InventoryItem, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.InventoryItem{}, err
	}
	if req.UnitCost.IsNegative() || req.Qty < 0 || req.ReorderLevel < 0 {
		return domain.InventoryItem{}, fmt.Errorf("%w: quantities and cost must not be negative", store.ErrInvalidInput)
	}

	saved, err := s.repo.UpsertInventoryItem(ctx, domain.InventoryItem{
		SKU:          strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:         strings.TrimSpace(req.Name),
		Category:     strings.ToLower(strings.TrimSpace(req.Category)),
		Qty:          req.Qty,
		UnitCost:     req.UnitCost,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logAudit(ctx, "inventory_upsert", "inventory", saved.SKU, fmt.Sprintf("qty=%d", saved.Qty))
	s.publish(ctx, events.Event{Collection: events.CollectionInventory, Action: "upsert", EntityID: saved.SKU})
	return *saved, nil
}

func (s *Service) AdjustInventory(ctx context.Context, sku string, req domain.InventoryAdjustRequest) (domain.InventoryItem, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.InventoryItem{}, err
	}
	if req.Delta == 0 {
		return domain.InventoryItem{}, fmt.Errorf("%w: delta must not be zero", store.ErrInvalidInput)
	}

	adjusted, err := s.repo.AdjustInventory(ctx, strings.ToUpper(strings.TrimSpace(sku)), req.Delta)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.logAudit(ctx, "inventory_adjust", "inventory", adjusted.SKU, fmt.Sprintf("delta=%d,reason=%s,qty=%d", req.Delta, req.Reason, adjusted.Qty))
	if adjusted.Qty <= adjusted.ReorderLevel {
		s.logger.WithFields(logrus.Fields{"sku": adjusted.SKU, "qty": adjusted.Qty}).Info("inventory at or below reorder level")
	}
	s.publish(ctx, events.Event{Collection: events.CollectionInventory, Action: "adjust", EntityID: adjusted.SKU})
	return *adjusted, nil
}

// ListAuditLogs returns entries of one day, newest first. An empty date
// means the last 24 hours.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	if strings.TrimSpace(date) == "" {
		now := s.now()
		return s.repo.ListAuditLogs(ctx, now.Add(-24*time.Hour), now.Add(time.Second), limit)
	}
	from, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		logging.LogError(s.logger, "service", "logAudit", "write audit log", logrus.Fields{"action": action, "entity": entityType + "/" + entityID}, err)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.At.IsZero() {
		event.At = s.now()
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		logging.LogError(s.logger, "service", "publish", "publish change event", event, err)
	}
}

// invalidateDate drops every cached report a change on date can affect.
func (s *Service) invalidateDate(ctx context.Context, date string) {
	window, err := payroll.ParseWindow(date)
	if err != nil || window.Kind != payroll.WindowDay {
		return
	}
	month := payroll.MonthWindow(window.Start).String()
	keys := []string{cache.PayrollKey(date)}
	for _, model := range []string{payroll.ModelFlatRate, payroll.ModelPerStaff} {
		keys = append(keys, cache.ProfitKey(date, model), cache.ProfitKey(month, model))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		logging.LogError(s.logger, "service", "invalidateDate", "invalidate report cache", keys, err)
	}
}

func (s *Service) staffChanged(ctx context.Context, staffID string) {
	if err := s.cache.Flush(ctx); err != nil {
		logging.LogError(s.logger, "service", "staffChanged", "flush report cache", staffID, err)
	}
	s.publish(ctx, events.Event{Collection: events.CollectionStaff, Action: "update", EntityID: staffID})
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

func validateRate(rate *int) error {
	if rate != nil && (*rate < 0 || *rate > 100) {
		return fmt.Errorf("%w: commission rate must be between 0 and 100", store.ErrInvalidInput)
	}
	return nil
}

func rateString(rate *int) string {
	if rate == nil {
		return "unset"
	}
	return fmt.Sprintf("%d", *rate)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
