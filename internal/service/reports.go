package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"glowsalon/backend/internal/cache"
	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/logging"
	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/store"
)

type DailyPayrollReport struct {
	Day             string                    `json:"day"`
	Rows            []payroll.StaffDayPayroll `json:"rows"`
	TotalRevenue    decimal.Decimal           `json:"total_revenue"`
	TotalCommission decimal.Decimal           `json:"total_commission"`
	TotalTips       decimal.Decimal           `json:"total_tips"`
	TotalTakeHome   decimal.Decimal           `json:"total_take_home"`
}

// StaffPayout computes one technician's payout over a day or month of raw
// transactions. Staff logins may only ask about themselves.
func (s *Service) StaffPayout(ctx context.Context, technician string, rawWindow string) (payroll.PayoutResult, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return payroll.PayoutResult{}, fmt.Errorf("%w: technician is required", store.ErrInvalidInput)
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return payroll.PayoutResult{}, ErrForbidden
	}
	if actor.Role != domain.RoleAdmin {
		member, err := s.actorStaff(ctx)
		if err != nil {
			return payroll.PayoutResult{}, err
		}
		if member.Name != technician {
			return payroll.PayoutResult{}, ErrForbidden
		}
	}

	window, err := s.parseWindowOrToday(rawWindow)
	if err != nil {
		return payroll.PayoutResult{}, err
	}
	from, to := window.Bounds()

	var (
		transactions []domain.Transaction
		staff        []domain.StaffMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = s.repo.ListTransactions(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		staff, err = s.repo.ListStaff(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return payroll.PayoutResult{}, err
	}

	s.warnDuplicateNames(staff)
	return payroll.StaffPayout(payroll.FilterTransactions(transactions, window), staff, technician), nil
}

// MyPayout is StaffPayout for the calling staff member.
func (s *Service) MyPayout(ctx context.Context, rawWindow string) (payroll.PayoutResult, error) {
	member, err := s.actorStaff(ctx)
	if err != nil {
		return payroll.PayoutResult{}, err
	}
	return s.StaffPayout(ctx, member.Name, rawWindow)
}

// DailyPayroll returns display-rounded payroll rows for one day. Totals are
// summed before rounding.
func (s *Service) DailyPayroll(ctx context.Context, rawDay string) (DailyPayrollReport, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return DailyPayrollReport{}, err
	}
	day, err := s.parseWindowOrToday(rawDay)
	if err != nil {
		return DailyPayrollReport{}, err
	}
	if day.Kind != payroll.WindowDay {
		return DailyPayrollReport{}, fmt.Errorf("%w: daily payroll takes a single day", store.ErrInvalidInput)
	}

	key := cache.PayrollKey(day.String())
	var cached DailyPayrollReport
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}
	version, cacheable := s.cacheVersion(ctx)

	summaries, staff, err := s.loadSummariesAndStaff(ctx, day)
	if err != nil {
		return DailyPayrollReport{}, err
	}
	s.warnDuplicateNames(staff)

	rows := payroll.DailyPayroll(staffLinked(summaries, true), staff, day)
	report := DailyPayrollReport{
		Day:             day.String(),
		Rows:            make([]payroll.StaffDayPayroll, 0, len(rows)),
		TotalRevenue:    decimal.Zero,
		TotalCommission: decimal.Zero,
		TotalTips:       decimal.Zero,
		TotalTakeHome:   decimal.Zero,
	}
	for _, row := range rows {
		report.TotalRevenue = report.TotalRevenue.Add(row.TotalRevenue)
		report.TotalCommission = report.TotalCommission.Add(row.CommissionEarned)
		report.TotalTips = report.TotalTips.Add(row.TotalTips)
		report.TotalTakeHome = report.TotalTakeHome.Add(row.TakeHomePay)
		report.Rows = append(report.Rows, row.Rounded())
	}
	report.TotalRevenue = report.TotalRevenue.Round(2)
	report.TotalCommission = report.TotalCommission.Round(2)
	report.TotalTips = report.TotalTips.Round(2)
	report.TotalTakeHome = report.TotalTakeHome.Round(2)

	if cacheable {
		s.cacheSet(ctx, version, key, report)
	}
	return report, nil
}

// MonthlyProfit builds the profit report for a month (or a single day) under
// the named payout model. The flat model reads the salon-wide summaries and
// the per-staff model reads the staff-linked ones, so revenue is never
// counted twice.
func (s *Service) MonthlyProfit(ctx context.Context, rawWindow string, modelName string) (payroll.ProfitReport, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return payroll.ProfitReport{}, err
	}
	window, err := s.parseMonthOrCurrent(rawWindow)
	if err != nil {
		return payroll.ProfitReport{}, err
	}
	modelName = strings.ToLower(strings.TrimSpace(modelName))
	if modelName == "" {
		modelName = payroll.ModelFlatRate
	}
	if _, err := payroll.ModelFor(modelName, nil); err != nil {
		return payroll.ProfitReport{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	key := cache.ProfitKey(window.String(), modelName)
	var cached payroll.ProfitReport
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}
	version, cacheable := s.cacheVersion(ctx)

	from, to := window.Bounds()
	var (
		summaries []domain.DailyEarningsSummary
		expenses  []domain.ExpenseRecord
		staff     []domain.StaffMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaries, err = s.repo.ListDailySummaries(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		staff, err = s.repo.ListStaff(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return payroll.ProfitReport{}, err
	}

	model, err := payroll.ModelFor(modelName, staff)
	if err != nil {
		return payroll.ProfitReport{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if modelName == payroll.ModelPerStaff {
		s.warnDuplicateNames(staff)
	}

	report := payroll.ProfitForWindow(staffLinked(summaries, modelName == payroll.ModelPerStaff), expenses, window, model)
	if cacheable {
		s.cacheSet(ctx, version, key, report)
	}
	return report, nil
}

func (s *Service) loadSummariesAndStaff(ctx context.Context, window payroll.Window) ([]domain.DailyEarningsSummary, []domain.StaffMember, error) {
	from, to := window.Bounds()
	var (
		summaries []domain.DailyEarningsSummary
		staff     []domain.StaffMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaries, err = s.repo.ListDailySummaries(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		staff, err = s.repo.ListStaff(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return summaries, staff, nil
}

func (s *Service) parseMonthOrCurrent(raw string) (payroll.Window, error) {
	if strings.TrimSpace(raw) == "" {
		return payroll.MonthWindow(s.now()), nil
	}
	window, err := payroll.ParseWindow(raw)
	if err != nil {
		return payroll.Window{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return window, nil
}

func (s *Service) warnDuplicateNames(staff []domain.StaffMember) {
	if dupes := payroll.DuplicateStaffNames(staff); len(dupes) > 0 {
		s.logger.WithField("names", dupes).Warn("staff display names are not unique; name joins may attribute work to the wrong member")
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		logging.LogError(s.logger, "service", "cacheGet", "read report cache", logrus.Fields{"key": key}, err)
		return false
	}
	return hit
}

// cacheVersion must be read before the report's inputs are loaded.
func (s *Service) cacheVersion(ctx context.Context) (int64, bool) {
	version, err := s.cache.Version(ctx)
	if err != nil {
		logging.LogError(s.logger, "service", "cacheVersion", "read report cache version", nil, err)
		return 0, false
	}
	return version, true
}

func (s *Service) cacheSet(ctx context.Context, version int64, key string, value any) {
	stored, err := s.cache.SetIfVersion(ctx, version, key, value, s.cacheTTL)
	if err != nil {
		logging.LogError(s.logger, "service", "cacheSet", "write report cache", logrus.Fields{"key": key}, err)
		return
	}
	if !stored {
		s.logger.WithField("key", key).Debug("report inputs changed while computing; not cached")
	}
}

func staffLinked(summaries []domain.DailyEarningsSummary, linked bool) []domain.DailyEarningsSummary {
	out := make([]domain.DailyEarningsSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.IsStaffLinked() == linked {
			out = append(out, summary)
		}
	}
	return out
}
