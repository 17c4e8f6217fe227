package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/payroll"
	"glowsalon/backend/internal/store"
)

// RollupDay rebuilds the daily summaries of one day from its transactions:
// one salon-wide summary under the bare date and one per technician under
// date_<staff id>, replacing whatever was stored for that day. Running it
// twice leaves the same records.
func (s *Service) RollupDay(ctx context.Context, day time.Time) (domain.RollupResponse, error) {
	window := payroll.DayWindow(day)
	date := window.String()
	from, to := window.Bounds()

	transactions, err := s.repo.ListTransactions(ctx, from, to)
	if err != nil {
		return domain.RollupResponse{}, fmt.Errorf("list transactions for %s: %w", date, err)
	}
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return domain.RollupResponse{}, fmt.Errorf("list staff for %s: %w", date, err)
	}

	now := s.now()
	salon := domain.DailyEarningsSummary{
		ID:           date,
		Date:         date,
		TotalRevenue: decimal.Zero,
		TotalCredit:  decimal.Zero,
		TotalCash:    decimal.Zero,
		Total:        decimal.Zero,
		Tip:          decimal.Zero,
		UpdatedAt:    now,
	}

	inDay := payroll.FilterTransactions(transactions, window)
	byTechnician := make(map[string]*domain.DailyEarningsSummary)
	for _, tx := range inDay {
		addToSummary(&salon, tx)

		summary, ok := byTechnician[tx.Technician]
		if !ok {
			summary = &domain.DailyEarningsSummary{
				Date:         date,
				StaffName:    tx.Technician,
				TotalRevenue: decimal.Zero,
				TotalCredit:  decimal.Zero,
				TotalCash:    decimal.Zero,
				Total:        decimal.Zero,
				Tip:          decimal.Zero,
				UpdatedAt:    now,
			}
			summary.ID = date + "_" + tx.Technician
			for _, member := range staff {
				if member.Name == tx.Technician {
					summary.StaffID = member.ID
					summary.ID = date + "_" + member.ID
					break
				}
			}
			byTechnician[tx.Technician] = summary
		}
		addToSummary(summary, tx)
	}

	names := make([]string, 0, len(byTechnician))
	for name := range byTechnician {
		names = append(names, name)
	}
	sort.Strings(names)

	staffSummaries := make([]domain.DailyEarningsSummary, 0, len(names))
	for _, name := range names {
		summary := *byTechnician[name]
		if summary.StaffID == "" {
			s.logger.WithFields(logrus.Fields{"technician": name, "date": date}).
				Warn("rolled up transactions for a technician with no staff record")
		}
		staffSummaries = append(staffSummaries, summary)
	}

	// Rows from an earlier rollup may be keyed by a technician name that has
	// since gained a staff record, so the whole day is rewritten.
	if err := s.repo.ReplaceDailySummaries(ctx, date, append([]domain.DailyEarningsSummary{salon}, staffSummaries...)); err != nil {
		return domain.RollupResponse{}, fmt.Errorf("replace summaries %s: %w", date, err)
	}

	s.invalidateDate(ctx, date)
	s.publish(ctx, events.Event{Collection: events.CollectionSummaries, Action: "rollup", Date: date})
	s.logger.WithFields(logrus.Fields{"date": date, "transactions": len(inDay), "technicians": len(staffSummaries)}).Info("daily rollup written")

	return domain.RollupResponse{
		Date:           date,
		Transactions:   len(inDay),
		SalonSummary:   salon,
		StaffSummaries: staffSummaries,
	}, nil
}

// TriggerRollup runs RollupDay for an admin-supplied YYYY-MM-DD date, today
// when empty.
func (s *Service) TriggerRollup(ctx context.Context, date string) (domain.RollupResponse, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.RollupResponse{}, err
	}
	window, err := s.parseWindowOrToday(date)
	if err != nil {
		return domain.RollupResponse{}, err
	}
	if window.Kind != payroll.WindowDay {
		return domain.RollupResponse{}, fmt.Errorf("%w: rollup takes a single day", store.ErrInvalidInput)
	}

	result, err := s.RollupDay(ctx, window.Start)
	if err != nil {
		return domain.RollupResponse{}, err
	}
	s.logAudit(ctx, "rollup", "daily_summary", result.Date, fmt.Sprintf("transactions=%d,technicians=%d", result.Transactions, len(result.StaffSummaries)))
	return result, nil
}

func addToSummary(summary *domain.DailyEarningsSummary, tx domain.Transaction) {
	summary.Total = summary.Total.Add(tx.Total)
	summary.Tip = summary.Tip.Add(tx.Tip)
	summary.TotalRevenue = summary.TotalRevenue.Add(tx.Total)
	switch tx.PaymentMethod {
	case domain.PaymentCredit:
		summary.TotalCredit = summary.TotalCredit.Add(tx.Total)
	default:
		summary.TotalCash = summary.TotalCash.Add(tx.Total)
	}
}
