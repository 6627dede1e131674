package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/types"
)

type StatisticType string

const (
	// Daily counts and revenue (Stars)
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyRevenue      StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue      StatisticType = "total_revenue"

	// Subscription related
	StatisticTypeActiveSubscriptions StatisticType = "active_subscriptions"
	StatisticTypeDailyNewSubscribers StatisticType = "daily_new_subscribers"
	StatisticTypeStatusBreakdown     StatisticType = "status_breakdown"
)

// Filter fields supported by certain statistic types.
type StatisticFilterType string

const (
	StatisticFilterTypeIsRecurring StatisticFilterType = "is_recurring"
	StatisticFilterTypeKind        StatisticFilterType = "kind"
)

var filterTypes = []StatisticFilterType{
	StatisticFilterTypeIsRecurring,
	StatisticFilterTypeKind,
}

var validFilters = map[StatisticFilterType][]StatisticType{
	StatisticFilterTypeIsRecurring: {StatisticTypeDailyPaymentCount, StatisticTypeDailyRevenue},
	StatisticFilterTypeKind:        {StatisticTypeDailyPaymentCount, StatisticTypeDailyRevenue},
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (f *StatisticRequest) GetFilters(statisticType StatisticType) *StatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result StatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[StatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return &result
}

func (f *StatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type StatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service provides read-only aggregates for the admin surface.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// Overview is the at-a-glance dashboard block.
type Overview struct {
	TotalUsers          int64 `json:"total_users"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	GraceSubscriptions  int64 `json:"grace_subscriptions"`
	RecurringShare      int64 `json:"recurring_share"`
	Payments24h         int64 `json:"payments_24h"`
	Revenue24h          int64 `json:"revenue_24h"`
	Revenue30d          int64 `json:"revenue_30d"`
}

func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	now := time.Now().UTC()
	o := &Overview{}

	counts := []struct {
		dst   *int64
		query func(db *gorm.DB) *gorm.DB
	}{
		{&o.TotalUsers, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.User{})
		}},
		{&o.ActiveSubscriptions, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Subscription{}).
				Where("status = ? AND expires_at > ?", types.SubscriptionStatusActive, now)
		}},
		{&o.GraceSubscriptions, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Subscription{}).
				Where("status = ?", types.SubscriptionStatusGrace)
		}},
		{&o.RecurringShare, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Subscription{}).
				Where("status = ? AND is_recurring = true", types.SubscriptionStatusActive)
		}},
		{&o.Payments24h, func(db *gorm.DB) *gorm.DB {
			return db.Model(&models.Payment{}).
				Where("created_at > ?", now.Add(-24*time.Hour))
		}},
	}
	for _, c := range counts {
		if err := c.query(s.db.WithContext(ctx)).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("overview count: %w", err)
		}
	}

	sums := []struct {
		dst   *int64
		since time.Time
	}{
		{&o.Revenue24h, now.Add(-24 * time.Hour)},
		{&o.Revenue30d, now.Add(-30 * 24 * time.Hour)},
	}
	for _, c := range sums {
		err := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("created_at > ?", c.since).
			Select("COALESCE(SUM(amount), 0)").
			Scan(c.dst).Error
		if err != nil {
			return nil, fmt.Errorf("overview revenue: %w", err)
		}
	}
	return o, nil
}

func (s *Service) getDailyPaymentCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyPaymentCount)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, kind AS label, sum(amount) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyRevenue)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("kind").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRevenue(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH min_max_dates AS (
    SELECT MIN(DATE(created_at)) as min_date, MAX(DATE(created_at)) as max_date
    FROM payments
),
distinct_dates AS (
    SELECT generate_series(min_date, max_date, '1 day'::interval) as date FROM min_max_dates
),
revenue_date AS (
    SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COALESCE(SUM(p.amount), 0) as value
    FROM distinct_dates d
    LEFT JOIN payments p ON TO_CHAR(p.created_at, 'YYYY-MM-DD') = TO_CHAR(d.date, 'YYYY-MM-DD')
    GROUP BY d.date
)
SELECT d.date as date, SUM(s.value) as value
FROM revenue_date d
LEFT JOIN revenue_date s ON s.date <= d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveSubscriptions(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeActiveSubscriptions)}}).
		Where("status = ?", types.SubscriptionStatusActive).
		Where("expires_at >= ?", time.Now().UTC())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscribers(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH distinct_dates AS (
    SELECT DISTINCT DATE(created_at) as date FROM subscriptions ORDER BY date
),
user_id_date AS (
    SELECT user_id, DATE(created_at) as date FROM subscriptions
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COUNT(DISTINCT s.user_id) as value
FROM distinct_dates d
JOIN user_id_date s ON s.date = d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatusBreakdown(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("status AS label, count(*) as value").
		Group("status").
		Order("label").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, request)
	case StatisticTypeActiveSubscriptions:
		return s.getActiveSubscriptions(ctx, request)
	case StatisticTypeDailyNewSubscribers:
		return s.getDailyNewSubscribers(ctx, request)
	case StatisticTypeStatusBreakdown:
		return s.getStatusBreakdown(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

func (s *Service) GetStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			// check filter applicability
			for _, filter := range request.Filters {
				ft := StatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
