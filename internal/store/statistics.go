package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/merchforge/apiserver/types"
)

// StatisticsRepository runs the aggregate queries behind the admin dashboard.
type StatisticsRepository struct {
	db *sql.DB
}

func NewStatisticsRepository(db *sql.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Totals returns the all-time order counters and revenue.
func (r *StatisticsRepository) Totals(ctx context.Context) (types.Statistics, error) {
	const query = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COALESCE(SUM(total_price), 0)
		FROM orders`
	var stats types.Statistics
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalOrders,
		&stats.PendingOrders,
		&stats.ProcessingOrders,
		&stats.DeliveredOrders,
		&stats.TotalRevenue,
	)
	if err != nil {
		return types.Statistics{}, err
	}
	return stats, nil
}

// Daily groups orders created at or after since by UTC calendar day, oldest first.
func (r *StatisticsRepository) Daily(ctx context.Context, since time.Time) ([]types.DailyOrder, error) {
	const query = `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*),
			COALESCE(SUM(total_price), 0)
		FROM orders
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := []types.DailyOrder{}
	for rows.Next() {
		var d types.DailyOrder
		if err := rows.Scan(&d.Date, &d.Count, &d.Revenue); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}
