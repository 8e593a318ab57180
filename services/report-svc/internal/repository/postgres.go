// services/report-svc/internal/repository/postgres.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"workshop/pkg/database"
	"workshop/pkg/logger"
)

// PostgresRepository реализация источника отчётов на PostgreSQL
type PostgresRepository struct {
	db           database.DB
	queryTimeout time.Duration
	backoff      func() retry.Backoff
}

// Option настройка репозитория
type Option func(*PostgresRepository)

// WithQueryTimeout ограничивает время одного отчётного запроса
func WithQueryTimeout(d time.Duration) Option {
	return func(r *PostgresRepository) {
		r.queryTimeout = d
	}
}

// WithBackoff задаёт политику повторов при обрыве соединения.
// Backoff хранит состояние, поэтому передаётся фабрика.
func WithBackoff(newBackoff func() retry.Backoff) Option {
	return func(r *PostgresRepository) {
		r.backoff = newBackoff
	}
}

// NewPostgresRepository создаёт новый репозиторий
func NewPostgresRepository(db database.DB, opts ...Option) *PostgresRepository {
	r := &PostgresRepository{
		db: db,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(0, retry.NewConstant(time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const inventoryStockQuery = `
	SELECT sku, name, category, quantity, reorder_level, unit_price::float8
	FROM parts
	WHERE created_at <= $1
	ORDER BY category, name`

// InventoryStock возвращает складские остатки
func (r *PostgresRepository) InventoryStock(ctx context.Context, asOf time.Time) ([]StockItem, error) {
	return collect(ctx, r, "inventory stock", inventoryStockQuery, scanStockItem, asOf)
}

const lowStockQuery = `
	SELECT sku, name, category, quantity, reorder_level, unit_price::float8
	FROM parts
	WHERE quantity <= GREATEST(reorder_level, $1)
	ORDER BY GREATEST(reorder_level, $1) - quantity DESC, name`

// LowStock возвращает позиции, требующие дозаказа
func (r *PostgresRepository) LowStock(ctx context.Context, threshold int) ([]StockItem, error) {
	return collect(ctx, r, "low stock", lowStockQuery, scanStockItem, threshold)
}

const salesQuery = `
	SELECT
		i.number, i.issued_at, c.full_name,
		COALESCE(SUM(l.quantity), 0)::bigint,
		i.parts_amount::float8, i.labor_amount::float8,
		i.tax_amount::float8, i.total_amount::float8
	FROM invoices i
	JOIN customers c ON c.id = i.customer_id
	LEFT JOIN invoice_lines l ON l.invoice_id = i.id
	WHERE i.issued_at >= $1 AND i.issued_at <= $2
	GROUP BY i.id, c.full_name
	ORDER BY i.issued_at, i.number`

// Sales возвращает счета периода
func (r *PostgresRepository) Sales(ctx context.Context, start, end time.Time) ([]SaleRecord, error) {
	return collect(ctx, r, "sales", salesQuery, func(row pgx.CollectableRow) (SaleRecord, error) {
		var s SaleRecord
		err := row.Scan(
			&s.InvoiceNumber, &s.IssuedAt, &s.Customer, &s.Items,
			&s.PartsAmount, &s.LaborAmount, &s.TaxAmount, &s.TotalAmount,
		)
		return s, err
	}, start, end)
}

const workOrdersQuery = `
	SELECT
		w.id, w.opened_at, w.closed_at, c.full_name,
		COALESCE(m.full_name, ''), w.status,
		w.labor_hours::float8, (w.labor_total + w.parts_total)::float8
	FROM work_orders w
	JOIN customers c ON c.id = w.customer_id
	LEFT JOIN mechanics m ON m.id = w.mechanic_id
	WHERE w.opened_at >= $1 AND w.opened_at <= $2
	ORDER BY w.opened_at, w.id`

// WorkOrders возвращает заказ-наряды периода
func (r *PostgresRepository) WorkOrders(ctx context.Context, start, end time.Time) ([]WorkOrderRecord, error) {
	return collect(ctx, r, "work orders", workOrdersQuery, func(row pgx.CollectableRow) (WorkOrderRecord, error) {
		var w WorkOrderRecord
		err := row.Scan(
			&w.ID, &w.OpenedAt, &w.ClosedAt, &w.Customer,
			&w.Mechanic, &w.Status, &w.LaborHours, &w.Total,
		)
		return w, err
	}, start, end)
}

const mechanicPerformanceQuery = `
	SELECT
		m.full_name,
		COUNT(w.id)::bigint,
		COALESCE(SUM(w.labor_hours), 0)::float8,
		COALESCE(SUM(w.labor_total + w.parts_total), 0)::float8
	FROM mechanics m
	LEFT JOIN work_orders w
		ON w.mechanic_id = m.id
		AND w.status = 'COMPLETED'
		AND w.closed_at >= $1 AND w.closed_at <= $2
	WHERE m.active
	GROUP BY m.id, m.full_name
	ORDER BY 4 DESC, m.full_name`

// MechanicPerformance возвращает выработку механиков
func (r *PostgresRepository) MechanicPerformance(ctx context.Context, start, end time.Time) ([]MechanicStat, error) {
	return collect(ctx, r, "mechanic performance", mechanicPerformanceQuery, func(row pgx.CollectableRow) (MechanicStat, error) {
		var m MechanicStat
		err := row.Scan(&m.Mechanic, &m.OrdersCompleted, &m.LaborHours, &m.Revenue)
		return m, err
	}, start, end)
}

const dailyRevenueQuery = `
	SELECT
		(i.issued_at AT TIME ZONE $3)::date AS day,
		COUNT(*)::bigint,
		SUM(i.parts_amount)::float8, SUM(i.labor_amount)::float8,
		SUM(i.tax_amount)::float8, SUM(i.total_amount)::float8
	FROM invoices i
	WHERE i.issued_at >= $1 AND i.issued_at <= $2
	GROUP BY day
	ORDER BY day`

// DailyRevenue возвращает выручку по дням
func (r *PostgresRepository) DailyRevenue(ctx context.Context, start, end time.Time, tz string) ([]RevenueDay, error) {
	if tz == "" {
		tz = "UTC"
	}
	return collect(ctx, r, "daily revenue", dailyRevenueQuery, func(row pgx.CollectableRow) (RevenueDay, error) {
		var d RevenueDay
		err := row.Scan(&d.Day, &d.Invoices, &d.PartsAmount, &d.LaborAmount, &d.TaxAmount, &d.TotalAmount)
		return d, err
	}, start, end, tz)
}

// Ping проверяет соединение
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanStockItem(row pgx.CollectableRow) (StockItem, error) {
	var s StockItem
	err := row.Scan(&s.SKU, &s.Name, &s.Category, &s.Quantity, &s.ReorderLevel, &s.UnitPrice)
	return s, err
}

// collect выполняет запрос в read-only транзакции и собирает строки.
// Обрыв соединения до отправки запроса повторяется по политике backoff.
func collect[T any](ctx context.Context, r *PostgresRepository, name, query string, scan pgx.RowToFunc[T], args ...any) ([]T, error) {
	var out []T
	attempt := 0

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		rows, err := database.ReadOnly(ctx, r.db, r.queryTimeout, func(tx pgx.Tx) ([]T, error) {
			rows, err := tx.Query(ctx, query, args...)
			if err != nil {
				return nil, err
			}
			return pgx.CollectRows(rows, scan)
		})
		if err != nil {
			if pgconn.SafeToRetry(err) {
				logger.Log.Warn("Reporting query failed, retrying", "query", name, "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}

	if out == nil {
		out = []T{}
	}
	return out, nil
}
