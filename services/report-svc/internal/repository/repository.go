// services/report-svc/internal/repository/repository.go
package repository

import (
	"context"
	"time"
)

// Reporting - read-only источник агрегатов для отчётов.
// Все методы возвращают уже агрегированные строки, упорядоченные для вывода.
type Reporting interface {
	// InventoryStock возвращает складские остатки на момент asOf
	InventoryStock(ctx context.Context, asOf time.Time) ([]StockItem, error)

	// LowStock возвращает позиции с остатком не выше max(reorder_level, threshold)
	LowStock(ctx context.Context, threshold int) ([]StockItem, error)

	// Sales возвращает счета, выставленные в периоде
	Sales(ctx context.Context, start, end time.Time) ([]SaleRecord, error)

	// WorkOrders возвращает заказ-наряды, открытые в периоде
	WorkOrders(ctx context.Context, start, end time.Time) ([]WorkOrderRecord, error)

	// MechanicPerformance возвращает выработку механиков по закрытым нарядам
	MechanicPerformance(ctx context.Context, start, end time.Time) ([]MechanicStat, error)

	// DailyRevenue возвращает выручку по дням в часовом поясе tz
	DailyRevenue(ctx context.Context, start, end time.Time, tz string) ([]RevenueDay, error)

	// Ping проверяет соединение
	Ping(ctx context.Context) error
}
