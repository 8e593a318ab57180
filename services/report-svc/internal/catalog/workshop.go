// services/report-svc/internal/catalog/workshop.go
package catalog

import (
	"context"
	"strconv"
	"time"

	"workshop/services/report-svc/internal/repository"
)

// Source источник агрегатов мастерской
type Source interface {
	InventoryStock(ctx context.Context, asOf time.Time) ([]repository.StockItem, error)
	LowStock(ctx context.Context, threshold int) ([]repository.StockItem, error)
	Sales(ctx context.Context, start, end time.Time) ([]repository.SaleRecord, error)
	WorkOrders(ctx context.Context, start, end time.Time) ([]repository.WorkOrderRecord, error)
	MechanicPerformance(ctx context.Context, start, end time.Time) ([]repository.MechanicStat, error)
	DailyRevenue(ctx context.Context, start, end time.Time, tz string) ([]repository.RevenueDay, error)
}

// Settings параметры представления
type Settings struct {
	CurrencySymbol    string
	LowStockThreshold int
	Timezone          string
}

// NewWorkshop создаёт каталог стандартных отчётов мастерской
func NewWorkshop(src Source, s Settings) *Catalog {
	c := New()
	m := money(s.CurrencySymbol)

	c.MustRegister(Entry{
		Type:        InventoryStock,
		Title:       "Inventory Stock",
		Description: "Parts on hand at the end of the period",
		Headers:     []string{"Part", "Category", "Qty", "Price"},
		Rows: func(ctx context.Context, _, end time.Time) ([]Row, error) {
			items, err := src.InventoryStock(ctx, end)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(items))
			for _, it := range items {
				rows = append(rows, Row{it.Name, it.Category, it.Quantity, m(it.UnitPrice)})
			}
			return rows, nil
		},
	})

	c.MustRegister(Entry{
		Type:        LowStock,
		Title:       "Low Stock",
		Description: "Parts at or below their reorder level",
		Headers:     []string{"SKU", "Part", "Category", "Qty", "Reorder Level", "Shortfall"},
		Rows: func(ctx context.Context, _, _ time.Time) ([]Row, error) {
			items, err := src.LowStock(ctx, s.LowStockThreshold)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(items))
			for _, it := range items {
				rows = append(rows, Row{
					it.SKU, it.Name, it.Category, it.Quantity,
					max(it.ReorderLevel, s.LowStockThreshold), it.Shortfall(s.LowStockThreshold),
				})
			}
			return rows, nil
		},
	})

	c.MustRegister(Entry{
		Type:        Sales,
		Title:       "Sales",
		Description: "Invoices issued in the period",
		Headers:     []string{"Invoice", "Issued", "Customer", "Items", "Parts", "Labor", "Tax", "Total"},
		Rows: func(ctx context.Context, start, end time.Time) ([]Row, error) {
			sales, err := src.Sales(ctx, start, end)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(sales))
			for _, r := range sales {
				rows = append(rows, Row{
					r.InvoiceNumber, r.IssuedAt, r.Customer, r.Items,
					m(r.PartsAmount), m(r.LaborAmount), m(r.TaxAmount), m(r.TotalAmount),
				})
			}
			return rows, nil
		},
	})

	c.MustRegister(Entry{
		Type:        WorkOrders,
		Title:       "Work Orders",
		Description: "Work orders opened in the period",
		Headers:     []string{"Order", "Opened", "Closed", "Customer", "Mechanic", "Status", "Hours", "Total"},
		Rows: func(ctx context.Context, start, end time.Time) ([]Row, error) {
			orders, err := src.WorkOrders(ctx, start, end)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(orders))
			for _, o := range orders {
				rows = append(rows, Row{
					o.ID, o.OpenedAt, o.ClosedAt, o.Customer, o.Mechanic, o.Status,
					o.LaborHours, m(o.Total),
				})
			}
			return rows, nil
		},
	})

	c.MustRegister(Entry{
		Type:        MechanicPerformance,
		Title:       "Mechanic Performance",
		Description: "Completed work per mechanic",
		Headers:     []string{"Mechanic", "Orders Completed", "Hours", "Avg Hours", "Revenue"},
		Rows: func(ctx context.Context, start, end time.Time) ([]Row, error) {
			stats, err := src.MechanicPerformance(ctx, start, end)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(stats))
			for _, st := range stats {
				rows = append(rows, Row{st.Mechanic, st.OrdersCompleted, st.LaborHours, st.AvgHours(), m(st.Revenue)})
			}
			return rows, nil
		},
	})

	c.MustRegister(Entry{
		Type:        DailyRevenue,
		Title:       "Daily Revenue",
		Description: "Invoiced revenue per day",
		Headers:     []string{"Day", "Invoices", "Parts", "Labor", "Tax", "Total"},
		Rows: func(ctx context.Context, start, end time.Time) ([]Row, error) {
			days, err := src.DailyRevenue(ctx, start, end, s.Timezone)
			if err != nil {
				return nil, err
			}
			rows := make([]Row, 0, len(days))
			for _, d := range days {
				rows = append(rows, Row{
					d.Day, d.Invoices,
					m(d.PartsAmount), m(d.LaborAmount), m(d.TaxAmount), m(d.TotalAmount),
				})
			}
			return rows, nil
		},
	})

	return c
}

// money форматирует сумму с символом валюты: $8.00, -$3.50
func money(symbol string) func(float64) string {
	return func(v float64) string {
		s := strconv.FormatFloat(v, 'f', 2, 64)
		if v < 0 {
			return "-" + symbol + s[1:]
		}
		return symbol + s
	}
}
