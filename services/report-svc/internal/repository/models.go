// services/report-svc/internal/repository/models.go
package repository

import "time"

// StockItem складская позиция
type StockItem struct {
	SKU          string
	Name         string
	Category     string
	Quantity     int
	ReorderLevel int
	UnitPrice    float64
}

// Shortfall - сколько не хватает до уровня дозаказа
func (s StockItem) Shortfall(threshold int) int {
	level := max(s.ReorderLevel, threshold)
	if s.Quantity >= level {
		return 0
	}
	return level - s.Quantity
}

// SaleRecord выставленный счёт
type SaleRecord struct {
	InvoiceNumber string
	IssuedAt      time.Time
	Customer      string
	Items         int64
	PartsAmount   float64
	LaborAmount   float64
	TaxAmount     float64
	TotalAmount   float64
}

// WorkOrderRecord заказ-наряд
type WorkOrderRecord struct {
	ID         int64
	OpenedAt   time.Time
	ClosedAt   *time.Time
	Customer   string
	Mechanic   string
	Status     string
	LaborHours float64
	Total      float64
}

// MechanicStat выработка механика за период
type MechanicStat struct {
	Mechanic        string
	OrdersCompleted int64
	LaborHours      float64
	Revenue         float64
}

// AvgHours - среднее число часов на наряд
func (m MechanicStat) AvgHours() float64 {
	if m.OrdersCompleted == 0 {
		return 0
	}
	return m.LaborHours / float64(m.OrdersCompleted)
}

// RevenueDay выручка за день
type RevenueDay struct {
	Day         time.Time
	Invoices    int64
	PartsAmount float64
	LaborAmount float64
	TaxAmount   float64
	TotalAmount float64
}
