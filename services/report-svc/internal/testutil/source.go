// services/report-svc/internal/testutil/source.go
package testutil

import (
	"context"
	"sync"
	"time"

	"workshop/services/report-svc/internal/repository"
)

// ================== Fake Reporting Source ==================

// FakeSource отдаёт заранее заданные данные вместо PostgreSQL
type FakeSource struct {
	mu sync.Mutex

	Stock    []repository.StockItem
	SalesRec []repository.SaleRecord
	Orders   []repository.WorkOrderRecord
	Stats    []repository.MechanicStat
	Revenue  []repository.RevenueDay

	// For controlling behavior
	Err     error
	PingErr error
	Delay   time.Duration

	// Call tracking
	Calls int
}

// NewFakeSource создаёт источник с одной позицией склада
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Stock: []repository.StockItem{
			{SKU: "OF-1", Name: "Oil Filter", Category: "Filters", Quantity: 12, ReorderLevel: 4, UnitPrice: 8},
		},
	}
}

func (s *FakeSource) call(ctx context.Context) error {
	s.mu.Lock()
	s.Calls++
	delay, err := s.Delay, s.Err
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CallCount возвращает число обращений
func (s *FakeSource) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls
}

func (s *FakeSource) InventoryStock(ctx context.Context, _ time.Time) ([]repository.StockItem, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	return s.Stock, nil
}

func (s *FakeSource) LowStock(ctx context.Context, threshold int) ([]repository.StockItem, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	var out []repository.StockItem
	for _, it := range s.Stock {
		if it.Shortfall(threshold) > 0 || it.Quantity <= max(it.ReorderLevel, threshold) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *FakeSource) Sales(ctx context.Context, _, _ time.Time) ([]repository.SaleRecord, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	return s.SalesRec, nil
}

func (s *FakeSource) WorkOrders(ctx context.Context, _, _ time.Time) ([]repository.WorkOrderRecord, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	return s.Orders, nil
}

func (s *FakeSource) MechanicPerformance(ctx context.Context, _, _ time.Time) ([]repository.MechanicStat, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	return s.Stats, nil
}

func (s *FakeSource) DailyRevenue(ctx context.Context, _, _ time.Time, _ string) ([]repository.RevenueDay, error) {
	if err := s.call(ctx); err != nil {
		return nil, err
	}
	return s.Revenue, nil
}

func (s *FakeSource) Ping(ctx context.Context) error {
	return s.PingErr
}

// ================== Manual Clock ==================

// Clock управляемые часы для тестов TTL и reaper
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock создаёт часы, остановленные на now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now возвращает текущее время часов
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set устанавливает время
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
