// services/report-svc/internal/catalog/catalog.go
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"workshop/pkg/apperror"
)

// ReportType тип отчёта
type ReportType string

const (
	InventoryStock      ReportType = "INVENTORY_STOCK"
	LowStock            ReportType = "LOW_STOCK"
	Sales               ReportType = "SALES"
	WorkOrders          ReportType = "WORK_ORDERS"
	MechanicPerformance ReportType = "MECHANIC_PERFORMANCE"
	DailyRevenue        ReportType = "DAILY_REVENUE"
)

func (t ReportType) String() string {
	return string(t)
}

// ParseReportType нормализует имя типа: регистр и дефисы не важны
func ParseReportType(s string) (ReportType, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	if norm == "" {
		return "", apperror.NewWithField(apperror.CodeUnsupportedReportType, "report type is required", "reportType")
	}
	return ReportType(norm), nil
}

// Row строка отчёта; ячейки соответствуют заголовкам один к одному
type Row = []any

// RowsProvider выдаёт строки отчёта за период
type RowsProvider func(ctx context.Context, start, end time.Time) ([]Row, error)

// Entry описание типа отчёта
type Entry struct {
	Type        ReportType
	Title       string
	Description string
	Headers     []string
	Rows        RowsProvider
}

// Catalog реестр типов отчётов
type Catalog struct {
	mu      sync.RWMutex
	entries map[ReportType]Entry
}

// New создаёт пустой каталог
func New() *Catalog {
	return &Catalog{entries: make(map[ReportType]Entry)}
}

// Register добавляет тип отчёта
func (c *Catalog) Register(e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("report type is empty")
	}
	if len(e.Headers) == 0 {
		return fmt.Errorf("report type %s has no headers", e.Type)
	}
	if e.Rows == nil {
		return fmt.Errorf("report type %s has no rows provider", e.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[e.Type]; exists {
		return fmt.Errorf("report type %s already registered", e.Type)
	}
	c.entries[e.Type] = e
	return nil
}

// MustRegister добавляет тип отчёта или паникует
func (c *Catalog) MustRegister(e Entry) {
	if err := c.Register(e); err != nil {
		panic(err)
	}
}

// Resolve возвращает описание типа отчёта
func (c *Catalog) Resolve(t ReportType) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[t]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, apperror.NewWithField(apperror.CodeUnsupportedReportType,
			fmt.Sprintf("unsupported report type %q", t), "reportType")
	}
	return e, nil
}

// Types перечисляет зарегистрированные типы в стабильном порядке
func (c *Catalog) Types() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}
