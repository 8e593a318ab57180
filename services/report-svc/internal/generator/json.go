// services/report-svc/internal/generator/json.go
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// jsonVersion версия структуры JSON отчёта
const jsonVersion = "1.0"

// JSONRenderer рендерер JSON: метаданные, колонки и строки массивами
type JSONRenderer struct {
	company string
	loc     *time.Location
}

// NewJSONRenderer создаёт новый рендерер
func NewJSONRenderer(opts Options) *JSONRenderer {
	return &JSONRenderer{company: opts.CompanyName, loc: opts.location()}
}

// Format возвращает формат рендерера
func (g *JSONRenderer) Format() Format {
	return FormatJSON
}

// JSONReport структура JSON отчёта
type JSONReport struct {
	Metadata JSONMetadata `json:"metadata"`
	Columns  []string     `json:"columns"`
	Rows     [][]any      `json:"rows"`
}

type JSONMetadata struct {
	Title       string      `json:"title"`
	Company     string      `json:"company,omitempty"`
	Period      *JSONPeriod `json:"period,omitempty"`
	GeneratedAt string      `json:"generatedAt"`
	RowCount    int         `json:"rowCount"`
	Version     string      `json:"version"`
}

type JSONPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Render записывает JSON в path
func (g *JSONRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	report := JSONReport{
		Metadata: JSONMetadata{
			Title:       table.Title,
			Company:     g.company,
			GeneratedAt: table.GeneratedAt.In(g.loc).Format(time.RFC3339),
			RowCount:    len(table.Rows),
			Version:     jsonVersion,
		},
		Columns: table.Headers,
		Rows:    make([][]any, 0, len(table.Rows)),
	}
	if report.Columns == nil {
		report.Columns = []string{}
	}
	if !table.PeriodStart.IsZero() || !table.PeriodEnd.IsZero() {
		report.Metadata.Period = &JSONPeriod{
			Start: table.PeriodStart.Format(dateLayout),
			End:   table.PeriodEnd.Format(dateLayout),
		}
	}

	for _, row := range table.Rows {
		out := make([]any, len(row))
		for i, v := range row {
			out[i] = g.value(v)
		}
		report.Rows = append(report.Rows, out)
	}

	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("json encode error: %w", err)
		}
		return nil
	})
}

// value оставляет числа и булевы значения как есть, время и прочее приводит к тексту
func (g *JSONRenderer) value(v any) any {
	switch val := v.(type) {
	case nil, string, bool,
		int, int32, int64, uint, uint64, float32, float64:
		return val
	default:
		return FormatCell(v, g.loc)
	}
}
