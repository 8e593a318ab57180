// services/report-svc/internal/generator/csv.go
package generator

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// CSVRenderer рендерер CSV (RFC 4180): строка заголовков, затем данные
type CSVRenderer struct {
	loc *time.Location
}

// NewCSVRenderer создаёт новый рендерер
func NewCSVRenderer(opts Options) *CSVRenderer {
	return &CSVRenderer{loc: opts.location()}
}

// Format возвращает формат рендерера
func (g *CSVRenderer) Format() Format {
	return FormatCSV
}

// csvWriter обёртка для отслеживания ошибок
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) Write(record []string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) Flush() {
	if cw.err != nil {
		return
	}
	cw.w.Flush()
	cw.err = cw.w.Error()
}

func (cw *csvWriter) Error() error {
	return cw.err
}

// Render записывает CSV в path
func (g *CSVRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return writeAtomic(path, func(w io.Writer) error {
		cw := &csvWriter{w: csv.NewWriter(w)}

		cw.Write(table.Headers)

		record := make([]string, len(table.Headers))
		for _, row := range table.Rows {
			record = record[:0]
			for _, v := range row {
				record = append(record, FormatCell(v, g.loc))
			}
			cw.Write(record)
		}

		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		return nil
	})
}
