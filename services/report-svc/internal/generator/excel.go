// services/report-svc/internal/generator/excel.go
package generator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	excelTitleRow  = 1
	excelPeriodRow = 2
	excelHeaderRow = 4

	minColWidth = 8
	maxColWidth = 50

	maxSheetNameLen = 31
)

// ExcelRenderer рендерер XLSX
type ExcelRenderer struct {
	company string
	loc     *time.Location
}

// NewExcelRenderer создаёт новый рендерер
func NewExcelRenderer(opts Options) *ExcelRenderer {
	return &ExcelRenderer{company: opts.CompanyName, loc: opts.location()}
}

// Format возвращает формат рендерера
func (g *ExcelRenderer) Format() Format {
	return FormatExcel
}

// Render записывает книгу с одним листом: заголовок, период,
// шапка таблицы с автофильтром и закреплением, строки данных
func (g *ExcelRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(table.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := g.writeSheet(f, sheet, table); err != nil {
		return 0, fmt.Errorf("failed to build workbook: %w", err)
	}

	return writeAtomic(path, func(w io.Writer) error {
		if _, err := f.WriteTo(w); err != nil {
			return fmt.Errorf("xlsx write error: %w", err)
		}
		return nil
	})
}

func (g *ExcelRenderer) writeSheet(f *excelize.File, sheet string, table *Table) error {
	styles, err := newExcelStyles(f)
	if err != nil {
		return err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   table.Title,
		Creator: g.company,
		Created: table.GeneratedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	cols := max(len(table.Headers), 1)
	lastCol := colName(cols)

	// Стили колонок с датами выставляются до записи значений
	for i, kind := range timeColumns(table) {
		switch kind {
		case timeKindDate:
			f.SetColStyle(sheet, colName(i+1), styles.date)
		case timeKindTimestamp:
			f.SetColStyle(sheet, colName(i+1), styles.timestamp)
		}
	}

	// Заголовок
	f.SetCellValue(sheet, cellAddr(1, excelTitleRow), table.Title)
	f.SetCellStyle(sheet, cellAddr(1, excelTitleRow), cellAddr(1, excelTitleRow), styles.title)
	if cols > 1 {
		f.MergeCell(sheet, cellAddr(1, excelTitleRow), cellAddr(cols, excelTitleRow))
	}

	// Период и время формирования
	meta := fmt.Sprintf("Generated: %s", table.GeneratedAt.In(g.loc).Format(timestampLayout))
	if label := table.PeriodLabel(); label != "" {
		meta = fmt.Sprintf("Period: %s | %s", label, meta)
	}
	f.SetCellValue(sheet, cellAddr(1, excelPeriodRow), meta)
	f.SetCellStyle(sheet, cellAddr(1, excelPeriodRow), cellAddr(1, excelPeriodRow), styles.meta)

	// Шапка
	header := make([]any, len(table.Headers))
	for i, h := range table.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, cellAddr(1, excelHeaderRow), &header); err != nil {
		return err
	}
	f.SetCellStyle(sheet, cellAddr(1, excelHeaderRow), cellAddr(cols, excelHeaderRow), styles.header)

	// Данные
	row := excelHeaderRow + 1
	for _, r := range table.Rows {
		values := make([]any, len(r))
		for i, v := range r {
			values[i] = g.cellValue(v)
		}
		if err := f.SetSheetRow(sheet, cellAddr(1, row), &values); err != nil {
			return err
		}
		row++
	}

	for i, w := range columnWidths(table, g.loc) {
		name := colName(i + 1)
		f.SetColWidth(sheet, name, name, w)
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      excelHeaderRow,
		TopLeftCell: cellAddr(1, excelHeaderRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	if len(table.Headers) > 0 {
		ref := fmt.Sprintf("%s:%s%d", cellAddr(1, excelHeaderRow), lastCol, max(row-1, excelHeaderRow))
		if err := f.AutoFilter(sheet, ref, nil); err != nil {
			return err
		}
	}

	return nil
}

// cellValue сохраняет числа и даты как типизированные значения Excel
func (g *ExcelRenderer) cellValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return nil
		}
		if isDate(val) {
			return val
		}
		return val.In(g.loc)
	case *time.Time:
		if val == nil {
			return nil
		}
		return g.cellValue(*val)
	default:
		return v
	}
}

type excelStyles struct {
	title     int
	meta      int
	header    int
	date      int
	timestamp int
}

func newExcelStyles(f *excelize.File) (*excelStyles, error) {
	var (
		s   excelStyles
		err error
	)

	if s.title, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "2C3E50"},
	}); err != nil {
		return nil, err
	}

	if s.meta, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true, Size: 9, Color: "7F8C8D"},
	}); err != nil {
		return nil, err
	}

	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return nil, err
	}

	dateFmt := "yyyy-mm-dd"
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt}); err != nil {
		return nil, err
	}

	tsFmt := "yyyy-mm-dd hh:mm"
	if s.timestamp, err = f.NewStyle(&excelize.Style{CustomNumFmt: &tsFmt}); err != nil {
		return nil, err
	}

	return &s, nil
}

type timeKind int

const (
	timeKindNone timeKind = iota
	timeKindDate
	timeKindTimestamp
)

// timeColumns определяет колонки с датами по первому непустому значению
func timeColumns(table *Table) []timeKind {
	kinds := make([]timeKind, len(table.Headers))
	resolved := make([]bool, len(table.Headers))

	for _, row := range table.Rows {
		for i, v := range row {
			if i >= len(kinds) || resolved[i] {
				continue
			}
			var t time.Time
			switch val := v.(type) {
			case nil:
				continue
			case time.Time:
				t = val
			case *time.Time:
				if val == nil {
					continue
				}
				t = *val
			default:
				resolved[i] = true
				continue
			}
			resolved[i] = true
			if isDate(t) {
				kinds[i] = timeKindDate
			} else {
				kinds[i] = timeKindTimestamp
			}
		}
	}
	return kinds
}

// columnWidths подбирает ширину колонок по содержимому в пределах [minColWidth, maxColWidth]
func columnWidths(table *Table, loc *time.Location) []float64 {
	widths := make([]float64, len(table.Headers))
	for i, h := range table.Headers {
		widths[i] = float64(utf8.RuneCountInString(h))
	}
	for _, row := range table.Rows {
		for i, v := range row {
			if i >= len(widths) {
				break
			}
			if n := float64(utf8.RuneCountInString(FormatCell(v, loc))); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i := range widths {
		widths[i] = min(max(widths[i]+2, minColWidth), maxColWidth)
	}
	return widths
}

// sheetName приводит заголовок к допустимому имени листа
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "'")

	if name == "" {
		return "Report"
	}
	if utf8.RuneCountInString(name) > maxSheetNameLen {
		name = string([]rune(name)[:maxSheetNameLen])
	}
	return name
}

// colName преобразует номер колонки (с 1) в буквенное обозначение
func colName(col int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return name
}

// cellAddr формирует адрес ячейки
func cellAddr(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
