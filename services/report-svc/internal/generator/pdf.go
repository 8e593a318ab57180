// services/report-svc/internal/generator/pdf.go
package generator

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"

	workshopconfig "workshop/pkg/config"
)

const (
	pdfGridSize      = 24
	pdfDefaultMargin = 15.0
	pdfRowHeight     = 6.0
	pdfHeaderHeight  = 8.0
)

// PDFRenderer рендерер PDF
type PDFRenderer struct {
	company string
	loc     *time.Location
	cfg     workshopconfig.PDFConfig
}

// NewPDFRenderer создаёт новый рендерер
func NewPDFRenderer(opts Options) *PDFRenderer {
	return &PDFRenderer{company: opts.CompanyName, loc: opts.location(), cfg: opts.PDF}
}

// Format возвращает формат рендерера
func (g *PDFRenderer) Format() Format {
	return FormatPDF
}

// Стили
var (
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}    // #2c3e50
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}  // #3498db
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241} // #ecf0f1
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141} // #7f8c8d

	titleStyle = props.Text{
		Size:  16,
		Style: fontstyle.Bold,
		Align: align.Left,
		Color: headerBgColor,
	}

	smallStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
	}

	smallRightStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
		Align: align.Right,
	}

	tableHeaderStyle = &props.Cell{
		BackgroundColor: primaryColor,
	}

	tableHeaderTextStyle = props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
		Top:   1.5,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Full,
		BorderColor: lightGrayColor,
	}

	tableCellTextStyle = props.Text{
		Size: 8,
		Left: 1,
		Top:  1,
	}

	tableNumberTextStyle = props.Text{
		Size:  8,
		Right: 1,
		Top:   1,
		Align: align.Right,
	}
)

// Render записывает документ: шапка страницы с заголовком таблицы на каждой
// странице, строки данных, футер с названием компании и номерами страниц
func (g *PDFRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m := maroto.New(g.buildConfig(table))

	sizes := gridSizes(columnWidths(table, g.loc), pdfGridSize)

	if err := m.RegisterHeader(g.headerRows(table, sizes)...); err != nil {
		return 0, fmt.Errorf("failed to register PDF header: %w", err)
	}
	if err := m.RegisterFooter(g.footerRows(table)...); err != nil {
		return 0, fmt.Errorf("failed to register PDF footer: %w", err)
	}

	if len(table.Rows) == 0 {
		m.AddRow(10,
			text.NewCol(pdfGridSize, "No data for the selected period", props.Text{
				Size:  10,
				Style: fontstyle.Italic,
				Align: align.Center,
				Color: darkGrayColor,
				Top:   3,
			}),
		)
	}

	for _, r := range table.Rows {
		m.AddRows(g.dataRow(r, sizes))
	}

	doc, err := m.Generate()
	if err != nil {
		return 0, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(doc.GetBytes()); err != nil {
			return fmt.Errorf("pdf write error: %w", err)
		}
		return nil
	})
}

func (g *PDFRenderer) buildConfig(table *Table) *entity.Config {
	b := config.NewBuilder().
		WithPageSize(pageSize(g.cfg.PageSize)).
		WithOrientation(pageOrientation(g.cfg.Orientation)).
		WithMaxGridSize(pdfGridSize).
		WithLeftMargin(marginOrDefault(g.cfg.MarginLeft)).
		WithTopMargin(marginOrDefault(g.cfg.MarginTop)).
		WithRightMargin(marginOrDefault(g.cfg.MarginRight)).
		WithBottomMargin(marginOrDefault(g.cfg.MarginBottom)).
		WithTitle(table.Title, true).
		WithAuthor(g.company, true).
		WithCreationDate(table.GeneratedAt)

	if g.cfg.EnablePageNumbers {
		b = b.WithPageNumber()
	}

	return b.Build()
}

func (g *PDFRenderer) headerRows(table *Table, sizes []int) []core.Row {
	meta := fmt.Sprintf("Generated: %s", table.GeneratedAt.In(g.loc).Format(timestampLayout))
	period := ""
	if label := table.PeriodLabel(); label != "" {
		period = "Period: " + label
	}

	rows := []core.Row{
		row.New(10).Add(
			text.NewCol(pdfGridSize, table.Title, titleStyle),
		),
		row.New(5).Add(
			text.NewCol(pdfGridSize/2, period, smallStyle),
			text.NewCol(pdfGridSize-pdfGridSize/2, meta, smallRightStyle),
		),
		row.New(3).Add(
			line.NewCol(pdfGridSize, props.Line{Color: lightGrayColor}),
		),
	}

	if len(table.Headers) > 0 {
		cols := make([]core.Col, 0, len(table.Headers))
		for i, h := range table.Headers {
			cols = append(cols, text.NewCol(sizes[i], h, tableHeaderTextStyle).WithStyle(tableHeaderStyle))
		}
		rows = append(rows, row.New(pdfHeaderHeight).Add(cols...))
	}

	return rows
}

func (g *PDFRenderer) footerRows(table *Table) []core.Row {
	company := g.company
	if company == "" {
		company = "Workshop"
	}
	return []core.Row{
		row.New(6).Add(
			text.NewCol(pdfGridSize,
				fmt.Sprintf("%s | %s", company, strings.TrimSpace(table.Title)),
				props.Text{Size: 7, Color: darkGrayColor, Align: align.Center, Top: 2},
			),
		),
	}
}

func (g *PDFRenderer) dataRow(values []any, sizes []int) core.Row {
	cols := make([]core.Col, 0, len(sizes))
	for i, size := range sizes {
		var v any
		if i < len(values) {
			v = values[i]
		}
		style := tableCellTextStyle
		if isNumeric(v) {
			style = tableNumberTextStyle
		}
		cols = append(cols, text.NewCol(size, FormatCell(v, g.loc), style).WithStyle(tableCellStyle))
	}
	return row.New(pdfRowHeight).Add(cols...)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// gridSizes распределяет сетку из grid колонок пропорционально весам.
// Каждая колонка получает хотя бы одну ячейку сетки.
func gridSizes(weights []float64, grid int) []int {
	n := len(weights)
	if n == 0 {
		return nil
	}
	if n >= grid {
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = 1
		}
		return sizes
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}

	sizes := make([]int, n)
	used := 0
	for i, w := range weights {
		share := float64(grid) / float64(n)
		if total > 0 {
			share = w / total * float64(grid)
		}
		sizes[i] = max(int(math.Floor(share)), 1)
		used += sizes[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return weights[order[a]] > weights[order[b]] })

	// Остаток отдаём самым широким, перебор снимаем с них же
	for i := 0; used < grid; i = (i + 1) % n {
		sizes[order[i]]++
		used++
	}
	for i := 0; used > grid; i = (i + 1) % n {
		if sizes[order[i]] > 1 {
			sizes[order[i]]--
			used--
		}
	}

	return sizes
}

func pageSize(s string) pagesize.Type {
	switch strings.ToUpper(s) {
	case "A3":
		return pagesize.A3
	case "LETTER":
		return pagesize.Letter
	case "LEGAL":
		return pagesize.Legal
	default:
		return pagesize.A4
	}
}

func pageOrientation(s string) orientation.Type {
	if strings.EqualFold(s, "portrait") {
		return orientation.Vertical
	}
	return orientation.Horizontal
}

func marginOrDefault(v float64) float64 {
	if v <= 0 {
		return pdfDefaultMargin
	}
	return v
}
