// services/report-svc/internal/generator/markdown.go
package generator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownRenderer рендерер Markdown: шапка со сведениями и таблица
type MarkdownRenderer struct {
	company string
	loc     *time.Location
}

// NewMarkdownRenderer создаёт новый рендерер
func NewMarkdownRenderer(opts Options) *MarkdownRenderer {
	return &MarkdownRenderer{company: opts.CompanyName, loc: opts.location()}
}

// Format возвращает формат рендерера
func (g *MarkdownRenderer) Format() Format {
	return FormatMarkdown
}

var mdEscaper = strings.NewReplacer(
	`|`, `\|`,
	"\r\n", "<br>",
	"\n", "<br>",
)

// Render записывает Markdown в path
func (g *MarkdownRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)

		g.writeHeader(bw, table)
		g.writeTable(bw, table)
		g.writeFooter(bw, table)

		if err := bw.Flush(); err != nil {
			return fmt.Errorf("markdown write error: %w", err)
		}
		return nil
	})
}

func (g *MarkdownRenderer) writeHeader(w io.Writer, table *Table) {
	title := strings.TrimSpace(table.Title)
	if title == "" {
		title = "Report"
	}
	fmt.Fprintf(w, "# %s\n\n", title)

	if g.company != "" {
		fmt.Fprintf(w, "- **Company:** %s\n", g.company)
	}
	if period := table.PeriodLabel(); period != "" {
		fmt.Fprintf(w, "- **Period:** %s\n", period)
	}
	fmt.Fprintf(w, "- **Generated:** %s\n", table.GeneratedAt.In(g.loc).Format(timestampLayout))
	io.WriteString(w, "\n")
}

func (g *MarkdownRenderer) writeTable(w io.Writer, table *Table) {
	if len(table.Headers) == 0 {
		return
	}

	cells := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		cells[i] = mdEscaper.Replace(h)
	}
	writeMDRow(w, cells)

	for i := range cells {
		cells[i] = "---"
	}
	writeMDRow(w, cells)

	for _, row := range table.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = mdEscaper.Replace(FormatCell(row[i], g.loc))
			}
		}
		writeMDRow(w, cells)
	}
	io.WriteString(w, "\n")
}

func writeMDRow(w io.Writer, cells []string) {
	io.WriteString(w, "| "+strings.Join(cells, " | ")+" |\n")
}

func (g *MarkdownRenderer) writeFooter(w io.Writer, table *Table) {
	if len(table.Rows) == 0 {
		io.WriteString(w, "*No data for the selected period*\n")
		return
	}
	fmt.Fprintf(w, "*%d rows*\n", len(table.Rows))
}
