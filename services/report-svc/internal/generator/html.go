// services/report-svc/internal/generator/html.go
package generator

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"time"
)

// HTMLRenderer рендерер HTML: самодостаточная страница с таблицей
type HTMLRenderer struct {
	company string
	loc     *time.Location
}

// NewHTMLRenderer создаёт новый рендерер
func NewHTMLRenderer(opts Options) *HTMLRenderer {
	return &HTMLRenderer{company: opts.CompanyName, loc: opts.location()}
}

// Format возвращает формат рендерера
func (g *HTMLRenderer) Format() Format {
	return FormatHTML
}

var htmlReport = template.Must(template.New("report").Parse(htmlTemplate))

// Render записывает HTML в path
func (g *HTMLRenderer) Render(ctx context.Context, path string, table *Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rows := make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for j := range cells {
			if j < len(row) {
				cells[j] = FormatCell(row[j], g.loc)
			}
		}
		rows[i] = cells
	}

	company := g.company
	if company == "" {
		company = "Workshop"
	}

	data := map[string]any{
		"Title":     table.Title,
		"Company":   company,
		"Period":    table.PeriodLabel(),
		"Generated": table.GeneratedAt.In(g.loc).Format(timestampLayout),
		"Headers":   table.Headers,
		"Rows":      rows,
	}

	return writeAtomic(path, func(w io.Writer) error {
		if err := htmlReport.Execute(w, data); err != nil {
			return fmt.Errorf("failed to execute template: %w", err)
		}
		return nil
	})
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            border-radius: 8px;
            padding: 30px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #2c3e50; border-bottom: 3px solid #3498db; padding-bottom: 10px; }
        .meta { color: #7f8c8d; font-size: 0.9em; margin-bottom: 20px; }
        table { width: 100%; border-collapse: collapse; margin: 15px 0; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #ecf0f1; }
        th { background: #3498db; color: white; font-weight: 500; }
        tr:nth-child(even) { background: #f8f9fa; }
        .empty { color: #7f8c8d; font-style: italic; }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #ecf0f1;
            color: #7f8c8d;
            font-size: 0.85em;
            text-align: center;
        }
    </style>
</head>
<body>
<div class="container">
    <h1>{{.Title}}</h1>
    <div class="meta">
        <p><strong>{{.Company}}</strong>{{if .Period}} | <strong>Period:</strong> {{.Period}}{{end}} | <strong>Generated:</strong> {{.Generated}}</p>
    </div>

    {{if .Rows}}
    <table>
        <thead>
            <tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
        </thead>
        <tbody>
        {{range .Rows}}
            <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
        {{end}}
        </tbody>
    </table>
    {{else}}
    <p class="empty">No data for the selected period</p>
    {{end}}

    <div class="footer">
        <p>{{.Company}} | {{len .Rows}} rows | {{.Generated}}</p>
    </div>
</div>
</body>
</html>
`
