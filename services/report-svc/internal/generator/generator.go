// services/report-svc/internal/generator/generator.go
package generator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"workshop/pkg/apperror"
	"workshop/pkg/config"
)

// Format формат выходного файла
type Format string

const (
	FormatCSV      Format = "CSV"
	FormatExcel    Format = "EXCEL"
	FormatPDF      Format = "PDF"
	FormatJSON     Format = "JSON"
	FormatMarkdown Format = "MARKDOWN"
	FormatHTML     Format = "HTML"
)

// formatAliases допустимые написания формата в запросе
var formatAliases = map[string]Format{
	"csv":                FormatCSV,
	"tabular-text":       FormatCSV,
	"excel":              FormatExcel,
	"xlsx":               FormatExcel,
	"spreadsheet":        FormatExcel,
	"pdf":                FormatPDF,
	"paginated-document": FormatPDF,
	"json":               FormatJSON,
	"markdown":           FormatMarkdown,
	"md":                 FormatMarkdown,
	"html":               FormatHTML,
	"htm":                FormatHTML,
	"web-page":           FormatHTML,
}

// ParseFormat разбирает формат без учёта регистра
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", apperror.NewWithField(apperror.CodeUnsupportedFormat, "format is required", "format")
	}
	if f, ok := formatAliases[key]; ok {
		return f, nil
	}
	return "", apperror.NewWithField(apperror.CodeUnsupportedFormat,
		fmt.Sprintf("unsupported format %q", s), "format")
}

// Extension возвращает расширение файла без точки
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatExcel:
		return "xlsx"
	case FormatPDF:
		return "pdf"
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	case FormatHTML:
		return "html"
	default:
		return "bin"
	}
}

// ContentType возвращает MIME-тип
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func (f Format) String() string {
	return string(f)
}

// Table табличные данные отчёта, одинаковые для всех форматов
type Table struct {
	Title       string
	Headers     []string
	Rows        [][]any
	PeriodStart time.Time
	PeriodEnd   time.Time
	GeneratedAt time.Time
}

// PeriodLabel возвращает подпись периода
func (t *Table) PeriodLabel() string {
	if t.PeriodStart.IsZero() && t.PeriodEnd.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s to %s", t.PeriodStart.Format(dateLayout), t.PeriodEnd.Format(dateLayout))
}

// Renderer записывает таблицу в файл одного формата.
// Файл по path появляется только целиком; результат - число записанных байт.
type Renderer interface {
	Format() Format
	Render(ctx context.Context, path string, table *Table) (int64, error)
}

// Options общие настройки рендереров
type Options struct {
	CompanyName string
	Location    *time.Location
	PDF         config.PDFConfig
}

// OptionsFromConfig собирает настройки из конфигурации сервиса
func OptionsFromConfig(cfg *config.ReportConfig) Options {
	return Options{
		CompanyName: cfg.CompanyName,
		Location:    cfg.Location(),
		PDF:         cfg.PDF,
	}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Registry реестр рендереров по формату
type Registry struct {
	mu        sync.RWMutex
	renderers map[Format]Renderer
}

// NewRegistry создаёт реестр с переданными рендерерами
func NewRegistry(renderers ...Renderer) *Registry {
	r := &Registry{renderers: make(map[Format]Renderer, len(renderers))}
	for _, rd := range renderers {
		r.Register(rd)
	}
	return r
}

// NewDefaultRegistry создаёт реестр всех встроенных форматов
func NewDefaultRegistry(opts Options) *Registry {
	return NewRegistry(
		NewCSVRenderer(opts),
		NewExcelRenderer(opts),
		NewPDFRenderer(opts),
		NewJSONRenderer(opts),
		NewMarkdownRenderer(opts),
		NewHTMLRenderer(opts),
	)
}

// Register добавляет или заменяет рендерер формата
func (r *Registry) Register(rd Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[rd.Format()] = rd
}

// Get возвращает рендерер формата
func (r *Registry) Get(f Format) (Renderer, error) {
	r.mu.RLock()
	rd, ok := r.renderers[f]
	r.mu.RUnlock()

	if !ok {
		return nil, apperror.NewWithField(apperror.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported format %q", f), "format")
	}
	return rd, nil
}

// Formats перечисляет зарегистрированные форматы в стабильном порядке
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.renderers))
	for f := range r.renderers {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
