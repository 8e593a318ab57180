// services/report-svc/internal/service/report.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"workshop/pkg/apperror"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
	"workshop/pkg/telemetry"
	"workshop/services/report-svc/internal/artifact"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
	"workshop/services/report-svc/internal/index"
	"workshop/services/report-svc/internal/reaper"
)

const (
	// DefaultTTL время жизни артефакта по умолчанию
	DefaultTTL = 7 * 24 * time.Hour

	notFoundMessage = "report not found or expired"
)

var startTime = time.Now()

// Pinger проверка доступности источника данных
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportService генерирует отчёты и управляет временными артефактами
type ReportService struct {
	cfg      Config
	catalog  *catalog.Catalog
	registry *generator.Registry
	store    *artifact.Store
	index    index.Index
	reaper   *reaper.Reaper
	source   Pinger

	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger

	reportsGenerated atomic.Int64
	closed           atomic.Bool
}

// Config конфигурация сервиса
type Config struct {
	Version              string
	DefaultTTL           time.Duration
	CleanupInterval      time.Duration
	MaxArtifacts         int
	MaxArtifactsPerOwner int
	Location             *time.Location
	PublicURL            string
}

// Deps зависимости сервиса
type Deps struct {
	Catalog  *catalog.Catalog
	Registry *generator.Registry
	Store    *artifact.Store
	Index    index.Index
	Source   Pinger // может быть nil
}

// Option настройка сервиса
type Option func(*ReportService)

// WithClock подменяет источник времени сервиса и reaper
func WithClock(now func() time.Time) Option {
	return func(s *ReportService) {
		s.now = now
	}
}

// WithMetrics задаёт метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReportService) {
		s.metrics = m
	}
}

// NewReportService создаёт сервис. Reaper создаётся здесь же и
// останавливается в Close вместе с закрытием индекса.
func NewReportService(cfg Config, deps Deps, opts ...Option) *ReportService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	s := &ReportService{
		cfg:      cfg,
		catalog:  deps.Catalog,
		registry: deps.Registry,
		store:    deps.Store,
		index:    deps.Index,
		source:   deps.Source,
		now:      time.Now,
		log:      logger.WithComponent("report-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}

	s.reaper = reaper.New(s.index, s.store, cfg.CleanupInterval,
		reaper.WithClock(s.now),
		reaper.WithMetrics(s.metrics),
	)
	return s
}

// ReportHandle результат генерации
type ReportHandle struct {
	ID          string
	DownloadURL string
	ReportType  catalog.ReportType
	Format      generator.Format
	FileName    string
	SizeBytes   int64
	RowCount    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// GenerateReport проверяет запрос, создаёт артефакт и регистрирует его в индексе
func (s *ReportService) GenerateReport(ctx context.Context, req *GenerateRequest) (*ReportHandle, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.GenerateReport")
	defer span.End()

	now := s.now()
	r, err := resolve(req, now, s.cfg.Location)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	if r.owner == "" {
		r.owner = identity.SystemSubject
	}

	span.SetAttributes(telemetry.ReportAttributes(string(r.reportType), string(r.format), r.owner)...)
	span.SetAttributes(
		attribute.String(telemetry.AttrPeriodStart, r.start.Format(time.RFC3339)),
		attribute.String(telemetry.AttrPeriodEnd, r.end.Format(time.RFC3339)),
	)

	log := logger.WithContext(ctx,
		"report_type", r.reportType,
		"format", r.format,
		"owner", r.owner,
	)

	// Тип и формат проверяются до квот и запроса данных
	if _, err := s.catalog.Resolve(r.reportType); err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(r.format); err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, r.owner); err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	timer := s.metrics.GenerationTimer(string(r.reportType), string(r.format))
	a, err := s.store.CreateArtifact(ctx, r.reportType, r.format, r.start, r.end)
	if err != nil {
		timer.ObserveDuration()
		s.metrics.RecordGeneration(string(r.reportType), string(r.format), false, 0, 0)
		telemetry.SetError(ctx, err)
		log.Warn("report generation failed", "error", err, "retryable", apperror.Retryable(err))
		return nil, err
	}

	entry := &index.Entry{
		ID:          a.ID,
		Owner:       r.owner,
		ReportType:  a.ReportType,
		Format:      a.Format,
		FileName:    a.FileName,
		Path:        a.Path,
		SizeBytes:   a.SizeBytes,
		Checksum:    a.Checksum,
		RowCount:    a.RowCount,
		PeriodStart: a.PeriodStart,
		PeriodEnd:   a.PeriodEnd,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.CreatedAt.Add(s.cfg.DefaultTTL),
	}

	if err := s.index.Put(ctx, entry); err != nil {
		// Файл без записи в индексе не должен оставаться на диске
		if _, rmErr := s.store.Remove(a.Path); rmErr != nil {
			log.Error("failed to remove unregistered artifact", "path", a.Path, "error", rmErr)
		}
		if errors.Is(err, index.ErrDuplicateID) {
			panic(fmt.Sprintf("artifact id collision: %s", a.ID))
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeUnavailable, "failed to register artifact")
	}

	duration := timer.ObserveDuration()
	s.reportsGenerated.Add(1)
	s.metrics.RecordGeneration(string(a.ReportType), string(a.Format), true, a.SizeBytes, a.RowCount)
	s.refreshGauge(ctx)
	span.SetAttributes(telemetry.ArtifactAttributes(a.ID, a.RowCount, a.SizeBytes)...)

	log.Info("report generated",
		"id", a.ID,
		"rows", a.RowCount,
		"size", a.SizeBytes,
		"duration", duration,
	)

	return &ReportHandle{
		ID:          entry.ID,
		DownloadURL: s.downloadURL(entry.ID),
		ReportType:  entry.ReportType,
		Format:      entry.Format,
		FileName:    entry.FileName,
		SizeBytes:   entry.SizeBytes,
		RowCount:    entry.RowCount,
		CreatedAt:   entry.CreatedAt,
		ExpiresAt:   entry.ExpiresAt,
		PeriodStart: entry.PeriodStart,
		PeriodEnd:   entry.PeriodEnd,
	}, nil
}

// checkQuota мягкий лимит: подсчёт и вставка не атомарны, параллельные
// генерации могут превысить квоту на число запросов в полёте.
func (s *ReportService) checkQuota(ctx context.Context, owner string) error {
	if s.cfg.MaxArtifacts > 0 {
		n, err := s.index.Count(ctx)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeUnavailable, "failed to count artifacts")
		}
		if n >= s.cfg.MaxArtifacts {
			return apperror.New(apperror.CodeQuotaExceeded, "artifact storage is full, try again later").
				WithDetails("limit", s.cfg.MaxArtifacts)
		}
	}

	if s.cfg.MaxArtifactsPerOwner > 0 {
		n, err := s.index.CountByOwner(ctx, owner)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeUnavailable, "failed to count artifacts")
		}
		if n >= s.cfg.MaxArtifactsPerOwner {
			return apperror.New(apperror.CodeQuotaExceeded, "too many reports, delete old ones or wait for them to expire").
				WithDetails("limit", s.cfg.MaxArtifactsPerOwner)
		}
	}
	return nil
}

func (s *ReportService) downloadURL(id string) string {
	return fmt.Sprintf("%s/api/v1/reports/%s/download", s.cfg.PublicURL, id)
}

// Download открытый файл артефакта; вызывающий закрывает File
type Download struct {
	Entry       *index.Entry
	File        *os.File
	ContentType string
	ModTime     time.Time
}

// Close закрывает файл
func (d *Download) Close() error {
	return d.File.Close()
}

// DownloadReport открывает файл артефакта. Отсутствие записи, истёкший срок
// и пропавший файл дают одну и ту же ошибку NOT_FOUND_OR_EXPIRED.
func (s *ReportService) DownloadReport(ctx context.Context, id string) (*Download, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.DownloadReport",
		telemetry.WithAttributes(attribute.String(telemetry.AttrReportID, id)),
	)
	defer span.End()

	e, err := s.lookup(ctx, id)
	if err != nil {
		s.metrics.RecordDownload(false)
		return nil, err
	}

	f, err := os.Open(e.Path)
	if err != nil {
		s.metrics.RecordDownload(false)
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithContext(ctx).Warn("artifact file missing for live entry", "id", id, "path", e.Path)
		}
		return nil, notFound(id)
	}

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	s.metrics.RecordDownload(true)
	return &Download{
		Entry:       e,
		File:        f,
		ContentType: e.Format.ContentType(),
		ModTime:     modTime,
	}, nil
}

// lookup возвращает живую запись индекса
func (s *ReportService) lookup(ctx context.Context, id string) (*index.Entry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, notFound(id)
	}

	e, err := s.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, notFound(id)
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeUnavailable, "failed to read artifact index")
	}
	if e.Expired(s.now()) {
		return nil, notFound(id)
	}
	return e, nil
}

func notFound(id string) error {
	return apperror.New(apperror.CodeNotFoundOrExpired, notFoundMessage).WithDetails("id", id)
}

// GetReportHistory возвращает неистёкшие отчёты владельца, новые первыми
func (s *ReportService) GetReportHistory(ctx context.Context, owner string) ([]*index.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.GetReportHistory")
	defer span.End()

	if owner == "" {
		owner = identity.SystemSubject
	}

	entries, err := s.index.ListByOwner(ctx, owner, s.now())
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.Wrap(err, apperror.CodeUnavailable, "failed to list reports")
	}
	return entries, nil
}

// DeleteExpiredReports выполняет один проход reaper синхронно.
// При частичной ошибке возвращается результат и ошибка-предупреждение.
func (s *ReportService) DeleteExpiredReports(ctx context.Context) (*reaper.Result, error) {
	res, err := s.reaper.Sweep(ctx)
	s.refreshGauge(ctx)
	return &res, err
}

// DeleteReport удаляет отчёт по запросу владельца или администратора.
// Чужой отчёт неотличим от несуществующего.
func (s *ReportService) DeleteReport(ctx context.Context, id string, p identity.Principal) error {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.DeleteReport",
		telemetry.WithAttributes(attribute.String(telemetry.AttrReportID, id)),
	)
	defer span.End()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && e.Owner != p.Owner() {
		return notFound(id)
	}

	removed, err := s.index.Remove(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		// Успел забрать reaper
		return notFound(id)
	}
	// Запись уже изъята, даже если очистка индекса не удалась
	if removed != nil {
		if _, rmErr := s.store.Remove(removed.Path); rmErr != nil {
			telemetry.RecordError(ctx, rmErr)
			logger.WithContext(ctx).Warn("failed to delete artifact file", "id", id, "path", removed.Path, "error", rmErr)
		}
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeUnavailable, "failed to delete report")
	}

	s.refreshGauge(ctx)
	logger.WithContext(ctx).Info("report deleted", "id", id, "by", p.Subject)
	return nil
}

// TypeInfo описание поддерживаемого типа отчёта
type TypeInfo struct {
	Type        catalog.ReportType
	Title       string
	Description string
	Headers     []string
}

// SupportedTypes перечисляет типы отчётов
func (s *ReportService) SupportedTypes() []TypeInfo {
	entries := s.catalog.Types()
	out := make([]TypeInfo, len(entries))
	for i, e := range entries {
		out[i] = TypeInfo{Type: e.Type, Title: e.Title, Description: e.Description, Headers: e.Headers}
	}
	return out
}

// SupportedFormats перечисляет форматы
func (s *ReportService) SupportedFormats() []generator.Format {
	return s.registry.Formats()
}

// HealthStatus состояние сервиса
type HealthStatus struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptimeSeconds"`
	ReportsGenerated int64             `json:"reportsGenerated"`
	ArtifactsCached  int               `json:"artifactsCached"`
	Reaper           string            `json:"reaper"`
	Components       map[string]string `json:"components"`
}

// Health проверяет индекс и источник данных
func (s *ReportService) Health(ctx context.Context) *HealthStatus {
	resp := &HealthStatus{
		Status:           "SERVING",
		Version:          s.cfg.Version,
		UptimeSeconds:    int64(time.Since(startTime).Seconds()),
		ReportsGenerated: s.reportsGenerated.Load(),
		Reaper:           s.reaper.State().String(),
		Components:       make(map[string]string),
	}

	if s.closed.Load() {
		resp.Status = "NOT_SERVING"
	}

	if err := s.index.Ping(ctx); err != nil {
		resp.Status = "NOT_SERVING"
		resp.Components["index"] = "ERROR: " + err.Error()
	} else {
		resp.Components["index"] = "OK"
		if n, err := s.index.Count(ctx); err == nil {
			resp.ArtifactsCached = n
		}
	}

	switch {
	case s.source == nil:
		resp.Components["data_source"] = "NOT_CONFIGURED"
	default:
		if err := s.source.Ping(ctx); err != nil {
			if resp.Status == "SERVING" {
				resp.Status = "DEGRADED"
			}
			resp.Components["data_source"] = "ERROR: " + err.Error()
		} else {
			resp.Components["data_source"] = "OK"
		}
	}

	return resp
}

// Start сверяет каталог артефактов с индексом и запускает reaper в фоне
func (s *ReportService) Start(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	s.reaper.Start(ctx)
	return nil
}

// RunReaper выполняет фоновые проходы reaper и блокируется до отмены ctx.
// Вызывается вместо Start, когда жизненным циклом управляет вызывающий.
func (s *ReportService) RunReaper(ctx context.Context) error {
	return s.reaper.Run(ctx)
}

// Reconcile удаляет файлы без записей в индексе и недописанные временные файлы
func (s *ReportService) Reconcile(ctx context.Context) error {
	removed, err := s.store.RemoveOrphans(ctx, func(path string) bool {
		ok, err := s.index.Contains(ctx, path)
		// При ошибке индекса файл сохраняется
		return ok || err != nil
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile artifacts dir: %w", err)
	}
	if removed > 0 {
		s.log.Info("startup reconciliation finished", "orphans_removed", removed)
	}

	s.refreshGauge(ctx)
	return nil
}

// Close останавливает reaper и закрывает индекс
func (s *ReportService) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.reaper.Stop()
	return s.index.Close()
}

// ReaperState текущее состояние reaper
func (s *ReportService) ReaperState() reaper.State {
	return s.reaper.State()
}

func (s *ReportService) refreshGauge(ctx context.Context) {
	if n, err := s.index.Count(ctx); err == nil {
		s.metrics.SetArtifactsCached(n)
	}
}

// Now текущее время по часам сервиса
func (s *ReportService) Now() time.Time {
	return s.now()
}

// Location часовой пояс, в котором разбираются даты запросов
func (s *ReportService) Location() *time.Location {
	return s.cfg.Location
}
