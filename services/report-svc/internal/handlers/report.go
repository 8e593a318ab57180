package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"workshop/pkg/apperror"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
	"workshop/services/report-svc/internal/generator"
	"workshop/services/report-svc/internal/index"
	"workshop/services/report-svc/internal/middleware"
	"workshop/services/report-svc/internal/reaper"
	"workshop/services/report-svc/internal/service"
)

const maxRequestBody = 64 << 10

// ReportService операции сервиса отчётов, доступные по HTTP
type ReportService interface {
	GenerateReport(ctx context.Context, req *service.GenerateRequest) (*service.ReportHandle, error)
	DownloadReport(ctx context.Context, id string) (*service.Download, error)
	GetReportHistory(ctx context.Context, owner string) ([]*index.Entry, error)
	DeleteReport(ctx context.Context, id string, p identity.Principal) error
	DeleteExpiredReports(ctx context.Context) (*reaper.Result, error)
	SupportedTypes() []service.TypeInfo
	SupportedFormats() []generator.Format
	Health(ctx context.Context) *service.HealthStatus
	Now() time.Time
	Location() *time.Location
}

// ReportHandler HTTP обработчики отчётов
type ReportHandler struct {
	svc ReportService
}

// NewReportHandler создаёт обработчики
func NewReportHandler(svc ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

type generateRequest struct {
	ReportType string `json:"reportType"`
	Format     string `json:"format"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Period     string `json:"period,omitempty"`
}

// ReportResponse ответ на создание отчёта
type ReportResponse struct {
	ID          string    `json:"id"`
	DownloadURL string    `json:"downloadUrl"`
	ReportType  string    `json:"reportType"`
	Format      string    `json:"format"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	RowCount    int       `json:"rowCount"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// HistoryItem элемент истории
type HistoryItem struct {
	ID          string       `json:"id"`
	ReportType  string       `json:"reportType"`
	Format      string       `json:"format"`
	FileName    string       `json:"fileName"`
	Size        int64        `json:"size"`
	Status      index.Status `json:"status"`
	GeneratedAt time.Time    `json:"generatedAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// HistoryResponse история отчётов владельца
type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
	Total int           `json:"total"`
}

// CleanupFailure файл, который reaper не смог удалить
type CleanupFailure struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CleanupResponse итог ручной очистки
type CleanupResponse struct {
	Reclaimed    int              `json:"reclaimed"`
	FilesDeleted int              `json:"filesDeleted"`
	FilesMissing int              `json:"filesMissing"`
	Failures     []CleanupFailure `json:"failures"`
}

// TypeResponse описание типа отчёта
type TypeResponse struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Headers     []string `json:"headers"`
}

// TypesResponse поддерживаемые типы, форматы и периоды
type TypesResponse struct {
	Types   []TypeResponse `json:"types"`
	Formats []string       `json:"formats"`
	Periods []string       `json:"periods"`
}

// GenerateReport POST /api/v1/reports
func (h *ReportHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	req, err := h.toServiceRequest(&body, middleware.GetPrincipal(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	handle, err := h.svc.GenerateReport(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Location", handle.DownloadURL)
	middleware.WriteJSON(w, http.StatusCreated, ReportResponse{
		ID:          handle.ID,
		DownloadURL: handle.DownloadURL,
		ReportType:  handle.ReportType.String(),
		Format:      handle.Format.String(),
		FileName:    handle.FileName,
		Size:        handle.SizeBytes,
		RowCount:    handle.RowCount,
		CreatedAt:   handle.CreatedAt,
		ExpiresAt:   handle.ExpiresAt,
		PeriodStart: handle.PeriodStart,
		PeriodEnd:   handle.PeriodEnd,
	})
}

func (h *ReportHandler) toServiceRequest(body *generateRequest, p identity.Principal) (*service.GenerateRequest, error) {
	req := &service.GenerateRequest{
		ReportType: body.ReportType,
		Format:     body.Format,
		Period:     body.Period,
		Owner:      p.Owner(),
	}

	verrs := apperror.NewValidationErrors()
	parse := func(value, field string) *time.Time {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		t, err := service.ParseDate(value, h.svc.Location())
		if err != nil {
			verrs.AddErrorWithField(apperror.CodeValidation, err.Error(), field)
			return nil
		}
		return &t
	}
	req.StartDate = parse(body.StartDate, "startDate")
	req.EndDate = parse(body.EndDate, "endDate")

	if err := verrs.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// DownloadReport GET /api/v1/reports/{id}/download
func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.DownloadReport(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	defer d.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", d.ContentType)
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Entry.FileName}))
	hdr.Set("Cache-Control", "private, no-cache")
	if d.Entry.Checksum != "" {
		hdr.Set("ETag", `"`+d.Entry.Checksum+`"`)
	}

	http.ServeContent(w, r, d.Entry.FileName, d.ModTime, d.File)
}

// GetReportHistory GET /api/v1/reports/history
func (h *ReportHandler) GetReportHistory(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	owner := p.Owner()
	if q := r.URL.Query().Get("owner"); q != "" && p.IsAdmin() {
		owner = q
	}

	entries, err := h.svc.GetReportHistory(r.Context(), owner)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	now := h.svc.Now()
	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{
			ID:          e.ID,
			ReportType:  e.ReportType.String(),
			Format:      e.Format.String(),
			FileName:    e.FileName,
			Size:        e.SizeBytes,
			Status:      e.Status(now),
			GeneratedAt: e.CreatedAt,
			ExpiresAt:   e.ExpiresAt,
		}
	}

	middleware.WriteJSON(w, http.StatusOK, HistoryResponse{Items: items, Total: len(items)})
}

// DeleteReport DELETE /api/v1/reports/{id}
func (h *ReportHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if err := h.svc.DeleteReport(r.Context(), r.PathValue("id"), p); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup POST /api/v1/reports/cleanup. Частичная ошибка не меняет статус 200,
// неудавшиеся файлы перечисляются в ответе.
func (h *ReportHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteExpiredReports(r.Context())
	if err != nil && !apperror.IsWarning(err) {
		middleware.WriteError(w, r, err)
		return
	}
	if err != nil {
		logger.WithContext(r.Context()).Warn("manual cleanup finished with failures", "error", err)
	}

	resp := CleanupResponse{
		Reclaimed:    res.Reclaimed,
		FilesDeleted: res.FilesDeleted,
		FilesMissing: res.FilesMissing,
		Failures:     make([]CleanupFailure, 0, len(res.Failures)),
	}
	for _, f := range res.Failures {
		cf := CleanupFailure{ID: f.ID, Path: f.Path}
		if f.Err != nil {
			cf.Error = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, cf)
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListTypes GET /api/v1/reports/types
func (h *ReportHandler) ListTypes(w http.ResponseWriter, _ *http.Request) {
	types := h.svc.SupportedTypes()
	resp := TypesResponse{
		Types:   make([]TypeResponse, len(types)),
		Formats: make([]string, 0),
		Periods: make([]string, 0),
	}
	for i, t := range types {
		resp.Types[i] = TypeResponse{
			Type:        t.Type.String(),
			Title:       t.Title,
			Description: t.Description,
			Headers:     t.Headers,
		}
	}
	for _, f := range h.svc.SupportedFormats() {
		resp.Formats = append(resp.Formats, f.String())
	}
	for _, p := range service.Periods() {
		resp.Periods = append(resp.Periods, string(p))
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Health GET /health
func (h *ReportHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Health(r.Context())
	code := http.StatusOK
	if status.Status == "NOT_SERVING" {
		code = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, code, status)
}

// Ready GET /ready. Деградация источника данных не снимает готовность:
// скачивание уже созданных отчётов продолжает работать.
func (h *ReportHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Health(r.Context())
	if status.Status == "NOT_SERVING" {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "status": status.Status})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "status": status.Status})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.New(apperror.CodeInvalidArgument, "request body is required")
		case errors.As(err, &maxErr):
			return apperror.New(apperror.CodeInvalidArgument,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return apperror.Wrap(err, apperror.CodeInvalidArgument, "malformed JSON body: "+err.Error())
		}
	}
	return nil
}
