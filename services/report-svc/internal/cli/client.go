package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"workshop/pkg/apperror"
	"workshop/services/report-svc/internal/handlers"
	"workshop/services/report-svc/internal/middleware"
)

// Client HTTP клиент API отчётов
type Client struct {
	baseURL  string
	token    string
	adminKey string
	http     *http.Client
}

// NewClient создаёт клиент; baseURL без /api/v1
func NewClient(baseURL, token, adminKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		adminKey: adminKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// GenerateParams параметры генерации
type GenerateParams struct {
	ReportType string `json:"reportType"`
	Format     string `json:"format"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Period     string `json:"period,omitempty"`
}

// Generate создаёт отчёт
func (c *Client) Generate(ctx context.Context, p GenerateParams) (*handlers.ReportResponse, error) {
	var out handlers.ReportResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/reports", p, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History возвращает отчёты владельца; owner учитывается только для администратора
func (c *Client) History(ctx context.Context, owner string) (*handlers.HistoryResponse, error) {
	path := "/api/v1/reports/history"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var out handlers.HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete удаляет отчёт
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/reports/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// Cleanup запускает проход reaper
func (c *Client) Cleanup(ctx context.Context) (*handlers.CleanupResponse, error) {
	var out handlers.CleanupResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/reports/cleanup", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Types возвращает поддерживаемые типы, форматы и периоды
func (c *Client) Types(ctx context.Context) (*handlers.TypesResponse, error) {
	var out handlers.TypesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/reports/types", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download пишет файл отчёта в w и возвращает имя файла из Content-Disposition
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	name := id
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read report body: %w", err)
	}
	return name, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.adminKey != "" {
		req.Header.Set(middleware.HeaderAdminKey, c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// decodeError восстанавливает *apperror.Error из тела ответа
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body middleware.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return &apperror.Error{
		Code:    body.Error.Code,
		Message: body.Error.Message,
		Field:   body.Error.Field,
		Details: body.Error.Details,
	}
}
