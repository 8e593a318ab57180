package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop/pkg/apperror"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
	"workshop/pkg/ratelimit"
	"workshop/services/report-svc/internal/artifact"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
	"workshop/services/report-svc/internal/index"
	"workshop/services/report-svc/internal/middleware"
	"workshop/services/report-svc/internal/service"
	"workshop/services/report-svc/internal/testutil"
)

const adminKey = "workshop-admin-key"

var t0 = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func init() {
	logger.InitWithConfig(logger.Config{Level: "error", Output: "discard"})
}

type testAPI struct {
	handler http.Handler
	svc     *service.ReportService
	clock   *testutil.Clock
	source  *testutil.FakeSource
	tokens  *identity.TokenManager
}

func newTestAPI(t *testing.T, limiter ratelimit.Limiter) *testAPI {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, artifact.EnsureDir(dir))

	a := &testAPI{
		clock:  testutil.NewClock(t0),
		source: testutil.NewFakeSource(),
		tokens: identity.NewTokenManager(&identity.JWTConfig{
			SecretKey:   "handler-test-secret",
			TokenExpiry: time.Hour,
			Issuer:      "workshop-test",
		}),
	}

	cat := catalog.NewWorkshop(a.source, catalog.Settings{CurrencySymbol: "$", LowStockThreshold: 5})
	reg := generator.NewDefaultRegistry(generator.Options{CompanyName: "Test Garage"})
	store := artifact.NewStore(dir, cat, reg, artifact.WithClock(a.clock.Now))

	a.svc = service.NewReportService(service.Config{
		Version:    "test",
		DefaultTTL: 7 * 24 * time.Hour,
		PublicURL:  "http://reports.local",
	}, service.Deps{
		Catalog:  cat,
		Registry: reg,
		Store:    store,
		Index:    index.NewMemoryIndex(),
		Source:   a.source,
	}, service.WithClock(a.clock.Now))
	t.Cleanup(func() { _ = a.svc.Close() })

	hash, err := identity.HashKey(adminKey)
	require.NoError(t, err)

	a.handler = NewRouter(NewReportHandler(a.svc), RouterConfig{
		Auth: middleware.AuthConfig{
			Enabled:      true,
			Tokens:       a.tokens,
			AdminKeyHash: hash,
		},
		GenerateLimiter: limiter,
		Metrics:         metrics.NewNop(),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics")
		}),
		DocsSpec: []byte(`{"openapi":"3.0.3"}`),
	})
	return a
}

func (a *testAPI) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := a.tokens.Generate(subject, identity.RoleUser)
	require.NoError(t, err)
	return tok
}

// do выполняет запрос; as - субъект токена, "admin" - ключ администратора, "" - аноним
func (a *testAPI) do(t *testing.T, method, target, as string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, rd)
	switch as {
	case "":
	case "admin":
		req.Header.Set(middleware.HeaderAdminKey, adminKey)
	default:
		req.Header.Set("Authorization", "Bearer "+a.token(t, as))
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) generate(t *testing.T, as string) ReportResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/reports", as, map[string]string{
		"reportType": "INVENTORY_STOCK",
		"format":     "csv",
		"startDate":  "2024-01-01",
		"endDate":    "2024-01-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func downloadPath(resp ReportResponse) string {
	return strings.TrimPrefix(resp.DownloadURL, "http://reports.local")
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	return body.Error
}

func TestGenerateAndDownload(t *testing.T) {
	a := newTestAPI(t, nil)

	resp := a.generate(t, "alice")
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "INVENTORY_STOCK", resp.ReportType)
	assert.Equal(t, "CSV", resp.Format)
	assert.Equal(t, "inventory_stock_2024-01-01_2024-01-31.csv", resp.FileName)
	assert.Equal(t, 1, resp.RowCount)
	assert.Positive(t, resp.Size)
	assert.True(t, resp.ExpiresAt.Equal(t0.Add(7*24*time.Hour)))
	assert.Equal(t, "http://reports.local/api/v1/reports/"+resp.ID+"/download", resp.DownloadURL)

	rec := a.do(t, http.MethodGet, downloadPath(resp), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Part,Category,Qty,Price\nOil Filter,Filters,12,$8.00"),
		rec.Body.String())
	assert.Equal(t, generator.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, resp.FileName, params["filename"])
}

func TestDownload_ConditionalETag(t *testing.T) {
	a := newTestAPI(t, nil)
	resp := a.generate(t, "alice")

	first := a.do(t, http.MethodGet, downloadPath(resp), "alice", nil)
	require.Equal(t, http.StatusOK, first.Code)

	req := httptest.NewRequest(http.MethodGet, downloadPath(resp), nil)
	req.Header.Set("Authorization", "Bearer "+a.token(t, "alice"))
	req.Header.Set("If-None-Match", first.Header().Get("ETag"))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestDownload_ExpiredIsNotFound(t *testing.T) {
	a := newTestAPI(t, nil)
	resp := a.generate(t, "alice")

	a.clock.Advance(8 * 24 * time.Hour)

	rec := a.do(t, http.MethodGet, downloadPath(resp), "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFoundOrExpired, errorCode(t, rec).Code)

	rec = a.do(t, http.MethodGet, "/api/v1/reports/no-such-id/download", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFoundOrExpired, errorCode(t, rec).Code)
}

func TestGenerate_Validation(t *testing.T) {
	a := newTestAPI(t, nil)

	tests := []struct {
		name      string
		body      any
		wantCode  apperror.ErrorCode
		wantField string
	}{
		{
			name:      "bad start date",
			body:      map[string]string{"reportType": "INVENTORY_STOCK", "format": "CSV", "startDate": "01/02/2024", "endDate": "2024-01-31"},
			wantCode:  apperror.CodeValidation,
			wantField: "startDate",
		},
		{
			name:      "unsupported format",
			body:      map[string]string{"reportType": "INVENTORY_STOCK", "format": "DOCX", "period": "LAST_MONTH"},
			wantCode:  apperror.CodeUnsupportedFormat,
			wantField: "format",
		},
		{
			name:     "start after end",
			body:     map[string]string{"reportType": "INVENTORY_STOCK", "format": "CSV", "startDate": "2024-02-01", "endDate": "2024-01-01"},
			wantCode: apperror.CodeInvalidDateRange,
		},
		{
			name:     "malformed json",
			body:     `{"reportType":`,
			wantCode: apperror.CodeInvalidArgument,
		},
		{
			name:     "unknown field",
			body:     `{"reportType":"INVENTORY_STOCK","format":"CSV","owner":"mallory"}`,
			wantCode: apperror.CodeInvalidArgument,
		},
		{
			name:     "empty body",
			body:     "",
			wantCode: apperror.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/v1/reports", "alice", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			detail := errorCode(t, rec)
			assert.Equal(t, tt.wantCode, detail.Code)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, detail.Field)
			}
		})
	}
}

func TestGenerate_RequiresAuthentication(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/v1/reports", "", map[string]string{
		"reportType": "INVENTORY_STOCK", "format": "CSV",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperror.CodeUnauthenticated, errorCode(t, rec).Code)
}

func TestGenerate_DataSourceError(t *testing.T) {
	a := newTestAPI(t, nil)
	a.source.Err = assert.AnError

	rec := a.do(t, http.MethodPost, "/api/v1/reports", "alice", map[string]string{
		"reportType": "INVENTORY_STOCK", "format": "CSV", "period": "LAST_MONTH",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apperror.CodeDataSource, errorCode(t, rec).Code)
}

func TestGenerate_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{Requests: 1, Window: time.Minute})
	defer limiter.Close()
	a := newTestAPI(t, limiter)

	a.generate(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/v1/reports", "alice", map[string]string{
		"reportType": "INVENTORY_STOCK", "format": "CSV", "period": "LAST_MONTH",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, apperror.CodeRateLimited, errorCode(t, rec).Code)

	// Лимит только на создание
	rec = a.do(t, http.MethodGet, "/api/v1/reports/history", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistory_OwnerIsolation(t *testing.T) {
	a := newTestAPI(t, nil)
	mine := a.generate(t, "alice")
	a.generate(t, "bob")

	var hist HistoryResponse

	rec := a.do(t, http.MethodGet, "/api/v1/reports/history", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, mine.ID, hist.Items[0].ID)
	assert.Equal(t, index.StatusCompleted, hist.Items[0].Status)

	// Параметр owner игнорируется для обычного пользователя
	rec = a.do(t, http.MethodGet, "/api/v1/reports/history?owner=bob", "alice", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, mine.ID, hist.Items[0].ID)

	rec = a.do(t, http.MethodGet, "/api/v1/reports/history?owner=alice", "admin", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, mine.ID, hist.Items[0].ID)

	a.clock.Advance(8 * 24 * time.Hour)
	rec = a.do(t, http.MethodGet, "/api/v1/reports/history", "alice", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	assert.Zero(t, hist.Total)
	assert.NotNil(t, hist.Items)
}

func TestDeleteReport(t *testing.T) {
	a := newTestAPI(t, nil)
	resp := a.generate(t, "alice")
	target := "/api/v1/reports/" + resp.ID

	rec := a.do(t, http.MethodDelete, target, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, target, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, downloadPath(resp), "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanup(t *testing.T) {
	a := newTestAPI(t, nil)
	resp := a.generate(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/v1/reports/cleanup", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	a.clock.Advance(8 * 24 * time.Hour)

	rec = a.do(t, http.MethodPost, "/api/v1/reports/cleanup", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res CleanupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.Reclaimed)
	assert.Equal(t, 1, res.FilesDeleted)
	assert.Empty(t, res.Failures)

	// Повторный проход ничего не находит
	rec = a.do(t, http.MethodPost, "/api/v1/reports/cleanup", "admin", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Zero(t, res.Reclaimed)

	rec = a.do(t, http.MethodGet, downloadPath(resp), "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTypes(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/api/v1/reports/types", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TypesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.ElementsMatch(t, []string{"CSV", "EXCEL", "HTML", "JSON", "MARKDOWN", "PDF"}, resp.Formats)
	assert.Contains(t, resp.Periods, "LAST_MONTH")

	var found bool
	for _, tp := range resp.Types {
		if tp.Type == "INVENTORY_STOCK" {
			found = true
			assert.Equal(t, []string{"Part", "Category", "Qty", "Price"}, tp.Headers)
		}
	}
	assert.True(t, found, "INVENTORY_STOCK must be listed")
}

func TestHealthAndReady(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health service.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "SERVING", health.Status)

	a.source.PingErr = assert.AnError
	rec = a.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, a.svc.Close())
	rec = a.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointAndRequestID(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestDocsAreServedWithoutAuth(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/docs/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"openapi":"3.0.3"}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/docs/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}
