package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop/pkg/apperror"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
	"workshop/services/report-svc/internal/artifact"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
	"workshop/services/report-svc/internal/handlers"
	"workshop/services/report-svc/internal/index"
	"workshop/services/report-svc/internal/middleware"
	"workshop/services/report-svc/internal/service"
	"workshop/services/report-svc/internal/testutil"
)

const (
	testSecret   = "cli-test-secret"
	testIssuer   = "workshop"
	testAdminKey = "cli-admin-key"
)

func init() {
	logger.InitWithConfig(logger.Config{Level: "error", Output: "discard"})
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, artifact.EnsureDir(dir))

	src := testutil.NewFakeSource()
	cat := catalog.NewWorkshop(src, catalog.Settings{CurrencySymbol: "$", LowStockThreshold: 5})
	reg := generator.NewDefaultRegistry(generator.Options{CompanyName: "Test Garage"})

	svc := service.NewReportService(service.Config{Version: "test"}, service.Deps{
		Catalog:  cat,
		Registry: reg,
		Store:    artifact.NewStore(dir, cat, reg),
		Index:    index.NewMemoryIndex(),
		Source:   src,
	})
	t.Cleanup(func() { _ = svc.Close() })

	hash, err := identity.HashKey(testAdminKey)
	require.NoError(t, err)

	srv := httptest.NewServer(handlers.NewRouter(handlers.NewReportHandler(svc), handlers.RouterConfig{
		Auth: middleware.AuthConfig{
			Enabled:      true,
			Tokens:       identity.NewTokenManager(&identity.JWTConfig{SecretKey: testSecret, Issuer: testIssuer}),
			AdminKeyHash: hash,
		},
		Metrics: metrics.NewNop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run выполняет reportctl с аргументами и возвращает stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	out, err := run(t, "token", "--secret", testSecret, "--issuer", testIssuer, "--subject", subject)
	require.NoError(t, err)
	return strings.TrimSpace(out)
}

func TestToken_ValidForService(t *testing.T) {
	token := mintToken(t, "alice")

	claims, err := identity.NewTokenManager(&identity.JWTConfig{SecretKey: testSecret, Issuer: testIssuer}).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, identity.RoleUser, claims.Role)
}

func TestToken_RequiresSecretAndSubject(t *testing.T) {
	_, err := run(t, "token", "--secret", "", "--subject", "alice")
	assert.ErrorIs(t, err, errMissingArg)

	_, err = run(t, "token", "--secret", testSecret)
	assert.ErrorIs(t, err, errMissingArg)
}

func TestGenerateDownloadAndHistory(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, "alice")
	outDir := t.TempDir()

	out, err := run(t, "--addr", srv.URL, "--token", token, "--json",
		"generate", "--type", "INVENTORY_STOCK", "--format", "csv",
		"--start", "2024-01-01", "--end", "2024-01-31")
	require.NoError(t, err, out)

	var resp handlers.ReportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "inventory_stock_2024-01-01_2024-01-31.csv", resp.FileName)

	out, err = run(t, "--addr", srv.URL, "--token", token, "download", resp.ID, "-o", outDir)
	require.NoError(t, err, out)

	saved := filepath.Join(outDir, resp.FileName)
	assert.Equal(t, saved, strings.TrimSpace(out))
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Part,Category,Qty,Price\nOil Filter,Filters,12,$8.00"))

	out, err = run(t, "--addr", srv.URL, "--token", token, "history")
	require.NoError(t, err)
	assert.Contains(t, out, resp.ID)
	assert.Contains(t, out, "COMPLETED")

	// Другой владелец не видит чужие отчёты
	out, err = run(t, "--addr", srv.URL, "--token", mintToken(t, "bob"), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No reports.")
}

func TestGenerate_WithOutputFile(t *testing.T) {
	srv := newTestServer(t)
	target := filepath.Join(t.TempDir(), "stock.csv")

	out, err := run(t, "--addr", srv.URL, "--token", mintToken(t, "alice"),
		"generate", "-t", "INVENTORY_STOCK", "--period", "LAST_MONTH", "-o", target)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Saved:")

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestGenerate_ValidationErrorIsTyped(t *testing.T) {
	srv := newTestServer(t)

	_, err := run(t, "--addr", srv.URL, "--token", mintToken(t, "alice"),
		"generate", "--type", "INVENTORY_STOCK", "--format", "docx", "--period", "LAST_MONTH")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeUnsupportedFormat), err.Error())
	assert.Equal(t, 2, exitCode(err))
}

func TestDownload_NotFound(t *testing.T) {
	srv := newTestServer(t)

	_, err := run(t, "--addr", srv.URL, "--token", mintToken(t, "alice"), "download", "missing", "-o", "-")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeNotFoundOrExpired))
}

func TestCleanupAndTypes(t *testing.T) {
	srv := newTestServer(t)

	_, err := run(t, "--addr", srv.URL, "--token", mintToken(t, "alice"), "cleanup")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodePermissionDenied))
	assert.Equal(t, 1, exitCode(err))

	out, err := run(t, "--addr", srv.URL, "--admin-key", testAdminKey, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Reclaimed 0 entries")

	out, err = run(t, "--addr", srv.URL, "--admin-key", testAdminKey, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "INVENTORY_STOCK")
	assert.Contains(t, out, "Formats: CSV, EXCEL, HTML, JSON, MARKDOWN, PDF")
}

func TestDelete(t *testing.T) {
	srv := newTestServer(t)
	token := mintToken(t, "alice")
	c := NewClient(srv.URL, token, "", 5*time.Second)

	resp, err := c.Generate(context.Background(), GenerateParams{ReportType: "INVENTORY_STOCK", Format: "csv", Period: "LAST_MONTH"})
	require.NoError(t, err)

	out, err := run(t, "--addr", srv.URL, "--token", token, "delete", resp.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+resp.ID)

	_, err = c.Download(context.Background(), resp.ID, &bytes.Buffer{})
	assert.True(t, apperror.Is(err, apperror.CodeNotFoundOrExpired))
}
