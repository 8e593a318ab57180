// services/report-svc/internal/artifact/store.go
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"workshop/pkg/apperror"
	"workshop/pkg/logger"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
)

const fileDateLayout = "2006-01-02"

// Artifact сгенерированный файл отчёта
type Artifact struct {
	ID          string
	Path        string
	FileName    string
	Format      generator.Format
	ReportType  catalog.ReportType
	SizeBytes   int64
	Checksum    string
	RowCount    int
	CreatedAt   time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Store создаёт файлы отчётов в каталоге артефактов
type Store struct {
	dir      string
	catalog  *catalog.Catalog
	registry *generator.Registry
	maxRows  int
	now      func() time.Time
}

// Option настройка Store
type Option func(*Store)

// WithMaxRows ограничивает число строк в отчёте; 0 - без лимита
func WithMaxRows(n int) Option {
	return func(s *Store) {
		s.maxRows = n
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore создаёт хранилище. Каталог должен существовать (см. EnsureDir).
func NewStore(dir string, cat *catalog.Catalog, registry *generator.Registry, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		catalog:  cat,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureDir создаёт каталог артефактов и проверяет, что в него можно писать
func EnsureDir(dir string) error {
	if dir == "" {
		return errors.New("artifacts dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	check, err := os.CreateTemp(dir, generator.TempPrefix+"check-*")
	if err != nil {
		return fmt.Errorf("artifacts dir is not writable: %w", err)
	}
	check.Close()
	return os.Remove(check.Name())
}

// Dir возвращает каталог артефактов
func (s *Store) Dir() string {
	return s.dir
}

// NewID формирует идентификатор артефакта: {type}-{format}-{uuidv7}
func NewID(reportType catalog.ReportType, format generator.Format) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", reportType, format, u)), nil
}

// FileName формирует имя файла для скачивания
func FileName(reportType catalog.ReportType, format generator.Format, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s.%s",
		strings.ToLower(string(reportType)),
		start.Format(fileDateLayout), end.Format(fileDateLayout),
		format.Extension())
}

// CreateArtifact получает строки отчёта и публикует файл в каталоге.
// Запись файла не прерывается отменой ctx, запрос данных прерывается.
func (s *Store) CreateArtifact(ctx context.Context, reportType catalog.ReportType, format generator.Format, start, end time.Time) (*Artifact, error) {
	renderer, err := s.registry.Get(format)
	if err != nil {
		return nil, err
	}

	entry, err := s.catalog.Resolve(reportType)
	if err != nil {
		return nil, err
	}

	rows, err := entry.Rows(ctx, start, end)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperror.Wrap(err, apperror.CodeDataSource,
			fmt.Sprintf("failed to load %s data", reportType))
	}

	if s.maxRows > 0 && len(rows) > s.maxRows {
		return nil, apperror.New(apperror.CodeTooManyRows, "report exceeds the row limit, narrow the period").
			WithDetails("rows", len(rows)).
			WithDetails("maxRows", s.maxRows)
	}

	id, err := NewID(reportType, format)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to generate artifact id")
	}

	createdAt := s.now()
	path := filepath.Join(s.dir, id+"."+format.Extension())
	table := &generator.Table{
		Title:       entry.Title,
		Headers:     entry.Headers,
		Rows:        rows,
		PeriodStart: start,
		PeriodEnd:   end,
		GeneratedAt: createdAt,
	}

	if _, err := renderer.Render(context.WithoutCancel(ctx), path, table); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeArtifactWriteFailure,
			fmt.Sprintf("failed to write %s artifact", format))
	}

	size, sum, err := checksum(path)
	if err != nil {
		// Непрочитанный файл не публикуется
		if _, rmErr := s.Remove(path); rmErr != nil {
			logger.Log.Warn("failed to remove unreadable artifact", "path", path, "error", rmErr)
		}
		return nil, apperror.Wrap(err, apperror.CodeArtifactWriteFailure, "artifact is not readable after write")
	}

	return &Artifact{
		ID:          id,
		Path:        path,
		FileName:    FileName(reportType, format, start, end),
		Format:      format,
		ReportType:  reportType,
		SizeBytes:   size,
		Checksum:    sum,
		RowCount:    len(rows),
		CreatedAt:   createdAt,
		PeriodStart: start,
		PeriodEnd:   end,
	}, nil
}

// checksum возвращает размер и SHA-256 опубликованного файла
func checksum(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Remove удаляет файл; отсутствие файла не ошибка.
// Возвращает false, если файла уже не было.
func (s *Store) Remove(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// RemoveOrphans удаляет из каталога файлы, на которые не ссылается индекс,
// и незавершённые временные файлы. Возвращает число удалённых файлов.
func (s *Store) RemoveOrphans(ctx context.Context, known func(path string) bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifacts dir: %w", err)
	}

	log := logger.WithComponent("artifact-store")
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if !strings.HasPrefix(e.Name(), generator.TempPrefix) && known(path) {
			continue
		}

		if _, err := s.Remove(path); err != nil {
			log.Warn("failed to remove orphan artifact", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info("orphan artifacts removed", "count", removed, "dir", s.dir)
	}
	return removed, nil
}
