// Package index хранит метаданные сгенерированных артефактов с временем
// жизни. Запись неизменяема после вставки: её можно только удалить.
package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"workshop/pkg/config"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
)

// Backend types
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	// ErrNotFound записи с таким id нет
	ErrNotFound = errors.New("index entry not found")
	// ErrDuplicateID запись с таким id уже существует
	ErrDuplicateID = errors.New("index entry id already exists")
	// ErrClosed индекс закрыт
	ErrClosed = errors.New("index is closed")
)

// Status состояние артефакта на момент чтения
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Entry метаданные одного артефакта
type Entry struct {
	ID          string             `json:"id"`
	Owner       string             `json:"owner"`
	ReportType  catalog.ReportType `json:"reportType"`
	Format      generator.Format   `json:"format"`
	FileName    string             `json:"fileName"`
	Path        string             `json:"path"`
	SizeBytes   int64              `json:"sizeBytes"`
	Checksum    string             `json:"checksum"`
	RowCount    int                `json:"rowCount"`
	PeriodStart time.Time          `json:"periodStart"`
	PeriodEnd   time.Time          `json:"periodEnd"`
	CreatedAt   time.Time          `json:"createdAt"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

// Status возвращает COMPLETED до истечения срока и EXPIRED после
func (e *Entry) Status(now time.Time) Status {
	if now.Before(e.ExpiresAt) {
		return StatusCompleted
	}
	return StatusExpired
}

// Expired истёк ли срок жизни на момент now
func (e *Entry) Expired(now time.Time) bool {
	return e.Status(now) == StatusExpired
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

func (e *Entry) validate() error {
	if e == nil {
		return errors.New("entry is nil")
	}
	if e.ID == "" {
		return errors.New("entry id is empty")
	}
	if e.Owner == "" {
		return fmt.Errorf("entry %s has no owner", e.ID)
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		return fmt.Errorf("entry %s expires before it is created", e.ID)
	}
	return nil
}

// Index индекс артефактов. Реализации безопасны для конкурентного использования.
type Index interface {
	// Put вставляет запись; повтор id - ErrDuplicateID
	Put(ctx context.Context, e *Entry) error
	// Get возвращает запись или ErrNotFound
	Get(ctx context.Context, id string) (*Entry, error)
	// ListByOwner возвращает неистёкшие записи владельца, новые первыми
	ListByOwner(ctx context.Context, owner string, now time.Time) ([]*Entry, error)
	// RemoveExpiredBefore удаляет и возвращает записи с ExpiresAt <= now.
	// Каждая запись возвращается не более чем одним вызовом.
	// При ошибке возвращаются и уже изъятые записи.
	RemoveExpiredBefore(ctx context.Context, now time.Time) ([]*Entry, error)
	// Remove удаляет запись или возвращает ErrNotFound
	Remove(ctx context.Context, id string) (*Entry, error)
	// Contains проверяет, ссылается ли какая-либо запись на файл
	Contains(ctx context.Context, path string) (bool, error)
	Count(ctx context.Context) (int, error)
	CountByOwner(ctx context.Context, owner string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// New создаёт индекс по конфигурации
func New(cfg *config.CacheConfig) (Index, error) {
	switch cfg.Driver {
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Address(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return NewRedisIndex(client, cfg.KeyPrefix, WithOwnedClient()), nil
	case BackendMemory, "":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Driver)
	}
}

// sortNewestFirst упорядочивает по CreatedAt убыв., при равенстве по id убыв.
func sortNewestFirst(entries []*Entry) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(b.ID), strings.ToLower(a.ID))
	})
}
