// Package reaper удаляет артефакты с истёкшим сроком жизни: сначала запись
// из индекса, затем файл.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"workshop/pkg/apperror"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
	"workshop/pkg/telemetry"
	"workshop/services/report-svc/internal/index"
)

// Trigger источник прохода (метка метрик)
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// State состояние reaper
type State int32

const (
	Idle State = iota
	Sweeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sweeping:
		return "sweeping"
	default:
		return "unknown"
	}
}

// FileRemover удаляет файл артефакта; false - файла уже не было
type FileRemover interface {
	Remove(path string) (bool, error)
}

// Failure файл, который не удалось удалить
type Failure struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Result итог одного прохода
type Result struct {
	Reclaimed    int       `json:"reclaimed"`
	FilesDeleted int       `json:"filesDeleted"`
	FilesMissing int       `json:"filesMissing"`
	Failures     []Failure `json:"failures"`
}

// Reaper периодически освобождает истёкшие артефакты
type Reaper struct {
	idx      index.Index
	files    FileRemover
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *slog.Logger

	sweepMu sync.Mutex
	state   atomic.Int32

	lifeMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option настройка Reaper
type Option func(*Reaper)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

// WithMetrics задаёт метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// New создаёт reaper; interval - период фонового прохода
func New(idx index.Index, files FileRemover, interval time.Duration, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	r := &Reaper{
		idx:      idx,
		files:    files,
		interval: interval,
		now:      time.Now,
		log:      logger.WithComponent("reaper"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNop()
	}
	return r
}

// State возвращает текущее состояние
func (r *Reaper) State() State {
	return State(r.state.Load())
}

// Sweep выполняет один проход синхронно
func (r *Reaper) Sweep(ctx context.Context) (Result, error) {
	return r.sweep(ctx, TriggerManual)
}

// sweep не допускает параллельных проходов: второй вызов ждёт первого
// и выполняет свой проход уже после него.
func (r *Reaper) sweep(ctx context.Context, trigger string) (Result, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	r.state.Store(int32(Sweeping))
	defer r.state.Store(int32(Idle))

	ctx, span := telemetry.StartSpan(ctx, "reaper.Sweep")
	defer span.End()

	start := time.Now()
	now := r.now()

	var res Result
	expired, err := r.idx.RemoveExpiredBefore(ctx, now)
	// Записи, уже изъятые из индекса, обрабатываются и при ошибке
	for _, e := range expired {
		res.Reclaimed++

		existed, rmErr := r.files.Remove(e.Path)
		switch {
		case rmErr != nil:
			res.Failures = append(res.Failures, Failure{ID: e.ID, Path: e.Path, Err: rmErr})
			telemetry.RecordError(ctx, rmErr)
			r.log.Warn("failed to delete expired artifact", "id", e.ID, "path", e.Path, "error", rmErr)
		case existed:
			res.FilesDeleted++
		default:
			res.FilesMissing++
			r.log.Debug("expired artifact file already gone", "id", e.ID, "path", e.Path)
		}
	}

	duration := time.Since(start)
	r.metrics.RecordSweep(trigger, res.Reclaimed, len(res.Failures), duration)
	telemetry.SetAttributes(ctx, telemetry.SweepAttributes(trigger, res.Reclaimed, len(res.Failures))...)

	if err != nil {
		telemetry.SetError(ctx, err)
		return res, fmt.Errorf("failed to reclaim expired entries: %w", err)
	}

	if res.Reclaimed > 0 {
		r.log.Info("expired artifacts reclaimed",
			"trigger", trigger,
			"reclaimed", res.Reclaimed,
			"deleted", res.FilesDeleted,
			"missing", res.FilesMissing,
			"failures", len(res.Failures),
			"duration", duration,
		)
	}

	if len(res.Failures) > 0 {
		return res, partialFailure(res.Failures)
	}
	return res, nil
}

func partialFailure(failures []Failure) error {
	errs := make([]error, len(failures))
	ids := make([]string, len(failures))
	for i, f := range failures {
		errs[i] = fmt.Errorf("%s: %w", f.Path, f.Err)
		ids[i] = f.ID
	}

	appErr := apperror.NewWarning(apperror.CodeReaperPartialFailure,
		fmt.Sprintf("%d expired artifact file(s) could not be deleted", len(failures))).
		WithDetails("failures", len(failures)).
		WithDetails("ids", ids)
	appErr.Cause = errors.Join(errs...)
	return appErr
}

// ErrRunning возвращает Run, если фоновые проходы уже запущены
var ErrRunning = errors.New("reaper is already running")

// Run выполняет проходы по таймеру и блокируется до отмены ctx или Stop.
// Ошибки отдельных проходов логируются и не прерывают цикл.
func (r *Reaper) Run(ctx context.Context) error {
	stop, ok := r.begin()
	if !ok {
		return ErrRunning
	}
	defer r.finish(stop)

	r.loop(ctx, stop)
	return nil
}

// Start запускает фоновые проходы в отдельной горутине. Повторный вызов ничего не делает.
func (r *Reaper) Start(ctx context.Context) {
	stop, ok := r.begin()
	if !ok {
		return
	}
	go func() {
		defer r.finish(stop)
		r.loop(ctx, stop)
	}()
}

func (r *Reaper) begin() (chan struct{}, bool) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.running {
		return nil, false
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.wg.Add(1)

	r.log.Info("reaper started", "interval", r.interval)
	return r.stopCh, true
}

// finish снимает признак работы, если цикл завершился сам (по ctx)
func (r *Reaper) finish(stop chan struct{}) {
	r.lifeMu.Lock()
	if r.running && r.stopCh == stop {
		r.running = false
	}
	r.lifeMu.Unlock()
	r.wg.Done()
}

// Stop останавливает фоновые проходы и ждёт завершения текущего
func (r *Reaper) Stop() {
	r.lifeMu.Lock()
	if !r.running {
		r.lifeMu.Unlock()
		r.wg.Wait()
		return
	}
	r.running = false
	close(r.stopCh)
	r.lifeMu.Unlock()

	r.wg.Wait()
	r.log.Info("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Проход не прерывается отменой ctx на середине
			if _, err := r.sweep(context.WithoutCancel(ctx), TriggerTimer); err != nil && !apperror.IsWarning(err) {
				r.log.Error("reaper sweep failed", "error", err)
			}
		}
	}
}
