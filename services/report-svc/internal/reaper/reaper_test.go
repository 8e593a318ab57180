package reaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop/pkg/apperror"
	"workshop/pkg/metrics"
	"workshop/services/report-svc/internal/index"
	clock "workshop/services/report-svc/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// osRemover удаляет файлы с диска; пути из failPaths возвращают ошибку
type osRemover struct {
	mu        sync.Mutex
	failPaths map[string]error
	calls     int
}

func (r *osRemover) Remove(path string) (bool, error) {
	r.mu.Lock()
	r.calls++
	err := r.failPaths[path]
	r.mu.Unlock()

	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type fixture struct {
	idx     *index.MemoryIndex
	files   *osRemover
	clock   *clock.Clock
	metrics *metrics.Metrics
	reaper  *Reaper
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		idx:     index.NewMemoryIndex(),
		files:   &osRemover{failPaths: map[string]error{}},
		clock:   clock.NewClock(t0),
		metrics: metrics.NewNop(),
		dir:     t.TempDir(),
	}
	f.reaper = New(f.idx, f.files, time.Hour, WithClock(f.clock.Now), WithMetrics(f.metrics))
	return f
}

// add регистрирует артефакт; withFile - создать файл на диске
func (f *fixture) add(t *testing.T, id string, ttl time.Duration, withFile bool) string {
	t.Helper()
	path := filepath.Join(f.dir, id+".csv")
	if withFile {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	require.NoError(t, f.idx.Put(context.Background(), &index.Entry{
		ID:        id,
		Owner:     "alice",
		Path:      path,
		CreatedAt: f.clock.Now(),
		ExpiresAt: f.clock.Now().Add(ttl),
	}))
	return path
}

func TestSweep_NothingExpired(t *testing.T) {
	f := newFixture(t)
	path := f.add(t, "a", time.Hour, true)

	res, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.FileExists(t, path)
	assert.Equal(t, Idle, f.reaper.State())
}

func TestSweep_ReclaimsExpired(t *testing.T) {
	f := newFixture(t)
	expired := f.add(t, "old", time.Hour, true)
	missing := f.add(t, "gone", time.Hour, false)
	live := f.add(t, "new", 10*24*time.Hour, true)

	f.clock.Advance(8 * 24 * time.Hour)

	res, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reclaimed)
	assert.Equal(t, 1, res.FilesDeleted)
	assert.Equal(t, 1, res.FilesMissing, "missing file counts as success")
	assert.Empty(t, res.Failures)

	assert.NoFileExists(t, expired)
	assert.NoFileExists(t, missing)
	assert.FileExists(t, live)

	_, err = f.idx.Get(context.Background(), "old")
	assert.ErrorIs(t, err, index.ErrNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ReaperReclaimedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReaperSweepsTotal.WithLabelValues(TriggerManual, "ok")))
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", time.Hour, true)
	f.clock.Advance(2 * time.Hour)

	first, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Reclaimed)

	calls := f.files.calls
	second, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)
	assert.Equal(t, calls, f.files.calls, "no deletions on the second sweep")
}

func TestSweep_PartialFailure(t *testing.T) {
	f := newFixture(t)
	bad := f.add(t, "bad", time.Hour, true)
	f.add(t, "good", time.Hour, true)
	f.files.failPaths[bad] = errors.New("permission denied")

	f.clock.Advance(2 * time.Hour)

	res, err := f.reaper.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeReaperPartialFailure))
	assert.True(t, apperror.IsWarning(err))

	assert.Equal(t, 2, res.Reclaimed)
	assert.Equal(t, 1, res.FilesDeleted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].ID)

	n, _ := f.idx.Count(context.Background())
	assert.Zero(t, n, "entries are removed even when the file is not")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReaperFailuresTotal))
}

// failingIndex возвращает часть записей вместе с ошибкой
type failingIndex struct {
	*index.MemoryIndex
	err error
}

func (i *failingIndex) RemoveExpiredBefore(ctx context.Context, now time.Time) ([]*index.Entry, error) {
	entries, _ := i.MemoryIndex.RemoveExpiredBefore(ctx, now)
	return entries, i.err
}

func TestSweep_IndexError(t *testing.T) {
	f := newFixture(t)
	path := f.add(t, "a", time.Hour, true)
	idx := &failingIndex{MemoryIndex: f.idx, err: errors.New("redis down")}
	r := New(idx, f.files, time.Hour, WithClock(f.clock.Now))

	f.clock.Advance(2 * time.Hour)

	res, err := r.Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, idx.err)
	assert.Equal(t, 1, res.Reclaimed, "already taken entries are still processed")
	assert.NoFileExists(t, path)
}

// blockingRemover держит удаление до сигнала
type blockingRemover struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemover) Remove(string) (bool, error) {
	b.entered <- struct{}{}
	<-b.release
	return true, nil
}

func TestSweep_NoOverlap(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", time.Hour, false)
	f.clock.Advance(2 * time.Hour)

	br := &blockingRemover{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := New(f.idx, br, time.Hour, WithClock(f.clock.Now))

	firstDone := make(chan Result, 1)
	go func() {
		res, _ := r.Sweep(context.Background())
		firstDone <- res
	}()

	<-br.entered
	assert.Equal(t, Sweeping, r.State())

	secondDone := make(chan Result, 1)
	go func() {
		res, _ := r.Sweep(context.Background())
		secondDone <- res
	}()

	select {
	case <-secondDone:
		t.Fatal("second sweep must wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	close(br.release)
	assert.Equal(t, 1, (<-firstDone).Reclaimed)
	assert.Equal(t, 0, (<-secondDone).Reclaimed)
	assert.Equal(t, Idle, r.State())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	path := f.add(t, "a", time.Millisecond, true)
	f.clock.Advance(time.Second)

	r := New(f.idx, f.files, 10*time.Millisecond, WithClock(f.clock.Now))
	r.Start(context.Background())
	r.Start(context.Background()) // повторный вызов игнорируется

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.Equal(t, Idle, r.State())
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	r := New(f.idx, f.files, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "sweeping", Sweeping.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestRun_BlocksUntilContextCancel(t *testing.T) {
	f := newFixture(t)
	path := f.add(t, "a", time.Millisecond, true)
	f.clock.Advance(time.Second)

	r := New(f.idx, f.files, 10*time.Millisecond, WithClock(f.clock.Now))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// После выхода по ctx reaper можно запустить снова
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	r.Start(ctx2)
	r.Stop()
}

func TestRun_RejectsSecondLoop(t *testing.T) {
	f := newFixture(t)
	r := New(f.idx, f.files, time.Hour)

	r.Start(context.Background())
	defer r.Stop()

	assert.ErrorIs(t, r.Run(context.Background()), ErrRunning)
}

func TestRun_StoppedByStop(t *testing.T) {
	f := newFixture(t)
	r := New(f.idx, f.files, time.Hour)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		r.lifeMu.Lock()
		defer r.lifeMu.Unlock()
		return r.running
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
