package exporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// Lock is a held channel lock
type Lock interface {
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// ChannelLocker serializes exports of the same channel
type ChannelLocker interface {
	LockChannel(ctx context.Context, channelID int, ttl time.Duration) (Lock, error)
}

// RunStore records export runs
type RunStore interface {
	Create(ctx context.Context, channelID int, full bool) (*models.ExportRun, error)
	Complete(ctx context.Context, run *models.ExportRun) error
	Fail(ctx context.Context, id string, message string) error
}

// EventSink receives export lifecycle events
type EventSink interface {
	EmitExportStarted(ctx context.Context, run *models.ExportRun) error
	EmitExportCompleted(ctx context.Context, run *models.ExportRun) error
	EmitExportFailed(ctx context.Context, run *models.ExportRun, cause error) error
}

// Importer pushes documents to the commerce endpoint
type Importer interface {
	ImportCatalog(ctx context.Context, document []byte) error
	ImportResources(ctx context.Context, document []byte) error
	WaitForImport(ctx context.Context) error
	MoveNodeToRootIfNeeded(ctx context.Context, nodeCode string) error
	NotifyImportCompleted(ctx context.Context, catalogName string, full bool) error
}

// RedisLocker adapts a redis.Locker to ChannelLocker
type RedisLocker struct {
	locker *redis.Locker
}

func NewRedisLocker(locker *redis.Locker) *RedisLocker {
	return &RedisLocker{locker: locker}
}

func (l *RedisLocker) LockChannel(ctx context.Context, channelID int, ttl time.Duration) (Lock, error) {
	lock, err := l.locker.Acquire(ctx, redis.ChannelKey(channelID), ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, fmt.Errorf("%w: %w", ErrExportInProgress, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock channel %d: %w", channelID, err)
	}
	return lock, nil
}

// LocalLocker serializes exports inside one process
type LocalLocker struct {
	mu     sync.Mutex
	locked map[int]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locked: make(map[int]bool)}
}

func (l *LocalLocker) LockChannel(_ context.Context, channelID int, _ time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked[channelID] {
		return nil, ErrExportInProgress
	}
	l.locked[channelID] = true
	return &localLock{locker: l, channelID: channelID}, nil
}

type localLock struct {
	locker    *LocalLocker
	channelID int
}

func (l *localLock) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.locked, l.channelID)
	return nil
}

func (l *localLock) Extend(_ context.Context, _ time.Duration) error {
	return nil
}

// MemoryRunStore keeps export runs in memory. It backs the CLI and deployments without a
// database.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]models.ExportRun
	now  func() time.Time
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[string]models.ExportRun),
		now:  time.Now,
	}
}

func (s *MemoryRunStore) Create(_ context.Context, channelID int, full bool) (*models.ExportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := models.ExportRun{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		Full:      full,
		Status:    models.ExportRunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	s.runs[run.ID] = run
	return &run, nil
}

func (s *MemoryRunStore) Complete(_ context.Context, run *models.ExportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completedAt := s.now().UTC()
	run.Status = models.ExportRunStatusCompleted
	run.CompletedAt = &completedAt
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryRunStore) Fail(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("export run %s not found", id)
	}
	completedAt := s.now().UTC()
	run.Status = models.ExportRunStatusFailed
	run.Error = &message
	run.CompletedAt = &completedAt
	s.runs[id] = run
	return nil
}

func (s *MemoryRunStore) GetByID(_ context.Context, id string) (*models.ExportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (s *MemoryRunStore) ListByChannel(_ context.Context, channelID, page, pageSize int) ([]models.ExportRun, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	runs := []models.ExportRun{}
	for _, run := range s.runs {
		if run.ChannelID == channelID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	total := len(runs)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	return runs[start:end], total, nil
}

type noopEvents struct{}

func (noopEvents) EmitExportStarted(context.Context, *models.ExportRun) error       { return nil }
func (noopEvents) EmitExportCompleted(context.Context, *models.ExportRun) error     { return nil }
func (noopEvents) EmitExportFailed(context.Context, *models.ExportRun, error) error { return nil }

type noopImporter struct{}

func (noopImporter) ImportCatalog(context.Context, []byte) error               { return nil }
func (noopImporter) ImportResources(context.Context, []byte) error             { return nil }
func (noopImporter) WaitForImport(context.Context) error                       { return nil }
func (noopImporter) MoveNodeToRootIfNeeded(context.Context, string) error      { return nil }
func (noopImporter) NotifyImportCompleted(context.Context, string, bool) error { return nil }
