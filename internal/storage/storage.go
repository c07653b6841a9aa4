package storage

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// Calculator computes prices under fixed limits.
type Calculator interface {
	Reallocate([]models.LineItem) (*models.Result, error)
	Limits() models.Limits
}

// Keeper interface for database operations
type Keeper interface {
	SaveRun(context.Context, models.Run) error
	GetRuns(context.Context) ([]models.Run, error)
	Ping(context.Context) bool
	Close() bool
}

// MemoryStorage records reallocation runs in memory and mirrors them to
// the keeper when one is configured.
type MemoryStorage struct {
	mx   sync.RWMutex
	runs map[string]models.Run
	// ids in insertion order
	ids []string

	calc   Calculator
	keeper Keeper
	log    Log
	now    func() time.Time
}

// NewMemoryStorage creates a new MemoryStorage instance. keeper may be nil.
func NewMemoryStorage(ctx context.Context, calc Calculator, keeper Keeper, log Log) *MemoryStorage {
	s := &MemoryStorage{
		runs:   make(map[string]models.Run),
		calc:   calc,
		keeper: keeper,
		log:    log,
		now:    time.Now,
	}

	if keeper != nil {
		runs, err := keeper.GetRuns(ctx)
		if err != nil {
			log.Error("cannot load stored runs", zap.Error(err))
		}
		// keeper returns newest first
		for i := len(runs) - 1; i >= 0; i-- {
			s.put(runs[i])
		}
		log.Info("stored runs loaded", zap.Int("count", len(runs)))
	}

	return s
}

func (s *MemoryStorage) Limits() models.Limits {
	return s.calc.Limits()
}

// Reallocate runs the calculator over items and records the run whatever
// its outcome. The calculator error is returned unchanged next to the
// failed run.
func (s *MemoryStorage) Reallocate(ctx context.Context, items []models.LineItem) (models.Run, error) {
	run := models.Run{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Limits:    s.calc.Limits(),
		Items:     slices.Clone(items),
		Status:    models.StatusSucceeded,
	}

	result, calcErr := s.calc.Reallocate(items)
	if calcErr != nil {
		run.Status = models.StatusFailed
		run.Error = calcErr.Error()
	} else {
		run.Result = result
	}

	s.mx.Lock()
	s.put(run)
	s.mx.Unlock()

	if s.keeper != nil {
		if err := s.keeper.SaveRun(ctx, run); err != nil {
			s.log.Error("failed to persist run", zap.String("id", run.ID), zap.Error(err))
		}
	}

	s.log.Info("reallocation recorded",
		zap.String("id", run.ID),
		zap.String("status", run.Status),
		zap.Int("items", len(items)),
	)

	return run, calcErr
}

// GetRuns returns all runs, newest first.
func (s *MemoryStorage) GetRuns(_ context.Context) ([]models.Run, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	runs := make([]models.Run, 0, len(s.ids))
	for i := len(s.ids) - 1; i >= 0; i-- {
		runs = append(runs, s.runs[s.ids[i]])
	}
	return runs, nil
}

func (s *MemoryStorage) GetRun(_ context.Context, id string) (models.Run, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return models.Run{}, ErrNotFound
	}
	return run, nil
}

// Ping reports database health; without a keeper there is nothing to check.
func (s *MemoryStorage) Ping(ctx context.Context) bool {
	if s.keeper == nil {
		return true
	}
	return s.keeper.Ping(ctx)
}

// put must be called with mx held or before the storage is shared.
func (s *MemoryStorage) put(run models.Run) {
	if _, exists := s.runs[run.ID]; !exists {
		s.ids = append(s.ids, run.ID)
	}
	s.runs[run.ID] = run
}
