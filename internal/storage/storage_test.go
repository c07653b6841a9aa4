package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drstein77/priceallocator/internal/logger"
	"github.com/drstein77/priceallocator/internal/models"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeeper struct {
	saved   []models.Run
	stored  []models.Run
	loadErr error
	saveErr error
	healthy bool
}

func (k *fakeKeeper) SaveRun(_ context.Context, run models.Run) error {
	if k.saveErr != nil {
		return k.saveErr
	}
	k.saved = append(k.saved, run)
	return nil
}

func (k *fakeKeeper) GetRuns(context.Context) ([]models.Run, error) {
	return k.stored, k.loadErr
}

func (k *fakeKeeper) Ping(context.Context) bool { return k.healthy }

func (k *fakeKeeper) Close() bool { return true }

func items(prices ...string) []models.LineItem {
	out := make([]models.LineItem, len(prices))
	for i, p := range prices {
		out[i] = models.LineItem{Name: "item", UnitPrice: decimal.RequireFromString(p), Quantity: 1}
	}
	return out
}

func newStorage(t *testing.T, keeper Keeper) *MemoryStorage {
	t.Helper()
	s := NewMemoryStorage(context.Background(), reallocator.New(models.DefaultLimits()), keeper, logger.NewNop())
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return s
}

func TestReallocateRecordsRuns(t *testing.T) {
	keeper := &fakeKeeper{}
	s := newStorage(t, keeper)
	ctx := context.Background()

	ok, err := s.Reallocate(ctx, items("80", "10"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, ok.Status)
	require.NotNil(t, ok.Result)
	assert.Equal(t, models.StrategySimpleCap, ok.Result.Strategy)
	assert.NotEmpty(t, ok.ID)

	failed, err := s.Reallocate(ctx, nil)
	require.ErrorIs(t, err, reallocator.ErrNoItems)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Nil(t, failed.Result)
	assert.Equal(t, "no items", failed.Error)

	runs, err := s.GetRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failed.ID, runs[0].ID)
	assert.Equal(t, ok.ID, runs[1].ID)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))

	got, err := s.GetRun(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, ok.ID, got.ID)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, keeper.saved, 2)
}

func TestReallocateIgnoresKeeperFailures(t *testing.T) {
	s := newStorage(t, &fakeKeeper{saveErr: errors.New("db down")})

	run, err := s.Reallocate(context.Background(), items("10"))
	require.NoError(t, err)

	_, err = s.GetRun(context.Background(), run.ID)
	assert.NoError(t, err)
}

func TestNewMemoryStorageLoadsKeeperRuns(t *testing.T) {
	keeper := &fakeKeeper{stored: []models.Run{{ID: "new"}, {ID: "old"}}}
	s := newStorage(t, keeper)

	runs, err := s.GetRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestPing(t *testing.T) {
	assert.True(t, newStorage(t, nil).Ping(context.Background()))
	assert.False(t, newStorage(t, &fakeKeeper{}).Ping(context.Background()))
	assert.True(t, newStorage(t, &fakeKeeper{healthy: true}).Ping(context.Background()))
}

func TestLimits(t *testing.T) {
	assert.Equal(t, models.DefaultLimits(), newStorage(t, nil).Limits())
}
