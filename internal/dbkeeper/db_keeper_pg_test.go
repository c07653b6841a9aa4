package dbkeeper

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/drstein77/priceallocator/internal/logger"
	"github.com/drstein77/priceallocator/internal/models"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/drstein77/priceallocator/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestKeeper connects to the database named by DATABASE_URI and
// removes the given runs when the test ends.
func newTestKeeper(t *testing.T, ids ...string) *DBKeeper {
	t.Helper()
	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	kp := NewDBKeeper(context.Background(), func() string { return dsn }, "../../migrations", logger.NewNop())
	require.NotNil(t, kp, "database at DATABASE_URI is unusable")

	t.Cleanup(func() {
		_, err := kp.pool.Exec(context.Background(), `DELETE FROM reallocations WHERE id::text = ANY($1)`, ids)
		assert.NoError(t, err)
		kp.Close()
	})
	return kp
}

func assertDecimals(t *testing.T, want, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "index %d: want %s, got %s", i, want[i], got[i])
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	succeededID, failedID := uuid.NewString(), uuid.NewString()
	kp := newTestKeeper(t, succeededID, failedID)
	ctx := context.Background()
	limits := models.DefaultLimits()
	createdAt := time.Now().UTC().Truncate(time.Microsecond)

	items := []models.LineItem{
		{Name: "Jacket", SKU: "J-1", Quantity: 1, UnitPrice: decimal.RequireFromString("300")},
		{Name: "Cable", SKU: "C-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00537")},
		{Name: "Gift", SKU: "G-1", Quantity: 1, UnitPrice: decimal.Zero},
	}
	res, err := reallocator.Reallocate(items, limits)
	require.NoError(t, err)

	succeeded := models.Run{
		ID:        succeededID,
		CreatedAt: createdAt,
		Limits:    limits,
		Items:     items,
		Status:    models.StatusSucceeded,
		Result:    res,
	}
	require.NoError(t, kp.SaveRun(ctx, succeeded))

	failedItems := []models.LineItem{{Name: "Phone", Quantity: 30000, UnitPrice: decimal.NewFromInt(40)}}
	_, calcErr := reallocator.Reallocate(failedItems, limits)
	require.Error(t, calcErr)

	failed := models.Run{
		ID:        failedID,
		CreatedAt: createdAt.Add(time.Second),
		Limits:    limits,
		Items:     failedItems,
		Status:    models.StatusFailed,
		Error:     calcErr.Error(),
	}
	require.NoError(t, kp.SaveRun(ctx, failed))

	t.Run("succeeded run", func(t *testing.T) {
		got, err := kp.GetRun(ctx, succeededID)
		require.NoError(t, err)

		assert.Equal(t, models.StatusSucceeded, got.Status)
		assert.True(t, createdAt.Equal(got.CreatedAt))
		assert.True(t, limits.MaxTotal.Equal(got.Limits.MaxTotal))
		assert.True(t, limits.MaxPerItem.Equal(got.Limits.MaxPerItem))
		assert.True(t, limits.MinPrice.Equal(got.Limits.MinPrice))

		require.Len(t, got.Items, len(items))
		for i, item := range items {
			assert.Equal(t, item.Name, got.Items[i].Name)
			assert.Equal(t, item.SKU, got.Items[i].SKU)
			assert.Equal(t, item.Quantity, got.Items[i].Quantity)
			assert.Truef(t, item.UnitPrice.Equal(got.Items[i].UnitPrice), "item %d: want %s, got %s", i, item.UnitPrice, got.Items[i].UnitPrice)
		}

		require.NotNil(t, got.Result)
		assert.Equal(t, res.Strategy, got.Result.Strategy)
		assert.Equal(t, res.ZeroFixed, got.Result.ZeroFixed)
		assert.Equal(t, res.Iterations, got.Result.Iterations)
		assertDecimals(t, res.Prices, got.Result.Prices)
		assertDecimals(t,
			[]decimal.Decimal{res.TotalBefore, res.TotalAfterZeroFix, res.TotalAfter},
			[]decimal.Decimal{got.Result.TotalBefore, got.Result.TotalAfterZeroFix, got.Result.TotalAfter})

		// the change log rebuilt from stored prices matches the one computed
		require.Len(t, got.Result.Changes, len(res.Changes))
		for i, ch := range res.Changes {
			assert.Equal(t, ch.Index, got.Result.Changes[i].Index)
			assert.Equal(t, ch.ZeroFixed, got.Result.Changes[i].ZeroFixed)
			assert.True(t, ch.OldPrice.Equal(got.Result.Changes[i].OldPrice))
			assert.True(t, ch.NewPrice.Equal(got.Result.Changes[i].NewPrice))
		}
	})

	t.Run("failed run", func(t *testing.T) {
		got, err := kp.GetRun(ctx, failedID)
		require.NoError(t, err)

		assert.Equal(t, models.StatusFailed, got.Status)
		assert.Equal(t, calcErr.Error(), got.Error)
		assert.Nil(t, got.Result)
		require.Len(t, got.Items, 1)
		assert.Equal(t, 30000, got.Items[0].Quantity)
	})

	t.Run("listing", func(t *testing.T) {
		runs, err := kp.GetRuns(ctx)
		require.NoError(t, err)

		positions := make(map[string]int)
		for i, r := range runs {
			positions[r.ID] = i
		}
		require.Contains(t, positions, succeededID)
		require.Contains(t, positions, failedID)
		assert.Less(t, positions[failedID], positions[succeededID], "newest first")
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := kp.GetRun(ctx, uuid.NewString())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	assert.True(t, kp.Ping(ctx))
}
