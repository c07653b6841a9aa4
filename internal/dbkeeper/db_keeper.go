package dbkeeper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/drstein77/priceallocator/internal/storage"
	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

type DBKeeper struct {
	pool *pgxpool.Pool
	log  Log
}

// NewDBKeeper connects to the database and applies pending migrations. It
// returns nil when the DSN is empty or the database is unusable, which
// leaves the service in memory-only mode.
func NewDBKeeper(ctx context.Context, dsn func() string, migrationsPath string, log Log) *DBKeeper {
	addr := dsn()
	if addr == "" {
		log.Info("database dsn is empty, runs are kept in memory only")
		return nil
	}

	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		log.Error("Unable to parse database DSN", zap.Error(err))
		return nil
	}

	if err := migrateUp(config.ConnConfig, migrationsPath); err != nil {
		log.Error("Error while performing migration", zap.Error(err))
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		log.Error("Unable to connect to database", zap.Error(err))
		return nil
	}

	log.Info("Connected!")

	return &DBKeeper{
		pool: pool,
		log:  log,
	}
}

func migrateUp(connConfig *pgx.ConnConfig, migrationsPath string) error {
	sqlDB := stdlib.OpenDB(*connConfig)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to get migration driver: %w", err)
	}

	path, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(path), "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// SaveRun stores a run and its items in one transaction.
func (kp *DBKeeper) SaveRun(ctx context.Context, run models.Run) (err error) {
	if kp.pool == nil {
		return fmt.Errorf("database connection pool is nil")
	}

	tx, err := kp.pool.Begin(ctx)
	if err != nil {
		kp.log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				kp.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
			}
		}
	}()

	var (
		strategy                         string
		iterations, zeroFixed            int
		before, afterZeroFix, afterTotal decimal.NullDecimal
	)
	if run.Result != nil {
		strategy = string(run.Result.Strategy)
		iterations = run.Result.Iterations
		zeroFixed = run.Result.ZeroFixed
		before = decimal.NewNullDecimal(run.Result.TotalBefore)
		afterZeroFix = decimal.NewNullDecimal(run.Result.TotalAfterZeroFix)
		afterTotal = decimal.NewNullDecimal(run.Result.TotalAfter)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reallocations (id, created_at, status, error, strategy,
			max_total, max_per_item, min_price,
			total_before, total_after_zero_fix, total_after, iterations, zero_fixed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, run.ID, run.CreatedAt, run.Status, run.Error, strategy,
		run.Limits.MaxTotal, run.Limits.MaxPerItem, run.Limits.MinPrice,
		before, afterZeroFix, afterTotal, iterations, zeroFixed)
	if err != nil {
		err = fmt.Errorf("failed to insert run: %w", err)
		return err
	}

	if len(run.Items) > 0 {
		stmt := `INSERT INTO reallocation_items (run_id, position, name, sku, quantity, unit_price, new_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		batch := &pgx.Batch{}
		for i, item := range run.Items {
			var newPrice decimal.NullDecimal
			if run.Result != nil && i < len(run.Result.Prices) {
				newPrice = decimal.NewNullDecimal(run.Result.Prices[i])
			}
			batch.Queue(stmt, run.ID, i, item.Name, item.SKU, item.Quantity, item.UnitPrice, newPrice)
		}

		br := tx.SendBatch(ctx, batch)
		for range run.Items {
			if _, execErr := br.Exec(); execErr != nil {
				br.Close()
				err = fmt.Errorf("failed to execute batch query: %w", execErr)
				return err
			}
		}
		if closeErr := br.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close batch results: %w", closeErr)
			return err
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		return err
	}

	kp.log.Info("Run stored", zap.String("id", run.ID), zap.Int("items", len(run.Items)))
	return nil
}

// GetRuns returns every stored run, newest first.
func (kp *DBKeeper) GetRuns(ctx context.Context) ([]models.Run, error) {
	return kp.loadRuns(ctx, "", nil)
}

func (kp *DBKeeper) GetRun(ctx context.Context, id string) (models.Run, error) {
	runs, err := kp.loadRuns(ctx, "WHERE id = $1", []any{id})
	if err != nil {
		return models.Run{}, err
	}
	if len(runs) == 0 {
		return models.Run{}, storage.ErrNotFound
	}
	return runs[0], nil
}

func (kp *DBKeeper) loadRuns(ctx context.Context, where string, args []any) ([]models.Run, error) {
	if kp.pool == nil {
		return nil, fmt.Errorf("database connection pool is nil")
	}

	rows, err := kp.pool.Query(ctx, `
		SELECT id::text, created_at, status, error, strategy,
			max_total, max_per_item, min_price,
			total_before, total_after_zero_fix, total_after, iterations, zero_fixed
		FROM reallocations `+where+`
		ORDER BY created_at DESC
	`, args...)
	if err != nil {
		kp.log.Error("Failed to execute query", zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var (
		runs  []models.Run
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			run                              models.Run
			strategy                         string
			iterations, zeroFixed            int
			before, afterZeroFix, afterTotal decimal.NullDecimal
		)
		err := rows.Scan(
			&run.ID, &run.CreatedAt, &run.Status, &run.Error, &strategy,
			&run.Limits.MaxTotal, &run.Limits.MaxPerItem, &run.Limits.MinPrice,
			&before, &afterZeroFix, &afterTotal, &iterations, &zeroFixed,
		)
		if err != nil {
			rows.Close()
			kp.log.Error("Failed to scan row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if run.Status == models.StatusSucceeded {
			run.Result = &models.Result{
				Strategy:          models.Strategy(strategy),
				TotalBefore:       before.Decimal,
				TotalAfterZeroFix: afterZeroFix.Decimal,
				TotalAfter:        afterTotal.Decimal,
				Iterations:        iterations,
				ZeroFixed:         zeroFixed,
			}
		}
		index[run.ID] = len(runs)
		runs = append(runs, run)
	}
	rows.Close()
	if rows.Err() != nil {
		kp.log.Error("Error occurred during rows iteration", zap.Error(rows.Err()))
		return nil, fmt.Errorf("error during rows iteration: %w", rows.Err())
	}
	if len(runs) == 0 {
		return runs, nil
	}

	itemRows, err := kp.pool.Query(ctx, `
		SELECT run_id::text, name, sku, quantity, unit_price, new_price
		FROM reallocation_items
		WHERE run_id::text = ANY($1)
		ORDER BY run_id, position
	`, runIDs(runs))
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			runID    string
			item     models.LineItem
			newPrice decimal.NullDecimal
		)
		if err := itemRows.Scan(&runID, &item.Name, &item.SKU, &item.Quantity, &item.UnitPrice, &newPrice); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		i, ok := index[runID]
		if !ok {
			continue
		}
		runs[i].Items = append(runs[i].Items, item)
		if runs[i].Result != nil && newPrice.Valid {
			runs[i].Result.Prices = append(runs[i].Result.Prices, newPrice.Decimal)
		}
	}
	if itemRows.Err() != nil {
		return nil, fmt.Errorf("error during item iteration: %w", itemRows.Err())
	}

	for i := range runs {
		if r := runs[i].Result; r != nil && len(r.Prices) == len(runs[i].Items) {
			r.Changes = reallocator.ChangeLog(runs[i].Items, r.Prices)
		}
	}

	kp.log.Info("Successfully retrieved runs", zap.Int("count", len(runs)))
	return runs, nil
}

func runIDs(runs []models.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func (kp *DBKeeper) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := kp.pool.Ping(ctx); err != nil {
		kp.log.Error("Database ping failed", zap.Error(err))
		return false
	}

	return true
}

func (kp *DBKeeper) Close() bool {
	if kp.pool != nil {
		kp.pool.Close()
		kp.log.Info("Database connection pool closed")
		return true
	}
	kp.log.Info("Attempted to close a nil database connection pool")
	return false
}
