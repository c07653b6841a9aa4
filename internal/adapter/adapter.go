// Package adapter runs the reallocator against a host surface that owns
// the line items: it reads them, writes every resolved price back only when
// the whole computation succeeded, and hands the outcome to the surface for
// display.
package adapter

import (
	"context"
	"fmt"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/shopspring/decimal"
)

// Page is the host surface holding an order's line items.
type Page interface {
	ReadLineItems(ctx context.Context) ([]models.LineItem, error)
	// WriteUnitPrice is called for every item after a successful run,
	// changed or not.
	WriteUnitPrice(ctx context.Context, index int, price decimal.Decimal) error
	ReportOutcome(ctx context.Context, summary Summary) error
}

// Reallocator computes new prices under fixed limits.
type Reallocator interface {
	Reallocate(ctx context.Context, items []models.LineItem) (*models.Result, error)
	Limits() models.Limits
}

// Summary is what a page receives once a run is over. Exactly one of
// Result and Err is set.
type Summary struct {
	Items    []models.LineItem
	Limits   models.Limits
	Result   *models.Result
	Err      error
	Currency string
}

// Succeeded reports whether the run produced prices.
func (s Summary) Succeeded() bool {
	return s.Err == nil && s.Result != nil
}

// Run performs one reallocation over page. On a failed computation nothing
// is written and the failure is reported; the returned error is the
// computation error in that case.
func Run(ctx context.Context, page Page, r Reallocator) (*models.Result, error) {
	items, err := page.ReadLineItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read line items: %w", err)
	}

	summary := Summary{Items: items, Limits: r.Limits()}

	result, err := r.Reallocate(ctx, items)
	if err != nil {
		summary.Err = err
		if reportErr := page.ReportOutcome(ctx, summary); reportErr != nil {
			return nil, fmt.Errorf("%w (report failed: %v)", err, reportErr)
		}
		return nil, err
	}

	for i, price := range result.Prices {
		if err := page.WriteUnitPrice(ctx, i, price); err != nil {
			return nil, fmt.Errorf("failed to write price of item %d: %w", i+1, err)
		}
	}

	summary.Result = result
	if err := page.ReportOutcome(ctx, summary); err != nil {
		return result, fmt.Errorf("failed to report outcome: %w", err)
	}

	return result, nil
}
