// Package reallocator redistributes declared unit prices of an order so the
// total stays under a customs ceiling while no unit price exceeds the
// per-item cap.
package reallocator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNoItems       = errors.New("no items")
	ErrInvalidItem   = errors.New("invalid line item")
	ErrInvalidLimits = errors.New("invalid limits")
	ErrBelowCent     = errors.New("cannot distribute, price per unit rounds below one cent")
	ErrBelowMinPrice = errors.New("cannot distribute, a zero-priced item would fall below the minimum price")
	ErrNotConverged  = errors.New("distribution algorithm did not converge")
)

// cent is both the rounding unit and the epsilon used to detect changes.
var cent = decimal.New(1, -2)

// InfeasibleError reports a price per unit above the per-item cap.
type InfeasibleError struct {
	PricePerUnit decimal.Decimal
	Limit        decimal.Decimal
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("cannot distribute, reduce quantity or remove items: price per unit would be %s, maximum allowed %s",
		e.PricePerUnit.StringFixed(2), e.Limit.StringFixed(2))
}

// IsInfeasible reports whether err means the limits cannot be satisfied for
// the given items.
func IsInfeasible(err error) bool {
	var ie *InfeasibleError
	return errors.As(err, &ie) || errors.Is(err, ErrBelowCent) || errors.Is(err, ErrBelowMinPrice)
}

// IsInputError reports whether err was caused by the items or limits passed in.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoItems) || errors.Is(err, ErrInvalidItem) || errors.Is(err, ErrInvalidLimits)
}

// Calculator binds a fixed set of limits.
type Calculator struct {
	limits models.Limits
}

func New(limits models.Limits) *Calculator {
	return &Calculator{limits: limits}
}

func (c *Calculator) Limits() models.Limits {
	return c.limits
}

func (c *Calculator) Reallocate(items []models.LineItem) (*models.Result, error) {
	return Reallocate(items, c.limits)
}

// Reallocate computes new unit prices for items. The input slice is never
// modified; on error no result is returned.
func Reallocate(items []models.LineItem, limits models.Limits) (*models.Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if err := ValidateLimits(limits); err != nil {
		return nil, err
	}
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidItem, i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %d has negative price %s", ErrInvalidItem, i+1, item.UnitPrice)
		}
	}

	working, zeroFixed := fixZeroPrices(items, limits.MinPrice)

	result := &models.Result{
		TotalBefore:       sum(items, originalPrices(items)),
		TotalAfterZeroFix: sum(items, working),
		ZeroFixed:         zeroFixed,
	}

	capped := capPrices(working, limits.MaxPerItem)
	if sum(items, capped).LessThanOrEqual(limits.MaxTotal) {
		result.Prices = capped
		result.Strategy = models.StrategySimpleCap
	} else {
		out, err := search(items, working, limits, len(items))
		if err != nil {
			return nil, err
		}
		if err := checkMinPrice(items, out.prices, limits.MinPrice); err != nil {
			return nil, err
		}
		result.Prices = out.prices
		result.Strategy = out.strategy
		result.Iterations = out.iterations
	}

	result.TotalAfter = sum(items, result.Prices)
	result.Changes = ChangeLog(items, result.Prices)
	if result.Strategy == models.StrategySimpleCap && len(result.Changes) == 0 {
		result.Strategy = models.StrategyUnchanged
	}

	return result, nil
}

func ValidateLimits(limits models.Limits) error {
	switch {
	case !limits.MaxTotal.IsPositive():
		return fmt.Errorf("%w: max total must be positive", ErrInvalidLimits)
	case !limits.MaxPerItem.IsPositive():
		return fmt.Errorf("%w: max per item must be positive", ErrInvalidLimits)
	case !limits.MinPrice.IsPositive():
		return fmt.Errorf("%w: min price must be positive", ErrInvalidLimits)
	case limits.MinPrice.GreaterThan(limits.MaxPerItem):
		return fmt.Errorf("%w: min price %s exceeds max per item %s", ErrInvalidLimits, limits.MinPrice, limits.MaxPerItem)
	}
	return nil
}

// checkMinPrice rejects a redistribution that leaves an originally
// zero-priced item under minPrice.
func checkMinPrice(items []models.LineItem, prices []decimal.Decimal, minPrice decimal.Decimal) error {
	for i, item := range items {
		if item.UnitPrice.IsZero() && prices[i].LessThan(minPrice) {
			return fmt.Errorf("%w: item %d would be priced %s, minimum %s",
				ErrBelowMinPrice, i+1, prices[i].StringFixed(2), minPrice.StringFixed(2))
		}
	}
	return nil
}

type outcome struct {
	prices     []decimal.Decimal
	strategy   models.Strategy
	iterations int
}

// search runs the partition passes. working is never mutated: a promotion
// produces a new vector for the next pass.
func search(items []models.LineItem, working []decimal.Decimal, limits models.Limits, maxPasses int) (*outcome, error) {
	threshold := limits.MaxPerItem
	promoted := threshold.Add(cent)

	for pass := 1; pass <= maxPasses; pass++ {
		p := split(items, working, threshold)

		if p.expensiveQty == 0 {
			if p.totalQty == 0 {
				return nil, ErrNoItems
			}
			price := limits.MaxTotal.Div(decimal.NewFromInt(p.totalQty)).RoundFloor(2)
			if !price.IsPositive() {
				return nil, ErrBelowCent
			}
			prices := make([]decimal.Decimal, len(items))
			for i := range prices {
				prices[i] = price
			}
			return &outcome{prices: prices, strategy: models.StrategyUniform, iterations: pass}, nil
		}

		perUnit := limits.MaxTotal.Sub(p.cheapTotal).Div(decimal.NewFromInt(p.expensiveQty))
		if perUnit.GreaterThan(limits.MaxPerItem) {
			return nil, &InfeasibleError{PricePerUnit: perUnit, Limit: limits.MaxPerItem}
		}

		if perUnit.LessThan(p.maxCheap) {
			working = promote(working, p.maxCheapIndex, promoted)
			continue
		}

		price := perUnit.RoundFloor(2)
		if !price.IsPositive() {
			return nil, ErrBelowCent
		}
		prices := make([]decimal.Decimal, len(working))
		for i, w := range working {
			if w.GreaterThan(threshold) {
				prices[i] = price
			} else {
				prices[i] = w
			}
		}
		return &outcome{prices: prices, strategy: models.StrategyPartition, iterations: pass}, nil
	}

	return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, maxPasses)
}

type partition struct {
	cheapTotal    decimal.Decimal
	maxCheap      decimal.Decimal
	maxCheapIndex int
	expensiveQty  int64
	totalQty      int64
}

// split classifies items against threshold. Among cheap items sharing the
// highest price, the one earliest in input order is reported.
func split(items []models.LineItem, working []decimal.Decimal, threshold decimal.Decimal) partition {
	p := partition{cheapTotal: decimal.Zero, maxCheap: decimal.Zero, maxCheapIndex: -1}
	for i, item := range items {
		qty := int64(item.Quantity)
		p.totalQty += qty
		if working[i].GreaterThan(threshold) {
			p.expensiveQty += qty
			continue
		}
		p.cheapTotal = p.cheapTotal.Add(working[i].Mul(decimal.NewFromInt(qty)))
		if working[i].GreaterThan(p.maxCheap) {
			p.maxCheap = working[i]
			p.maxCheapIndex = i
		}
	}
	return p
}

func promote(working []decimal.Decimal, index int, price decimal.Decimal) []decimal.Decimal {
	next := slices.Clone(working)
	next[index] = price
	return next
}

func fixZeroPrices(items []models.LineItem, minPrice decimal.Decimal) ([]decimal.Decimal, int) {
	working := make([]decimal.Decimal, len(items))
	fixed := 0
	for i, item := range items {
		if item.UnitPrice.IsZero() {
			working[i] = minPrice
			fixed++
			continue
		}
		working[i] = item.UnitPrice
	}
	return working, fixed
}

func capPrices(prices []decimal.Decimal, limit decimal.Decimal) []decimal.Decimal {
	capped := make([]decimal.Decimal, len(prices))
	for i, p := range prices {
		capped[i] = decimal.Min(p, limit)
	}
	return capped
}

func originalPrices(items []models.LineItem) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(items))
	for i, item := range items {
		prices[i] = item.UnitPrice
	}
	return prices
}

func sum(items []models.LineItem, prices []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for i, item := range items {
		total = total.Add(prices[i].Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ChangeLog lists the items whose price moved by more than a cent from
// the original.
func ChangeLog(items []models.LineItem, prices []decimal.Decimal) []models.Change {
	changes := []models.Change{}
	for i, item := range items {
		if prices[i].Sub(item.UnitPrice).Abs().LessThanOrEqual(cent) {
			continue
		}
		changes = append(changes, models.Change{
			Index:     i,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			OldPrice:  item.UnitPrice,
			NewPrice:  prices[i],
			ZeroFixed: item.UnitPrice.IsZero(),
		})
	}
	return changes
}
