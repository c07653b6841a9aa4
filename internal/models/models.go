package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy names the phase that produced the final prices.
type Strategy string

const (
	StrategyUnchanged Strategy = "unchanged"
	StrategySimpleCap Strategy = "simple_cap"
	StrategyUniform   Strategy = "uniform"
	StrategyPartition Strategy = "partition"
)

// Run statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// LineItem is one orderable product entry of an order.
type LineItem struct {
	Name      string          `json:"name,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns UnitPrice * Quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Label returns the name shown in reports, falling back to the SKU and
// then to the 1-based position.
func (li LineItem) Label(index int) string {
	switch {
	case li.Name != "":
		return li.Name
	case li.SKU != "":
		return li.SKU
	default:
		return "Item " + strconv.Itoa(index+1)
	}
}

type Limits struct {
	MaxTotal   decimal.Decimal `json:"max_total"`
	MaxPerItem decimal.Decimal `json:"max_per_item"`
	MinPrice   decimal.Decimal `json:"min_price"`
}

// DefaultLimits returns the Nigeria customs profile.
func DefaultLimits() Limits {
	return Limits{
		MaxTotal:   decimal.NewFromInt(200),
		MaxPerItem: decimal.NewFromInt(50),
		MinPrice:   decimal.NewFromInt(1),
	}
}

type Change struct {
	Index     int             `json:"index"`
	Name      string          `json:"name,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ZeroFixed bool            `json:"zero_fixed,omitempty"`
}

// Result is the outcome of a successful reallocation.
type Result struct {
	Strategy          Strategy          `json:"strategy"`
	Prices            []decimal.Decimal `json:"prices"`
	Changes           []Change          `json:"changes"`
	TotalBefore       decimal.Decimal   `json:"total_before"`
	TotalAfterZeroFix decimal.Decimal   `json:"total_after_zero_fix"`
	TotalAfter        decimal.Decimal   `json:"total_after"`
	Iterations        int               `json:"iterations"`
	ZeroFixed         int               `json:"zero_fixed"`
}

// Run is a recorded reallocation request.
type Run struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Limits    Limits     `json:"limits"`
	Items     []LineItem `json:"items"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Result    *Result    `json:"result,omitempty"`
}

type ReallocationRequest struct {
	Items []LineItem `json:"items"`
}

type ReallocationResponse struct {
	RunID  string  `json:"run_id"`
	Result *Result `json:"result"`
}

type ErrorResponse struct {
	Error        string           `json:"error"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit,omitempty"`
	Limit        *decimal.Decimal `json:"limit,omitempty"`
}
