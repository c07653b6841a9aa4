package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/shopspring/decimal"
)

const separator = "━━━━━━━━━━━━━━━━"

// FormatReport renders summary as the plain-text report shown to operators.
func FormatReport(s Summary) string {
	if !s.Succeeded() {
		return formatFailure(s)
	}

	money := func(d decimal.Decimal) string { return d.StringFixed(2) + s.Currency }
	res := s.Result

	var b strings.Builder
	switch res.Strategy {
	case models.StrategyUniform, models.StrategyPartition:
		b.WriteString("DONE! Smart distribution applied\n\n")
	default:
		fmt.Fprintf(&b, "DONE! Simple cap to %s applied\n\n", money(s.Limits.MaxPerItem))
	}

	b.WriteString("Summary:\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Original: %s\n", money(res.TotalBefore))
	if res.ZeroFixed > 0 {
		fmt.Fprintf(&b, "After zero fix: %s\n", money(res.TotalAfterZeroFix))
	}
	fmt.Fprintf(&b, "Final: %s\n", money(res.TotalAfter))
	fmt.Fprintf(&b, "Items changed: %d/%d\n", len(res.Changes), len(res.Prices))
	if res.Iterations > 0 {
		fmt.Fprintf(&b, "Iterations: %d\n", res.Iterations)
	}
	if res.ZeroFixed > 0 {
		fmt.Fprintf(&b, "Zero prices fixed: %d\n", res.ZeroFixed)
	}

	if len(res.Changes) > 0 {
		b.WriteString("\nChanges:\n")
		for _, ch := range res.Changes {
			label := models.LineItem{Name: ch.Name, SKU: ch.SKU}.Label(ch.Index)
			fmt.Fprintf(&b, "  • %s (x%d):\n", label, ch.Quantity)
			fmt.Fprintf(&b, "    %s → %s\n", money(ch.OldPrice), money(ch.NewPrice))
		}
	}

	return b.String()
}

func formatFailure(s Summary) string {
	var ie *reallocator.InfeasibleError
	switch {
	case errors.As(s.Err, &ie):
		return fmt.Sprintf("ERROR: Cannot distribute!\n\nPrice per unit would be: %s%s\nMaximum allowed: %s%s\n\nPlease remove items or reduce quantities.\n",
			ie.PricePerUnit.StringFixed(2), s.Currency, ie.Limit.StringFixed(2), s.Currency)
	case reallocator.IsInfeasible(s.Err):
		return fmt.Sprintf("ERROR: Cannot distribute!\n\n%v\n\nPlease remove items or reduce quantities.\n", s.Err)
	case errors.Is(s.Err, reallocator.ErrNotConverged):
		return fmt.Sprintf("ERROR: %v\n\nPlease contact support.\n", s.Err)
	case errors.Is(s.Err, reallocator.ErrNoItems):
		return "ERROR: No items found!\n"
	case s.Err != nil:
		return fmt.Sprintf("ERROR: %v\n", s.Err)
	default:
		return "ERROR: no result\n"
	}
}
