// Package sales holds the margin guard applied when confirming sales orders:
// a line sold below its cost blocks confirmation unless the actor carries
// the manager override.
package sales

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderLine is the slice of a sales-order line the margin check needs.
type OrderLine struct {
	ProductID   string
	Description string
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
}

// BelowCost reports whether the line sells under its cost.
func (l OrderLine) BelowCost() bool {
	return l.UnitCost.GreaterThan(l.UnitPrice)
}

// MarginViolationError lists the lines priced below cost.
type MarginViolationError struct {
	Lines []OrderLine
}

func (e *MarginViolationError) Error() string {
	products := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		products[i] = l.ProductID
	}
	return fmt.Sprintf("only a manager can confirm this order: %s sold below cost",
		strings.Join(products, ", "))
}

// CheckMargins validates an order's lines before confirmation. The order
// stays in draft when it fails; the caller edits the prices or retries with
// the manager override.
func CheckMargins(lines []OrderLine, managerOverride bool) error {
	if managerOverride {
		return nil
	}
	var violations []OrderLine
	for _, l := range lines {
		if l.BelowCost() {
			violations = append(violations, l)
		}
	}
	if len(violations) > 0 {
		return &MarginViolationError{Lines: violations}
	}
	return nil
}
