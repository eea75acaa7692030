package sales_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbook/finance-engine/sales"
)

func line(product string, price, cost float64) sales.OrderLine {
	return sales.OrderLine{
		ProductID: product,
		UnitPrice: decimal.NewFromFloat(price),
		UnitCost:  decimal.NewFromFloat(cost),
	}
}

func TestCheckMargins_AllLinesProfitable_Passes(t *testing.T) {
	err := sales.CheckMargins([]sales.OrderLine{
		line("widget", 10, 7),
		line("gadget", 5, 5), // selling at cost is allowed
	}, false)
	assert.NoError(t, err)
}

func TestCheckMargins_BelowCostLine_Blocks(t *testing.T) {
	// GIVEN: One of three lines priced under cost
	// WHEN: Confirming without the manager override
	// THEN: The violation names the offending product

	err := sales.CheckMargins([]sales.OrderLine{
		line("widget", 10, 7),
		line("gizmo", 4, 6),
		line("gadget", 5, 5),
	}, false)

	var violation *sales.MarginViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Lines, 1)
	assert.Equal(t, "gizmo", violation.Lines[0].ProductID)
	assert.Contains(t, err.Error(), "only a manager can confirm this order")
	assert.Contains(t, err.Error(), "gizmo")
}

func TestCheckMargins_ManagerOverride_AllowsBelowCost(t *testing.T) {
	err := sales.CheckMargins([]sales.OrderLine{
		line("gizmo", 4, 6),
	}, true)
	assert.NoError(t, err)
}

func TestCheckMargins_EmptyOrder_Passes(t *testing.T) {
	assert.NoError(t, sales.CheckMargins(nil, false))
}
