package discounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return NewCatalog(
		[]Mapping{{SKU: "A", ProductID: 1}, {SKU: "B", ProductID: 2}, {SKU: "KIT-Y", ProductID: 9}},
		[]KitRule{
			{KitSKU: "KIT-X", Components: []string{"A", "B"}},
			{KitSKU: "KIT-Y", Components: []string{"A", "GHOST"}},
		},
	)
}

var orderTime = time.Date(2026, 7, 1, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))

func order(id string, lines ...Line) Order {
	return Order{ID: id, Channel: "marketplace", CreatedAt: orderTime, Lines: lines}
}

func TestCatalogLookupsAreExact(t *testing.T) {
	c := testCatalog()

	id, ok := c.ResolveSKU("A")
	require.True(t, ok)
	require.Equal(t, int64(1), id)
	_, ok = c.ResolveSKU("a")
	require.False(t, ok)
	_, ok = c.ResolveSKU(" A")
	require.False(t, ok)

	require.Equal(t, []string{"A", "B"}, c.ExpandKit("KIT-X"))
	require.Empty(t, c.ExpandKit("kit-x"))
	require.NotNil(t, c.ExpandKit("A"))

	expanded := c.ExpandKit("KIT-X")
	expanded[0] = "Z"
	require.Equal(t, []string{"A", "B"}, c.ExpandKit("KIT-X"))
}

func TestKitFanOutKeepsQuantity(t *testing.T) {
	records := Accumulate(testCatalog(), []Order{order("O1", Line{SKU: "KIT-X", Quantity: 3})})
	require.Len(t, records, 2)
	require.Equal(t, SaleKey{OrderID: "O1", ProductID: 1}, records[0].Key())
	require.Equal(t, int64(3), records[0].Quantity)
	require.Equal(t, SaleKey{OrderID: "O1", ProductID: 2}, records[1].Key())
	require.Equal(t, int64(3), records[1].Quantity)
}

func TestDirectAndKitContributionsBothCount(t *testing.T) {
	records := Accumulate(testCatalog(), []Order{order("O1", Line{SKU: "KIT-Y", Quantity: 2})})
	require.Len(t, records, 2)
	require.Equal(t, int64(1), records[0].ProductID)
	require.Equal(t, int64(9), records[1].ProductID)
}

func TestSameOrderMergesAcrossPasses(t *testing.T) {
	acc := NewAccumulator(testCatalog())
	acc.Add(order("O1", Line{SKU: "A", Quantity: 2}))
	acc.Add(order("O1", Line{SKU: "A", Quantity: 5}))

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].Quantity)
	require.Equal(t, 1, acc.Len())
}

func TestCancelledOrdersContributeNothing(t *testing.T) {
	cancelled := order("O2", Line{SKU: "A", Quantity: 4})
	cancelled.ShippingStatus = " Cancelled "
	require.True(t, cancelled.Cancelled())

	acc := NewAccumulator(testCatalog())
	active := order("O2", Line{SKU: "B", Quantity: 1})
	acc.Add(active)
	acc.Add(cancelled)
	acc.Add(active)
	acc.Add(order("O3", Line{SKU: "A", Quantity: 1}))

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, "O3", records[0].OrderID)
}

func TestIgnoredLines(t *testing.T) {
	records := Accumulate(testCatalog(), []Order{order("O1",
		Line{SKU: "A", Quantity: 0},
		Line{SKU: "B", Quantity: -1},
		Line{SKU: "UNKNOWN", Quantity: 3},
	)})
	require.Empty(t, records)
}

func TestRecordsOrderIndependentOfInput(t *testing.T) {
	orders := []Order{
		order("O2", Line{SKU: "B", Quantity: 1}),
		order("O1", Line{SKU: "KIT-X", Quantity: 1}, Line{SKU: "A", Quantity: 1}),
	}
	reversed := []Order{orders[1], orders[0]}
	require.Equal(t, Accumulate(testCatalog(), orders), Accumulate(testCatalog(), reversed))

	records := Accumulate(testCatalog(), orders)
	require.Equal(t, "O1", records[0].OrderID)
	require.Equal(t, int64(2), records[0].Quantity)
}

func TestSaleDateKeepsLocalCalendarDay(t *testing.T) {
	records := Accumulate(testCatalog(), []Order{order("O1", Line{SKU: "A", Quantity: 1})})
	require.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), records[0].Date)
	require.Equal(t, "marketplace", records[0].Channel)
}
