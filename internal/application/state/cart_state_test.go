package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solare/internal/adapters/out/memory"
	"solare/internal/application/state"
	"solare/internal/domain/cart"
	"solare/internal/domain/product"
)

func productIDs(items []cart.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	return out
}

func TestCartScenarioAddThenSetQuantity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	events := record[state.CartChanged](m, state.EventCartChanged)

	require.NoError(t, m.Cart().AddItem(ctx, product.Product{ID: "p1", Name: "Shirt", Price: 20}))

	items := m.Cart().GetItems()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.InDelta(t, 20, items[0].Price, 1e-9)
	assert.NotEmpty(t, items[0].LineID)

	totals := m.Cart().GetTotals()
	assert.InDelta(t, 20, totals.Subtotal, 1e-9)
	assert.InDelta(t, 4.2, totals.Tax, 1e-9)
	assert.InDelta(t, 10, totals.Shipping, 1e-9)
	assert.InDelta(t, 34.2, totals.Total, 1e-9)
	assert.Equal(t, 1, totals.ItemCount)

	require.NoError(t, m.Cart().UpdateQuantity(ctx, "p1", 6))

	totals = m.Cart().GetTotals()
	assert.InDelta(t, 120, totals.Subtotal, 1e-9)
	assert.InDelta(t, 25.2, totals.Tax, 1e-9)
	assert.Zero(t, totals.Shipping)
	assert.InDelta(t, 145.2, totals.Total, 1e-9)

	last, ok := events.last()
	require.True(t, ok)
	assert.Equal(t, 6, last.Items[0].Quantity)
	assert.InDelta(t, 145.2, last.Totals.Total, 1e-9)
}

func TestCartTotalsTrackItemsAcrossMutations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	c := m.Cart()

	require.NoError(t, c.AddItem(ctx, shirt))
	require.NoError(t, c.AddItem(ctx, mug))
	require.NoError(t, c.AddItem(ctx, mug))
	require.NoError(t, c.UpdateQuantity(ctx, "p1", 3))
	require.NoError(t, c.AddItem(ctx, hat))
	require.NoError(t, c.RemoveItem(ctx, "p2"))

	var want float64
	for _, it := range c.GetItems() {
		want += it.Price * float64(it.Quantity)
	}
	totals := c.GetTotals()
	assert.InDelta(t, want, totals.Subtotal, 1e-9)
	assert.InDelta(t, want*0.21, totals.Tax, 1e-9)
	assert.InDelta(t, 75, totals.Subtotal, 1e-9)
	assert.InDelta(t, 10, totals.Shipping, 1e-9)
	assert.Equal(t, 4, totals.ItemCount)
}

func TestCartAddExistingIncrements(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)

	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	require.NoError(t, m.Cart().AddItem(ctx, shirt))

	items := m.Cart().GetItems()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Len(t, h.store.CallsOf(memory.OpInsertLine), 1)
	assert.Len(t, h.store.CallsOf(memory.OpUpdateLine), 1)
}

func TestCartRemoveThenAddStartsAtOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)

	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	require.NoError(t, m.Cart().UpdateQuantity(ctx, "p1", 4))
	require.NoError(t, m.Cart().RemoveItem(ctx, "p1"))
	require.NoError(t, m.Cart().AddItem(ctx, shirt))

	items := m.Cart().GetItems()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestCartFailedAddLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))

	events := record[state.CartChanged](m, state.EventCartChanged)
	h.store.Fail(memory.OpInsertLine, nil)

	err := m.Cart().AddItem(ctx, mug)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInjected)
	assert.Equal(t, []string{"p1"}, productIDs(m.Cart().GetItems()))
	assert.Empty(t, events.all())

	h.store.Fail(memory.OpUpdateLine, nil)
	require.Error(t, m.Cart().UpdateQuantity(ctx, "p1", 5))
	assert.Equal(t, 1, m.Cart().GetItems()[0].Quantity)
}

func TestCartMissingProductIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	events := record[state.CartChanged](m, state.EventCartChanged)

	require.NoError(t, m.Cart().UpdateQuantity(ctx, "nope", 3))
	require.NoError(t, m.Cart().RemoveItem(ctx, "nope"))

	assert.Empty(t, h.store.CallsOf(memory.OpUpdateLine))
	assert.Empty(t, h.store.CallsOf(memory.OpDeleteLine))
	assert.Empty(t, events.all())
}

func TestCartRejectsInvalidProduct(t *testing.T) {
	h := newHarness(t)
	m := h.started(t)

	err := m.Cart().AddItem(context.Background(), product.Product{Name: "no id"})
	assert.ErrorIs(t, err, cart.ErrInvalidProduct)
	assert.Empty(t, h.store.CallsOf(memory.OpInsertLine))
}

func TestCartClear(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	require.NoError(t, m.Cart().AddItem(ctx, mug))

	require.NoError(t, m.Cart().Clear(ctx))

	assert.Empty(t, m.Cart().GetItems())
	assert.Len(t, h.store.CallsOf(memory.OpDeleteAllLines), 1)

	lines, err := h.store.ListLines(ctx, m.Cart().CartID())
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartFailedRemoveLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	require.NoError(t, m.Cart().AddItem(ctx, mug))

	events := record[state.CartChanged](m, state.EventCartChanged)
	h.store.Fail(memory.OpDeleteLine, nil)

	err := m.Cart().RemoveItem(ctx, "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInjected)
	assert.Equal(t, []string{"p1", "p2"}, productIDs(m.Cart().GetItems()))
	assert.Empty(t, events.all())

	lines, err := h.store.ListLines(ctx, m.Cart().CartID())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestCartFailedClearLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	require.NoError(t, m.Cart().AddItem(ctx, mug))

	events := record[state.CartChanged](m, state.EventCartChanged)
	h.store.Fail(memory.OpDeleteAllLines, nil)

	err := m.Cart().Clear(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInjected)
	assert.Equal(t, []string{"p1", "p2"}, productIDs(m.Cart().GetItems()))
	assert.Equal(t, 2, m.Cart().ItemCount())
	assert.Empty(t, events.all())

	lines, err := h.store.ListLines(ctx, m.Cart().CartID())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestCartReloadsOnTokenRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, h.sessions.SignIn(ctx, "u1"))
	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	before := len(h.store.CallsOf(memory.OpFindCart))

	require.NoError(t, h.sessions.Refresh(ctx))

	assert.Len(t, h.store.CallsOf(memory.OpFindCart), before+1)
	assert.Equal(t, []string{"p1"}, productIDs(m.Cart().GetItems()))
	assert.Len(t, h.store.CallsOf(memory.OpListFavorites), 1, "same-user refresh does not re-merge favorites")
}

func TestCartReloadsOnIdentityChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))
	anonCart := m.Cart().CartID()

	require.NoError(t, h.sessions.SignIn(ctx, "u1:u1@example.com"))

	assert.Empty(t, m.Cart().GetItems(), "anonymous items are not merged into the user cart")
	assert.NotEqual(t, anonCart, m.Cart().CartID())
	assert.Equal(t, state.StatusReady, m.Cart().Status())

	require.NoError(t, m.Cart().AddItem(ctx, mug))
	require.NoError(t, h.sessions.SignOut(ctx))

	assert.Equal(t, anonCart, m.Cart().CartID())
	assert.Equal(t, []string{"p1"}, productIDs(m.Cart().GetItems()))
}

func TestCartFailedReloadIsEmptyAndRetriedOnNextMutation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))

	h.store.Fail(memory.OpFindCart, nil)
	require.NoError(t, h.sessions.SignIn(ctx, "u1"))

	assert.Empty(t, m.Cart().GetItems())
	assert.Empty(t, m.Cart().CartID())

	h.store.Heal(memory.OpFindCart)
	require.NoError(t, m.Cart().AddItem(ctx, mug))

	assert.Equal(t, []string{"p2"}, productIDs(m.Cart().GetItems()))
	assert.NotEmpty(t, m.Cart().CartID())
}

func TestCartReadsBeforeStartAreDefined(t *testing.T) {
	h := newHarness(t)
	m := h.tab(t)

	assert.NotNil(t, m.Cart().GetItems())
	assert.Empty(t, m.Cart().GetItems())
	assert.Equal(t, state.StatusUninitialized, m.Cart().Status())
	assert.Zero(t, m.Cart().ItemCount())
	assert.False(t, m.Auth().IsReady())
}

func TestCartCrossTabLastWriteWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.started(t)
	b := h.started(t)
	bEvents := record[state.CartChanged](b, state.EventCartChanged)

	require.NoError(t, a.Cart().AddItem(ctx, shirt))

	assert.Equal(t, []string{"p1"}, productIDs(b.Cart().GetItems()))
	last, ok := bEvents.last()
	require.True(t, ok)
	assert.Equal(t, []string{"p1"}, productIDs(last.Items))

	// Both tabs share the anonymous cart.
	assert.Equal(t, a.Cart().CartID(), b.Cart().CartID())
}

func TestCartMirrorsToLocalStorage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.started(t)
	require.NoError(t, m.Cart().AddItem(ctx, shirt))

	raw, ok := h.profile.Raw(state.KeyCart)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"p1","lineId":"`+m.Cart().GetItems()[0].LineID+`","name":"Shirt","price":20,"category":"tops","quantity":1}]`, string(raw))
}
