package store

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"storefront-client/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	n := 0
	s, err := New("C1760000000000ABCDEF", WithSessionIDGenerator(func() string {
		n++
		return fmt.Sprintf("session_test_%d", n)
	}))
	require.NoError(t, err)
	return s
}

func sumCart(cart models.Cart) float64 {
	var sum float64
	for _, item := range cart.Items {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}

func TestNewRequiresCustomerID(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewInitialState(t *testing.T) {
	s := newTestStore(t)
	st := s.Snapshot()

	assert.Equal(t, "session_test_1", st.SessionID)
	assert.Equal(t, "C1760000000000ABCDEF", st.CustomerID)
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.Products)
	assert.Empty(t, st.Cart.Items)
	assert.Equal(t, 0.0, st.Cart.Subtotal)
	assert.Nil(t, st.LoyaltyInfo)
	assert.False(t, st.IsChatOpen)
	assert.False(t, st.IsCartOpen)
}

func TestAddToCartMergesByProductID(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", ProductName: "Jacket", Quantity: 2, Price: 100}))
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", ProductName: "Other name", Quantity: 3, Price: 999, Size: "L"}))

	cart := s.Snapshot().Cart
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "P1", cart.Items[0].ProductID)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	// 既存行は数量以外を変更しない
	assert.Equal(t, "Jacket", cart.Items[0].ProductName)
	assert.Equal(t, 100.0, cart.Items[0].Price)
	assert.Equal(t, "", cart.Items[0].Size)
	assert.Equal(t, 500.0, cart.Subtotal)
}

func TestAddToCartMergesDifferentSizes(t *testing.T) {
	// サイズ違いでも同じ行にまとめられる（既知の挙動）
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 10, Size: "M"}))
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 10, Size: "XL"}))

	cart := s.Snapshot().Cart
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "M", cart.Items[0].Size)
}

func TestAddToCartRejectsInvalidItems(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 50}))

	calls := 0
	s.Subscribe(func(State) { calls++ })

	testCases := []models.CartItem{
		{ProductID: "P1", Quantity: 0, Price: 50},
		{ProductID: "P1", Quantity: -2, Price: 50},
		{ProductID: "", Quantity: 1, Price: 50},
		{ProductID: "P2", Quantity: 1, Price: -1},
	}
	for _, item := range testCases {
		err := s.AddToCart(item)
		assert.ErrorIs(t, err, ErrInvalidArgument, "item %+v", item)
	}

	cart := s.Snapshot().Cart
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, 50.0, cart.Subtotal)
	assert.Equal(t, 0, calls, "failed mutations must not notify")
}

func TestSubtotalInvariant(t *testing.T) {
	s := newTestStore(t)
	ops := []func(){
		func() { _ = s.AddToCart(models.CartItem{ProductID: "A", Quantity: 1, Price: 19.99}) },
		func() { _ = s.AddToCart(models.CartItem{ProductID: "B", Quantity: 3, Price: 0.1}) },
		func() { _ = s.AddToCart(models.CartItem{ProductID: "A", Quantity: 2, Price: 19.99}) },
		func() { s.RemoveFromCart("B") },
		func() { _ = s.AddToCart(models.CartItem{ProductID: "C", Quantity: 7, Price: 1499}) },
		func() { s.RemoveFromCart("missing") },
		func() { s.RemoveFromCart("A") },
		func() { _ = s.AddToCart(models.CartItem{ProductID: "B", Quantity: 1, Price: 0.3}) },
	}

	for i, op := range ops {
		op()
		cart := s.Snapshot().Cart
		assert.InDelta(t, sumCart(cart), cart.Subtotal, 1e-9, "after op %d", i)
	}
}

func TestRemoveFromCartMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 2, Price: 250}))
	before := s.Snapshot().Cart

	s.RemoveFromCart("P404")

	after := s.Snapshot().Cart
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, before.Subtotal, after.Subtotal)
}

func TestClearCartResetsFully(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 2, Price: 0.1}))
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P2", Quantity: 1, Price: 0.2}))

	s.ClearCart()

	cart := s.Snapshot().Cart
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Subtotal == 0, "subtotal must be exactly zero")
}

func TestSubtractFromCartKeepsLaterAdditions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 4000}))
	ordered := s.Snapshot().Cart.Items

	// 注文処理中に追加された商品
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 2, Price: 4000}))
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P2", Quantity: 1, Price: 1500}))

	s.SubtractFromCart(ordered)

	cart := s.Snapshot().Cart
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "P1", cart.Items[0].ProductID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.InDelta(t, 9500, cart.Subtotal, 1e-9)

	s.SubtractFromCart(cart.Items)
	assert.Empty(t, s.Snapshot().Cart.Items)
	assert.Equal(t, 0.0, s.Snapshot().Cart.Subtotal)
}

func TestSetCartRecomputesSubtotal(t *testing.T) {
	s := newTestStore(t)

	err := s.SetCart(models.Cart{
		Items:    []models.CartItem{{ProductID: "P1", Quantity: 2, Price: 300}},
		Subtotal: 99999,
	})
	require.NoError(t, err)
	assert.Equal(t, 600.0, s.Snapshot().Cart.Subtotal)

	err = s.SetCart(models.Cart{Items: []models.CartItem{{ProductID: "P2", Quantity: 0, Price: 1}}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 600.0, s.Snapshot().Cart.Subtotal)
}

func TestAppendMessageIsAppendOnly(t *testing.T) {
	s := newTestStore(t)

	first := models.Message{Role: models.RoleUser, Message: "hello", Timestamp: "2026-10-17T10:00:00Z"}
	require.NoError(t, s.AppendMessage(first))
	before := s.Snapshot().Messages

	second := models.Message{
		Role:      models.RoleAgent,
		Message:   "hi",
		Timestamp: "2026-10-17T10:00:01Z",
		Products:  []models.Product{{ID: "P1", Name: "Jacket"}},
	}
	require.NoError(t, s.AppendMessage(second))
	after := s.Snapshot().Messages

	require.Len(t, before, 1)
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, second, after[1])
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessage(models.Message{Role: "system", Message: "nope"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, s.Snapshot().Messages)
}

func TestAppendMessageFillsTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendMessage(models.Message{Role: models.RoleUser, Message: "hello"}))
	assert.NotEmpty(t, s.Snapshot().Messages[0].Timestamp)
}

func TestAppendMessageCopiesProducts(t *testing.T) {
	s := newTestStore(t)
	products := []models.Product{{ID: "P1", Name: "Jacket"}}
	require.NoError(t, s.AppendMessage(models.Message{Role: models.RoleAgent, Message: "look", Products: products}))

	products[0].Name = "changed by caller"
	assert.Equal(t, "Jacket", s.Snapshot().Messages[0].Products[0].Name)
}

func TestReplaceProductsIsWholesale(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceProducts([]models.Product{{ID: "P1"}, {ID: "P2"}})
	s.ReplaceProducts([]models.Product{{ID: "P3"}})

	products := s.Snapshot().Products
	require.Len(t, products, 1)
	assert.Equal(t, "P3", products[0].ID)

	s.ReplaceProducts(nil)
	assert.NotNil(t, s.Snapshot().Products)
	assert.Empty(t, s.Snapshot().Products)
}

func TestTogglePanels(t *testing.T) {
	s := newTestStore(t)

	s.ToggleChatPanel()
	st := s.Snapshot()
	assert.True(t, st.IsChatOpen)
	assert.False(t, st.IsCartOpen)

	s.ToggleCartPanel()
	s.ToggleChatPanel()
	st = s.Snapshot()
	assert.False(t, st.IsChatOpen)
	assert.True(t, st.IsCartOpen)
}

func TestSetTyping(t *testing.T) {
	s := newTestStore(t)
	s.SetTyping(true)
	assert.True(t, s.Snapshot().IsTyping)
	s.SetTyping(false)
	assert.False(t, s.Snapshot().IsTyping)
}

func TestSetLoyaltyInfoReplacesWholesale(t *testing.T) {
	s := newTestStore(t)
	s.SetLoyaltyInfo(models.LoyaltyInfo{Tier: models.TierGold, Points: 1200, NextTier: "Platinum", PointsToNextTier: 800})
	s.SetLoyaltyInfo(models.LoyaltyInfo{Tier: models.TierSilver, Points: 10})

	info := s.Snapshot().LoyaltyInfo
	require.NotNil(t, info)
	assert.Equal(t, models.TierSilver, info.Tier)
	assert.Equal(t, 10, info.Points)
	assert.Empty(t, info.NextTier)
	assert.Zero(t, info.PointsToNextTier)
}

func TestResetSessionPreservesCustomerID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendMessage(models.Message{Role: models.RoleUser, Message: "hi"}))
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 10}))
	s.ReplaceProducts([]models.Product{{ID: "P1"}})
	s.SelectProduct(&models.Product{ID: "P1"})
	s.SetLoyaltyInfo(models.LoyaltyInfo{Tier: models.TierGold})
	before := s.Snapshot()

	s.ResetSession()

	after := s.Snapshot()
	assert.NotEqual(t, before.SessionID, after.SessionID)
	assert.Equal(t, before.CustomerID, after.CustomerID)
	assert.Empty(t, after.Messages)
	assert.Empty(t, after.Products)
	assert.Empty(t, after.Cart.Items)
	assert.Equal(t, 0.0, after.Cart.Subtotal)
	assert.Nil(t, after.SelectedProduct)
	assert.NotNil(t, after.LoyaltyInfo, "loyalty snapshot is not part of the session")
}

func TestSubscribersNotifiedSynchronously(t *testing.T) {
	s := newTestStore(t)

	var seen []float64
	unsubscribe := s.Subscribe(func(st State) {
		seen = append(seen, st.Cart.Subtotal)
	})

	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 4000}))
	// 呼び出しが戻った時点で通知済み
	require.Len(t, seen, 1)
	assert.Equal(t, 4000.0, seen[0])

	unsubscribe()
	unsubscribe()
	s.ClearCart()
	assert.Len(t, seen, 1)
}

func TestSubscriberSeesConsistentSnapshot(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	var violations int
	s.Subscribe(func(st State) {
		if math.Abs(sumCart(st.Cart)-st.Cart.Subtotal) > 1e-6 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("P%d", i%5)
			_ = s.AddToCart(models.CartItem{ProductID: id, Quantity: 1 + i%3, Price: float64(100 + i)})
			if i%7 == 0 {
				s.RemoveFromCart(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, violations)
	cart := s.Snapshot().Cart
	assert.InDelta(t, sumCart(cart), cart.Subtotal, 1e-6)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", Quantity: 1, Price: 10}))

	snap := s.Snapshot()
	snap.Cart.Items[0].Quantity = 99

	assert.Equal(t, 1, s.Snapshot().Cart.Items[0].Quantity)
}

func TestEndToEndCartScenario(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.Snapshot().Cart.Items)

	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P1", ProductName: "Jacket", Quantity: 1, Price: 4000}))
	assert.Equal(t, 4000.0, s.Snapshot().Cart.Subtotal)

	require.NoError(t, s.AddToCart(models.CartItem{ProductID: "P2", ProductName: "Scarf", Quantity: 2, Price: 1500}))
	assert.Equal(t, 7000.0, s.Snapshot().Cart.Subtotal)

	s.RemoveFromCart("P1")
	cart := s.Snapshot().Cart
	assert.Equal(t, 3000.0, cart.Subtotal)
	assert.Len(t, cart.Items, 1)
}
