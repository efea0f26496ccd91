package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/notify"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (h *harness) addListing(t *testing.T, id, owner, price string, qty int) {
	t.Helper()
	require.NoError(t, h.listings.Create(context.Background(), &domain.Listing{
		ID:         id,
		OwnerID:    owner,
		CategoryID: "retro-electronics",
		Title:      "Listing " + id,
		Price:      dec(price),
		Condition:  domain.ConditionUsed,
		Quantity:   qty,
		Active:     true,
	}))
}

func (h *harness) fillCart(t *testing.T, userID string, lines map[string]int) {
	t.Helper()
	for id, qty := range lines {
		_, err := h.carts.AddLine(context.Background(), userID, id, qty, nil)
		require.NoError(t, err)
	}
}

func totals(orders []domain.Order) map[string]string {
	out := map[string]string{}
	for _, o := range orders {
		out[o.ListingID] = o.TotalPrice.StringFixed(2)
	}
	return out
}

func TestCheckoutCartAcrossSellers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "u-alice")
	h.fillCart(t, "u-alice", map[string]int{"gbc-001": 1, "walkman-001": 1})

	res, err := h.checkout.CheckoutCart(ctx, alice)
	require.NoError(t, err)

	require.Len(t, res.Orders, 2)
	assert.Equal(t, "179.99", res.Summary.Subtotal.StringFixed(2))
	assert.Equal(t, "15.00", res.Summary.Shipping.StringFixed(2))
	assert.Equal(t, "194.99", res.Summary.Total.StringFixed(2))
	assert.Equal(t, 2, res.Summary.ItemCount)

	sum := decimal.Zero
	for _, o := range res.Orders {
		assert.Equal(t, domain.OrderPending, o.Status)
		assert.Equal(t, "u-alice", o.BuyerID)
		sum = sum.Add(o.TotalPrice)
	}
	assert.True(t, sum.Equal(res.Summary.Total), "order totals add up to the checkout total")

	assert.Equal(t, 7, h.stock(t, "gbc-001"))
	assert.Equal(t, 2, h.stock(t, "walkman-001"))

	cart, err := h.carts.GetWithLines(ctx, "u-alice")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	assert.Equal(t, map[string]int{notify.KindSellerOrder: 2, notify.KindBuyerReceipt: 1}, h.mail.kinds())
	assert.ElementsMatch(t, []string{"sam@tradepost.test", "rita@tradepost.test"}, h.mail.to(notify.KindSellerOrder))
	assert.Equal(t, []string{"alice@tradepost.test"}, h.mail.to(notify.KindBuyerReceipt))
}

func TestCheckoutFreeShippingThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addListing(t, "even-100", "u-sam", "100.00", 5)
	h.addListing(t, "just-under", "u-rita", "199.99", 1)

	h.fillCart(t, "u-alice", map[string]int{"even-100": 2})
	res, err := h.checkout.CheckoutCart(ctx, h.user(t, "u-alice"))
	require.NoError(t, err)
	assert.True(t, res.Summary.Shipping.IsZero())
	assert.Equal(t, "200.00", res.Summary.Total.StringFixed(2))

	h.fillCart(t, "u-bob", map[string]int{"just-under": 1})
	res, err = h.checkout.CheckoutCart(ctx, h.user(t, "u-bob"))
	require.NoError(t, err)
	assert.Equal(t, "15.00", res.Summary.Shipping.StringFixed(2))
	assert.Equal(t, "214.99", res.Summary.Total.StringFixed(2))
}

func TestCheckoutSplitsShippingProportionally(t *testing.T) {
	h := newHarness(t)
	h.addListing(t, "p-100", "u-sam", "100.00", 1)
	h.addListing(t, "p-50", "u-rita", "50.00", 1)
	h.fillCart(t, "u-alice", map[string]int{"p-100": 1, "p-50": 1})

	res, err := h.checkout.CheckoutCart(context.Background(), h.user(t, "u-alice"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p-100": "110.00", "p-50": "55.00"}, totals(res.Orders))
}

func TestCheckoutEmptyCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "u-alice")

	_, err := h.checkout.CheckoutCart(ctx, alice)
	assert.True(t, apperr.Is(err, apperr.CodeValidation), "no cart at all")

	_, err = h.carts.GetOrCreate(ctx, "u-alice")
	require.NoError(t, err)
	_, err = h.checkout.CheckoutCart(ctx, alice)
	assert.True(t, apperr.Is(err, apperr.CodeValidation), "cart without lines")

	assert.Zero(t, h.orderCount(t))
	assert.Empty(t, h.mail.kinds())
}

func TestCheckoutRejectsShortfallBeforeWriting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fillCart(t, "u-alice", map[string]int{"gbc-001": 1, "radio-001": 2})
	require.NoError(t, h.listings.SetQuantity(ctx, "radio-001", 1))

	_, err := h.checkout.CheckoutCart(ctx, h.user(t, "u-alice"))
	require.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Contains(t, err.Error(), "insufficient stock")

	assert.Zero(t, h.orderCount(t))
	assert.Equal(t, 8, h.stock(t, "gbc-001"))
	assert.Equal(t, 1, h.stock(t, "radio-001"))

	cart, err := h.carts.GetWithLines(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2, "a failed checkout keeps the cart")
}

func TestCheckoutRejectsInactiveListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fillCart(t, "u-alice", map[string]int{"nes-001": 1})

	l, err := h.listings.Get(ctx, "nes-001")
	require.NoError(t, err)
	l.Active = false
	require.NoError(t, h.listings.Update(ctx, &l, nil))

	_, err = h.checkout.CheckoutCart(ctx, h.user(t, "u-alice"))
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Zero(t, h.orderCount(t))
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyers := []*domain.User{h.user(t, "u-alice"), h.user(t, "u-bob"), h.user(t, "u-sam")}

	const attempts = 9
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(buyer *domain.User) {
			defer wg.Done()
			_, err := h.checkout.CheckoutItem(ctx, buyer, "walkman-001", 1, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.CodeValidation):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(buyers[i%len(buyers)])
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, attempts-3, rejected)
	assert.Equal(t, 0, h.stock(t, "walkman-001"))
	assert.Equal(t, 3, h.orderCount(t))
}

func TestCheckoutItemCreatesPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "u-alice")
	client := dec("1.00")

	res, err := h.checkout.CheckoutItem(ctx, alice, "nes-001", 1, &client)
	require.NoError(t, err)

	assert.Equal(t, "214.00", res.Order.TotalPrice.StringFixed(2), "server total wins over the client's")
	assert.Equal(t, "NES Console", res.Order.ListingTitle)
	assert.Equal(t, "pref-"+res.Order.ID, res.Payment.PreferenceID)
	assert.NotEmpty(t, res.Payment.InitPoint)

	p, err := h.paySvc.GetByOrderID(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.True(t, p.Amount.Equal(dec("214.00")))
	assert.Nil(t, p.ExternalReference)

	require.Len(t, h.gw.prefs, 1)
	assert.Equal(t, "alice@tradepost.test", h.gw.prefs[0].PayerEmail)
	assert.Equal(t, 4, h.stock(t, "nes-001"))
}

func TestCheckoutItemGatewayFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.createErr = errors.New("provider down")

	_, err := h.checkout.CheckoutItem(ctx, h.user(t, "u-alice"), "gbc-001", 2, nil)
	require.Error(t, err)
	assert.Nil(t, apperr.As(err), "provider failures stay untyped")

	assert.Equal(t, 8, h.stock(t, "gbc-001"))
	orders, err := h.orderSvc.FindAllByBuyer(ctx, "u-alice")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderCanceled, orders[0].Status)
	assert.Empty(t, h.mail.kinds())
}

func TestCheckoutItemValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "u-alice")

	_, err := h.checkout.CheckoutItem(ctx, alice, "gbc-001", 0, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = h.checkout.CheckoutItem(ctx, alice, "missing", 1, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = h.checkout.CheckoutItem(ctx, alice, "radio-001", 3, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.Zero(t, h.orderCount(t))
}

func TestPayOrderForCartOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "u-alice")
	h.fillCart(t, "u-alice", map[string]int{"radio-001": 1})

	res, err := h.checkout.CheckoutCart(ctx, alice)
	require.NoError(t, err)
	orderID := res.Orders[0].ID

	_, err = h.paySvc.PayOrder(ctx, h.user(t, "u-bob"), orderID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	link, err := h.paySvc.PayOrder(ctx, alice, orderID)
	require.NoError(t, err)
	assert.Equal(t, "pref-"+orderID, link.PreferenceID)

	details, err := h.paySvc.GetWithDetails(ctx, link.PreferenceID)
	require.NoError(t, err)
	assert.Equal(t, "Philco 1939", details.ListingTitle)
	assert.Equal(t, domain.OrderPending, details.OrderStatus)

	_, err = h.orderSvc.Cancel(ctx, orderID)
	require.NoError(t, err)
	_, err = h.paySvc.PayOrder(ctx, alice, orderID)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
