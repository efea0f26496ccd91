package services

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	applog "tradepost/internal/log"
	"tradepost/internal/metrics"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
)

// Notifier sends transactional emails. Callers log failures and move on.
type Notifier interface {
	BuyerReceipt(ctx context.Context, to string, r notify.Receipt) error
	SellerNewOrder(ctx context.Context, to string, o notify.SellerOrder) error
	PaymentApproved(ctx context.Context, to string, n notify.PaymentNotice) error
	SellerSale(ctx context.Context, to string, n notify.PaymentNotice) error
	PaymentFailed(ctx context.Context, to string, n notify.PaymentNotice) error
}

// Checkout entry points, also used as metric labels.
const (
	SourceCart   = "cart"
	SourceSingle = "single"
)

type CheckoutLine struct {
	ListingID string `json:"listingId"`
	Quantity  int    `json:"quantity"`
}

type Summary struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

type CheckoutResult struct {
	Orders  []domain.Order `json:"orders"`
	Summary Summary        `json:"summary"`
}

// SingleResult is the answer of the buy-now path: one order plus where to pay.
type SingleResult struct {
	Order   domain.Order `json:"order"`
	Summary Summary      `json:"summary"`
	Payment PaymentLink  `json:"payment"`
}

type CheckoutService struct {
	Tx       *repos.TxRunner
	Listings *repos.ListingRepo
	Orders   *repos.OrderRepo
	Users    *repos.UserRepo
	Carts    *CartService
	Payments *PaymentService
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// priced is a checkout line after re-reading its listing.
type priced struct {
	listing  domain.Listing
	qty      int
	subtotal decimal.Decimal
	shipping decimal.Decimal
}

// CheckoutCart turns the buyer's cart into orders and empties the cart.
func (s *CheckoutService) CheckoutCart(ctx context.Context, buyer *domain.User) (res CheckoutResult, err error) {
	defer func() { s.Metrics.Checkout(SourceCart, err) }()

	cart, err := s.Carts.GetWithLines(ctx, buyer.ID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return CheckoutResult{}, apperr.Validation("cart is empty")
	}
	if err != nil {
		return CheckoutResult{}, err
	}
	lines := make([]CheckoutLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, CheckoutLine{ListingID: l.ListingID, Quantity: l.Quantity})
	}
	res, err = s.checkout(ctx, buyer, lines)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := s.Carts.Clear(ctx, buyer.ID); err != nil {
		// orders are already committed; a stale cart is only cosmetic
		applog.Error(nil, "checkout.cart_clear_failed", err, map[string]any{"buyer_id": buyer.ID})
	}
	s.notifyCheckout(ctx, buyer, res.Orders, res.Summary)
	return res, nil
}

// CheckoutItem buys one listing right away and asks the provider for a
// payment page. clientTotal is what the client displayed; the server total
// always wins.
func (s *CheckoutService) CheckoutItem(ctx context.Context, buyer *domain.User, listingID string, qty int, clientTotal *decimal.Decimal) (res SingleResult, err error) {
	defer func() { s.Metrics.Checkout(SourceSingle, err) }()

	out, err := s.checkout(ctx, buyer, []CheckoutLine{{ListingID: listingID, Quantity: qty}})
	if err != nil {
		return SingleResult{}, err
	}
	o := out.Orders[0]
	if clientTotal != nil && !clientTotal.Equal(o.TotalPrice) {
		applog.Audit(nil, "checkout.total_mismatch", map[string]any{
			"order_id":     o.ID,
			"buyer_id":     buyer.ID,
			"client_total": money(*clientTotal),
			"server_total": money(o.TotalPrice),
		})
	}

	link, err := s.Payments.CreatePayment(ctx, buyer.ID, o.ID, o.TotalPrice, describe(o.ListingTitle, o.Quantity), buyer.Email)
	if err != nil {
		s.compensate(ctx, out.Orders)
		return SingleResult{}, err
	}
	s.notifyCheckout(ctx, buyer, out.Orders, out.Summary)
	return SingleResult{Order: o, Summary: out.Summary, Payment: link}, nil
}

func (s *CheckoutService) checkout(ctx context.Context, buyer *domain.User, lines []CheckoutLine) (CheckoutResult, error) {
	if len(lines) == 0 {
		return CheckoutResult{}, apperr.Validation("cart is empty")
	}
	items, err := s.price(ctx, lines)
	if err != nil {
		return CheckoutResult{}, err
	}

	subs := make([]decimal.Decimal, len(items))
	for i, it := range items {
		subs[i] = it.subtotal
	}
	sum := Summary{Subtotal: decimal.Sum(decimal.Zero, subs...)}
	sum.Shipping = ShippingFor(sum.Subtotal)
	sum.Total = sum.Subtotal.Add(sum.Shipping)
	for i, share := range SplitShipping(sum.Shipping, subs) {
		items[i].shipping = share
		sum.ItemCount += items[i].qty
	}

	orders := make([]domain.Order, 0, len(items))
	for _, it := range items {
		o, err := s.place(ctx, buyer.ID, it)
		if err != nil {
			s.compensate(ctx, orders)
			return CheckoutResult{}, err
		}
		orders = append(orders, o)
	}
	s.Metrics.OrdersCreated(len(orders))
	applog.Audit(nil, "checkout.complete", map[string]any{
		"buyer_id": buyer.ID,
		"orders":   len(orders),
		"subtotal": money(sum.Subtotal),
		"shipping": money(sum.Shipping),
		"total":    money(sum.Total),
	})
	return CheckoutResult{Orders: orders, Summary: sum}, nil
}

// price re-reads every listing and rejects the whole request before any
// write if a line cannot be filled.
func (s *CheckoutService) price(ctx context.Context, lines []CheckoutLine) ([]priced, error) {
	items := make([]priced, 0, len(lines))
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			return nil, apperr.Validation("quantity must be greater than zero")
		}
		l, err := s.Listings.Get(ctx, ln.ListingID)
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.Newf(apperr.CodeValidation, "listing %s is no longer available", ln.ListingID)
		}
		if err != nil {
			return nil, err
		}
		if !l.Active {
			return nil, apperr.Newf(apperr.CodeValidation, "%q is no longer available", l.Title)
		}
		if ln.Quantity > l.Quantity {
			return nil, apperr.Newf(apperr.CodeValidation,
				"insufficient stock for %q: requested %d, available %d", l.Title, ln.Quantity, l.Quantity)
		}
		items = append(items, priced{
			listing:  l,
			qty:      ln.Quantity,
			subtotal: l.Price.Mul(decimal.NewFromInt(int64(ln.Quantity))),
		})
	}
	return items, nil
}

// place decrements stock and writes the order in one transaction. The
// conditional decrement is what keeps concurrent checkouts from overselling.
func (s *CheckoutService) place(ctx context.Context, buyerID string, it priced) (domain.Order, error) {
	o := domain.Order{
		BuyerID:    buyerID,
		ListingID:  it.listing.ID,
		Quantity:   it.qty,
		TotalPrice: it.subtotal.Add(it.shipping),
		Status:     domain.OrderPending,
	}
	err := s.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.Listings.WithTx(tx).DecrementStock(ctx, it.listing.ID, it.qty); err != nil {
			return err
		}
		return s.Orders.WithTx(tx).Create(ctx, &o)
	})
	if err != nil {
		return domain.Order{}, err
	}
	o.ListingTitle = it.listing.Title
	o.SellerID = it.listing.OwnerID
	return o, nil
}

// compensate undoes committed lines in reverse: stock goes back and the
// order is marked canceled so history is kept.
func (s *CheckoutService) compensate(ctx context.Context, orders []domain.Order) {
	for i := len(orders) - 1; i >= 0; i-- {
		o := orders[i]
		err := s.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := s.Listings.WithTx(tx).Restock(ctx, o.ListingID, o.Quantity); err != nil {
				return err
			}
			return s.Orders.WithTx(tx).UpdateStatus(ctx, o.ID, domain.OrderCanceled)
		})
		if err != nil {
			applog.Error(nil, "checkout.compensation_failed", err, map[string]any{"order_id": o.ID})
			continue
		}
		applog.Audit(nil, "checkout.compensated", map[string]any{"order_id": o.ID, "restocked": o.Quantity})
	}
}

// notifyCheckout sends one email per order to its seller and one combined
// receipt to the buyer. Failures are logged only.
func (s *CheckoutService) notifyCheckout(ctx context.Context, buyer *domain.User, orders []domain.Order, sum Summary) {
	if s.Notifier == nil {
		return
	}
	bySeller := map[string][]domain.Order{}
	var sellers []string
	for _, o := range orders {
		if _, ok := bySeller[o.SellerID]; !ok {
			sellers = append(sellers, o.SellerID)
		}
		bySeller[o.SellerID] = append(bySeller[o.SellerID], o)
	}

	shipTo := address(buyer)
	for _, sellerID := range sellers {
		seller, err := s.Users.ByID(ctx, sellerID)
		if err != nil {
			applog.Error(nil, "notify.seller_lookup_failed", err, map[string]any{"seller_id": sellerID})
			continue
		}
		for _, o := range bySeller[sellerID] {
			err := s.Notifier.SellerNewOrder(ctx, seller.Email, notify.SellerOrder{
				SellerName: seller.Name,
				BuyerName:  buyer.Name,
				OrderID:    o.ID,
				Title:      o.ListingTitle,
				Quantity:   o.Quantity,
				Total:      money(o.TotalPrice),
				ShipTo:     shipTo,
			})
			if err != nil {
				applog.Error(nil, "notify.seller_order_failed", err, map[string]any{"order_id": o.ID})
			}
		}
	}

	receipt := notify.Receipt{
		BuyerName: buyer.Name,
		Subtotal:  money(sum.Subtotal),
		Shipping:  money(sum.Shipping),
		Total:     money(sum.Total),
	}
	for _, o := range orders {
		receipt.Lines = append(receipt.Lines, notify.Line{Title: o.ListingTitle, Quantity: o.Quantity, Total: money(o.TotalPrice)})
	}
	if err := s.Notifier.BuyerReceipt(ctx, buyer.Email, receipt); err != nil {
		applog.Error(nil, "notify.buyer_receipt_failed", err, map[string]any{"buyer_id": buyer.ID})
	}
}

func address(u *domain.User) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{u.Street, u.City, u.State, u.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
