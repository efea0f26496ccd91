package services

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	applog "tradepost/internal/log"
	"tradepost/internal/repos"
)

type OrderService struct {
	Orders   *repos.OrderRepo
	Listings *repos.ListingRepo
	Tx       *repos.TxRunner
}

func NewOrderService(orders *repos.OrderRepo, listings *repos.ListingRepo, tx *repos.TxRunner) *OrderService {
	return &OrderService{Orders: orders, Listings: listings, Tx: tx}
}

// Create records an order without touching stock. Checkout uses its own
// transaction; this is the plain store operation.
func (s *OrderService) Create(ctx context.Context, buyerID, listingID string, qty int, total decimal.Decimal, status string) (domain.Order, error) {
	if status == "" {
		status = domain.OrderPending
	}
	if err := validateOrder(buyerID, listingID, qty, total, status); err != nil {
		return domain.Order{}, err
	}
	o := domain.Order{BuyerID: buyerID, ListingID: listingID, Quantity: qty, TotalPrice: total, Status: status}
	if err := s.Orders.Create(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(ctx, o.ID)
}

func validateOrder(buyerID, listingID string, qty int, total decimal.Decimal, status string) error {
	switch {
	case strings.TrimSpace(buyerID) == "":
		return apperr.Validation("buyer is required")
	case strings.TrimSpace(listingID) == "":
		return apperr.Validation("listing is required")
	case qty <= 0:
		return apperr.Validation("quantity must be greater than zero")
	case !total.IsPositive():
		return apperr.Validation("total price must be greater than zero")
	case !domain.IsOrderStatus(status):
		return apperr.Newf(apperr.CodeValidation, "unknown order status %q", status)
	}
	return nil
}

func (s *OrderService) FindByID(ctx context.Context, id string) (domain.Order, error) {
	return s.Orders.Get(ctx, id)
}

func (s *OrderService) FindAllByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.Orders.ListByBuyer(ctx, buyerID)
}

func (s *OrderService) FindAllBySellerListings(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return s.Orders.ListBySeller(ctx, sellerID)
}

func (s *OrderService) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.Orders.ListLatest(ctx, limit)
}

// UpdateStatus writes any known status. Who may request which move is
// decided by RequestTransition.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string) (domain.Order, error) {
	if !domain.IsOrderStatus(status) {
		return domain.Order{}, apperr.Newf(apperr.CodeValidation, "unknown order status %q", status)
	}
	if err := s.Orders.UpdateStatus(ctx, id, status); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(ctx, id)
}

// Override is the admin's status write. It skips the transition table but
// still returns stock when the order ends up canceled.
func (s *OrderService) Override(ctx context.Context, id, status string) (domain.Order, error) {
	if status == domain.OrderCanceled {
		return s.Cancel(ctx, id)
	}
	return s.UpdateStatus(ctx, id, status)
}

// Cancel marks the order canceled and puts its quantity back on the listing.
func (s *OrderService) Cancel(ctx context.Context, id string) (domain.Order, error) {
	return s.cancel(ctx, id, nil)
}

// CancelByBuyer is the buyer's own cancel. Only the buyer may ask, and only
// from a status the transition table lets move to canceled.
func (s *OrderService) CancelByBuyer(ctx context.Context, user *domain.User, id string) (domain.Order, error) {
	return s.cancel(ctx, id, func(o domain.Order) error {
		if o.BuyerID != user.ID {
			return apperr.Forbidden("only the buyer can cancel this order")
		}
		if !domain.CanTransition(o.Status, domain.OrderCanceled) {
			return apperr.Newf(apperr.CodeValidation, "%s orders cannot be canceled", o.Status)
		}
		return nil
	})
}

// cancel runs check, when given, against the row read inside the transaction.
func (s *OrderService) cancel(ctx context.Context, id string, check func(domain.Order) error) (domain.Order, error) {
	var o domain.Order
	err := s.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		orders := s.Orders.WithTx(tx)
		var err error
		if o, err = orders.Get(ctx, id); err != nil {
			return err
		}
		if check != nil {
			if err := check(o); err != nil {
				return err
			}
		}
		switch o.Status {
		case domain.OrderCanceled:
			return apperr.Validation("order is already canceled")
		case domain.OrderDelivered:
			return apperr.Validation("delivered orders cannot be canceled")
		}
		if err := s.Listings.WithTx(tx).Restock(ctx, o.ListingID, o.Quantity); err != nil {
			return err
		}
		if err := orders.UpdateStatus(ctx, id, domain.OrderCanceled); err != nil {
			return err
		}
		o, err = orders.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	applog.Audit(nil, "order.cancel", map[string]any{
		"order_id": o.ID, "listing_id": o.ListingID, "restocked": o.Quantity,
	})
	return o, nil
}

func (s *OrderService) SetTrackingCode(ctx context.Context, id, code string) (domain.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Order{}, apperr.Validation("tracking code is required")
	}
	if err := s.Orders.SetTrackingCode(ctx, id, code); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(ctx, id)
}

// RequestTransition applies a status change asked for by the buyer or the
// seller of an order, following the transition table in domain.
func (s *OrderService) RequestTransition(ctx context.Context, user *domain.User, id, to, trackingCode string) (domain.Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	isBuyer, isSeller := o.BuyerID == user.ID, o.SellerID == user.ID
	if !isBuyer && !isSeller {
		return domain.Order{}, apperr.Forbidden("not your order")
	}
	if !domain.IsOrderStatus(to) {
		return domain.Order{}, apperr.Newf(apperr.CodeValidation, "unknown order status %q", to)
	}
	allowed := (isSeller && domain.ActorMayRequest(domain.ActorSeller, to)) ||
		(isBuyer && domain.ActorMayRequest(domain.ActorBuyer, to))
	if !allowed {
		return domain.Order{}, apperr.Newf(apperr.CodeForbidden, "you cannot set this order to %s", to)
	}
	if !domain.CanTransition(o.Status, to) {
		return domain.Order{}, apperr.Newf(apperr.CodeValidation, "cannot move order from %s to %s", o.Status, to)
	}

	switch to {
	case domain.OrderCanceled:
		return s.Cancel(ctx, id)
	case domain.OrderShipped:
		code := strings.TrimSpace(trackingCode)
		if code == "" && o.TrackingCode != nil {
			code = *o.TrackingCode
		}
		if code == "" {
			return domain.Order{}, apperr.Validation("tracking code is required to ship")
		}
		err := s.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			orders := s.Orders.WithTx(tx)
			if err := orders.SetTrackingCode(ctx, id, code); err != nil {
				return err
			}
			return orders.UpdateStatus(ctx, id, to)
		})
		if err != nil {
			return domain.Order{}, err
		}
		return s.Orders.Get(ctx, id)
	}
	return s.UpdateStatus(ctx, id, to)
}
