package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/apperr"
	"tradepost/internal/dedupe"
	"tradepost/internal/domain"
	applog "tradepost/internal/log"
	"tradepost/internal/metrics"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeApproved  = "approved"
	OutcomeFailed    = "failed"
	OutcomeUpdated   = "updated"
	OutcomeKept      = "kept"
	OutcomeDuplicate = "duplicate"
	OutcomeUnknown   = "unknown"
	OutcomeRejected  = "rejected_request"
	OutcomeError     = "error"
)

// PaymentNotification is what the provider announces: a topic and an id.
type PaymentNotification struct {
	Type      string
	PaymentID string
}

type WebhookService struct {
	Gateway  Gateway
	Tx       *repos.TxRunner
	Payments *repos.PaymentRepo
	Orders   *repos.OrderRepo
	Users    *repos.UserRepo
	Guard    *dedupe.Guard
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Handle reconciles one provider notification. It returns a Validation
// error for requests that are not payment notifications, a plain error
// when the provider or the database fails (the provider will retry), and
// nil for everything else, including payments it cannot match.
func (s *WebhookService) Handle(ctx context.Context, n PaymentNotification) (outcome string, err error) {
	defer func() { s.Metrics.Webhook(outcome) }()

	n.PaymentID = strings.TrimSpace(n.PaymentID)
	if n.Type != "payment" {
		return OutcomeRejected, apperr.Validation("unsupported notification type")
	}
	if n.PaymentID == "" {
		return OutcomeRejected, apperr.Validation("payment id is required")
	}

	info, err := s.Gateway.GetPayment(ctx, n.PaymentID)
	if err != nil {
		return OutcomeError, fmt.Errorf("fetch payment %s: %w", n.PaymentID, err)
	}

	first, err := s.Guard.FirstSeen(ctx, info.ID, info.Status)
	if err != nil {
		applog.Error(nil, "webhook.dedupe_unavailable", err, map[string]any{"payment_id": info.ID})
		first = true
	}
	if !first {
		applog.Info(nil, "webhook.duplicate", map[string]any{"payment_id": info.ID, "status": info.Status})
		return OutcomeDuplicate, nil
	}

	outcome, order, err := s.apply(ctx, info.ExternalReference, info.ID, info.Status)
	if err != nil {
		if ferr := s.Guard.Forget(ctx, info.ID, info.Status); ferr != nil {
			applog.Error(nil, "webhook.dedupe_forget_failed", ferr, map[string]any{"payment_id": info.ID})
		}
		return OutcomeError, err
	}

	applog.Audit(nil, "webhook.payment", map[string]any{
		"payment_id": info.ID, "order_id": info.ExternalReference, "status": info.Status, "outcome": outcome,
	})
	switch outcome {
	case OutcomeApproved, OutcomeFailed:
		s.notifyPayment(ctx, outcome, order)
	}
	return outcome, nil
}

// apply writes the payment status and, for final statuses, the order marker
// in one transaction.
func (s *WebhookService) apply(ctx context.Context, orderID, paymentID, status string) (string, domain.Order, error) {
	if orderID == "" {
		applog.Security(nil, "webhook.missing_reference", map[string]any{"payment_id": paymentID})
		return OutcomeUnknown, domain.Order{}, nil
	}

	outcome := OutcomeUpdated
	var marker string
	switch status {
	case domain.PaymentApproved:
		outcome, marker = OutcomeApproved, domain.OrderPaymentApproved
	case domain.PaymentRejected, domain.PaymentCancelled:
		outcome, marker = OutcomeFailed, domain.OrderPaymentFailed
	}

	var order domain.Order
	err := s.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.Payments.WithTx(tx).UpdateStatus(ctx, orderID, status, paymentID); err != nil {
			return err
		}
		orders := s.Orders.WithTx(tx)
		var err error
		if order, err = orders.Get(ctx, orderID); err != nil {
			return err
		}
		if marker == "" {
			return nil
		}
		if !markable(order.Status) {
			fields := map[string]any{"order_id": orderID, "status": order.Status, "payment_status": status}
			if order.Status == domain.OrderCanceled && status == domain.PaymentApproved {
				// money was taken for an order whose stock is already back on sale
				applog.Security(nil, "webhook.paid_canceled_order", fields)
			} else {
				applog.Info(nil, "webhook.order_status_kept", fields)
			}
			outcome = OutcomeKept
			return nil
		}
		if err := orders.UpdateStatus(ctx, orderID, marker); err != nil {
			return err
		}
		order.Status = marker
		return nil
	})
	if apperr.Is(err, apperr.CodeNotFound) {
		applog.Security(nil, "webhook.unknown_payment", map[string]any{"payment_id": paymentID, "order_id": orderID})
		return OutcomeUnknown, domain.Order{}, nil
	}
	if err != nil {
		return "", domain.Order{}, err
	}
	return outcome, order, nil
}

// markable reports whether a payment result may still be written on an order.
// Orders the seller already moved on, or that were canceled, keep their status.
func markable(status string) bool {
	switch status {
	case domain.OrderPending, domain.OrderPaymentApproved, domain.OrderPaymentFailed:
		return true
	}
	return false
}

func (s *WebhookService) notifyPayment(ctx context.Context, outcome string, o domain.Order) {
	if s.Notifier == nil || o.ID == "" {
		return
	}
	buyer, err := s.Users.ByID(ctx, o.BuyerID)
	if err != nil {
		applog.Error(nil, "notify.buyer_lookup_failed", err, map[string]any{"order_id": o.ID})
		return
	}
	n := notify.PaymentNotice{
		Name:     buyer.Name,
		OrderID:  o.ID,
		Title:    o.ListingTitle,
		Quantity: o.Quantity,
		Amount:   money(o.TotalPrice),
	}

	if outcome == OutcomeFailed {
		if err := s.Notifier.PaymentFailed(ctx, buyer.Email, n); err != nil {
			applog.Error(nil, "notify.payment_failed_failed", err, map[string]any{"order_id": o.ID})
		}
		return
	}

	if err := s.Notifier.PaymentApproved(ctx, buyer.Email, n); err != nil {
		applog.Error(nil, "notify.payment_approved_failed", err, map[string]any{"order_id": o.ID})
	}
	seller, err := s.Users.ByID(ctx, o.SellerID)
	if err != nil {
		applog.Error(nil, "notify.seller_lookup_failed", err, map[string]any{"order_id": o.ID})
		return
	}
	n.Name = seller.Name
	if err := s.Notifier.SellerSale(ctx, seller.Email, n); err != nil {
		applog.Error(nil, "notify.seller_sale_failed", err, map[string]any{"order_id": o.ID})
	}
}
