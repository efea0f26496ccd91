package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/gateway"
	applog "tradepost/internal/log"
	"tradepost/internal/repos"
)

// Gateway is the payment provider as the services see it.
type Gateway interface {
	CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (gateway.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (gateway.PaymentInfo, error)
}

type PaymentService struct {
	Gateway  Gateway
	Payments *repos.PaymentRepo
	Orders   *repos.OrderRepo
}

func NewPaymentService(gw Gateway, payments *repos.PaymentRepo, orders *repos.OrderRepo) *PaymentService {
	return &PaymentService{Gateway: gw, Payments: payments, Orders: orders}
}

// PaymentLink tells the client where to send the buyer.
type PaymentLink struct {
	PreferenceID string         `json:"preferenceId"`
	InitPoint    string         `json:"initPoint"`
	Sandbox      bool           `json:"sandbox"`
	Payment      domain.Payment `json:"payment"`
}

// CreatePayment requests a hosted payment page for an order and stores the
// pending payment row. Provider failures come back as plain errors.
func (s *PaymentService) CreatePayment(ctx context.Context, buyerID, orderID string, amount decimal.Decimal, description, payerEmail string) (PaymentLink, error) {
	if !amount.IsPositive() {
		return PaymentLink{}, apperr.Validation("amount must be greater than zero")
	}
	pref, err := s.Gateway.CreatePreference(ctx, gateway.PreferenceRequest{
		OrderID:     orderID,
		Description: description,
		Amount:      amount,
		PayerEmail:  payerEmail,
	})
	if err != nil {
		return PaymentLink{}, fmt.Errorf("payment preference for order %s: %w", orderID, err)
	}
	p := domain.Payment{
		BuyerID:      buyerID,
		OrderID:      orderID,
		PreferenceID: pref.ID,
		Amount:       amount,
		Status:       domain.PaymentPending,
	}
	if err := s.Payments.Upsert(ctx, &p); err != nil {
		return PaymentLink{}, err
	}
	applog.Audit(nil, "payment.preference_created", map[string]any{
		"order_id": orderID, "preference_id": pref.ID, "amount": money(amount), "sandbox": pref.Sandbox,
	})
	return PaymentLink{PreferenceID: pref.ID, InitPoint: pref.InitPoint, Sandbox: pref.Sandbox, Payment: p}, nil
}

// PayOrder starts (or restarts) payment for one of the buyer's orders.
func (s *PaymentService) PayOrder(ctx context.Context, buyer *domain.User, orderID string) (PaymentLink, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return PaymentLink{}, err
	}
	if o.BuyerID != buyer.ID {
		return PaymentLink{}, apperr.Forbidden("not your order")
	}
	if o.Status != domain.OrderPending && o.Status != domain.OrderPaymentFailed {
		return PaymentLink{}, apperr.Newf(apperr.CodeValidation, "order is %s and cannot be paid", o.Status)
	}
	return s.CreatePayment(ctx, buyer.ID, o.ID, o.TotalPrice, describe(o.ListingTitle, o.Quantity), buyer.Email)
}

func (s *PaymentService) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return s.Payments.GetByOrderID(ctx, orderID)
}

func (s *PaymentService) GetByPreferenceID(ctx context.Context, preferenceID string) (domain.Payment, error) {
	return s.Payments.GetByPreferenceID(ctx, preferenceID)
}

func (s *PaymentService) GetWithDetails(ctx context.Context, preferenceID string) (domain.PaymentDetails, error) {
	return s.Payments.GetWithDetails(ctx, preferenceID)
}

func (s *PaymentService) UpdateStatus(ctx context.Context, orderID, status, externalRef string) error {
	return s.Payments.UpdateStatus(ctx, orderID, status, externalRef)
}

func describe(title string, qty int) string {
	if qty > 1 {
		return fmt.Sprintf("%s x%d", title, qty)
	}
	return title
}
