package handlers

import (
	"github.com/jmoiron/sqlx"

	"tradepost/internal/dedupe"
	"tradepost/internal/metrics"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
	"tradepost/internal/services"
)

// External bundles the collaborators that live outside the database.
// Guard and Metrics may be nil.
type External struct {
	Gateway services.Gateway
	Mail    notify.Sender
	Guard   *dedupe.Guard
	Metrics *metrics.Metrics
}

type Deps struct {
	AuthService *services.AuthService

	Auth       *AuthHandler
	Categories *CategoryHandler
	Listings   *ListingHandler
	Inventory  *InventoryHandler
	Cart       *CartHandler
	Orders     *OrderHandler
	Payments   *PaymentHandler
	Admin      *AdminHandler
}

func NewDeps(db *sqlx.DB, ext External) (*Deps, error) {
	catRepo := repos.NewCategoryRepo(db)
	listingRepo := repos.NewListingRepo(db)
	cartRepo := repos.NewCartRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	paymentRepo := repos.NewPaymentRepo(db)
	userRepo := repos.NewUserRepo(db)
	tx := repos.NewTxRunner(db)

	dispatcher, err := notify.New(ext.Mail, ext.Metrics)
	if err != nil {
		return nil, err
	}

	authSvc := services.NewAuthService(userRepo)
	catalogSvc := services.NewCatalogService(catRepo, listingRepo)
	cartSvc := services.NewCartService(cartRepo, listingRepo)
	orderSvc := services.NewOrderService(orderRepo, listingRepo, tx)
	paymentSvc := services.NewPaymentService(ext.Gateway, paymentRepo, orderRepo)
	checkoutSvc := &services.CheckoutService{
		Tx:       tx,
		Listings: listingRepo,
		Orders:   orderRepo,
		Users:    userRepo,
		Carts:    cartSvc,
		Payments: paymentSvc,
		Notifier: dispatcher,
		Metrics:  ext.Metrics,
	}
	webhookSvc := &services.WebhookService{
		Gateway:  ext.Gateway,
		Tx:       tx,
		Payments: paymentRepo,
		Orders:   orderRepo,
		Users:    userRepo,
		Guard:    ext.Guard,
		Notifier: dispatcher,
		Metrics:  ext.Metrics,
	}

	return &Deps{
		AuthService: authSvc,
		Auth:        &AuthHandler{Auth: authSvc},
		Categories:  &CategoryHandler{Catalog: catalogSvc},
		Listings:    &ListingHandler{Catalog: catalogSvc},
		Inventory:   &InventoryHandler{Catalog: catalogSvc},
		Cart:        &CartHandler{Cart: cartSvc},
		Orders:      &OrderHandler{Checkout: checkoutSvc, Orders: orderSvc, Payments: paymentSvc},
		Payments:    &PaymentHandler{Payments: paymentSvc, Orders: orderSvc, Webhooks: webhookSvc},
		Admin:       &AdminHandler{Orders: orderSvc, Users: userRepo},
	}, nil
}
