package domain

import "github.com/shopspring/decimal"

type Category struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CreatedAt string `db:"created_at" json:"createdAt"`
	UpdatedAt string `db:"updated_at" json:"updatedAt,omitempty"`
}

// Listing conditions.
const (
	ConditionNew         = "NEW"
	ConditionUsed        = "USED"
	ConditionRefurbished = "REFURBISHED"
)

type Listing struct {
	ID          string          `db:"id" json:"id"`
	OwnerID     string          `db:"owner_id" json:"ownerId"`
	CategoryID  string          `db:"category_id" json:"categoryId"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Condition   string          `db:"condition" json:"condition"` // NEW | USED | REFURBISHED
	Quantity    int             `db:"quantity" json:"quantity"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   string          `db:"created_at" json:"createdAt"`
	UpdatedAt   string          `db:"updated_at" json:"updatedAt,omitempty"`
	Images      []Image         `db:"-" json:"images"`
}

type Image struct {
	ListingID string `db:"listing_id" json:"-"`
	URL       string `db:"url" json:"url"`
	Position  int    `db:"position" json:"position"`
}

type Availability struct {
	Status string `json:"status"` // IN_STOCK | LOW_STOCK | OUT_OF_STOCK
	Qty    int    `json:"qty,omitempty"`
}

type Cart struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	UpdatedAt string     `db:"updated_at" json:"updatedAt"`
	Lines     []CartLine `db:"-" json:"lines"`
}

// CartLine is a cart row joined with the live listing it points at.
type CartLine struct {
	ListingID   string          `db:"listing_id" json:"listingId"`
	Title       string          `db:"title" json:"title"`
	ImageURL    string          `db:"image_url" json:"imageUrl,omitempty"`
	SellerID    string          `db:"seller_id" json:"sellerId"`
	Quantity    int             `db:"quantity" json:"quantity"`
	PriceLocked decimal.Decimal `db:"price_locked" json:"priceLocked"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Available   int             `db:"available" json:"available"`
}

// Order statuses. PaymentApproved and PaymentFailed are only written by
// payment reconciliation.
const (
	OrderPending         = "pending"
	OrderProcessing      = "processing"
	OrderShipped         = "shipped"
	OrderDelivered       = "delivered"
	OrderCanceled        = "canceled"
	OrderPaymentApproved = "payment_approved"
	OrderPaymentFailed   = "payment_failed"
)

type Order struct {
	ID           string          `db:"id" json:"id"`
	BuyerID      string          `db:"buyer_id" json:"buyerId"`
	ListingID    string          `db:"listing_id" json:"listingId"`
	ListingTitle string          `db:"listing_title" json:"listingTitle"`
	SellerID     string          `db:"seller_id" json:"sellerId"`
	Quantity     int             `db:"quantity" json:"quantity"`
	TotalPrice   decimal.Decimal `db:"total_price" json:"totalPrice"`
	Status       string          `db:"status" json:"status"`
	TrackingCode *string         `db:"tracking_code" json:"trackingCode"`
	CreatedAt    string          `db:"created_at" json:"createdAt"`
	UpdatedAt    string          `db:"updated_at" json:"updatedAt"`
}

// Payment statuses reported by the provider. Anything else is stored as-is.
const (
	PaymentPending   = "pending"
	PaymentApproved  = "approved"
	PaymentRejected  = "rejected"
	PaymentCancelled = "cancelled"
)

type Payment struct {
	ID                string          `db:"id" json:"id"`
	BuyerID           string          `db:"buyer_id" json:"buyerId"`
	OrderID           string          `db:"order_id" json:"orderId"`
	PreferenceID      string          `db:"preference_id" json:"preferenceId"`
	ExternalReference *string         `db:"external_reference" json:"externalReference"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         string          `db:"created_at" json:"createdAt"`
	UpdatedAt         string          `db:"updated_at" json:"updatedAt"`
}

// PaymentDetails joins a payment with its order and listing for display.
type PaymentDetails struct {
	Payment
	OrderStatus   string `db:"order_status" json:"orderStatus"`
	OrderQuantity int    `db:"order_quantity" json:"orderQuantity"`
	ListingID     string `db:"listing_id" json:"listingId"`
	ListingTitle  string `db:"listing_title" json:"listingTitle"`
}
