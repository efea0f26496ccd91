package services

import (
	"context"

	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

type CartService struct {
	Carts    *repos.CartRepo
	Listings *repos.ListingRepo
}

func NewCartService(carts *repos.CartRepo, listings *repos.ListingRepo) *CartService {
	return &CartService{Carts: carts, Listings: listings}
}

// MergeItem is one entry of a client-side cart being reconciled.
type MergeItem struct {
	ListingID string `json:"listingId"`
	Quantity  int    `json:"quantity"`
}

func (s *CartService) GetOrCreate(ctx context.Context, userID string) (domain.Cart, error) {
	return s.Carts.EnsureCart(ctx, userID)
}

// GetWithLines returns NotFound when the user never had a cart, which is
// different from an existing cart with no lines.
func (s *CartService) GetWithLines(ctx context.Context, userID string) (domain.Cart, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	lines, err := s.Carts.Lines(ctx, c.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Lines = lines
	return c, nil
}

// AddLine adds quantity to the listing's line. Going over the live stock is
// an error naming the shortfall.
func (s *CartService) AddLine(ctx context.Context, userID, listingID string, qty int, priceLocked *decimal.Decimal) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, apperr.Validation("quantity must be greater than zero")
	}
	l, err := s.Listings.Get(ctx, listingID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !l.Active {
		return domain.Cart{}, apperr.Validation("listing is not available")
	}
	c, err := s.Carts.EnsureCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	existing, err := s.lineQty(ctx, c.ID, listingID)
	if err != nil {
		return domain.Cart{}, err
	}
	want := existing + qty
	if want > l.Quantity {
		return domain.Cart{}, apperr.Newf(apperr.CodeValidation,
			"only %d of %q in stock; cart would hold %d (short by %d)", l.Quantity, l.Title, want, want-l.Quantity)
	}
	price := l.Price
	if priceLocked != nil {
		price = *priceLocked
	}
	if err := s.Carts.PutLine(ctx, c.ID, listingID, want, price); err != nil {
		return domain.Cart{}, err
	}
	return s.GetWithLines(ctx, userID)
}

// MergeLines folds a client-side cart into the stored one. Bad entries are
// skipped and every line is clamped to what is in stock, without errors.
func (s *CartService) MergeLines(ctx context.Context, userID string, items []MergeItem) (domain.Cart, error) {
	c, err := s.Carts.EnsureCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.ListingID == "" {
			continue
		}
		l, err := s.Listings.Get(ctx, it.ListingID)
		if apperr.Is(err, apperr.CodeNotFound) {
			continue
		}
		if err != nil {
			return domain.Cart{}, err
		}
		if !l.Active || l.Quantity <= 0 {
			continue
		}
		existing, err := s.lineQty(ctx, c.ID, l.ID)
		if err != nil {
			return domain.Cart{}, err
		}
		want := min(existing+it.Quantity, l.Quantity)
		if err := s.Carts.PutLine(ctx, c.ID, l.ID, want, l.Price); err != nil {
			return domain.Cart{}, err
		}
	}
	return s.GetWithLines(ctx, userID)
}

// SetLineQuantity overwrites a line's quantity; zero or less removes it.
func (s *CartService) SetLineQuantity(ctx context.Context, userID, listingID string, qty int) (domain.Cart, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if qty <= 0 {
		if err := s.Carts.DeleteLine(ctx, c.ID, listingID); err != nil {
			return domain.Cart{}, err
		}
		return s.GetWithLines(ctx, userID)
	}
	if _, err := s.Carts.LineQty(ctx, c.ID, listingID); err != nil {
		return domain.Cart{}, err
	}
	l, err := s.Listings.Get(ctx, listingID)
	if err != nil {
		return domain.Cart{}, err
	}
	if qty > l.Quantity {
		return domain.Cart{}, apperr.Newf(apperr.CodeValidation,
			"only %d of %q in stock; requested %d (short by %d)", l.Quantity, l.Title, qty, qty-l.Quantity)
	}
	if err := s.Carts.UpdateLineQty(ctx, c.ID, listingID, qty); err != nil {
		return domain.Cart{}, err
	}
	return s.GetWithLines(ctx, userID)
}

func (s *CartService) RemoveLine(ctx context.Context, userID, listingID string) (domain.Cart, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := s.Carts.DeleteLine(ctx, c.ID, listingID); err != nil {
		return domain.Cart{}, err
	}
	return s.GetWithLines(ctx, userID)
}

// Clear empties the cart. A user without a cart has nothing to clear.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	c, err := s.Carts.Get(ctx, userID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.Carts.Clear(ctx, c.ID)
}

func (s *CartService) lineQty(ctx context.Context, cartID, listingID string) (int, error) {
	qty, err := s.Carts.LineQty(ctx, cartID, listingID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return 0, nil
	}
	return qty, err
}
