package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

// Availability thresholds.
const (
	AvailInStock    = "IN_STOCK"
	AvailLowStock   = "LOW_STOCK"
	AvailOutOfStock = "OUT_OF_STOCK"

	lowStockBelow = 5
)

type CatalogService struct {
	Cats     *repos.CategoryRepo
	Listings *repos.ListingRepo
}

func NewCatalogService(cats *repos.CategoryRepo, listings *repos.ListingRepo) *CatalogService {
	return &CatalogService{Cats: cats, Listings: listings}
}

// ListingInput is the full set of fields a seller provides for a new listing.
type ListingInput struct {
	CategoryID  string          `json:"categoryId" validate:"required,max=64"`
	Title       string          `json:"title" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=4000"`
	Price       decimal.Decimal `json:"price"`
	Condition   string          `json:"condition" validate:"required,oneof=NEW USED REFURBISHED"`
	Quantity    int             `json:"quantity" validate:"gte=0,lte=100000"`
	Active      *bool           `json:"active"`
	Images      []string        `json:"images" validate:"max=10,dive,required,max=500"`
}

// ListingPatch carries only the fields being changed. A nil Images keeps
// the current image set; an empty slice removes all images.
type ListingPatch struct {
	CategoryID  *string          `json:"categoryId" validate:"omitempty,max=64"`
	Title       *string          `json:"title" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,max=4000"`
	Price       *decimal.Decimal `json:"price"`
	Condition   *string          `json:"condition" validate:"omitempty,oneof=NEW USED REFURBISHED"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=0,lte=100000"`
	Active      *bool            `json:"active"`
	Images      *[]string        `json:"images" validate:"omitempty,max=10,dive,required,max=500"`
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.Cats.List(ctx)
}

func (s *CatalogService) Search(ctx context.Context, q, category, condition string, page, pageSize int) ([]domain.Listing, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 12
	}
	offset := (page - 1) * pageSize
	return s.Listings.Search(ctx, q, category, condition, pageSize, offset)
}

// GetListing returns a listing with images. Inactive listings are only
// visible to their owner and admins.
func (s *CatalogService) GetListing(ctx context.Context, viewer *domain.User, id string) (domain.Listing, error) {
	l, err := s.Listings.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if !l.Active && !canManage(viewer, l) {
		return domain.Listing{}, apperr.NotFound("listing not found")
	}
	return l, nil
}

func (s *CatalogService) ListMine(ctx context.Context, owner *domain.User) ([]domain.Listing, error) {
	return s.Listings.ListByOwner(ctx, owner.ID)
}

func (s *CatalogService) CreateListing(ctx context.Context, owner *domain.User, in ListingInput) (domain.Listing, error) {
	l := domain.Listing{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Condition:   in.Condition,
		Quantity:    in.Quantity,
		Active:      in.Active == nil || *in.Active,
		Images:      toImages(in.Images),
	}
	if err := s.check(ctx, l); err != nil {
		return domain.Listing{}, err
	}
	if err := s.Listings.Create(ctx, &l); err != nil {
		return domain.Listing{}, err
	}
	return s.Listings.Get(ctx, l.ID)
}

func (s *CatalogService) UpdateListing(ctx context.Context, user *domain.User, id string, p ListingPatch) (domain.Listing, error) {
	l, err := s.Listings.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if !canManage(user, l) {
		return domain.Listing{}, apperr.Forbidden("only the seller can edit this listing")
	}
	if p.CategoryID != nil {
		l.CategoryID = strings.TrimSpace(*p.CategoryID)
	}
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		l.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Condition != nil {
		l.Condition = *p.Condition
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Active != nil {
		l.Active = *p.Active
	}
	var images []domain.Image
	if p.Images != nil {
		images = toImages(*p.Images)
	}
	if err := s.check(ctx, l); err != nil {
		return domain.Listing{}, err
	}
	if err := s.Listings.Update(ctx, &l, images); err != nil {
		return domain.Listing{}, err
	}
	return s.Listings.Get(ctx, l.ID)
}

func (s *CatalogService) DeleteListing(ctx context.Context, user *domain.User, id string) error {
	l, err := s.Listings.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(user, l) {
		return apperr.Forbidden("only the seller can delete this listing")
	}
	return s.Listings.Delete(ctx, id)
}

// CheckAvailability converts stock into IN_STOCK / LOW_STOCK / OUT_OF_STOCK.
func (s *CatalogService) CheckAvailability(ctx context.Context, listingID string) (domain.Availability, error) {
	qty, err := s.Listings.Quantity(ctx, listingID)
	if err != nil {
		return domain.Availability{}, err
	}
	status := AvailOutOfStock
	switch {
	case qty >= lowStockBelow:
		status = AvailInStock
	case qty > 0:
		status = AvailLowStock
	}
	return domain.Availability{Status: status, Qty: qty}, nil
}

// SetStock overwrites a listing's stock count (admin restock).
func (s *CatalogService) SetStock(ctx context.Context, listingID string, qty int) (domain.Listing, error) {
	if qty < 0 {
		return domain.Listing{}, apperr.Validation("quantity must be zero or more")
	}
	if err := s.Listings.SetQuantity(ctx, listingID, qty); err != nil {
		return domain.Listing{}, err
	}
	return s.Listings.Get(ctx, listingID)
}

func (s *CatalogService) check(ctx context.Context, l domain.Listing) error {
	switch {
	case l.Title == "":
		return apperr.Validation("title is required")
	case !l.Price.IsPositive():
		return apperr.Validation("price must be greater than zero")
	case l.Price.Exponent() < -2 && !l.Price.Equal(l.Price.Round(2)):
		return apperr.Validation("price cannot have more than two decimals")
	case l.Quantity < 0:
		return apperr.Validation("quantity must be zero or more")
	}
	switch l.Condition {
	case domain.ConditionNew, domain.ConditionUsed, domain.ConditionRefurbished:
	default:
		return apperr.Validation("condition must be NEW, USED or REFURBISHED")
	}
	ok, err := s.Cats.Exists(ctx, l.CategoryID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("unknown category")
	}
	return nil
}

func canManage(u *domain.User, l domain.Listing) bool {
	return u != nil && (u.ID == l.OwnerID || u.IsAdmin())
}

func toImages(urls []string) []domain.Image {
	out := make([]domain.Image, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, domain.Image{URL: u})
		}
	}
	return out
}
