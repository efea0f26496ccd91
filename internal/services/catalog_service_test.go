package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/services"
)

func validInput() services.ListingInput {
	return services.ListingInput{
		CategoryID: "vintage-radios",
		Title:      "  Zenith Trans-Oceanic ",
		Price:      dec("275.00"),
		Condition:  domain.ConditionUsed,
		Quantity:   1,
		Images:     []string{"/media/z1.jpg", " ", "/media/z2.jpg"},
	}
}

func TestCreateListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rita := h.user(t, "u-rita")

	l, err := h.catalog.CreateListing(ctx, rita, validInput())
	require.NoError(t, err)
	assert.Equal(t, "Zenith Trans-Oceanic", l.Title)
	assert.Equal(t, "u-rita", l.OwnerID)
	assert.True(t, l.Active)
	require.Len(t, l.Images, 2)
	assert.Equal(t, "/media/z2.jpg", l.Images[1].URL)

	mine, err := h.catalog.ListMine(ctx, rita)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestCreateListingValidation(t *testing.T) {
	h := newHarness(t)
	rita := h.user(t, "u-rita")
	cases := map[string]func(*services.ListingInput){
		"zero price":      func(in *services.ListingInput) { in.Price = decimal.Zero },
		"fractional cent": func(in *services.ListingInput) { in.Price = dec("10.005") },
		"bad condition":   func(in *services.ListingInput) { in.Condition = "MINT" },
		"unknown cat":     func(in *services.ListingInput) { in.CategoryID = "spaceships" },
		"blank title":     func(in *services.ListingInput) { in.Title = "   " },
		"negative stock":  func(in *services.ListingInput) { in.Quantity = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := h.catalog.CreateListing(context.Background(), rita, in)
			assert.True(t, apperr.Is(err, apperr.CodeValidation), err)
		})
	}
}

func TestUpdateListingOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title := "Game Boy Color (Atomic Purple)"

	_, err := h.catalog.UpdateListing(ctx, h.user(t, "u-rita"), "gbc-001", services.ListingPatch{Title: &title})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	images := []string{"/media/purple.jpg"}
	l, err := h.catalog.UpdateListing(ctx, h.user(t, "u-sam"), "gbc-001", services.ListingPatch{Title: &title, Images: &images})
	require.NoError(t, err)
	assert.Equal(t, title, l.Title)
	require.Len(t, l.Images, 1)

	qty := 42
	l, err = h.catalog.UpdateListing(ctx, h.user(t, "u-admin"), "gbc-001", services.ListingPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 42, l.Quantity)
	assert.Len(t, l.Images, 1, "images untouched when not sent")
}

func TestInactiveListingsAreHidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	off := false

	_, err := h.catalog.UpdateListing(ctx, h.user(t, "u-sam"), "nes-001", services.ListingPatch{Active: &off})
	require.NoError(t, err)

	_, err = h.catalog.GetListing(ctx, h.user(t, "u-alice"), "nes-001")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = h.catalog.GetListing(ctx, nil, "nes-001")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	l, err := h.catalog.GetListing(ctx, h.user(t, "u-sam"), "nes-001")
	require.NoError(t, err)
	assert.False(t, l.Active)

	found, err := h.catalog.Search(ctx, "nes", "", "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDeleteListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l, err := h.catalog.CreateListing(ctx, h.user(t, "u-rita"), validInput())
	require.NoError(t, err)

	assert.True(t, apperr.Is(h.catalog.DeleteListing(ctx, h.user(t, "u-sam"), l.ID), apperr.CodeForbidden))
	require.NoError(t, h.catalog.DeleteListing(ctx, h.user(t, "u-rita"), l.ID))
	_, err = h.catalog.GetListing(ctx, nil, l.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestCheckAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		qty  int
		want string
	}{
		{0, services.AvailOutOfStock},
		{1, services.AvailLowStock},
		{4, services.AvailLowStock},
		{5, services.AvailInStock},
	}
	for _, tc := range cases {
		_, err := h.catalog.SetStock(ctx, "gbc-001", tc.qty)
		require.NoError(t, err)
		a, err := h.catalog.CheckAvailability(ctx, "gbc-001")
		require.NoError(t, err)
		assert.Equal(t, tc.want, a.Status, "qty %d", tc.qty)
		assert.Equal(t, tc.qty, a.Qty)
	}

	_, err := h.catalog.CheckAvailability(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = h.catalog.SetStock(ctx, "gbc-001", -1)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSearchPaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	page1, err := h.catalog.Search(ctx, "", "", "", 1, 3)
	require.NoError(t, err)
	assert.Len(t, page1, 3)
	page2, err := h.catalog.Search(ctx, "", "", "", 2, 3)
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	radios, err := h.catalog.Search(ctx, "", "vintage-radios", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, radios, 1)
	assert.Equal(t, "radio-001", radios[0].ID)

	cats, err := h.catalog.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 3)
}
