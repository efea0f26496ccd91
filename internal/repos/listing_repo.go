package repos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
)

type ListingRepo struct {
	db  dbtx
	raw *sqlx.DB
}

func NewListingRepo(db *sqlx.DB) *ListingRepo { return &ListingRepo{db: db, raw: db} }

// WithTx returns a repo bound to tx.
func (r *ListingRepo) WithTx(tx *sqlx.Tx) *ListingRepo { return &ListingRepo{db: tx} }

const listingCols = `
    id, owner_id, category_id, title, description, price, condition, quantity, active,
    created_at, COALESCE(updated_at,'') AS updated_at`

// inTx runs fn in a fresh transaction, or directly when the repo is already tx-bound.
func (r *ListingRepo) inTx(ctx context.Context, fn func(q dbtx) error) error {
	if r.raw == nil {
		return fn(r.db)
	}
	return withTx(ctx, r.raw, func(tx *sqlx.Tx) error { return fn(tx) })
}

// Create inserts the listing row and its images in one transaction.
func (r *ListingRepo) Create(ctx context.Context, l *domain.Listing) error {
	ts := now()
	return r.inTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `
		  INSERT INTO listings(id, owner_id, category_id, title, description, price, condition, quantity, active, created_at)
		  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, l.ID, l.OwnerID, l.CategoryID, l.Title, l.Description, l.Price, l.Condition, l.Quantity, l.Active, ts); err != nil {
			return err
		}
		l.CreatedAt = ts
		return insertImages(ctx, q, l.ID, l.Images)
	})
}

// Update rewrites the listing row; when images is non-nil the image set is replaced too.
func (r *ListingRepo) Update(ctx context.Context, l *domain.Listing, images []domain.Image) error {
	ts := now()
	return r.inTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `
		  UPDATE listings
		  SET category_id = ?, title = ?, description = ?, price = ?, condition = ?, quantity = ?, active = ?, updated_at = ?
		  WHERE id = ?
		`, l.CategoryID, l.Title, l.Description, l.Price, l.Condition, l.Quantity, l.Active, ts, l.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("listing not found")
		}
		l.UpdatedAt = ts
		if images == nil {
			return nil
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM listing_images WHERE listing_id = ?`, l.ID); err != nil {
			return err
		}
		return insertImages(ctx, q, l.ID, images)
	})
}

func insertImages(ctx context.Context, q dbtx, listingID string, images []domain.Image) error {
	for i, img := range images {
		if _, err := q.ExecContext(ctx, `
		  INSERT INTO listing_images(listing_id, url, position) VALUES(?, ?, ?)
		`, listingID, img.URL, i); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a listing (images cascade). Listings with orders are kept for history.
func (r *ListingRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(q dbtx) error {
		var orders int
		if err := q.GetContext(ctx, &orders, `SELECT COUNT(*) FROM orders WHERE listing_id = ?`, id); err != nil {
			return err
		}
		if orders > 0 {
			return apperr.Validation("listing has orders; deactivate it instead")
		}
		res, err := q.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("listing not found")
		}
		return nil
	})
}

// Get returns a listing with its images in display order.
func (r *ListingRepo) Get(ctx context.Context, id string) (domain.Listing, error) {
	var l domain.Listing
	if err := r.db.GetContext(ctx, &l, `SELECT`+listingCols+` FROM listings WHERE id = ?`, id); err != nil {
		return domain.Listing{}, notFound(err, "listing")
	}
	imgs, err := r.Images(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Images = imgs
	return l, nil
}

func (r *ListingRepo) Images(ctx context.Context, listingID string) ([]domain.Image, error) {
	imgs := []domain.Image{}
	err := r.db.SelectContext(ctx, &imgs, `
	  SELECT listing_id, url, position FROM listing_images
	  WHERE listing_id = ?
	  ORDER BY position
	`, listingID)
	return imgs, err
}

func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	out := []domain.Listing{}
	err := r.db.SelectContext(ctx, &out, `SELECT`+listingCols+`
	  FROM listings
	  WHERE owner_id = ?
	  ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	return out, err
}

func (r *ListingRepo) Search(ctx context.Context, q, catID, cond string, limit, offset int) ([]domain.Listing, error) {
	where := `active = 1`
	args := []any{}
	if q = strings.ToLower(strings.TrimSpace(q)); q != "" {
		where += ` AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)`
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if catID != "" {
		where += ` AND category_id = ?`
		args = append(args, catID)
	}
	if cond != "" {
		where += ` AND condition = ?`
		args = append(args, cond)
	}

	query := `SELECT` + listingCols + `
	  FROM listings
	  WHERE ` + where + `
	  ORDER BY created_at DESC, rowid DESC
	  LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	out := []domain.Listing{}
	err := r.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

// Quantity returns the live stock count for a listing.
func (r *ListingRepo) Quantity(ctx context.Context, id string) (int, error) {
	var qty int
	if err := r.db.GetContext(ctx, &qty, `SELECT quantity FROM listings WHERE id = ?`, id); err != nil {
		return 0, notFound(err, "listing")
	}
	return qty, nil
}

// DecrementStock subtracts by units only if enough stock exists.
func (r *ListingRepo) DecrementStock(ctx context.Context, id string, by int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND quantity >= ?
	`, by, now(), id, by)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.CodeValidation, "insufficient stock for %s", id)
	}
	return nil
}

// Restock adds by units back to a listing.
func (r *ListingRepo) Restock(ctx context.Context, id string, by int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET quantity = quantity + ?, updated_at = ? WHERE id = ?
	`, by, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("listing not found")
	}
	return nil
}

// SetQuantity overwrites the stock count.
func (r *ListingRepo) SetQuantity(ctx context.Context, id string, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET quantity = ?, updated_at = ? WHERE id = ?
	`, qty, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("listing not found")
	}
	return nil
}
