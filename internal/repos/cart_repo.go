package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

// EnsureCart returns the user's cart, creating an empty one on first access.
func (r *CartRepo) EnsureCart(ctx context.Context, userID string) (domain.Cart, error) {
	if _, err := r.db.ExecContext(ctx, `
	  INSERT INTO carts(id, user_id, updated_at) VALUES(?, ?, ?)
	  ON CONFLICT(user_id) DO NOTHING
	`, uuid.NewString(), userID, now()); err != nil {
		return domain.Cart{}, err
	}
	return r.Get(ctx, userID)
}

// Get returns the cart header without lines; NotFound when the user never had a cart.
func (r *CartRepo) Get(ctx context.Context, userID string) (domain.Cart, error) {
	var c domain.Cart
	if err := r.db.GetContext(ctx, &c, `
	  SELECT id, user_id, COALESCE(updated_at,'') AS updated_at FROM carts WHERE user_id = ?
	`, userID); err != nil {
		return domain.Cart{}, notFound(err, "cart")
	}
	return c, nil
}

// Lines joins each cart line with its listing's live title, first image, price and stock.
func (r *CartRepo) Lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	rows := []domain.CartLine{}
	err := r.db.SelectContext(ctx, &rows, `
	  SELECT cl.listing_id, l.title, l.owner_id AS seller_id, cl.quantity, cl.price_locked,
	         l.price, l.quantity AS available,
	         COALESCE((SELECT li.url FROM listing_images li
	                   WHERE li.listing_id = l.id ORDER BY li.position LIMIT 1), '') AS image_url
	  FROM cart_lines cl JOIN listings l ON l.id = cl.listing_id
	  WHERE cl.cart_id = ?
	  ORDER BY cl.created_at, l.title
	`, cartID)
	return rows, err
}

// LineQty returns the quantity of one line; NotFound when absent.
func (r *CartRepo) LineQty(ctx context.Context, cartID, listingID string) (int, error) {
	var qty int
	if err := r.db.GetContext(ctx, &qty, `
	  SELECT quantity FROM cart_lines WHERE cart_id = ? AND listing_id = ?
	`, cartID, listingID); err != nil {
		return 0, notFound(err, "cart line")
	}
	return qty, nil
}

// PutLine writes the absolute quantity of a line. price_locked is only set on insert.
func (r *CartRepo) PutLine(ctx context.Context, cartID, listingID string, qty int, priceLocked decimal.Decimal) error {
	ts := now()
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
		  INSERT INTO cart_lines(cart_id, listing_id, quantity, price_locked, created_at, updated_at)
		  VALUES(?, ?, ?, ?, ?, ?)
		  ON CONFLICT(cart_id, listing_id) DO UPDATE
		  SET quantity = excluded.quantity, updated_at = excluded.updated_at
		`, cartID, listingID, qty, priceLocked, ts, ts); err != nil {
			return err
		}
		return touch(ctx, tx, cartID, ts)
	})
}

// UpdateLineQty overwrites the quantity of an existing line.
func (r *CartRepo) UpdateLineQty(ctx context.Context, cartID, listingID string, qty int) error {
	ts := now()
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
		  UPDATE cart_lines SET quantity = ?, updated_at = ? WHERE cart_id = ? AND listing_id = ?
		`, qty, ts, cartID, listingID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("cart line not found")
		}
		return touch(ctx, tx, cartID, ts)
	})
}

func (r *CartRepo) DeleteLine(ctx context.Context, cartID, listingID string) error {
	ts := now()
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ? AND listing_id = ?`, cartID, listingID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("cart line not found")
		}
		return touch(ctx, tx, cartID, ts)
	})
}

func (r *CartRepo) Clear(ctx context.Context, cartID string) error {
	ts := now()
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID); err != nil {
			return err
		}
		return touch(ctx, tx, cartID, ts)
	})
}

func touch(ctx context.Context, q dbtx, cartID, ts string) error {
	_, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, ts, cartID)
	return err
}
