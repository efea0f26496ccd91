package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
)

type OrderRepo struct{ db dbtx }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *OrderRepo) WithTx(tx *sqlx.Tx) *OrderRepo { return &OrderRepo{db: tx} }

const orderSelect = `
	SELECT o.id, o.buyer_id, o.listing_id, l.title AS listing_title, l.owner_id AS seller_id,
	       o.quantity, o.total_price, o.status, o.tracking_code, o.created_at, o.updated_at
	FROM orders o
	JOIN listings l ON l.id = o.listing_id`

// Create inserts a new order. An empty ID is filled in.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	ts := now()
	if _, err := r.db.ExecContext(ctx, `
	  INSERT INTO orders(id, buyer_id, listing_id, quantity, total_price, status, created_at, updated_at)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.BuyerID, o.ListingID, o.Quantity, o.TotalPrice, o.Status, ts, ts); err != nil {
		return err
	}
	o.CreatedAt, o.UpdatedAt = ts, ts
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	if err := r.db.GetContext(ctx, &o, orderSelect+` WHERE o.id = ?`, id); err != nil {
		return domain.Order{}, notFound(err, "order")
	}
	return o, nil
}

func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, orderSelect+`
		WHERE o.buyer_id = ?
		ORDER BY o.created_at DESC, o.rowid DESC
	`, buyerID)
	return out, err
}

// ListBySeller returns orders placed against any listing the seller owns.
func (r *OrderRepo) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, orderSelect+`
		WHERE l.owner_id = ?
		ORDER BY o.created_at DESC, o.rowid DESC
	`, sellerID)
	return out, err
}

func (r *OrderRepo) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, orderSelect+`
		ORDER BY o.created_at DESC, o.rowid DESC
		LIMIT ?
	`, limit)
	return out, err
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("order not found")
	}
	return nil
}

func (r *OrderRepo) SetTrackingCode(ctx context.Context, id, code string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET tracking_code = ?, updated_at = ? WHERE id = ?`, code, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("order not found")
	}
	return nil
}

func (r *OrderRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM orders`)
	return n, err
}
