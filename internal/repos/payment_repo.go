package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
)

type PaymentRepo struct{ db dbtx }

func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *PaymentRepo) WithTx(tx *sqlx.Tx) *PaymentRepo { return &PaymentRepo{db: tx} }

const paymentCols = `
	p.id, p.buyer_id, p.order_id, p.preference_id, p.external_reference, p.amount, p.status,
	p.created_at, p.updated_at`

// Upsert stores the payment for an order. A second preference for the same
// order replaces the first and resets the status.
func (r *PaymentRepo) Upsert(ctx context.Context, p *domain.Payment) error {
	ts := now()
	if _, err := r.db.ExecContext(ctx, `
	  INSERT INTO payments(id, buyer_id, order_id, preference_id, amount, status, created_at, updated_at)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT(order_id) DO UPDATE SET
	    preference_id = excluded.preference_id,
	    amount = excluded.amount,
	    status = excluded.status,
	    updated_at = excluded.updated_at
	`, uuid.NewString(), p.BuyerID, p.OrderID, p.PreferenceID, p.Amount, p.Status, ts, ts); err != nil {
		return err
	}
	stored, err := r.GetByOrderID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	*p = stored
	return nil
}

func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	var p domain.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT`+paymentCols+` FROM payments p WHERE p.order_id = ?`, orderID); err != nil {
		return domain.Payment{}, notFound(err, "payment")
	}
	return p, nil
}

func (r *PaymentRepo) GetByPreferenceID(ctx context.Context, preferenceID string) (domain.Payment, error) {
	var p domain.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT`+paymentCols+` FROM payments p WHERE p.preference_id = ?`, preferenceID); err != nil {
		return domain.Payment{}, notFound(err, "payment")
	}
	return p, nil
}

// GetWithDetails joins the payment with its order and listing.
func (r *PaymentRepo) GetWithDetails(ctx context.Context, preferenceID string) (domain.PaymentDetails, error) {
	var d domain.PaymentDetails
	if err := r.db.GetContext(ctx, &d, `
	  SELECT`+paymentCols+`,
	         o.status AS order_status, o.quantity AS order_quantity,
	         l.id AS listing_id, l.title AS listing_title
	  FROM payments p
	  JOIN orders o ON o.id = p.order_id
	  JOIN listings l ON l.id = o.listing_id
	  WHERE p.preference_id = ?
	`, preferenceID); err != nil {
		return domain.PaymentDetails{}, notFound(err, "payment")
	}
	return d, nil
}

// UpdateStatus records the provider's status and payment id for an order's payment.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, orderID, status, externalRef string) error {
	res, err := r.db.ExecContext(ctx, `
	  UPDATE payments SET status = ?, external_reference = ?, updated_at = ? WHERE order_id = ?
	`, status, externalRef, now(), orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("payment not found")
	}
	return nil
}

func (r *PaymentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM payments`)
	return n, err
}
