package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/domain"
)

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = `u.id, u.email, u.name, u.password_hash, u.role, u.street, u.city, u.state, u.zip`

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, `SELECT `+userCols+` FROM users u WHERE LOWER(u.email)=LOWER(?)`, email)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, `SELECT `+userCols+` FROM users u WHERE u.id=?`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListCustomers returns every non-admin account, ordered by email.
func (r *UserRepo) ListCustomers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := r.DB.SelectContext(ctx, &users, `SELECT `+userCols+` FROM users u WHERE u.role != ? ORDER BY u.email`, domain.RoleAdmin)
	return users, err
}

func (r *UserRepo) BindSession(ctx context.Context, sid, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,user_id,last_seen)
                          VALUES(?,?,CURRENT_TIMESTAMP)
                          ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id,last_seen=CURRENT_TIMESTAMP`, sid, userID)
	return err
}

func (r *UserRepo) SessionUser(ctx context.Context, sid string) (*domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, `
      SELECT `+userCols+`
      FROM sessions s
      JOIN users u ON u.id=s.user_id
      WHERE s.id=?`, sid)
	if err != nil {
		return nil, notFound(err, "session")
	}
	return &u, nil
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sessions SET user_id=NULL,last_seen=CURRENT_TIMESTAMP WHERE id=?`, sid)
	return err
}
