package domain

type User struct {
	ID     string `db:"id" json:"id"`
	Email  string `db:"email" json:"email"`
	Name   string `db:"name" json:"name"`
	Hash   string `db:"password_hash" json:"-"`
	Role   string `db:"role" json:"role"`
	Street string `db:"street" json:"street,omitempty"`
	City   string `db:"city" json:"city,omitempty"`
	State  string `db:"state" json:"state,omitempty"`
	Zip    string `db:"zip" json:"zip,omitempty"`
}

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }
