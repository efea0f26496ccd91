package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"tradepost/internal/apperr"
	applog "tradepost/internal/log"
)

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx.
type dbtx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

const tsLayout = "2006-01-02 15:04:05.000000"

// now returns a fixed-width UTC timestamp so lexical order is time order.
func now() string { return time.Now().UTC().Format(tsLayout) }

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Ensure users exist (idempotent; safe to run every start)
	if err := seedUsers(db); err != nil {
		return nil, err
	}
	// Seed baseline catalog if DB is empty (categories/listings/images)
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	return db, nil
}

// TxRunner runs a function inside one all-or-nothing transaction.
type TxRunner struct{ db *sqlx.DB }

func NewTxRunner(db *sqlx.DB) *TxRunner { return &TxRunner{db: db} }

func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return withTx(ctx, r.db, fn)
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.CodeNotFound, err, what+" not found")
	}
	return err
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Users & Sessions
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('USER','ADMIN')),
  street TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  zip TEXT NOT NULL DEFAULT '',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));

CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,               -- same value as the 'sid' cookie
  user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  last_seen  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

-- Categories
CREATE TABLE IF NOT EXISTS categories(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_nocase ON categories(LOWER(name));

-- Listings (money is stored as decimal text)
CREATE TABLE IF NOT EXISTS listings(
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE RESTRICT,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price TEXT NOT NULL,
  condition TEXT NOT NULL CHECK (condition IN ('NEW','USED','REFURBISHED')),
  quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_listings_owner      ON listings(owner_id);
CREATE INDEX IF NOT EXISTS idx_listings_category   ON listings(category_id);
CREATE INDEX IF NOT EXISTS idx_listings_title      ON listings(LOWER(title));
CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at);

CREATE TABLE IF NOT EXISTS listing_images(
  listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
  url TEXT NOT NULL,
  position INTEGER NOT NULL,
  PRIMARY KEY (listing_id, position)
);

-- Carts
CREATE TABLE IF NOT EXISTS carts(
  id TEXT PRIMARY KEY,
  user_id TEXT UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS cart_lines(
  cart_id    TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
  listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  price_locked TEXT NOT NULL,
  created_at TEXT,
  updated_at TEXT,
  PRIMARY KEY (cart_id, listing_id)
);

-- Orders: one row per purchased listing
CREATE TABLE IF NOT EXISTS orders(
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL REFERENCES users(id),
  listing_id TEXT NOT NULL REFERENCES listings(id),
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  total_price TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  tracking_code TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_buyer      ON orders(buyer_id);
CREATE INDEX IF NOT EXISTS idx_orders_listing    ON orders(listing_id);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

-- Payments: one per order
CREATE TABLE IF NOT EXISTS payments(
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL REFERENCES users(id),
  order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
  preference_id TEXT NOT NULL,
  external_reference TEXT,
  amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_preference ON payments(preference_id);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM categories`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	applog.Info(nil, "seed.catalog", nil)

	ts := now()
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()
	tx.MustExec(`INSERT INTO categories(id,name) VALUES
	  ('retro-consoles','Retro Gaming Consoles'),
	  ('vintage-radios','Vintage Radios'),
	  ('retro-electronics','Retro Electronics')`)

	tx.MustExec(`INSERT INTO listings(id,owner_id,category_id,title,description,price,condition,quantity,active,created_at) VALUES
	  ('gbc-001','u-sam','retro-consoles','Game Boy Color','Handheld console','129.99','USED',8,1,?),
	  ('nes-001','u-sam','retro-consoles','NES Console','Classic 8-bit console','199.00','REFURBISHED',5,1,?),
	  ('radio-001','u-rita','vintage-radios','Philco 1939','Vintage vacuum tube radio','349.50','USED',2,1,?),
	  ('walkman-001','u-rita','retro-electronics','Sony Walkman WM-10','Cassette player, new belts','50.00','USED',3,1,?)`,
		ts, ts, ts, ts)

	tx.MustExec(`INSERT INTO listing_images(listing_id,url,position) VALUES
	  ('gbc-001','/media/listings/gbc-001/main.jpg',0),
	  ('gbc-001','/media/listings/gbc-001/back.jpg',1),
	  ('nes-001','/media/listings/nes-001/main.jpg',0),
	  ('radio-001','/media/listings/radio-001/main.jpg',0)`)

	return tx.Commit()
}

// seedUsers ensures two buyers, two sellers and one ADMIN exist (idempotent).
func seedUsers(db *sqlx.DB) error {
	type u struct {
		ID, Email, Name, Role, Hash, City, Zip string
	}
	h, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	mk := func(id, email, name, role, city, zip string) u {
		return u{ID: id, Email: email, Name: name, Role: role, Hash: string(h), City: city, Zip: zip}
	}

	users := []u{
		mk("u-alice", "alice@tradepost.test", "Alice", "USER", "College Park", "20742"),
		mk("u-bob", "bob@tradepost.test", "Bob", "USER", "New York", "10001"),
		mk("u-sam", "sam@tradepost.test", "Sam", "USER", "Baltimore", "21201"),
		mk("u-rita", "rita@tradepost.test", "Rita", "USER", "Boston", "02108"),
		mk("u-admin", "admin@tradepost.test", "Admin", "ADMIN", "", ""),
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, x := range users {
		if _, err := tx.Exec(`
			INSERT INTO users(id,email,name,password_hash,role,city,zip)
			VALUES(?,?,?,?,?,?,?)
			ON CONFLICT(email) DO NOTHING
		`, x.ID, x.Email, x.Name, x.Hash, x.Role, x.City, x.Zip); err != nil {
			return err
		}
	}

	return tx.Commit()
}
