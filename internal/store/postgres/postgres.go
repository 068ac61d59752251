// Package postgres persists orders and products as JSONB documents.
//
// Expected schema:
//
//	CREATE TABLE orders (
//	    id               text PRIMARY KEY,
//	    doc              jsonb NOT NULL,
//	    status           text NOT NULL,
//	    complaint_status text,
//	    created_at       timestamptz NOT NULL,
//	    updated_at       timestamptz NOT NULL
//	);
//	CREATE TABLE products (
//	    id         text PRIMARY KEY,
//	    doc        jsonb NOT NULL,
//	    name       text NOT NULL,
//	    created_at timestamptz NOT NULL,
//	    updated_at timestamptz NOT NULL
//	);
//	CREATE TABLE app_users (
//	    username   text PRIMARY KEY,
//	    password   text NOT NULL,
//	    role       text NOT NULL,
//	    active     boolean NOT NULL DEFAULT true,
//	    created_at timestamptz NOT NULL,
//	    updated_at timestamptz NOT NULL
//	);
//
// status and complaint_status are denormalized out of the order doc so the
// dashboard counts are a plain indexed query.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/store"
)

// maxTxAttempts bounds the automatic retry of serialization conflicts.
const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// tx implements store.Tx on a serializable SQL transaction. Row locks from
// FOR UPDATE plus serializable isolation give the read-then-conditional-write
// semantics the allocator requires.
type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var doc []byte
	err := t.sqlTx.QueryRowContext(ctx, `
		SELECT doc FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, err
	}
	return decodeOrder(doc)
}

func (t *tx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc []byte
	err := t.sqlTx.QueryRowContext(ctx, `
		SELECT doc FROM products WHERE id = $1 FOR UPDATE
	`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	return decodeProduct(doc)
}

func (t *tx) PutOrder(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return store.ErrInvalidInput
	}
	order.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(order)
	if err != nil {
		return err
	}
	_, err = t.sqlTx.ExecContext(ctx, `
		UPDATE orders
		SET doc = $2, status = $3, complaint_status = $4, updated_at = $5
		WHERE id = $1
	`, order.ID, doc, order.Status, nullIfEmpty(order.ComplaintStatus), order.UpdatedAt)
	return err
}

func (t *tx) PutProduct(ctx context.Context, product *domain.Product) error {
	if product == nil || product.ID == "" {
		return store.ErrInvalidInput
	}
	product.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(product)
	if err != nil {
		return err
	}
	_, err = t.sqlTx.ExecContext(ctx, `
		UPDATE products
		SET doc = $2, name = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, doc, product.Name, product.UpdatedAt)
	return err
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{sqlTx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM orders WHERE id = $1
	`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, err
	}
	return decodeOrder(doc)
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	doc, err := json.Marshal(&order)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, doc, status, complaint_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.ID, doc, order.Status, nullIfEmpty(order.ComplaintStatus), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}
	order.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(&order)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET doc = $2, status = $3, complaint_status = $4, updated_at = $5
		WHERE id = $1
	`, order.ID, doc, order.Status, nullIfEmpty(order.ComplaintStatus), order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrOrderNotFound
	}
	saved := order
	return &saved, nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM orders WHERE status = ANY($1)
	`, statuses).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountOpenComplaints(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM orders WHERE complaint_status = $1
	`, domain.ComplaintStatusOpen).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM products WHERE id = $1
	`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	return decodeProduct(doc)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM products ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		product, err := decodeProduct(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	doc, err := json.Marshal(&product)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, doc, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, doc, product.Name, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		return nil, store.ErrInvalidInput
	}
	product.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(&product)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET doc = $2, name = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, doc, product.Name, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrProductNotFound
	}
	saved := product
	return &saved, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func decodeOrder(doc []byte) (*domain.Order, error) {
	var order domain.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return nil, fmt.Errorf("unreadable order document: %w", err)
	}
	return &order, nil
}

func decodeProduct(doc []byte) (*domain.Product, error) {
	var product domain.Product
	if err := json.Unmarshal(doc, &product); err != nil {
		return nil, fmt.Errorf("unreadable product document: %w", err)
	}
	return &product, nil
}

// nullIfEmpty maps the empty string to SQL NULL for nullable text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure matches serialization_failure and deadlock_detected,
// both of which are safe to retry with a fresh snapshot.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
