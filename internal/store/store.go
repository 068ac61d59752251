package store

import (
	"context"
	"errors"

	"lapakdigital/backend/internal/domain"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrConflict        = errors.New("transaction conflict")
	ErrInvalidInput    = errors.New("invalid input")
)

// Tx is the handle passed to a Transact callback. Reads observe a consistent
// snapshot; writes become visible atomically when the callback returns nil.
// All stock mutation must go through a Tx, never a bare read followed by an
// unconditional write.
type Tx interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	PutOrder(ctx context.Context, order *domain.Order) error
	PutProduct(ctx context.Context, product *domain.Product) error
}

type Repository interface {
	// Transact runs fn inside an atomic read-modify-write transaction.
	// A conflicting concurrent transaction is retried automatically; when
	// the retry budget is exhausted, ErrConflict is returned.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error)
	CountOrdersByStatus(ctx context.Context, statuses ...string) (int, error)
	CountOpenComplaints(ctx context.Context) (int, error)

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
