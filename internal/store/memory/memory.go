package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/store"
)

// Store is the in-memory repository used for dev mode and tests. A single
// mutex serializes transactions, which trivially satisfies the store's
// serializable-transaction contract; writes inside a transaction are staged
// on deep copies and applied only when the callback succeeds.
type Store struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	users    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		users:    seedUsers(),
	}
}

// NewSeeded builds a store pre-loaded with demo products for dev mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	demo := []domain.Product{
		{
			ID:    "netflix-1m",
			Name:  "Netflix Premium 1 Bulan",
			Price: 35000,
			Items: []string{
				"netacc01@mail.com:rahasia1",
				"netacc02@mail.com:rahasia2",
				"netacc03@mail.com:rahasia3",
				"netacc04@mail.com:rahasia4",
				"netacc05@mail.com:rahasia5",
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:    "spotify",
			Name:  "Spotify Premium",
			Price: 15000,
			Variations: []domain.Variation{
				{Name: "1 Bulan", Items: []string{"spot-1m-aaa", "spot-1m-bbb", "spot-1m-ccc"}},
				{Name: "3 Bulan", Items: []string{"spot-3m-xxx"}},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        "steam-wallet-60k",
			Name:      "Steam Wallet IDR 60.000",
			Price:     62000,
			Items:     []string{"SW60-AAAA-BBBB", "SW60-CCCC-DDDD"},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for _, p := range demo {
		s.products[p.ID] = p
	}
	return s
}

// seedUsers builds the initial in-memory operator accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD; a hardcoded dev default is used
// with a warning when unset. Production deployments use PostgreSQL.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPwd == "" {
		adminPwd = "admin123"
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func cloneOrder(o domain.Order) domain.Order {
	out := o
	out.Items = make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		out.Items[i] = it
		out.Items[i].Data = slices.Clone(it.Data)
	}
	return out
}

func cloneProduct(p domain.Product) domain.Product {
	out := p
	out.Items = slices.Clone(p.Items)
	out.Variations = make([]domain.Variation, len(p.Variations))
	for i, v := range p.Variations {
		out.Variations[i] = domain.Variation{Name: v.Name, Items: slices.Clone(v.Items)}
	}
	return out
}

// tx stages reads and writes on deep copies so a failed callback leaves the
// store untouched. Only documents passed to PutOrder/PutProduct are committed;
// a read-only transaction leaves the store byte-identical.
type tx struct {
	s               *Store
	orders          map[string]*domain.Order
	products        map[string]*domain.Product
	writtenOrders   map[string]struct{}
	writtenProducts map[string]struct{}
}

func (t *tx) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	if staged, ok := t.orders[id]; ok {
		return staged, nil
	}
	o, ok := t.s.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	copied := cloneOrder(o)
	t.orders[id] = &copied
	return &copied, nil
}

func (t *tx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if staged, ok := t.products[id]; ok {
		return staged, nil
	}
	p, ok := t.s.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	copied := cloneProduct(p)
	t.products[id] = &copied
	return &copied, nil
}

func (t *tx) PutOrder(_ context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return store.ErrInvalidInput
	}
	t.orders[order.ID] = order
	t.writtenOrders[order.ID] = struct{}{}
	return nil
}

func (t *tx) PutProduct(_ context.Context, product *domain.Product) error {
	if product == nil || product.ID == "" {
		return store.ErrInvalidInput
	}
	t.products[product.ID] = product
	t.writtenProducts[product.ID] = struct{}{}
	return nil
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:               s,
		orders:          make(map[string]*domain.Order),
		products:        make(map[string]*domain.Product),
		writtenOrders:   make(map[string]struct{}),
		writtenProducts: make(map[string]struct{}),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	now := time.Now().UTC()
	for id := range t.writtenOrders {
		o := t.orders[id]
		o.UpdatedAt = now
		s.orders[id] = cloneOrder(*o)
	}
	for id := range t.writtenProducts {
		p := t.products[id]
		p.UpdatedAt = now
		s.products[id] = cloneProduct(*p)
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	copied := cloneOrder(o)
	return &copied, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	s.orders[order.ID] = cloneOrder(order)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) SaveOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		return nil, store.ErrOrderNotFound
	}
	order.UpdatedAt = time.Now().UTC()
	s.orders[order.ID] = cloneOrder(order)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 32)
	for _, o := range s.orders {
		if status != "" && o.Status != status {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) CountOrdersByStatus(_ context.Context, statuses ...string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.orders {
		if slices.Contains(statuses, o.Status) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountOpenComplaints(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.orders {
		if o.ComplaintStatus == domain.ComplaintStatusOpen {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	copied := cloneProduct(p)
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) SaveProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrProductNotFound
	}
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = cloneProduct(product)
	saved := cloneProduct(product)
	return &saved, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrUserNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
