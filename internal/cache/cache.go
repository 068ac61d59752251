package cache

import (
	"context"
	"time"

	"lapakdigital/backend/internal/domain"
)

// CatalogCache caches the public storefront catalog. Operator dashboard
// counts are deliberately never cached; only the read-heavy product listing
// goes through here.
type CatalogCache interface {
	Get(ctx context.Context) ([]domain.CatalogProduct, bool, error)
	Set(ctx context.Context, catalog []domain.CatalogProduct, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context) ([]domain.CatalogProduct, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ []domain.CatalogProduct, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
