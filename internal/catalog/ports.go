package catalog

import (
	"context"

	"tableside/internal/domain"
)

// Service is the authoritative source of product prices and availability.
type Service interface {
	Lookup(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	Menu(ctx context.Context) ([]domain.Category, error)
}

type Repository interface {
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error)
	ListActiveCategories(ctx context.Context) ([]domain.Category, error)
	ListAvailableProducts(ctx context.Context) ([]domain.Product, error)
}
