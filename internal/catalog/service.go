package catalog

import (
	"context"

	"tableside/internal/domain"
)

type catalogService struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &catalogService{repo: repo}
}

// Lookup returns the products that exist among ids, keyed by id. Ids the
// catalog does not know are simply absent from the map.
func (s *catalogService) Lookup(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]domain.Product, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	return out, nil
}

// Menu lists active categories with their available products. Categories with
// nothing available are kept so the client can render them empty.
func (s *catalogService) Menu(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.repo.ListActiveCategories(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListAvailableProducts(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[int64][]domain.Product)
	for _, p := range products {
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], p)
	}

	for i := range categories {
		categories[i].Products = byCategory[categories[i].ID]
	}
	return categories, nil
}
