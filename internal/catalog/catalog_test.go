package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/testutil"
)

type mockRepository struct {
	FindByIDsFunc             func(ctx context.Context, ids []int64) ([]domain.Product, error)
	ListActiveCategoriesFunc  func(ctx context.Context) ([]domain.Category, error)
	ListAvailableProductsFunc func(ctx context.Context) ([]domain.Product, error)
}

func (m *mockRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	return m.FindByIDsFunc(ctx, ids)
}

func (m *mockRepository) ListActiveCategories(ctx context.Context) ([]domain.Category, error) {
	return m.ListActiveCategoriesFunc(ctx)
}

func (m *mockRepository) ListAvailableProducts(ctx context.Context) ([]domain.Product, error) {
	return m.ListAvailableProductsFunc(ctx)
}

func TestLookup_DeduplicatesIDs(t *testing.T) {
	var requested []int64
	repo := &mockRepository{
		FindByIDsFunc: func(ctx context.Context, ids []int64) ([]domain.Product, error) {
			requested = ids
			return []domain.Product{{ID: 1, Price: 4.5, Available: true}}, nil
		},
	}

	found, err := NewService(repo).Lookup(context.Background(), []int64{1, 2, 1})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, requested)
	assert.Len(t, found, 1)
	assert.Equal(t, 4.5, found[1].Price)
	_, ok := found[2]
	assert.False(t, ok)
}

func TestLookup_RepositoryError(t *testing.T) {
	repo := &mockRepository{
		FindByIDsFunc: func(ctx context.Context, ids []int64) ([]domain.Product, error) {
			return nil, errors.New("boom")
		},
	}

	_, err := NewService(repo).Lookup(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestSQLRepository_FindByIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	drinks := testutil.CreateCategory(t, db, "Drinks", 1, true)
	cola := testutil.CreateProduct(t, db, drinks, "Cola", 2.5, true)
	soup := testutil.CreateProduct(t, db, 0, "Soup", 6.75, false)

	repo := NewSQLRepository(db)
	products, err := repo.FindByIDs(context.Background(), []int64{cola, soup, 999})
	require.NoError(t, err)
	require.Len(t, products, 2)

	byID := map[int64]domain.Product{}
	for _, p := range products {
		byID[p.ID] = p
	}
	assert.Equal(t, 2.5, byID[cola].Price)
	assert.True(t, byID[cola].Available)
	assert.Equal(t, drinks, byID[cola].CategoryID)
	assert.False(t, byID[soup].Available)
	assert.Zero(t, byID[soup].CategoryID)
}

func TestSQLRepository_FindByIDs_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)

	products, err := NewSQLRepository(db).FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestMenu_GroupsAvailableProductsByActiveCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	desserts := testutil.CreateCategory(t, db, "Desserts", 3, true)
	drinks := testutil.CreateCategory(t, db, "Drinks", 1, true)
	hidden := testutil.CreateCategory(t, db, "Seasonal", 2, false)
	testutil.CreateProduct(t, db, drinks, "Water", 1, true)
	testutil.CreateProduct(t, db, drinks, "Juice", 3, false)
	testutil.CreateProduct(t, db, desserts, "Flan", 4, true)
	testutil.CreateProduct(t, db, hidden, "Eggnog", 5, true)

	menu, err := NewService(NewSQLRepository(db)).Menu(context.Background())
	require.NoError(t, err)

	require.Len(t, menu, 2)
	assert.Equal(t, "Drinks", menu[0].Name)
	require.Len(t, menu[0].Products, 1)
	assert.Equal(t, "Water", menu[0].Products[0].Name)
	assert.Equal(t, "Desserts", menu[1].Name)
	require.Len(t, menu[1].Products, 1)
}

func TestController_GetMenu(t *testing.T) {
	db := testutil.SetupTestDB(t)
	drinks := testutil.CreateCategory(t, db, "Drinks", 1, true)
	testutil.CreateProduct(t, db, drinks, "Water", 1.2, true)

	module := NewModule(db, zap.NewNop())
	rec := httptest.NewRecorder()
	module.Controller.GetMenu(rec, httptest.NewRequest(http.MethodGet, "/api/menu", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []CategoryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 1.2, resp[0].Products[0].Price)
}
