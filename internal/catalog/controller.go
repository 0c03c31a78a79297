package catalog

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tableside/internal/httpjson"
)

type Controller struct {
	service Service
	logger  *zap.Logger
}

func NewController(service Service, logger *zap.Logger) *Controller {
	return &Controller{
		service: service,
		logger:  logger,
	}
}

func (c *Controller) GetMenu(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	categories, err := c.service.Menu(r.Context())
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	resp := make([]CategoryDTO, 0, len(categories))
	for _, cat := range categories {
		products := make([]ProductDTO, 0, len(cat.Products))
		for _, p := range cat.Products {
			products = append(products, ProductDTO{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
			})
		}
		resp = append(resp, CategoryDTO{
			ID:        cat.ID,
			Name:      cat.Name,
			SortOrder: cat.SortOrder,
			Products:  products,
		})
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, resp)
}
