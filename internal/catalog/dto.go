package catalog

type ProductDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type CategoryDTO struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	SortOrder int          `json:"sortOrder"`
	Products  []ProductDTO `json:"products"`
}
