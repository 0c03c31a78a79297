package domain

type Product struct {
	ID          int64
	CategoryID  int64
	Name        string
	Description string
	Price       float64
	Available   bool
}

type Category struct {
	ID        int64
	Name      string
	SortOrder int
	Active    bool
	Products  []Product
}
