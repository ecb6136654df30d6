package domain

type Product struct {
	ID            string
	Name          string
	Price         float64
	StockQuantity int
	Brand         string
	SKU           string
}
