package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (p Product) HasStock(quantity int) bool {
	return p.Stock >= quantity
}

// Cache keys for the catalog read path.
const AllProductsKey = "products:all"

func ProductKey(id string) string        { return "product:" + id }
func CategoryKey(category string) string { return "products:category:" + category }
