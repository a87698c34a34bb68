package model

import "time"

// PurchaseItem is a single line item in a purchase, carrying the product
// snapshot the computation engine needs. Owned by the order subsystem;
// read-only input here.
type PurchaseItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Grade     Grade   `json:"sustainability_grade"`
	Score     float64 `json:"sustainability_score"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Purchase is one order from the purchase history.
type Purchase struct {
	OrderID   string         `json:"order_id"`
	Items     []PurchaseItem `json:"items"`
	OrderedAt time.Time      `json:"ordered_at"`
}
