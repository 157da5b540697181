package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductRef struct {
	Kind ProductKind `json:"kind"`
	ID   string      `json:"id"`
	Name string      `json:"name"`
}

type AddonSelection struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// SnapshotItem is a normalized cart line. LineTotal is trusted as stored.
type SnapshotItem struct {
	Product   ProductRef       `json:"product"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	LineTotal decimal.Decimal  `json:"line_total"`
	Addons    []AddonSelection `json:"addons"`
}

// CartSnapshot represents a shared cart frozen at share time.
type CartSnapshot struct {
	ID        string         `json:"cart_id"`
	Items     []SnapshotItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Total is the sum of stored line totals.
func (s *CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// IsExpired reports whether the snapshot is past its expiry at now.
// Readers and the sweeper must both decide expiry through this function.
func IsExpired(s *CartSnapshot, now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ToCartItems converts snapshot lines back into active cart lines.
func (s *CartSnapshot) ToCartItems() []CartItem {
	items := make([]CartItem, 0, len(s.Items))
	for _, si := range s.Items {
		lineTotal := si.LineTotal
		item := CartItem{
			Kind:      si.Product.Kind,
			ProductID: si.Product.ID,
			Name:      si.Product.Name,
			Quantity:  si.Quantity,
			UnitPrice: si.UnitPrice,
			LineTotal: &lineTotal,
		}
		for _, a := range si.Addons {
			price := a.Price
			item.Addons = append(item.Addons, CartAddon{Name: a.Name, Price: &price})
		}
		items = append(items, item)
	}
	return items
}
