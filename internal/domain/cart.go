package domain

import "github.com/shopspring/decimal"

type ProductKind string

const (
	KindProduct ProductKind = "product"
	KindBundle  ProductKind = "bundle"
)

func (k ProductKind) Valid() bool {
	return k == KindProduct || k == KindBundle
}

// CartItem is a line of the active cart as the cart UI keeps it.
// Optional fields are pointers; nil means the value was never resolved.
type CartItem struct {
	Kind      ProductKind      `json:"kind"`
	ProductID string           `json:"product_id"`
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	LineTotal *decimal.Decimal `json:"line_total,omitempty"`
	Addons    []CartAddon      `json:"addons,omitempty"`

	// presentation only, never part of a snapshot
	ImageURL *string `json:"image_url,omitempty"`
	Note     *string `json:"note,omitempty"`
}

type CartAddon struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// Total sums line totals, computing the ones that are missing.
func Total(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.LineTotal != nil {
			total = total.Add(*item.LineTotal)
			continue
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		for _, addon := range item.Addons {
			if addon.Price != nil {
				total = total.Add(*addon.Price)
			}
		}
	}
	return total
}
