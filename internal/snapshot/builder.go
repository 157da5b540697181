package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/idgen"
	"github.com/shopspring/decimal"
)

// Builder turns active cart lines into a CartSnapshot ready for the store.
type Builder struct {
	ids idgen.Generator
	now func() time.Time
}

func NewBuilder(ids idgen.Generator, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{ids: ids, now: now}
}

// Build validates and normalizes cartItems. Fields outside the snapshot
// schema are dropped and unresolved optionals are filled here so that no
// empty value reaches the remote document.
func (b *Builder) Build(cartItems []domain.CartItem) (*domain.CartSnapshot, error) {
	if len(cartItems) == 0 {
		return nil, &domain.ValidationError{Reason: "cart has no items", Err: domain.ErrEmptyCart}
	}

	items, err := NormalizeItems(cartItems)
	if err != nil {
		return nil, err
	}

	return &domain.CartSnapshot{
		ID:        b.ids.Generate(),
		Items:     items,
		CreatedAt: b.now().UTC(),
	}, nil
}

// NormalizeItems is the deterministic part of Build.
func NormalizeItems(cartItems []domain.CartItem) ([]domain.SnapshotItem, error) {
	items := make([]domain.SnapshotItem, 0, len(cartItems))
	for i, ci := range cartItems {
		item, err := normalizeItem(ci)
		if err != nil {
			err.Field = fmt.Sprintf("items[%d].%s", i, err.Field)
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func normalizeItem(ci domain.CartItem) (domain.SnapshotItem, *domain.ValidationError) {
	if !ci.Kind.Valid() {
		return domain.SnapshotItem{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown product kind %q", ci.Kind)}
	}
	productID := strings.TrimSpace(ci.ProductID)
	if productID == "" {
		return domain.SnapshotItem{}, &domain.ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if ci.Quantity < 1 {
		return domain.SnapshotItem{}, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if ci.UnitPrice.IsNegative() {
		return domain.SnapshotItem{}, &domain.ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}

	addons := make([]domain.AddonSelection, 0, len(ci.Addons))
	addonSum := decimal.Zero
	for j, a := range ci.Addons {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		price := decimal.Zero
		if a.Price != nil {
			price = *a.Price
		}
		if price.IsNegative() {
			return domain.SnapshotItem{}, &domain.ValidationError{Field: fmt.Sprintf("addons[%d].price", j), Reason: "must not be negative"}
		}
		addonSum = addonSum.Add(price)
		addons = append(addons, domain.AddonSelection{Name: name, Price: price})
	}

	name := strings.TrimSpace(ci.Name)
	if name == "" {
		name = productID
	}

	var lineTotal decimal.Decimal
	if ci.LineTotal != nil {
		lineTotal = *ci.LineTotal
	} else {
		lineTotal = ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity))).Add(addonSum)
	}

	return domain.SnapshotItem{
		Product: domain.ProductRef{
			Kind: ci.Kind,
			ID:   productID,
			Name: name,
		},
		Quantity:  ci.Quantity,
		UnitPrice: ci.UnitPrice,
		LineTotal: lineTotal,
		Addons:    addons,
	}, nil
}
