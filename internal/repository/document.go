package repository

import (
	"fmt"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Wire format of shared_carts/{cart_id}. Timestamps are ISO-8601 strings and
// amounts are decimal strings.
type document struct {
	ID        string         `bson:"_id"`
	CartID    string         `bson:"cart_id"`
	CartData  []itemDocument `bson:"cart_data"`
	CreatedAt string         `bson:"created_at"`
	ExpiresAt string         `bson:"expires_at"`
}

type itemDocument struct {
	Kind      string          `bson:"kind"`
	ProductID string          `bson:"product_id"`
	Name      string          `bson:"name"`
	Quantity  int             `bson:"quantity"`
	UnitPrice string          `bson:"unit_price"`
	LineTotal string          `bson:"line_total"`
	Addons    []addonDocument `bson:"addon_selections"`
}

type addonDocument struct {
	Name  string `bson:"name"`
	Price string `bson:"price"`
}

// toDocument rejects anything the remote store would refuse: the store does
// not accept fields without a value.
func toDocument(s *domain.CartSnapshot) (*document, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: cart_id is empty", ErrInvalidDocument)
	}
	if len(s.Items) == 0 {
		return nil, fmt.Errorf("%w: cart_data is empty", ErrInvalidDocument)
	}
	if s.CreatedAt.IsZero() || s.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: timestamps are not set", ErrInvalidDocument)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return nil, fmt.Errorf("%w: expires_at must be after created_at", ErrInvalidDocument)
	}

	doc := &document{
		ID:        s.ID,
		CartID:    s.ID,
		CartData:  make([]itemDocument, 0, len(s.Items)),
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	for i, item := range s.Items {
		if item.Product.Kind == "" || item.Product.ID == "" || item.Product.Name == "" {
			return nil, fmt.Errorf("%w: cart_data[%d] has an empty product reference", ErrInvalidDocument, i)
		}
		addons := make([]addonDocument, 0, len(item.Addons))
		for j, a := range item.Addons {
			if a.Name == "" {
				return nil, fmt.Errorf("%w: cart_data[%d].addon_selections[%d] has no name", ErrInvalidDocument, i, j)
			}
			addons = append(addons, addonDocument{Name: a.Name, Price: a.Price.String()})
		}
		doc.CartData = append(doc.CartData, itemDocument{
			Kind:      string(item.Product.Kind),
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			LineTotal: item.LineTotal.String(),
			Addons:    addons,
		})
	}
	return doc, nil
}

func (d *document) toDomain() (*domain.CartSnapshot, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", d.CartID, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, d.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at of %s: %w", d.CartID, err)
	}

	s := &domain.CartSnapshot{
		ID:        d.CartID,
		Items:     make([]domain.SnapshotItem, 0, len(d.CartData)),
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	for _, it := range d.CartData {
		unitPrice, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("parse unit_price of %s: %w", d.CartID, err)
		}
		lineTotal, err := decimal.NewFromString(it.LineTotal)
		if err != nil {
			return nil, fmt.Errorf("parse line_total of %s: %w", d.CartID, err)
		}
		addons := make([]domain.AddonSelection, 0, len(it.Addons))
		for _, a := range it.Addons {
			price, err := decimal.NewFromString(a.Price)
			if err != nil {
				return nil, fmt.Errorf("parse addon price of %s: %w", d.CartID, err)
			}
			addons = append(addons, domain.AddonSelection{Name: a.Name, Price: price})
		}
		s.Items = append(s.Items, domain.SnapshotItem{
			Product: domain.ProductRef{
				Kind: domain.ProductKind(it.Kind),
				ID:   it.ProductID,
				Name: it.Name,
			},
			Quantity:  it.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
			Addons:    addons,
		})
	}
	return s, nil
}
