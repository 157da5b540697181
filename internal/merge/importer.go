package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/sharedcart-service/internal/activecart"
	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy is chosen explicitly by the caller; nothing is inferred.
type Policy string

const (
	// PolicyReplace makes the snapshot lines the whole active cart.
	PolicyReplace Policy = "replace"
	// PolicyAppend concatenates snapshot lines after the active ones.
	// Identical products stay as separate lines; line identity is kept.
	PolicyAppend Policy = "append"
	// PolicyDiscard only lets the caller inspect the snapshot.
	PolicyDiscard Policy = "view"
)

var ErrUnknownPolicy = errors.New("unknown merge policy")

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReplace, PolicyAppend, PolicyDiscard:
		return p, nil
	case "discard":
		return PolicyDiscard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Mutates reports whether the policy writes the active cart.
func (p Policy) Mutates() bool {
	return p == PolicyReplace || p == PolicyAppend
}

type Result struct {
	Policy Policy
	// Items is the persisted active cart for Replace and Append, and the
	// snapshot lines for Discard.
	Items []domain.CartItem
	// SnapshotTotal is the sum of the stored line totals.
	SnapshotTotal decimal.Decimal
	Persisted     bool
}

type Importer struct {
	cart activecart.Store
}

func NewImporter(cart activecart.Store) *Importer {
	return &Importer{cart: cart}
}

func (i *Importer) Import(ctx context.Context, snapshot *domain.CartSnapshot, policy Policy) (*Result, error) {
	if snapshot == nil {
		return nil, errors.New("import: snapshot is nil")
	}
	incoming := snapshot.ToCartItems()
	result := &Result{Policy: policy, SnapshotTotal: snapshot.Total()}

	var merged []domain.CartItem
	switch policy {
	case PolicyDiscard:
		result.Items = incoming
		return result, nil
	case PolicyReplace:
		merged = incoming
	case PolicyAppend:
		active, err := i.cart.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		merged = make([]domain.CartItem, 0, len(active)+len(incoming))
		merged = append(merged, active...)
		merged = append(merged, incoming...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	if err := i.cart.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	result.Items = merged
	result.Persisted = true
	return result, nil
}
