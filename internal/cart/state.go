// Package cart holds the cart state machine. Every mutation goes through Reduce, which is
// pure: it never mutates its input and always returns a State with a fresh item slice.
package cart

import (
	"strings"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

// State is an ordered list of unique cart lines plus the cached totals.
type State struct {
	Items     []domain.CartItem
	Total     int64
	ItemCount int
}

// Empty returns the canonical empty state.
func Empty() State {
	return State{Items: []domain.CartItem{}}
}

// Find returns the line for productID.
func (s State) Find(productID string) (domain.CartItem, bool) {
	for _, item := range s.Items {
		if item.Product.ID == productID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}

// Quantity returns the quantity held for productID, zero when absent.
func (s State) Quantity(productID string) int {
	item, _ := s.Find(productID)
	return item.Quantity
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Action is a cart mutation understood by Reduce.
type Action interface {
	apply(items []domain.CartItem) []domain.CartItem
}

// AddItem adds Quantity units of Product, merging with an existing line. A non-positive
// quantity counts as 1.
type AddItem struct {
	Product  domain.ProductSnapshot
	Quantity int
}

// RemoveItem deletes the line for ProductID.
type RemoveItem struct {
	ProductID string
}

// UpdateQuantity overwrites the quantity of an existing line. Zero or less removes it.
type UpdateQuantity struct {
	ProductID string
	Quantity  int
}

// ClearCart empties the cart.
type ClearCart struct{}

// Replace swaps the whole line set, used when rehydrating from the remote mirror. Lines
// with an empty product id or a non-positive quantity are dropped and duplicates merged.
type Replace struct {
	Items []domain.CartItem
}

// Reduce applies action to state and returns the next state with totals recomputed.
// Unknown or malformed actions leave the contents unchanged.
func Reduce(state State, action Action) State {
	items := clone(state.Items)
	if action != nil {
		items = action.apply(items)
	}
	return derive(items)
}

func (a AddItem) apply(items []domain.CartItem) []domain.CartItem {
	if strings.TrimSpace(a.Product.ID) == "" {
		return items
	}
	qty := a.Quantity
	if qty <= 0 {
		qty = 1
	}
	for i := range items {
		if items[i].Product.ID == a.Product.ID {
			items[i].Quantity += qty
			return items
		}
	}
	return append(items, domain.CartItem{Product: a.Product, Quantity: qty})
}

func (a RemoveItem) apply(items []domain.CartItem) []domain.CartItem {
	for i := range items {
		if items[i].Product.ID == a.ProductID {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

func (a UpdateQuantity) apply(items []domain.CartItem) []domain.CartItem {
	if strings.TrimSpace(a.ProductID) == "" {
		return items
	}
	if a.Quantity <= 0 {
		return RemoveItem{ProductID: a.ProductID}.apply(items)
	}
	for i := range items {
		if items[i].Product.ID == a.ProductID {
			items[i].Quantity = a.Quantity
			break
		}
	}
	return items
}

func (ClearCart) apply([]domain.CartItem) []domain.CartItem {
	return nil
}

func (a Replace) apply([]domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(a.Items))
	for _, item := range a.Items {
		if strings.TrimSpace(item.Product.ID) == "" || item.Quantity <= 0 {
			continue
		}
		merged := false
		for i := range out {
			if out[i].Product.ID == item.Product.ID {
				out[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, item)
		}
	}
	return out
}

func clone(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out
}

func derive(items []domain.CartItem) State {
	if items == nil {
		items = []domain.CartItem{}
	}
	state := State{Items: items}
	for _, item := range items {
		state.Total += item.Subtotal()
		state.ItemCount += item.Quantity
	}
	return state
}
