package menu

import "strings"

// Item describes one orderable product and its pricing.
type Item struct {
	Name      string             `yaml:"name" json:"name"`
	Sizes     []string           `yaml:"sizes,omitempty" json:"sizes,omitempty"`
	Prices    map[string]float64 `yaml:"prices,omitempty" json:"prices,omitempty"`
	FlatPrice float64            `yaml:"price,omitempty" json:"price,omitempty"`
}

// DefaultSize returns the first declared size, or "regular" when the item
// has no size variants.
func (i Item) DefaultSize() string {
	if len(i.Sizes) > 0 {
		return i.Sizes[0]
	}
	return "regular"
}

// Index is a read-only menu snapshot keyed by lower-cased item name.
// Lookups never mutate it; refreshes replace the whole snapshot.
type Index struct {
	items map[string]Item
}

// NewIndex builds a snapshot from a list of items.
func NewIndex(items []Item) *Index {
	m := make(map[string]Item, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item.Name))
		if key == "" {
			continue
		}
		m[key] = item
	}
	return &Index{items: m}
}

// Lookup resolves an item by name, case-insensitively.
func (x *Index) Lookup(name string) (Item, bool) {
	item, ok := x.items[strings.ToLower(strings.TrimSpace(name))]
	return item, ok
}

// Len reports the number of items in the snapshot.
func (x *Index) Len() int {
	return len(x.items)
}

// Items returns the snapshot contents for read-only surfaces such as the
// menu endpoint.
func (x *Index) Items() []Item {
	out := make([]Item, 0, len(x.items))
	for _, item := range x.items {
		out = append(out, item)
	}
	return out
}

// ResolvePrice picks the unit price for an item/size pair: the size-specific
// price when that size is declared, else the flat price, else the first
// declared size's price. A zero return means the item is unpriceable and the
// add must be rejected.
func (x *Index) ResolvePrice(item Item, size string) float64 {
	size = strings.ToLower(strings.TrimSpace(size))
	if size != "" && item.Prices != nil {
		if p, ok := item.Prices[size]; ok {
			return p
		}
	}
	if item.FlatPrice > 0 {
		return item.FlatPrice
	}
	if len(item.Sizes) > 0 && item.Prices != nil {
		if p, ok := item.Prices[strings.ToLower(item.Sizes[0])]; ok {
			return p
		}
	}
	return 0
}
