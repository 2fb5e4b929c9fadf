package menu

import "testing"

func sampleIndex() *Index {
	return NewIndex([]Item{
		{
			Name:  "Pepperoni Pizza",
			Sizes: []string{"small", "large"},
			Prices: map[string]float64{
				"small": 13.99,
				"large": 20.99,
			},
		},
		{Name: "garlic knots", FlatPrice: 6.49},
		{Name: "mystery special"},
	})
}

func TestLookupCaseInsensitive(t *testing.T) {
	idx := sampleIndex()

	item, ok := idx.Lookup("  PEPPERONI pizza ")
	if !ok {
		t.Fatalf("expected lookup to succeed")
	}
	if item.Name != "Pepperoni Pizza" {
		t.Fatalf("unexpected canonical name: %s", item.Name)
	}

	if _, ok := idx.Lookup("calzone"); ok {
		t.Fatalf("expected lookup miss for off-menu item")
	}
}

func TestResolvePriceSizeSpecific(t *testing.T) {
	idx := sampleIndex()
	item, _ := idx.Lookup("pepperoni pizza")

	if got := idx.ResolvePrice(item, "large"); got != 20.99 {
		t.Fatalf("expected 20.99, got %.2f", got)
	}
	// Unknown size falls back to the first declared size's price.
	if got := idx.ResolvePrice(item, "jumbo"); got != 13.99 {
		t.Fatalf("expected first-size fallback 13.99, got %.2f", got)
	}
}

func TestResolvePriceFlat(t *testing.T) {
	idx := sampleIndex()
	item, _ := idx.Lookup("garlic knots")

	if got := idx.ResolvePrice(item, ""); got != 6.49 {
		t.Fatalf("expected flat price 6.49, got %.2f", got)
	}
}

func TestResolvePriceUnpriceable(t *testing.T) {
	idx := sampleIndex()
	item, _ := idx.Lookup("mystery special")

	if got := idx.ResolvePrice(item, ""); got != 0 {
		t.Fatalf("expected zero for unpriceable item, got %.2f", got)
	}
}

func TestDefaultSize(t *testing.T) {
	item := Item{Name: "wings", Sizes: []string{"6 piece", "12 piece"}}
	if got := item.DefaultSize(); got != "6 piece" {
		t.Fatalf("expected first declared size, got %s", got)
	}

	flat := Item{Name: "salad", FlatPrice: 8.99}
	if got := flat.DefaultSize(); got != "regular" {
		t.Fatalf("expected regular, got %s", got)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
items:
  - name: cheese pizza
    sizes: [small, large]
    prices:
      small: 11.99
      large: 17.99
  - name: soda
    price: 1.99
`)

	idx, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", idx.Len())
	}

	item, ok := idx.Lookup("Cheese Pizza")
	if !ok {
		t.Fatalf("expected cheese pizza in index")
	}
	if got := idx.ResolvePrice(item, "large"); got != 17.99 {
		t.Fatalf("expected 17.99, got %.2f", got)
	}
}

func TestParseEmptyMenu(t *testing.T) {
	if _, err := Parse([]byte("items: []")); err == nil {
		t.Fatalf("expected error for empty menu")
	}
}

func TestSampleMenuScenarioPrice(t *testing.T) {
	idx := Sample()
	item, ok := idx.Lookup("pepperoni pizza")
	if !ok {
		t.Fatalf("sample menu missing pepperoni pizza")
	}
	if got := idx.ResolvePrice(item, "large"); got != 20.99 {
		t.Fatalf("expected large pepperoni at 20.99, got %.2f", got)
	}
}
