package menu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// menuFile is the on-disk YAML shape: a flat list of items.
type menuFile struct {
	Items []Item `yaml:"items"`
}

// LoadFile reads a YAML menu file and returns a fresh snapshot.
func LoadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("menu: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a snapshot.
func Parse(data []byte) (*Index, error) {
	var file menuFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("menu: parse: %w", err)
	}
	if len(file.Items) == 0 {
		return nil, fmt.Errorf("menu: no items declared")
	}
	return NewIndex(file.Items), nil
}

// Sample returns the built-in store menu, used when no menu file is
// configured and as the fallback when a reload fails.
func Sample() *Index {
	return NewIndex([]Item{
		{
			Name:  "cheese pizza",
			Sizes: []string{"small", "medium", "large"},
			Prices: map[string]float64{
				"small":  11.99,
				"medium": 14.99,
				"large":  17.99,
			},
		},
		{
			Name:  "pepperoni pizza",
			Sizes: []string{"small", "medium", "large"},
			Prices: map[string]float64{
				"small":  13.99,
				"medium": 16.99,
				"large":  20.99,
			},
		},
		{
			Name:  "veggie pizza",
			Sizes: []string{"small", "medium", "large"},
			Prices: map[string]float64{
				"small":  13.49,
				"medium": 16.49,
				"large":  19.99,
			},
		},
		{
			Name:      "garlic knots",
			FlatPrice: 6.49,
		},
		{
			Name:      "caesar salad",
			FlatPrice: 8.99,
		},
		{
			Name:  "wings",
			Sizes: []string{"6 piece", "12 piece"},
			Prices: map[string]float64{
				"6 piece":  8.99,
				"12 piece": 15.99,
			},
		},
		{
			Name:  "soda",
			Sizes: []string{"can", "2 liter"},
			Prices: map[string]float64{
				"can":     1.99,
				"2 liter": 3.99,
			},
		},
	})
}
