// Package catalog holds the fixed, ordered list of promotional items the bot posts.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Item is a single promotional entry.
type Item struct {
	Title string `json:"title" yaml:"title"`
	Link  string `json:"link" yaml:"link"`
}

// Text renders the message body posted to the channel.
func (it Item) Text() string {
	return it.Title + "\n" + it.Link
}

// Catalog is immutable once built.
type Catalog struct {
	items []Item
}

// New copies items into a catalog. Order is preserved.
func New(items []Item) *Catalog {
	return &Catalog{items: append([]Item(nil), items...)}
}

// Items returns the catalog in display order.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	return append([]Item(nil), c.items...)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

var defaultItems = []Item{
	{Title: "🛍️ Produk 1: Cordless Blower", Link: "https://shorturl.at/gtxRn"},
	{Title: "🛍️ Produk 2: Car Road Sign", Link: "https://shorturl.at/MRxbP"},
	{Title: "🛍️ Produk 3: Car side Mirror View", Link: "https://shorturl.at/EbyJN"},
	{Title: "🛍️ Produk 4: Universal Car Trash", Link: "https://shorturl.at/YpPsp"},
}

// Default returns the built-in shop catalog.
func Default() *Catalog { return New(defaultItems) }

type fileFormat struct {
	Items []Item `json:"items" yaml:"items"`
}

// Load reads a catalog file. YAML is used for .yaml/.yml, JSON otherwise.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &ff); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ff); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	if err := validate(ff.Items); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return New(ff.Items), nil
}

func validate(items []Item) error {
	if len(items) == 0 {
		return errors.New("no items")
	}
	for i, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			return fmt.Errorf("item %d: title required", i)
		}
		if strings.TrimSpace(it.Link) == "" {
			return fmt.Errorf("item %d: link required", i)
		}
	}
	return nil
}
