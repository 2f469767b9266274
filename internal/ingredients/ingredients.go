// Package ingredients holds the confirm-step checklist and the merge of
// checked items with free-text extras.
package ingredients

import (
	"strings"
	"unicode"
)

// SplitExtras splits free text on ASCII commas, full-width commas and
// whitespace, dropping empty items.
func SplitExtras(s string) []string {
	return strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ',' || r == '，' || unicode.IsSpace(r)
	})
}

// Merge returns the union of selected and the items in extras, keeping first
// occurrence order and dropping duplicates and blanks.
func Merge(selected []string, extras string) []string {
	seen := make(map[string]struct{}, len(selected))
	out := make([]string, 0, len(selected))
	add := func(item string) {
		item = strings.TrimSpace(item)
		if item == "" {
			return
		}
		if _, ok := seen[item]; ok {
			return
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	for _, item := range selected {
		add(item)
	}
	for _, item := range SplitExtras(extras) {
		add(item)
	}
	return out
}

// Item is one checklist row.
type Item struct {
	Name    string
	Checked bool
}

// Checklist lists identified ingredients, each independently included or
// excluded before recipe generation.
type Checklist struct {
	items []Item
	index map[string]int
}

// New builds a checklist with every item checked. Blank and repeated names
// are collapsed.
func New(names []string) *Checklist {
	c := &Checklist{index: make(map[string]int, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := c.index[name]; ok {
			continue
		}
		c.index[name] = len(c.items)
		c.items = append(c.items, Item{Name: name, Checked: true})
	}
	return c
}

// Set marks name as included or excluded. It reports false for unknown names.
func (c *Checklist) Set(name string, checked bool) bool {
	if c == nil {
		return false
	}
	i, ok := c.index[name]
	if !ok {
		return false
	}
	c.items[i].Checked = checked
	return true
}

// Only checks exactly the given names and unchecks the rest.
func (c *Checklist) Only(names []string) {
	if c == nil {
		return
	}
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for i := range c.items {
		_, ok := keep[c.items[i].Name]
		c.items[i].Checked = ok
	}
}

// Selected returns the checked names in list order.
func (c *Checklist) Selected() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.items))
	for _, it := range c.items {
		if it.Checked {
			out = append(out, it.Name)
		}
	}
	return out
}

// Items returns a copy of the rows.
func (c *Checklist) Items() []Item {
	if c == nil {
		return nil
	}
	return append([]Item(nil), c.items...)
}

// Len reports the number of rows.
func (c *Checklist) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
