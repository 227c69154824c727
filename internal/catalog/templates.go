// Package catalog holds the static template and model registries.
package catalog

import "github.com/digkill/chimeralens/internal/models"

var templates = []models.Template{
	{
		ID:       "template-001",
		Name:     "Cyberpunk Sentinel",
		Style:    "Cyberpunk",
		ImageURL: "https://images.unsplash.com/photo-1534528741775-53994a69daeb?q=80&w=1964&auto=format&fit=crop",
	},
	{
		ID:       "template-002",
		Name:     "Medieval Knight",
		Style:    "Medieval",
		ImageURL: "https://images.unsplash.com/photo-1569913486515-b74bf7751574?q=80&w=1887&auto=format&fit=crop",
	},
	{
		ID:       "template-003",
		Name:     "Galactic Explorer",
		Style:    "Sci-Fi",
		ImageURL: "https://images.unsplash.com/photo-1581090464777-f3220bbe1b8b?q=80&w=1887&auto=format&fit=crop",
	},
	{
		ID:        "template-004",
		Name:      "Renaissance Portrait",
		Style:     "Oil Painting",
		ImageURL:  "https://images.unsplash.com/photo-1542909168-82c3e7fdca5c?q=80&w=1780&auto=format&fit=crop",
		IsPremium: true,
		Cost:      2,
	},
}

// Templates is a read-only lookup over a fixed template list.
type Templates struct {
	items []models.Template
	byID  map[string]models.Template
}

// DefaultTemplates returns the built-in catalog.
func DefaultTemplates() *Templates {
	return NewTemplates(templates)
}

func NewTemplates(items []models.Template) *Templates {
	t := &Templates{
		items: make([]models.Template, len(items)),
		byID:  make(map[string]models.Template, len(items)),
	}
	copy(t.items, items)
	for _, item := range items {
		t.byID[item.ID] = item
	}
	return t
}

func (t *Templates) Find(id string) (models.Template, bool) {
	item, ok := t.byID[id]
	return item, ok
}

func (t *Templates) List() []models.Template {
	out := make([]models.Template, len(t.items))
	copy(out, t.items)
	return out
}
