package templates

import (
	"context"

	"github.com/conneroisu/storefront/internal/liquid"
)

// Source is a raw theme file.
type Source struct {
	Path   string
	Source string
}

// Section is one section instance of a page or group, with its source and
// parsed schema. Missing is set when the section file does not exist.
type Section struct {
	ID      string
	Config  SectionConfig
	Path    string
	Source  string
	Schema  *Schema
	Missing bool
}

// Settings returns the section settings with schema defaults applied.
func (s *Section) Settings() map[string]any {
	return MergeSettings(s.Schema.Defaults(), s.Config.Settings)
}

// Blocks returns the configured blocks as template values, each with its
// block type's defaults applied.
func (s *Section) Blocks() []any {
	out := make([]any, 0, len(s.Config.Blocks))
	for _, b := range s.Config.Blocks {
		if b.Disabled {
			continue
		}
		out = append(out, map[string]any{
			"id":       b.ID,
			"type":     b.Type,
			"settings": MergeSettings(s.Schema.BlockDefaults(b.Type), b.Settings),
		})
	}
	return out
}

// Group is a section group referenced by {% sections %} in the layout.
type Group struct {
	Name       string
	Descriptor *Descriptor
	Sections   []Section
}

// Template is everything needed to render one page type of a store: the
// page descriptor, its sections, the layout with the sections and groups
// it references, and every snippet reachable from them.
type Template struct {
	StoreID        string
	PageType       string
	Path           string
	Raw            []byte
	Descriptor     *Descriptor
	Sections       []Section
	Layout         *Source
	LayoutSections map[string]Section
	Groups         map[string]*Group
	Snippets       map[string]Source
}

// Compiled is the compiled form of a Template. It serves snippets to the
// engine as a liquid.PartialLoader.
type Compiled struct {
	Template       *Template
	Layout         *liquid.Template
	Sections       map[string]*liquid.Template
	LayoutSections map[string]*liquid.Template
	Groups         map[string]map[string]*liquid.Template
	Snippets       map[string]*liquid.Template
}

var _ liquid.PartialLoader = (*Compiled)(nil)

// LoadPartial implements liquid.PartialLoader.
func (c *Compiled) LoadPartial(_ context.Context, name string) (*liquid.Template, error) {
	if t, ok := c.Snippets[name]; ok {
		return t, nil
	}
	return nil, liquid.ErrPartialNotFound
}
