package templates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultLayout is used when a descriptor names no layout.
const DefaultLayout = "theme"

// Block is one configured block of a section.
type Block struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
	Disabled bool           `json:"disabled"`
}

// SectionConfig is the descriptor entry of one section instance.
type SectionConfig struct {
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
	Blocks   []Block        `json:"-"`
	Disabled bool           `json:"disabled"`
}

// UnmarshalJSON accepts blocks either as an array or as a map ordered by
// block_order.
func (s *SectionConfig) UnmarshalJSON(data []byte) error {
	type plain SectionConfig
	var raw struct {
		plain
		Blocks     json.RawMessage `json:"blocks"`
		BlockOrder []string        `json:"block_order"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SectionConfig(raw.plain)
	if raw.Settings != nil && looksLikeDefinition(raw.Settings) {
		// schema definitions pasted where values belong
		s.Settings = nil
	}

	if len(raw.Blocks) == 0 || string(raw.Blocks) == "null" {
		return nil
	}
	if raw.Blocks[0] == '[' {
		return json.Unmarshal(raw.Blocks, &s.Blocks)
	}

	var byID map[string]Block
	if err := json.Unmarshal(raw.Blocks, &byID); err != nil {
		return err
	}
	order := raw.BlockOrder
	if len(order) == 0 {
		for id := range byID {
			order = append(order, id)
		}
		sort.Strings(order)
	}
	for _, id := range order {
		b, ok := byID[id]
		if !ok {
			continue
		}
		b.ID = id
		s.Blocks = append(s.Blocks, b)
	}
	return nil
}

func looksLikeDefinition(settings map[string]any) bool {
	_, hasType := settings["type"]
	_, hasID := settings["id"]
	return hasType && hasID
}

// Descriptor is a page (or section group) JSON template: which sections
// render in which order inside which layout.
type Descriptor struct {
	Name     string                   `json:"name"`
	Layout   string                   `json:"-"`
	NoLayout bool                     `json:"-"`
	Sections map[string]SectionConfig `json:"sections"`
	Order    []string                 `json:"order"`
}

// UnmarshalJSON reads layout as a name or as false.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor
	var raw struct {
		plain
		Layout json.RawMessage `json:"layout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Descriptor(raw.plain)

	switch string(raw.Layout) {
	case "", "null", "true":
		d.Layout = DefaultLayout
	case "false":
		d.NoLayout = true
	default:
		if err := json.Unmarshal(raw.Layout, &d.Layout); err != nil {
			return fmt.Errorf("layout: %w", err)
		}
		if d.Layout == "" {
			d.Layout = DefaultLayout
		}
	}
	return nil
}

var sectionTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-./]+$`)

// localName reports whether name stays inside the directory it is joined to.
func localName(name string) bool {
	if strings.HasPrefix(name, "/") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// ParseDescriptor decodes tolerant JSON into a Descriptor and checks that
// every section has a usable type.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := UnmarshalTolerant(data, &d); err != nil {
		return nil, err
	}
	if d.Layout == "" && !d.NoLayout {
		d.Layout = DefaultLayout
	}
	for id, s := range d.Sections {
		if s.Type == "" {
			return nil, fmt.Errorf("section %q has no type", id)
		}
		if !sectionTypePattern.MatchString(s.Type) || !localName(s.Type) {
			return nil, fmt.Errorf("section %q has invalid type %q", id, s.Type)
		}
	}
	return &d, nil
}

// OrderedIDs returns the ids of enabled sections: those listed in order
// first, then any remaining ids sorted.
func (d *Descriptor) OrderedIDs() []string {
	seen := make(map[string]bool, len(d.Sections))
	ids := make([]string, 0, len(d.Sections))
	for _, id := range d.Order {
		s, ok := d.Sections[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if !s.Disabled {
			ids = append(ids, id)
		}
	}
	var rest []string
	for id, s := range d.Sections {
		if !seen[id] && !s.Disabled {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}
