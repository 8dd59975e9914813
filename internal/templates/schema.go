package templates

import (
	"fmt"
	"regexp"
)

// Setting is one entry of a schema's settings list.
type Setting struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Label   string `json:"label"`
	Default any    `json:"default"`
}

// BlockSchema declares a block type a section accepts.
type BlockSchema struct {
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	Settings []Setting `json:"settings"`
}

// Schema is the {% schema %} block of a section source.
type Schema struct {
	Name      string        `json:"name"`
	Tag       string        `json:"tag"`
	Class     string        `json:"class"`
	Settings  []Setting     `json:"settings"`
	Blocks    []BlockSchema `json:"blocks"`
	MaxBlocks int           `json:"max_blocks"`
}

var schemaPattern = regexp.MustCompile(`(?s)\{%-?\s*schema\s*-?%\}(.*?)\{%-?\s*endschema\s*-?%\}`)

// ExtractSchema returns the section schema and the source with the schema
// block removed. A source without a schema yields a nil schema.
func ExtractSchema(source string) (*Schema, string, error) {
	loc := schemaPattern.FindStringSubmatchIndex(source)
	if loc == nil {
		return nil, source, nil
	}
	var s Schema
	if err := UnmarshalTolerant([]byte(source[loc[2]:loc[3]]), &s); err != nil {
		return nil, "", fmt.Errorf("schema: %w", err)
	}
	return &s, source[:loc[0]] + source[loc[1]:], nil
}

// Defaults returns the default value of every setting that declares one.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for _, st := range s.Settings {
		if st.ID != "" && st.Default != nil {
			out[st.ID] = st.Default
		}
	}
	return out
}

// BlockDefaults returns the setting defaults of a block type.
func (s *Schema) BlockDefaults(blockType string) map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for _, b := range s.Blocks {
		if b.Type != blockType {
			continue
		}
		for _, st := range b.Settings {
			if st.ID != "" && st.Default != nil {
				out[st.ID] = st.Default
			}
		}
	}
	return out
}

// MergeSettings layers configured values over defaults into a new map.
func MergeSettings(defaults, values map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(values))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range values {
		out[k] = v
	}
	return out
}
