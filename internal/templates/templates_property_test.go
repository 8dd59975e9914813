//go:build property

package templates

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTemplateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("cleaning strict JSON preserves its value", prop.ForAll(
		func(m map[string]string, xs []int) bool {
			in, err := json.Marshal(map[string]any{"m": m, "xs": xs})
			if err != nil {
				return false
			}
			var want, got any
			if json.Unmarshal(in, &want) != nil {
				return false
			}
			if json.Unmarshal(CleanJSON(in), &got) != nil {
				return false
			}
			return reflect.DeepEqual(want, got)
		},
		gen.MapOf(gen.AlphaString(), gen.AnyString()),
		gen.SliceOf(gen.Int()),
	))

	properties.Property("template path is never empty", prop.ForAll(
		func(pageType string) bool {
			p := GetTemplatePath(pageType)
			return p != "" && len(p) > len("templates/")
		},
		gen.AnyString(),
	))

	properties.Property("ordered ids skip disabled sections", prop.ForAll(
		func(ids []string, disabled []bool) bool {
			d := &Descriptor{Sections: map[string]SectionConfig{}}
			for i, id := range ids {
				d.Sections[id] = SectionConfig{Type: "x", Disabled: i < len(disabled) && disabled[i]}
			}
			d.Order = ids
			seen := map[string]bool{}
			for _, id := range d.OrderedIDs() {
				if d.Sections[id].Disabled || seen[id] {
					return false
				}
				seen[id] = true
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
