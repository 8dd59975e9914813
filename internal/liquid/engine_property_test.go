//go:build property

package liquid

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEngineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	e := NewEngine()
	tpl, err := e.Compile("prop", "{% for w in words %}{{ w | upcase }}{% endfor %}{{ name | default: 'x' }}")
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("rendering is referentially transparent", prop.ForAll(
		func(words []string, name string) bool {
			items := make([]any, len(words))
			for i, w := range words {
				items[i] = w
			}
			vars := map[string]any{"words": items, "name": name}
			a, errA := e.Render(context.Background(), tpl, vars, RenderOptions{})
			b, errB := e.Render(context.Background(), tpl, vars, RenderOptions{})
			return errA == nil && errB == nil && a == b
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.Property("plain text renders verbatim", prop.ForAll(
		func(s string) bool {
			out, err := e.RenderString(context.Background(), s, nil, RenderOptions{})
			return err == nil && out == s
		},
		gen.AlphaString(),
	))

	properties.Property("handleize is idempotent", prop.ForAll(
		func(s string) bool {
			h := Handleize(s)
			return Handleize(h) == h
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
