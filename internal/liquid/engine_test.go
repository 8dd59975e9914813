package liquid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

type mapPartials struct {
	engine   *Engine
	snippets map[string]string
}

func (m mapPartials) LoadPartial(_ context.Context, name string) (*Template, error) {
	src, ok := m.snippets[name]
	if !ok {
		return nil, ErrPartialNotFound
	}
	return m.engine.Compile("snippets/"+name+".liquid", src)
}

type recordingSink struct {
	css, js []string
}

func (s *recordingSink) AddCSS(css string) { s.css = append(s.css, css) }
func (s *recordingSink) AddJS(js string)   { s.js = append(s.js, js) }

func render(t *testing.T, src string, vars map[string]any) string {
	t.Helper()
	out, err := NewEngine().RenderString(context.Background(), src, vars, RenderOptions{})
	require.NoError(t, err)
	return out
}

func TestRenderBasics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"text", "hello", nil, "hello"},
		{"variable", "{{ shop.name }}", map[string]any{"shop": map[string]any{"name": "Mi Tienda"}}, "Mi Tienda"},
		{"missing variable", "[{{ nope.deeper }}]", nil, "[]"},
		{"index", "{{ items[1] }}", map[string]any{"items": []any{"a", "b"}}, "b"},
		{"negative index", "{{ items[-1] }}", map[string]any{"items": []any{"a", "b"}}, "b"},
		{"size", "{{ items.size }}", map[string]any{"items": []any{1, 2, 3}}, "3"},
		{"filter chain", "{{ 'hola' | upcase | append: '!' }}", nil, "HOLA!"},
		{"assign", "{% assign x = 'y' %}{{ x }}", nil, "y"},
		{"capture", "{% capture g %}Hi {{ n }}{% endcapture %}{{ g }}", map[string]any{"n": "Ana"}, "Hi Ana"},
		{"if else", "{% if a > 1 %}big{% elsif a == 1 %}one{% else %}small{% endif %}", map[string]any{"a": 1}, "one"},
		{"unless", "{% unless ok %}no{% endunless %}", map[string]any{"ok": false}, "no"},
		{"and or", "{% if a and b or c %}y{% endif %}", map[string]any{"a": true, "b": false, "c": true}, "y"},
		{"contains", "{% if tags contains 'sale' %}sale{% endif %}", map[string]any{"tags": []any{"new", "sale"}}, "sale"},
		{"empty", "{% if items == empty %}none{% endif %}", map[string]any{"items": []any{}}, "none"},
		{"case", "{% case t %}{% when 'a', 'b' %}ab{% else %}other{% endcase %}", map[string]any{"t": "b"}, "ab"},
		{"range", "{% for i in (1..3) %}{{ i }}{% endfor %}", nil, "123"},
		{"for else", "{% for i in items %}x{% else %}empty{% endfor %}", nil, "empty"},
		{"limit offset", "{% for i in (1..10) limit:2 offset:3 %}{{ i }}{% endfor %}", nil, "45"},
		{"reversed", "{% for i in (1..3) reversed %}{{ i }}{% endfor %}", nil, "321"},
		{"break continue", "{% for i in (1..5) %}{% if i == 2 %}{% continue %}{% endif %}{% if i == 4 %}{% break %}{% endif %}{{ i }}{% endfor %}", nil, "13"},
		{"increment", "{% increment c %}{% increment c %}{% decrement d %}", nil, "01-1"},
		{"cycle", "{% for i in (1..3) %}{% cycle 'a', 'b' %}{% endfor %}", nil, "aba"},
		{"raw", "{% raw %}{{ x }}{% endraw %}", nil, "{{ x }}"},
		{"comment", "a{% comment %}{{ x }}{% endcomment %}b", nil, "ab"},
		{"whitespace control", "a  {%- if true -%}  b  {%- endif -%}  c", nil, "abc"},
		{"echo", "{% echo 'x' | upcase %}", nil, "X"},
		{"schema is stripped", "a{% schema %}{\"name\": \"x\"}{% endschema %}b", nil, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.vars))
		})
	}
}

func TestForloopMetadata(t *testing.T) {
	src := "{% for x in items %}{{ forloop.index }}/{{ forloop.length }}{% if forloop.first %}F{% endif %}{% if forloop.last %}L{% endif %} {% endfor %}"
	out := render(t, src, map[string]any{"items": []any{"a", "b", "c"}})
	assert.Equal(t, "1/3F 2/3 3/3L ", out)
}

func TestVariablesAreNotMutated(t *testing.T) {
	vars := map[string]any{"x": "orig"}
	out := render(t, "{% assign x = 'new' %}{{ x }}", vars)
	assert.Equal(t, "new", out)
	assert.Equal(t, "orig", vars["x"])
}

func TestUnknownFilterFailsAtRender(t *testing.T) {
	e := NewEngine()
	tpl, err := e.Compile("t", "{{ 'x' | nope }}")
	require.NoError(t, err)

	_, err = e.Render(context.Background(), tpl, nil, RenderOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrUnknownFilter))
}

func TestUnknownTagFailsAtCompile(t *testing.T) {
	_, err := NewEngine().Compile("templates/x.liquid", "{% frobnicate %}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrTemplateParse))
	assert.Contains(t, err.Error(), "templates/x.liquid")
}

func TestSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"{% if x %}never closed",
		"{{ unclosed",
		"{% endif %}",
		"{% for %}{% endfor %}",
	} {
		_, err := NewEngine().Compile("t", src)
		assert.Error(t, err, src)
	}
}

func TestCustomFilter(t *testing.T) {
	e := NewEngine(WithFilter("shout", func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
		return strings.ToUpper(toString(in)) + "!", nil
	}))
	out, err := e.RenderString(context.Background(), "{{ 'hey' | shout }}", nil, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "HEY!", out)
	assert.Contains(t, e.Filters().Names(), "shout")
}

func TestRenderAndInclude(t *testing.T) {
	e := NewEngine()
	partials := mapPartials{engine: e, snippets: map[string]string{
		"card":  "[{{ card.title }}{{ label }}{{ secret }}]",
		"inner": "{{ outer }}",
	}}
	vars := map[string]any{"product": map[string]any{"title": "Camiseta"}}
	opts := RenderOptions{Partials: partials}

	out, err := e.RenderString(context.Background(),
		"{% assign secret = 's' %}{% render 'card' with product, label: '!' %}", vars, opts)
	require.NoError(t, err)
	assert.Equal(t, "[Camiseta!]", out, "render must not see caller assignments")

	out, err = e.RenderString(context.Background(),
		"{% assign outer = 'shared' %}{% include 'inner' %}", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "shared", out)

	out, err = e.RenderString(context.Background(),
		"{% render 'card' for items as card %}", map[string]any{
			"items": []any{map[string]any{"title": "a"}, map[string]any{"title": "b"}},
		}, opts)
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", out)

	out, err = e.RenderString(context.Background(), "{% render 'missing' %}", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "<!-- Snippet 'missing' not found -->", out)
}

func TestRecursionIsBounded(t *testing.T) {
	e := NewEngine(WithMaxDepth(4))
	partials := mapPartials{engine: e, snippets: map[string]string{"loop": "{% render 'loop' %}"}}
	_, err := e.RenderString(context.Background(), "{% render 'loop' %}", nil, RenderOptions{Partials: partials})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrRender))
}

func TestSnippetsAndSectionRefs(t *testing.T) {
	tpl, err := NewEngine().Compile("layout/theme.liquid",
		"{% section 'header' %}{% if x %}{% render 'icon' %}{% endif %}{% for p in ps %}{% include 'card' %}{% endfor %}{% sections 'footer-group' %}")
	require.NoError(t, err)

	assert.Equal(t, []string{"card", "icon"}, tpl.Snippets())
	sections, groups := tpl.SectionRefs()
	assert.Equal(t, []string{"header"}, sections)
	assert.Equal(t, []string{"footer-group"}, groups)
}

func TestRefsInsideBlockTags(t *testing.T) {
	tpl, err := NewEngine().Compile("layout/theme.liquid",
		"{% capture top %}{% section 'announcement' %}{% endcapture %}"+
			"{% style %}{% render 'fonts' %}{% endstyle %}"+
			"{% form 'product', product %}{% section 'buy-buttons' %}{% endform %}"+
			"{% paginate collection.products by 4 %}{% sections 'grid-group' %}{% endpaginate %}"+
			"{% for p in ps %}{% else %}{% section 'empty-state' %}{% include 'hint' %}{% endfor %}")
	require.NoError(t, err)

	assert.Equal(t, []string{"fonts", "hint"}, tpl.Snippets())
	sections, groups := tpl.SectionRefs()
	assert.Equal(t, []string{"announcement", "buy-buttons", "empty-state"}, sections)
	assert.Equal(t, []string{"grid-group"}, groups)
}

func TestSectionTags(t *testing.T) {
	e := NewEngine()
	opts := RenderOptions{
		Sections:      map[string]string{"header": "<header>H</header>"},
		SectionGroups: map[string]string{"footer-group": "<footer>F</footer>"},
	}
	out, err := e.RenderString(context.Background(),
		"{% section 'header' %}{% section 'nope' %}{% sections 'footer-group' %}", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "<header>H</header><!-- Section 'nope' not found --><footer>F</footer>", out)
}

func TestAssetTags(t *testing.T) {
	e := NewEngine()
	sink := &recordingSink{}
	out, err := e.RenderString(context.Background(),
		"a{% style %} .x { color: {{ c }}; } {% endstyle %}{% javascript %}init();{% endjavascript %}b",
		map[string]any{"c": "red"}, RenderOptions{Assets: sink})
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
	assert.Equal(t, []string{".x { color: red; }"}, sink.css)
	assert.Equal(t, []string{"init();"}, sink.js)

	out, err = e.RenderString(context.Background(), "{% stylesheet %}p{}{% endstylesheet %}", nil, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<style>p{}</style>", out)
}

func TestFormTag(t *testing.T) {
	out := render(t, "{% form 'product', product, class: 'buy' %}<button>Add</button>{% endform %}",
		map[string]any{"product": map[string]any{"id": "p1"}})

	assert.True(t, strings.HasPrefix(out, `<form accept-charset="UTF-8" action="/cart/add" class="buy" id="product_form" method="post">`), out)
	assert.Contains(t, out, `<input type="hidden" name="form_type" value="product">`)
	assert.Contains(t, out, `<input type="hidden" name="product_id" value="p1">`)
	assert.True(t, strings.HasSuffix(out, "<button>Add</button></form>"))
}

func TestPaginate(t *testing.T) {
	items := make([]any, 0, 5)
	for i := 1; i <= 5; i++ {
		items = append(items, i)
	}
	vars := map[string]any{
		"collection":   map[string]any{"products": items},
		"current_page": 2,
		"request":      map[string]any{"path": "/collections/all"},
	}
	src := "{% paginate collection.products by 2 %}{% for p in collection.products %}{{ p }}{% endfor %}|{{ paginate.pages }}|{{ paginate.previous.url }}|{{ paginate.next.url }}{% endpaginate %}"
	assert.Equal(t, "34|3|/collections/all?page=1|/collections/all?page=3", render(t, src, vars))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().RenderString(ctx, "x", nil, RenderOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrUpstreamTimeout))
}

func TestDeadlineDuringLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := NewEngine().RenderString(ctx, "{% for i in (1..1000) %}{{ i }}{% endfor %}", nil, RenderOptions{})
	assert.True(t, errors.Is(err, rerrors.ErrUpstreamTimeout))
}

func TestSourceHash(t *testing.T) {
	assert.Equal(t, SourceHash("a"), SourceHash("a"))
	assert.NotEqual(t, SourceHash("a"), SourceHash("b"))
	assert.Len(t, SourceHash("a"), 24)
}
