package liquid

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FilterFunc implements a filter. input is the piped value; args and kwargs
// are the evaluated positional and named arguments.
type FilterFunc func(c *Context, input any, args []any, kwargs map[string]any) (any, error)

// FilterRegistry maps filter names to implementations.
type FilterRegistry struct {
	mu      sync.RWMutex
	filters map[string]FilterFunc
}

// NewFilterRegistry creates an empty registry.
func NewFilterRegistry() *FilterRegistry {
	return &FilterRegistry{filters: make(map[string]FilterFunc)}
}

// Register adds or replaces a filter.
func (r *FilterRegistry) Register(name string, fn FilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = fn
}

// Lookup returns the filter registered under name.
func (r *FilterRegistry) Lookup(name string) (FilterFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.filters[name]
	return fn, ok
}

// Names returns every registered filter name in order.
func (r *FilterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.filters))
	for name := range r.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StandardFilters returns a registry holding every built-in filter.
func StandardFilters() *FilterRegistry {
	r := NewFilterRegistry()
	for name, fn := range stringFilters() {
		r.Register(name, fn)
	}
	for name, fn := range mathFilters() {
		r.Register(name, fn)
	}
	for name, fn := range arrayFilters() {
		r.Register(name, fn)
	}
	for name, fn := range moneyFilters() {
		r.Register(name, fn)
	}
	for name, fn := range storefrontFilters() {
		r.Register(name, fn)
	}
	return r
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(args []any, i int, def string) string {
	if i < len(args) && args[i] != nil {
		return toString(args[i])
	}
	return def
}

func argInt(args []any, i int, def int) int {
	if i < len(args) {
		if n, ok := toInt(args[i]); ok {
			return n
		}
	}
	return def
}

// simple adapts a string-to-string function.
func simple(fn func(string) string) FilterFunc {
	return func(_ *Context, input any, _ []any, _ map[string]any) (any, error) {
		return fn(toString(input)), nil
	}
}

var (
	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

func stringFilters() map[string]FilterFunc {
	return map[string]FilterFunc{
		"upcase":   simple(upper.String),
		"downcase": simple(lower.String),
		"capitalize": simple(func(s string) string {
			r := []rune(s)
			if len(r) == 0 {
				return s
			}
			return upper.String(string(r[0])) + lower.String(string(r[1:]))
		}),
		"strip":          simple(strings.TrimSpace),
		"lstrip":         simple(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"rstrip":         simple(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"strip_newlines": simple(func(s string) string { return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(s) }),
		"newline_to_br":  simple(func(s string) string { return strings.ReplaceAll(s, "\n", "<br />\n") }),
		"escape":         simple(html.EscapeString),
		"escape_once":    simple(func(s string) string { return html.EscapeString(html.UnescapeString(s)) }),
		"strip_html":     simple(stripHTML),
		"url_encode":     simple(url.QueryEscape),
		"url_decode": simple(func(s string) string {
			if d, err := url.QueryUnescape(s); err == nil {
				return d
			}
			return s
		}),
		"handleize": simple(Handleize),
		"handle":    simple(Handleize),
		"append": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return toString(in) + argString(args, 0, ""), nil
		},
		"prepend": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return argString(args, 0, "") + toString(in), nil
		},
		"replace": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return strings.ReplaceAll(toString(in), argString(args, 0, ""), argString(args, 1, "")), nil
		},
		"replace_first": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return strings.Replace(toString(in), argString(args, 0, ""), argString(args, 1, ""), 1), nil
		},
		"remove": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return strings.ReplaceAll(toString(in), argString(args, 0, ""), ""), nil
		},
		"remove_first": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return strings.Replace(toString(in), argString(args, 0, ""), "", 1), nil
		},
		"split": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			parts := strings.Split(toString(in), argString(args, 0, " "))
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				out = append(out, p)
			}
			return out, nil
		},
		"truncate": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			return truncate(toString(in), argInt(args, 0, 50), argString(args, 1, "...")), nil
		},
		"truncatewords": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			words := strings.Fields(toString(in))
			n := argInt(args, 0, 15)
			if n < 1 {
				n = 1
			}
			if len(words) <= n {
				return toString(in), nil
			}
			return strings.Join(words[:n], " ") + argString(args, 1, "..."), nil
		},
		"pluralize": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			if n, ok := toNumber(in); ok && n == 1 {
				return argString(args, 0, ""), nil
			}
			return argString(args, 1, ""), nil
		},
		"default": func(_ *Context, in any, args []any, kwargs map[string]any) (any, error) {
			allowFalse := truthy(kwargs["allow_false"])
			if b, ok := in.(bool); ok && !b && allowFalse {
				return in, nil
			}
			if !truthy(in) || isEmpty(in) {
				return arg(args, 0), nil
			}
			return in, nil
		},
		"json": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			b, err := json.Marshal(in)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		},
		"date": dateFilter,
		"slice": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			start, length := argInt(args, 0, 0), argInt(args, 1, 1)
			if s, ok := in.(string); ok {
				r := []rune(s)
				from, to := sliceBounds(len(r), start, length)
				return string(r[from:to]), nil
			}
			items := toSlice(in)
			from, to := sliceBounds(len(items), start, length)
			return items[from:to], nil
		},
	}
}

func sliceBounds(n, start, length int) (int, int) {
	if start < 0 {
		start += n
	}
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + length
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}

func truncate(s string, n int, ellipsis string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	keep := n - len([]rune(ellipsis))
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + ellipsis
}

// Handleize turns a title into a URL handle. It lower-cases, strips accents
// and collapses runs of other characters into a single dash.
func Handleize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lower.String(s))
	if err != nil {
		folded = lower.String(s)
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// stripHTML returns the text content of an HTML fragment, dropping script
// and style bodies.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if n := string(name); n == "script" || n == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		}
	}
}

// arithmetic returns an int when both operands are integers.
func arithmetic(op func(a, b float64) float64) FilterFunc {
	return func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
		a, _ := toNumber(in)
		b, _ := toNumber(arg(args, 0))
		r := op(a, b)
		if isInteger(in) && isInteger(arg(args, 0)) {
			return int(r), nil
		}
		return r, nil
	}
}

func mathFilters() map[string]FilterFunc {
	return map[string]FilterFunc{
		"plus":  arithmetic(func(a, b float64) float64 { return a + b }),
		"minus": arithmetic(func(a, b float64) float64 { return a - b }),
		"times": arithmetic(func(a, b float64) float64 { return a * b }),
		"divided_by": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			b, _ := toNumber(arg(args, 0))
			if b == 0 {
				return nil, fmt.Errorf("divided by 0")
			}
			if isInteger(arg(args, 0)) {
				return int(math.Floor(a / b)), nil
			}
			return a / b, nil
		},
		"modulo": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			b, _ := toNumber(arg(args, 0))
			if b == 0 {
				return nil, fmt.Errorf("divided by 0")
			}
			r := math.Mod(a, b)
			if isInteger(in) && isInteger(arg(args, 0)) {
				return int(r), nil
			}
			return r, nil
		},
		"abs": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			if isInteger(in) {
				return int(math.Abs(a)), nil
			}
			return math.Abs(a), nil
		},
		"ceil": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			return int(math.Ceil(a)), nil
		},
		"floor": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			return int(math.Floor(a)), nil
		},
		"round": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			places := argInt(args, 0, 0)
			if places <= 0 {
				return int(math.Round(a)), nil
			}
			p := math.Pow(10, float64(places))
			return math.Round(a*p) / p, nil
		},
		"at_least": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			b, _ := toNumber(arg(args, 0))
			if a < b {
				return arg(args, 0), nil
			}
			return in, nil
		},
		"at_most": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			a, _ := toNumber(in)
			b, _ := toNumber(arg(args, 0))
			if a > b {
				return arg(args, 0), nil
			}
			return in, nil
		},
	}
}

func arrayFilters() map[string]FilterFunc {
	return map[string]FilterFunc{
		"size": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			v, _ := property(in, "size")
			if v == nil {
				return 0, nil
			}
			return v, nil
		},
		"join": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			items := toSlice(in)
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = toString(it)
			}
			return strings.Join(parts, argString(args, 0, " ")), nil
		},
		"first": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			v, _ := property(in, "first")
			return v, nil
		},
		"last": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			v, _ := property(in, "last")
			return v, nil
		},
		"reverse": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			items := toSlice(in)
			out := make([]any, len(items))
			for i, it := range items {
				out[len(items)-1-i] = it
			}
			return out, nil
		},
		"map": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			key := argString(args, 0, "")
			items := toSlice(in)
			out := make([]any, 0, len(items))
			for _, it := range items {
				v, _ := property(it, key)
				out = append(out, v)
			}
			return out, nil
		},
		"where": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			key := argString(args, 0, "")
			var out []any
			for _, it := range toSlice(in) {
				v, _ := property(it, key)
				if len(args) < 2 && truthy(v) || len(args) >= 2 && equal(v, args[1]) {
					out = append(out, it)
				}
			}
			return out, nil
		},
		"compact": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			var out []any
			for _, it := range toSlice(in) {
				if it != nil {
					out = append(out, it)
				}
			}
			return out, nil
		},
		"uniq": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			var out []any
			for _, it := range toSlice(in) {
				dup := false
				for _, seen := range out {
					if equal(seen, it) {
						dup = true
						break
					}
				}
				if !dup {
					out = append(out, it)
				}
			}
			return out, nil
		},
		"concat": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			out := append([]any{}, toSlice(in)...)
			return append(out, toSlice(arg(args, 0))...), nil
		},
		"sort":         sortFilter(false),
		"sort_natural": sortFilter(true),
	}
}

func sortFilter(natural bool) FilterFunc {
	return func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
		items := append([]any{}, toSlice(in)...)
		key := argString(args, 0, "")
		keyOf := func(v any) any {
			if key == "" {
				return v
			}
			k, _ := property(v, key)
			return k
		}
		sort.SliceStable(items, func(i, j int) bool {
			a, b := keyOf(items[i]), keyOf(items[j])
			if natural {
				return strings.ToLower(toString(a)) < strings.ToLower(toString(b))
			}
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			order, ok := compare(a, b)
			if !ok {
				return toString(a) < toString(b)
			}
			return order < 0
		})
		return items, nil
	}
}
