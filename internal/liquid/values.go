package liquid

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Drop is implemented by values that resolve their own properties.
type Drop interface {
	Get(key string) (any, bool)
}

// emptyValue and blankValue are the special "empty" and "blank" literals.
type emptyValue struct{}
type blankValue struct{}

// property resolves key on v. Arrays and strings also answer size, first
// and last.
func property(v any, key string) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := t[key]
		if !ok && key == "size" {
			return len(t), true
		}
		return val, ok
	case map[string]string:
		val, ok := t[key]
		if !ok && key == "size" {
			return len(t), true
		}
		return val, ok
	case Drop:
		return t.Get(key)
	case string:
		if key == "size" {
			return len([]rune(t)), true
		}
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		switch key {
		case "size":
			return rv.Len(), true
		case "first":
			if rv.Len() == 0 {
				return nil, false
			}
			return rv.Index(0).Interface(), true
		case "last":
			if rv.Len() == 0 {
				return nil, false
			}
			return rv.Index(rv.Len() - 1).Interface(), true
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if mv.IsValid() {
				return mv.Interface(), true
			}
			if key == "size" {
				return rv.Len(), true
			}
		}
	}
	return nil, false
}

// index resolves v[idx]. Negative indexes count from the end.
func index(v any, idx any) (any, bool) {
	if key, ok := idx.(string); ok {
		return property(v, key)
	}
	n, ok := toInt(idx)
	if !ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if n < 0 {
		n += rv.Len()
	}
	if n < 0 || n >= rv.Len() {
		return nil, false
	}
	return rv.Index(n).Interface(), true
}

// truthy implements Liquid truthiness: only nil and false are falsy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	return true
}

// isEmpty reports whether v equals the "empty" literal.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// isBlank reports whether v equals the "blank" literal.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	}
	return isEmpty(v)
}

// toString renders a value for output.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case []any:
		var b strings.Builder
		for _, e := range t {
			b.WriteString(toString(e))
		}
		return b.String()
	case []string:
		return strings.Join(t, "")
	case map[string]any, emptyValue, blankValue:
		return ""
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Slice, reflect.Array:
		var b strings.Builder
		for i := 0; i < rv.Len(); i++ {
			b.WriteString(toString(rv.Index(i).Interface()))
		}
		return b.String()
	case reflect.Map, reflect.Struct:
		return ""
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toNumber converts numbers and numeric strings to float64.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toInt converts numbers and numeric strings to int, truncating.
func toInt(v any) (int, bool) {
	if i, ok := v.(int); ok {
		return i, true
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// isInteger reports whether v is an integral number type.
func isInteger(v any) bool {
	switch v.(type) {
	case int, int64, int32:
		return true
	}
	return false
}

// toSlice converts arrays, maps and ranges to a []any for iteration. Maps
// iterate as [key, value] pairs in key order.
func toSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []any{t}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, []any{k, t[k]})
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// equal implements the "==" operator.
func equal(a, b any) bool {
	switch b.(type) {
	case emptyValue:
		return isEmpty(a)
	case blankValue:
		return isBlank(a)
	}
	switch a.(type) {
	case emptyValue:
		return isEmpty(b)
	case blankValue:
		return isBlank(b)
	}

	if an, ok := numericValue(a); ok {
		if bn, ok := numericValue(b); ok {
			return an == bn
		}
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Comparable() && rb.Comparable() && ra.Type() == rb.Type() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// numericValue is toNumber restricted to numeric types.
func numericValue(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return toNumber(v)
}

// compare orders two values for "<" style operators. Strings compare
// lexically; numbers numerically.
func compare(a, b any) (int, bool) {
	if an, ok := numericValue(a); ok {
		if bn, ok := numericValue(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			}
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// contains implements the "contains" operator.
func contains(haystack, needle any) bool {
	switch t := haystack.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(t, toString(needle))
	case map[string]any:
		_, ok := t[toString(needle)]
		return ok
	}
	for _, e := range toSlice(haystack) {
		if equal(e, needle) {
			return true
		}
	}
	return false
}
