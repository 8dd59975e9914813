package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/conneroisu/storefront/internal/assets"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/templates"
	"github.com/conneroisu/storefront/internal/tenant"
)

// Field names one value carried between stages.
type Field string

const (
	FieldRequest    Field = "request"
	FieldStore      Field = "store"
	FieldGeneration Field = "generation"
	FieldAssets     Field = "assets"
	FieldTemplate   Field = "template"
	FieldContext    Field = "context"
	FieldCompiled   Field = "compiled"
	FieldContent    Field = "content"
	FieldHTML       Field = "html"
	FieldCacheEntry Field = "cache_entry"
)

// ErrFieldSet is returned when a stage writes a field that already holds a
// value.
var ErrFieldSet = errors.New("field already set")

// Request is the input of one render.
type Request struct {
	ID       string
	Domain   string
	PageType string
	Params   rendering.Params
}

// CacheEntry describes how a rendered page was cached.
type CacheEntry struct {
	Key    string
	TTL    time.Duration
	Stored bool
}

// Data is the record threaded through the stages. It is immutable: With
// returns a new Data and every field can be written once.
type Data struct {
	fields map[Field]any
}

// NewData starts a record holding the request.
func NewData(req Request) Data {
	return Data{fields: map[Field]any{FieldRequest: req}}
}

// With returns a copy of d with f set to v.
func (d Data) With(f Field, v any) (Data, error) {
	if _, ok := d.fields[f]; ok {
		return d, fmt.Errorf("%s: %w", f, ErrFieldSet)
	}
	if v == nil {
		return d, fmt.Errorf("%s: nil value", f)
	}
	next := make(map[Field]any, len(d.fields)+1)
	for k, val := range d.fields {
		next[k] = val
	}
	next[f] = v
	return Data{fields: next}, nil
}

// Has reports whether f is set.
func (d Data) Has(f Field) bool {
	_, ok := d.fields[f]
	return ok
}

// Fields returns the set fields in name order.
func (d Data) Fields() []Field {
	out := make([]Field, 0, len(d.fields))
	for f := range d.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func get[T any](d Data, f Field) T {
	v, _ := d.fields[f].(T)
	return v
}

// Typed accessors return the zero value for unset fields.
func (d Data) Request() Request { return get[Request](d, FieldRequest) }
func (d Data) Store() *tenant.Store { return get[*tenant.Store](d, FieldStore) }
func (d Data) Generation() uint64 { return get[uint64](d, FieldGeneration) }
func (d Data) Assets() *assets.Collector { return get[*assets.Collector](d, FieldAssets) }
func (d Data) Template() *templates.Template { return get[*templates.Template](d, FieldTemplate) }
func (d Data) Context() rendering.Context { return get[rendering.Context](d, FieldContext) }
func (d Data) Compiled() *templates.Compiled { return get[*templates.Compiled](d, FieldCompiled) }
func (d Data) Content() string { return get[string](d, FieldContent) }
func (d Data) HTML() string { return get[string](d, FieldHTML) }
func (d Data) CacheEntry() CacheEntry { return get[CacheEntry](d, FieldCacheEntry) }
