package cache

import "strings"

// Kind separates the namespaces sharing one Manager.
type Kind string

const (
	KindPage     Kind = "page"
	KindTemplate Kind = "template"
	KindCompiled Kind = "compiled"
	KindDomain   Kind = "domain"
	KindData     Kind = "data"
)

// Key identifies a cache entry. StoreID scopes the entry for full-store
// invalidation; domain entries have no store.
type Key struct {
	StoreID string
	Kind    Kind
	Name    string
	Variant string
}

// String renders the key in its canonical form.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.StoreID) + len(k.Name) + len(k.Variant) + 16)
	b.WriteString(string(k.Kind))
	b.WriteByte('|')
	b.WriteString(k.StoreID)
	b.WriteByte('|')
	b.WriteString(k.Name)
	if k.Variant != "" {
		b.WriteByte('|')
		b.WriteString(k.Variant)
	}
	return b.String()
}

// PageKey keys a rendered page by store, page type and variant.
func PageKey(storeID, pageType, variant string) Key {
	return Key{StoreID: storeID, Kind: KindPage, Name: pageType, Variant: variant}
}

// TemplateKey keys a raw theme file.
func TemplateKey(storeID, path string) Key {
	return Key{StoreID: storeID, Kind: KindTemplate, Name: path}
}

// CompiledKey keys a compiled theme file by the hash of its source, so a
// changed source never hits a stale compilation.
func CompiledKey(storeID, path, sourceHash string) Key {
	return Key{StoreID: storeID, Kind: KindCompiled, Name: path, Variant: sourceHash}
}

// DomainKey keys a domain resolution.
func DomainKey(domain string) Key {
	return Key{Kind: KindDomain, Name: domain}
}
