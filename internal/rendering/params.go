package rendering

import (
	"net/url"
	"strconv"
	"strings"
)

// Params are the request inputs of a render beyond host and page type.
type Params struct {
	// Handle addresses the product, collection or page.
	Handle string
	// ID addresses the product or collection when no handle is given.
	ID string
	// Query is the search term.
	Query string
	// Page is the 1-based pagination page.
	Page int
	// CartToken identifies the visitor's cart.
	CartToken string
	// Path is the request path.
	Path string
}

// Entity returns the handle, or the id when no handle is set.
func (p Params) Entity() string {
	if p.Handle != "" {
		return p.Handle
	}
	return p.ID
}

// CurrentPage returns the pagination page, at least 1.
func (p Params) CurrentPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// Variant returns the page cache variant of these params for a page type.
// An empty variant with ok false means the page must not be cached, which
// happens for entity pages whose entity is unknown.
func (p Params) Variant(pageType string) (variant string, ok bool) {
	switch pageType {
	case "product", "page", "blog", "article":
		if p.Entity() == "" {
			return "", false
		}
		return p.Entity(), true
	case "collection":
		if p.Entity() == "" {
			return "", false
		}
		return p.Entity() + "|p" + strconv.Itoa(p.CurrentPage()), true
	case "search":
		return "q=" + strings.ToLower(strings.TrimSpace(p.Query)) + "|p" + strconv.Itoa(p.CurrentPage()), true
	case "index":
		return "", true
	case "policies":
		return p.Handle, true
	default:
		if p.Page > 1 {
			return "p" + strconv.Itoa(p.Page), true
		}
		return "", true
	}
}

// ParamsFromURL derives a page type and params from a storefront URL:
// /, /products/{handle}, /collections/{handle}, /pages/{handle},
// /blogs/{handle}, /blogs/{blog}/{article}, /policies/{handle}, /search,
// /cart, /checkout. Anything else is the 404 page.
func ParamsFromURL(u *url.URL, cartToken string) (string, Params) {
	q := u.Query()
	p := Params{Path: u.Path, Query: q.Get("q"), CartToken: cartToken}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		p.Page = n
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "":
		return "index", p
	case len(parts) == 2 && parts[0] == "products":
		p.Handle = parts[1]
		return "product", p
	case len(parts) == 2 && parts[0] == "collections":
		p.Handle = parts[1]
		return "collection", p
	case len(parts) == 2 && parts[0] == "pages":
		p.Handle = parts[1]
		return "page", p
	case len(parts) == 2 && parts[0] == "blogs":
		p.Handle = parts[1]
		return "blog", p
	case len(parts) == 3 && parts[0] == "blogs":
		p.Handle = parts[2]
		return "article", p
	case len(parts) <= 2 && parts[0] == "policies":
		if len(parts) == 2 {
			p.Handle = parts[1]
		}
		return "policies", p
	case len(parts) == 1 && parts[0] == "search":
		return "search", p
	case len(parts) == 1 && parts[0] == "cart":
		return "cart", p
	case len(parts) == 1 && parts[0] == "checkout":
		return "checkout", p
	case len(parts) == 2 && parts[0] == "checkout" && parts[1] == "start":
		return "checkout_start", p
	}
	return "404", p
}
