package templates

import "strings"

// Page types a storefront can render.
const (
	PageIndex         = "index"
	PageProduct       = "product"
	PageCollection    = "collection"
	PagePage          = "page"
	PageBlog          = "blog"
	PageArticle       = "article"
	PagePolicies      = "policies"
	PageSearch        = "search"
	PageCart          = "cart"
	PageNotFound      = "404"
	PageCheckoutStart = "checkout_start"
	PageCheckout      = "checkout"
)

var pagePaths = map[string]string{
	PageIndex:         "templates/index.json",
	"home":            "templates/index.json",
	PageProduct:       "templates/product.json",
	PageCollection:    "templates/collection.json",
	PagePage:          "templates/page.json",
	PageBlog:          "templates/blog.json",
	PageArticle:       "templates/article.json",
	PagePolicies:      "templates/policies.json",
	PageSearch:        "templates/search.json",
	PageCart:          "templates/cart.json",
	PageNotFound:      "templates/404.json",
	PageCheckoutStart: "templates/checkout_start.json",
	PageCheckout:      "templates/checkout.json",
}

// NormalizePageType maps aliases onto their canonical page type.
func NormalizePageType(pageType string) string {
	pageType = strings.ToLower(strings.TrimSpace(pageType))
	switch pageType {
	case "home", "":
		return PageIndex
	}
	return pageType
}

// GetTemplatePath returns the descriptor path for a page type. Unknown
// page types fall back to templates/{pageType}.json; the result is never
// empty.
func GetTemplatePath(pageType string) string {
	key := strings.ToLower(strings.TrimSpace(pageType))
	if p, ok := pagePaths[key]; ok {
		return p
	}
	if key == "" {
		return pagePaths[PageIndex]
	}
	return "templates/" + key + ".json"
}

// SectionPath returns the source path of a section type.
func SectionPath(sectionType string) string {
	if strings.HasSuffix(sectionType, ".liquid") {
		return "sections/" + sectionType
	}
	return "sections/" + sectionType + ".liquid"
}

// SectionGroupPath returns the descriptor path of a section group.
func SectionGroupPath(group string) string {
	return "sections/" + group + ".json"
}

// SnippetPath returns the source path of a snippet.
func SnippetPath(name string) string {
	return "snippets/" + strings.TrimSuffix(name, ".liquid") + ".liquid"
}

// LayoutPath returns the source path of a layout.
func LayoutPath(layout string) string {
	return "layout/" + strings.TrimSuffix(layout, ".liquid") + ".liquid"
}
