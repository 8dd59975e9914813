package liquid

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func storefrontFilters() map[string]FilterFunc {
	return map[string]FilterFunc{
		"asset_url": func(c *Context, in any, _ []any, _ map[string]any) (any, error) {
			return AssetURL(storeID(c), toString(in)), nil
		},
		"stylesheet_tag": simple(func(href string) string {
			return `<link rel="stylesheet" href="` + html.EscapeString(href) + `" media="all">`
		}),
		"script_tag": simple(func(src string) string {
			return `<script src="` + html.EscapeString(src) + `" defer></script>`
		}),
		"img_url":   imageURLFilter(false),
		"image_url": imageURLFilter(true),
		"img_tag": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			src := toString(in)
			if src == "" {
				return "", nil
			}
			return `<img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(argString(args, 0, "")) + `">`, nil
		},
		"link_to": func(_ *Context, in any, args []any, kwargs map[string]any) (any, error) {
			return linkTo(toString(in), argString(args, 0, "#"), kwargs), nil
		},
		"url": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			path := toString(in)
			domain := argString(args, 0, "")
			if domain == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
				return path, nil
			}
			return "https://" + strings.TrimSuffix(domain, "/") + "/" + strings.TrimPrefix(path, "/"), nil
		},
		"product_url": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			return entityURL("/products/", in), nil
		},
		"collection_url": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			return entityURL("/collections/", in), nil
		},
		"variant_url": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			base := entityURL("/products/", arg(args, 0))
			id := toString(in)
			if v, ok := property(in, "id"); ok {
				id = toString(v)
			}
			if id == "" {
				return base, nil
			}
			return base + "?variant=" + url.QueryEscape(id), nil
		},
		"within": func(_ *Context, in any, args []any, _ map[string]any) (any, error) {
			u := toString(in)
			handle := toString(arg(args, 0))
			if h, ok := property(arg(args, 0), "handle"); ok {
				handle = toString(h)
			}
			if handle == "" {
				return u, nil
			}
			sep := "?"
			if strings.Contains(u, "?") {
				sep = "&"
			}
			return u + sep + "collection=" + url.QueryEscape(handle), nil
		},
		"default_pagination": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			return defaultPagination(in), nil
		},
	}
}

func storeID(c *Context) string {
	for _, root := range []string{"shop", "store"} {
		for _, key := range []string{"store_id", "id"} {
			if v := c.GetPath(root, key); v != nil && toString(v) != "" {
				return toString(v)
			}
		}
	}
	return ""
}

// AssetURL returns the public URL of a theme asset. Without a store the
// shared /assets path is used.
func AssetURL(storeID, file string) string {
	file = strings.TrimPrefix(strings.TrimPrefix(file, "/"), "assets/")
	if storeID == "" {
		return "/assets/" + file
	}
	return "/api/stores/" + url.PathEscape(storeID) + "/assets/" + file
}

func entityURL(prefix string, v any) string {
	if h, ok := property(v, "handle"); ok && toString(h) != "" {
		return prefix + toString(h)
	}
	if u, ok := property(v, "url"); ok && toString(u) != "" {
		return toString(u)
	}
	if s, ok := v.(string); ok && s != "" {
		return prefix + s
	}
	return "#"
}

// imageURLFilter sizes an image with width/height query parameters. The
// size comes from a "600x400" argument or width/height keywords. Relative
// paths are served from /images when prefix is set.
func imageURLFilter(prefix bool) FilterFunc {
	return func(_ *Context, in any, args []any, kwargs map[string]any) (any, error) {
		src := toString(in)
		if s, ok := property(in, "src"); ok {
			src = toString(s)
		}
		if src == "" {
			return "", nil
		}
		if prefix && !strings.Contains(src, "://") && !strings.HasPrefix(src, "/") {
			src = "/images/" + src
		}

		var width, height string
		if size := argString(args, 0, ""); size != "" && size != "master" && size != "original" {
			w, h, _ := strings.Cut(size, "x")
			width, height = w, h
		}
		if w, ok := toInt(kwargs["width"]); ok {
			width = strconv.Itoa(w)
		}
		if h, ok := toInt(kwargs["height"]); ok {
			height = strconv.Itoa(h)
		}
		if width == "" && height == "" {
			return src, nil
		}

		u, err := url.Parse(src)
		if err != nil {
			return src, nil
		}
		q := u.Query()
		if width != "" {
			q.Set("width", width)
		}
		if height != "" {
			q.Set("height", height)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
}

func linkTo(text, href string, attrs map[string]any) string {
	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(html.EscapeString(href))
	b.WriteByte('"')
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(toString(attrs[k])))
	}
	b.WriteByte('>')
	b.WriteString(text)
	b.WriteString("</a>")
	return b.String()
}

// defaultPagination renders the links of a paginate object.
func defaultPagination(p any) string {
	var b strings.Builder
	if prev, ok := property(p, "previous"); ok && prev != nil {
		u, _ := property(prev, "url")
		fmt.Fprintf(&b, `<span class="prev"><a href="%s">&laquo; Previous</a></span>`, html.EscapeString(toString(u)))
	}
	parts, _ := property(p, "parts")
	for _, part := range toSlice(parts) {
		title, _ := property(part, "title")
		if link, _ := property(part, "is_link"); truthy(link) {
			u, _ := property(part, "url")
			fmt.Fprintf(&b, `<span class="page"><a href="%s">%s</a></span>`, html.EscapeString(toString(u)), toString(title))
			continue
		}
		fmt.Fprintf(&b, `<span class="page current">%s</span>`, toString(title))
	}
	if next, ok := property(p, "next"); ok && next != nil {
		u, _ := property(next, "url")
		fmt.Fprintf(&b, `<span class="next"><a href="%s">Next &raquo;</a></span>`, html.EscapeString(toString(u)))
	}
	return b.String()
}
