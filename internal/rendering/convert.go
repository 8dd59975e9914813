package rendering

import (
	"sort"

	"github.com/conneroisu/storefront/internal/catalog"
	"github.com/conneroisu/storefront/internal/tenant"
)

func shopMap(s *tenant.Store) map[string]any {
	domain := s.PrimaryDomain
	if len(s.CustomDomains) > 0 {
		domain = s.CustomDomains[0]
	}
	description := s.Description
	if description == "" {
		description = "Tienda online de " + s.Name
	}
	return map[string]any{
		"id":                      s.ID,
		"store_id":                s.ID,
		"name":                    s.Name,
		"description":             description,
		"email":                   s.Email,
		"domain":                  domain,
		"url":                     "https://" + domain,
		"currency":                s.Currency(),
		"locale":                  s.Locale(),
		"currency_locale":         s.Locale(),
		"money_format":            s.MoneyFormat(),
		"currency_format":         s.MoneyFormat(),
		"currency_decimal_places": s.DecimalPlaces(),
		"policies":                policyList(s.Policies),
	}
}

func policyList(policies map[string]string) []any {
	handles := make([]string, 0, len(policies))
	for h := range policies {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	out := make([]any, 0, len(handles))
	for _, h := range handles {
		out = append(out, map[string]any{
			"handle": h,
			"title":  policyTitle(h),
			"body":   policies[h],
			"url":    "/policies/" + h,
		})
	}
	return out
}

var policyTitles = map[string]string{
	"refund_policy":    "Política de reembolso",
	"privacy_policy":   "Política de privacidad",
	"terms_of_service": "Términos del servicio",
	"shipping_policy":  "Política de envío",
}

func policyTitle(handle string) string {
	if t, ok := policyTitles[handle]; ok {
		return t
	}
	return handle
}

func productMap(p *catalog.Product) map[string]any {
	images := make([]any, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, img)
	}
	var featured any
	if len(p.Images) > 0 {
		featured = p.Images[0]
	}
	tags := make([]any, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t)
	}
	variants := make([]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, map[string]any{
			"id":        v.ID,
			"title":     v.Title,
			"price":     v.Price,
			"available": v.Available,
			"sku":       v.SKU,
		})
	}
	return map[string]any{
		"id":               p.ID,
		"handle":           p.Handle,
		"title":            p.Title,
		"description":      p.Description,
		"vendor":           p.Vendor,
		"price":            p.Price,
		"compare_at_price": p.CompareAtPrice,
		"images":           images,
		"featured_image":   featured,
		"tags":             tags,
		"available":        p.Available,
		"variants":         variants,
		"url":              "/products/" + p.Handle,
	}
}

func productList(ps []catalog.Product) []any {
	out := make([]any, 0, len(ps))
	for i := range ps {
		out = append(out, productMap(&ps[i]))
	}
	return out
}

func collectionMap(c *catalog.Collection) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"handle":      c.Handle,
		"title":       c.Title,
		"description": c.Description,
		"image":       c.Image,
		"url":         "/collections/" + c.Handle,
	}
}

func collectionList(cs []catalog.Collection) []any {
	out := make([]any, 0, len(cs))
	for i := range cs {
		out = append(out, collectionMap(&cs[i]))
	}
	return out
}

func pageMap(p *catalog.Page) map[string]any {
	return map[string]any{
		"id":      p.ID,
		"handle":  p.Handle,
		"title":   p.Title,
		"content": p.Body,
		"body":    p.Body,
		"kind":    p.Kind,
		"url":     "/pages/" + p.Handle,
	}
}

func cartMap(c *catalog.Cart) map[string]any {
	items := make([]any, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, map[string]any{
			"product_id": it.ProductID,
			"variant_id": it.VariantID,
			"title":      it.Title,
			"handle":     it.Handle,
			"image":      it.Image,
			"quantity":   it.Quantity,
			"price":      it.Price,
			"line_price": it.Price * float64(it.Quantity),
			"url":        "/products/" + it.Handle,
		})
	}
	return map[string]any{
		"token":       c.Token,
		"item_count":  c.ItemCount(),
		"total_price": c.TotalPrice(),
		"items":       items,
	}
}

func emptyCart() map[string]any {
	return map[string]any{
		"token":       "",
		"item_count":  0,
		"total_price": 0,
		"items":       []any{},
	}
}

func linklists(menus []catalog.Menu) map[string]any {
	out := make(map[string]any, len(menus))
	for _, m := range menus {
		links := make([]any, 0, len(m.Links))
		for _, l := range m.Links {
			links = append(links, map[string]any{"title": l.Title, "url": l.URL})
		}
		out[m.Handle] = map[string]any{
			"title":  m.Title,
			"handle": m.Handle,
			"links":  links,
		}
	}
	return out
}
