package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/storefront/internal/assets"
	"github.com/conneroisu/storefront/internal/liquid"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/templates"
)

// Page is what the renderer evaluates for one request.
type Page struct {
	StoreID  string
	Template *templates.Compiled
	Context  rendering.Context
	Assets   *assets.Collector
}

// Renderer turns a compiled page into HTML.
type Renderer interface {
	RenderPage(ctx context.Context, page Page) (string, error)
}

// PageRenderer renders pages with the Liquid engine: each section of the
// page descriptor in order, then the layout around them.
type PageRenderer struct {
	engine *liquid.Engine
}

var _ Renderer = (*PageRenderer)(nil)

// NewPageRenderer creates a renderer evaluating with engine.
func NewPageRenderer(engine *liquid.Engine) *PageRenderer {
	return &PageRenderer{engine: engine}
}

// RenderPage implements Renderer.
func (r *PageRenderer) RenderPage(ctx context.Context, page Page) (string, error) {
	c := page.Template
	t := c.Template
	opts := liquid.RenderOptions{Assets: page.Assets, Partials: c}

	content, err := r.renderSections(ctx, t.Sections, c.Sections, page.Context, opts)
	if err != nil {
		return "", err
	}
	if c.Layout == nil {
		return content, nil
	}

	opts.Sections = make(map[string]string, len(t.LayoutSections))
	for name, s := range t.LayoutSections {
		tpl, ok := c.LayoutSections[name]
		if s.Missing || !ok {
			continue
		}
		out, err := r.renderSection(ctx, s, tpl, page.Context, opts)
		if err != nil {
			return "", err
		}
		opts.Sections[name] = out
	}

	opts.SectionGroups = make(map[string]string, len(t.Groups))
	for name, g := range t.Groups {
		out, err := r.renderSections(ctx, g.Sections, c.Groups[name], page.Context, opts)
		if err != nil {
			return "", err
		}
		opts.SectionGroups[name] = out
	}

	vars := overlay(page.Context, map[string]any{
		"content_for_layout": content,
		"content_for_header": headerContent(page.Context),
	})
	return r.engine.Render(ctx, c.Layout, vars, opts)
}

// renderSections renders sections in order, joined by newlines. Missing
// sections leave a comment.
func (r *PageRenderer) renderSections(ctx context.Context, sections []templates.Section, trees map[string]*liquid.Template, vars rendering.Context, opts liquid.RenderOptions) (string, error) {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		tpl, ok := trees[s.ID]
		if s.Missing || !ok {
			parts = append(parts, fmt.Sprintf("<!-- Section '%s' not found -->", s.Config.Type))
			continue
		}
		out, err := r.renderSection(ctx, s, tpl, vars, opts)
		if err != nil {
			return "", err
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n"), nil
}

func (r *PageRenderer) renderSection(ctx context.Context, s templates.Section, tpl *liquid.Template, vars rendering.Context, opts liquid.RenderOptions) (string, error) {
	out, err := r.engine.Render(ctx, tpl, overlay(vars, map[string]any{
		"section": map[string]any{
			"id":       s.ID,
			"type":     s.Config.Type,
			"settings": s.Settings(),
			"blocks":   s.Blocks(),
		},
	}), opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// overlay returns a new variable map with extra layered over base.
func overlay(base rendering.Context, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// headerContent is the content_for_header of the layout: the page
// description and canonical link.
func headerContent(vars rendering.Context) string {
	description, _ := vars["page_description"].(string)
	var base, path string
	if shop, ok := vars["shop"].(map[string]any); ok {
		base, _ = shop["url"].(string)
	}
	if req, ok := vars["request"].(map[string]any); ok {
		path, _ = req["path"].(string)
	}
	if path == "" {
		path = "/"
	}
	return `<meta name="description" content="` + html.EscapeString(description) + `">` + "\n" +
		`<link rel="canonical" href="` + html.EscapeString(base+path) + `">`
}
