// Package assets collects the CSS and JavaScript emitted while a page
// renders and injects it into the finished document.
package assets

import (
	"strings"
	"sync"

	"github.com/conneroisu/storefront/internal/liquid"
)

// Collector accumulates style and script fragments for one render.
// Identical fragments are kept once, in first-seen order.
type Collector struct {
	mu   sync.Mutex
	css  []string
	js   []string
	seen map[string]struct{}
}

var _ liquid.AssetSink = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// AddCSS records a stylesheet fragment.
func (c *Collector) AddCSS(fragment string) {
	c.add(&c.css, "css:", fragment)
}

// AddJS records a script fragment.
func (c *Collector) AddJS(fragment string) {
	c.add(&c.js, "js:", fragment)
}

func (c *Collector) add(into *[]string, kind, fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[kind+fragment]; ok {
		return
	}
	c.seen[kind+fragment] = struct{}{}
	*into = append(*into, fragment)
}

// CombinedCSS returns every CSS fragment joined by newlines.
func (c *Collector) CombinedCSS() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.css, "\n")
}

// CombinedJS returns every JS fragment joined by newlines.
func (c *Collector) CombinedJS() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.js, "\n")
}

// Len returns the number of distinct fragments held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.css) + len(c.js)
}

// Clear drops every fragment.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.css = nil
	c.js = nil
	c.seen = make(map[string]struct{})
}
