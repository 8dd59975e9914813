package assets

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorDedupesInOrder(t *testing.T) {
	c := NewCollector()
	c.AddCSS(".a{}")
	c.AddCSS("  .b{}\n")
	c.AddCSS(".a{}")
	c.AddCSS("   ")
	c.AddJS("one()")
	c.AddJS(".a{}")
	c.AddJS("one()")

	assert.Equal(t, ".a{}\n.b{}", c.CombinedCSS())
	assert.Equal(t, "one()\n.a{}", c.CombinedJS())
	assert.Equal(t, 4, c.Len())

	c.Clear()
	assert.Empty(t, c.CombinedCSS())
	assert.Empty(t, c.CombinedJS())
	c.AddCSS(".a{}")
	assert.Equal(t, ".a{}", c.CombinedCSS(), "cleared fragments can be added again")
}

func TestCollectorIsSafeForConcurrentUse(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddCSS(".x{}")
			if i%2 == 0 {
				c.AddJS("go()")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, c.Len())
}

func TestInject(t *testing.T) {
	both := func() *Collector {
		c := NewCollector()
		c.AddCSS("p{}")
		c.AddJS("run()")
		return c
	}

	tests := []struct {
		name string
		doc  string
		c    *Collector
		want string
	}{
		{
			"full document",
			"<html><head><title>x</title></head><body><p>hi</p></body></html>",
			both(),
			"<html><head><title>x</title><style>p{}</style></head><body><p>hi</p><script>run()</script></body></html>",
		},
		{
			"upper case tags",
			"<HTML><HEAD></HEAD><BODY></BODY></HTML>",
			both(),
			"<HTML><HEAD><style>p{}</style></HEAD><BODY><script>run()</script></BODY></HTML>",
		},
		{
			"fragment",
			"<div>x</div>",
			both(),
			"<style>p{}</style><div>x</div><script>run()</script>",
		},
		{
			"tags inside scripts and comments are ignored",
			"<head><script>var s = '</head>';</script></head><body><!-- </body> --></body>",
			both(),
			"<head><script>var s = '</head>';</script><style>p{}</style></head><body><!-- </body> --><script>run()</script></body>",
		},
		{
			"empty collector",
			"<head></head><body></body>",
			NewCollector(),
			"<head></head><body></body>",
		},
		{
			"nil collector",
			"<p>x</p>",
			nil,
			"<p>x</p>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Inject(tt.doc, tt.c))
		})
	}
}

func TestInjectOnlyCSS(t *testing.T) {
	c := NewCollector()
	c.AddCSS("a{}")
	assert.Equal(t, "<head><style>a{}</style></head><body></body>", Inject("<head></head><body></body>", c))
}

func TestInjectOnlyJS(t *testing.T) {
	c := NewCollector()
	c.AddJS("a()")
	assert.Equal(t, "<head></head><body><script>a()</script></body>", Inject("<head></head><body></body>", c))
}
