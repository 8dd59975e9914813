// Package catalog defines the storefront data a page can show (products,
// collections, content pages, carts and navigation menus) and the provider
// contracts the rendering context builder reads them through.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by providers when an entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Variant is a purchasable option of a product.
type Variant struct {
	ID        string  `yaml:"id" json:"id"`
	Title     string  `yaml:"title" json:"title"`
	Price     float64 `yaml:"price" json:"price"`
	Available bool    `yaml:"available" json:"available"`
	SKU       string  `yaml:"sku" json:"sku"`
}

// Product is a catalog product.
type Product struct {
	ID             string    `yaml:"id" json:"id"`
	Handle         string    `yaml:"handle" json:"handle"`
	Title          string    `yaml:"title" json:"title"`
	Description    string    `yaml:"description" json:"description"`
	Vendor         string    `yaml:"vendor" json:"vendor"`
	Price          float64   `yaml:"price" json:"price"`
	CompareAtPrice float64   `yaml:"compare_at_price" json:"compare_at_price"`
	Images         []string  `yaml:"images" json:"images"`
	Tags           []string  `yaml:"tags" json:"tags"`
	Available      bool      `yaml:"available" json:"available"`
	Featured       bool      `yaml:"featured" json:"featured"`
	CollectionIDs  []string  `yaml:"collection_ids" json:"collection_ids"`
	Variants       []Variant `yaml:"variants" json:"variants"`
}

// Collection groups products.
type Collection struct {
	ID          string `yaml:"id" json:"id"`
	Handle      string `yaml:"handle" json:"handle"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Image       string `yaml:"image" json:"image"`
}

// Page is a content page. Blogs and articles are pages with a Kind.
type Page struct {
	ID     string `yaml:"id" json:"id"`
	Handle string `yaml:"handle" json:"handle"`
	Title  string `yaml:"title" json:"title"`
	Body   string `yaml:"body" json:"body"`
	Kind   string `yaml:"kind" json:"kind"`
}

// Link is one navigation menu entry.
type Link struct {
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
}

// Menu is a navigation menu addressed by handle (main-menu, footer...).
type Menu struct {
	Handle string `yaml:"handle" json:"handle"`
	Title  string `yaml:"title" json:"title"`
	Links  []Link `yaml:"links" json:"links"`
}

// CartItem is one line of a cart.
type CartItem struct {
	ProductID string  `yaml:"product_id" json:"product_id"`
	VariantID string  `yaml:"variant_id" json:"variant_id"`
	Title     string  `yaml:"title" json:"title"`
	Handle    string  `yaml:"handle" json:"handle"`
	Image     string  `yaml:"image" json:"image"`
	Quantity  int     `yaml:"quantity" json:"quantity"`
	Price     float64 `yaml:"price" json:"price"`
}

// Cart is a shopping cart addressed by token.
type Cart struct {
	Token string     `yaml:"token" json:"token"`
	Items []CartItem `yaml:"items" json:"items"`
}

// ItemCount returns the total quantity across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// TotalPrice returns the sum of line prices.
func (c *Cart) TotalPrice() float64 {
	total := 0.0
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Products reads products.
type Products interface {
	ProductByID(ctx context.Context, storeID, id string) (*Product, error)
	ProductByHandle(ctx context.Context, storeID, handle string) (*Product, error)
	FeaturedProducts(ctx context.Context, storeID string, limit int) ([]Product, error)
	SearchProducts(ctx context.Context, storeID, query string, limit int) ([]Product, error)
}

// Collections reads collections and their members.
type Collections interface {
	CollectionByID(ctx context.Context, storeID, id string) (*Collection, error)
	CollectionByHandle(ctx context.Context, storeID, handle string) (*Collection, error)
	Collections(ctx context.Context, storeID string) ([]Collection, error)
	CollectionProducts(ctx context.Context, storeID, collectionID string, offset, limit int) ([]Product, int, error)
}

// Pages reads content pages.
type Pages interface {
	PageByHandle(ctx context.Context, storeID, handle string) (*Page, error)
}

// Carts reads carts by token.
type Carts interface {
	Cart(ctx context.Context, storeID, token string) (*Cart, error)
}

// Navigation reads menus.
type Navigation interface {
	Menus(ctx context.Context, storeID string) ([]Menu, error)
}

// Provider is the full catalog.
type Provider interface {
	Products
	Collections
	Pages
	Carts
	Navigation
}
