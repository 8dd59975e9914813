package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/storefront/internal/cache"
	"github.com/conneroisu/storefront/internal/catalog"
	"github.com/conneroisu/storefront/internal/domain"
	"github.com/conneroisu/storefront/internal/liquid"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/pipeline"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/storage"
	"github.com/conneroisu/storefront/internal/templates"
	"github.com/conneroisu/storefront/internal/tenant"
)

func newStack(t *testing.T, cfg Config, opts ...Option) (*Server, *cache.Manager) {
	t.Helper()
	seed, err := tenant.LoadSeedFile("../tenant/testdata/stores.yml")
	require.NoError(t, err)
	dir := tenant.NewMemoryDirectory()
	cat := catalog.NewMemory()
	seed.Apply(dir, cat)

	cm := cache.NewManager(64 << 20)
	engine := liquid.NewEngine()
	loader := templates.NewLoader(storage.NewDirStore("../../testdata/theme"), cm, engine)
	orch, err := pipeline.New(
		domain.NewResolver(dir, cm, domain.WithReservedDomains("storefront.local")),
		loader,
		rendering.NewBuilder(cat, rendering.WithSettings(loader)),
		pipeline.NewPageRenderer(engine),
		cm,
	)
	require.NoError(t, err)
	return New(cfg, orch, cm, loader, opts...), cm
}

func get(t *testing.T, h http.Handler, host, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStorefrontPage(t *testing.T) {
	s, _ := newStack(t, Config{})

	rec := get(t, s.Handler(), "mitienda.com", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=900", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "<h1>Mi Tienda</h1>")

	rec = get(t, s.Handler(), "www.mitienda.com", "/")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestStorefrontRouting(t *testing.T) {
	s, _ := newStack(t, Config{})

	tests := []struct {
		target string
		status int
		want   string
	}{
		{"/products/camiseta-basica", http.StatusOK, "Camiseta Básica"},
		{"/pages/nosotros", http.StatusOK, "Somos una tienda local."},
		{"/collections/camisetas", http.StatusOK, "Camiseta"},
		{"/products/no-existe", http.StatusNotFound, "Página no encontrada"},
		{"/some/unknown/path", http.StatusNotFound, "Página no encontrada"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, s.Handler(), "mitienda.com", tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			if tt.status != http.StatusOK {
				assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestStorefrontCartCookie(t *testing.T) {
	s, _ := newStack(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Host = "mitienda.com"
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"), "carts are never cached")
	assert.Contains(t, rec.Body.String(), "Camiseta Básica")
}

func TestCartCookieKeepsPagesPrivate(t *testing.T) {
	s, _ := newStack(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "mitienda.com"
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Carrito (2)")

	rec = get(t, s.Handler(), "mitienda.com", "/")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.NotContains(t, rec.Body.String(), "Carrito (2)")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "public")
}

func TestUnknownAndInactiveStores(t *testing.T) {
	s, _ := newStack(t, Config{})

	rec := get(t, s.Handler(), "nobody.example", "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")

	rec = get(t, s.Handler(), "other.storefront.local", "/")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Store unavailable")
}

func TestHeadRequestHasNoBody(t *testing.T) {
	s, _ := newStack(t, Config{})
	req := httptest.NewRequest(http.MethodHead, "/", nil)
	req.Host = "mitienda.com"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestAssetRoute(t *testing.T) {
	s, _ := newStack(t, Config{})

	rec := get(t, s.Handler(), "mitienda.com", "/api/stores/123/assets/theme.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/css"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Body.String())

	rec = get(t, s.Handler(), "mitienda.com", "/api/stores/123/assets/missing.css")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidate(t *testing.T) {
	s, cm := newStack(t, Config{})
	get(t, s.Handler(), "mitienda.com", "/")
	require.Positive(t, cm.Stats().Entries)

	req := httptest.NewRequest(http.MethodDelete, "/api/stores/123/cache", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body invalidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "123", body.StoreID)
	assert.Positive(t, body.Invalidated)

	rec = get(t, s.Handler(), "mitienda.com", "/")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestInvalidateRequiresToken(t *testing.T) {
	s, _ := newStack(t, Config{AdminToken: "s3cret"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/stores/123/cache", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

type recordingDomains struct {
	mu    sync.Mutex
	hosts []string
}

func (d *recordingDomains) Invalidate(host string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts = append(d.hosts, host)
	return true
}

func TestInvalidateDomain(t *testing.T) {
	domains := &recordingDomains{}
	s, _ := newStack(t, Config{AdminToken: "tok"}, WithDomains(domains))

	req := httptest.NewRequest(http.MethodDelete, "/api/domains/MiTienda.com/cache", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, domains.hosts)

	req = httptest.NewRequest(http.MethodDelete, "/api/domains/MiTienda.com/cache", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body invalidateDomainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MiTienda.com", body.Domain)
	assert.True(t, body.Invalidated)
	assert.Equal(t, []string{"MiTienda.com"}, domains.hosts)
}

func TestInvalidateDomainNeedsResolver(t *testing.T) {
	s, _ := newStack(t, Config{})
	req := httptest.NewRequest(http.MethodDelete, "/api/domains/mitienda.com/cache", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newStack(t, Config{})
	rec := get(t, s.Handler(), "anything", "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, body.Version)
	require.NotNil(t, body.Cache)
	assert.Equal(t, int64(64<<20), body.Cache.MaxSize)
}

func TestDevSyncMountedOnlyWhenConfigured(t *testing.T) {
	s, _ := newStack(t, Config{})
	rec := get(t, s.Handler(), "mitienda.com", "/dev/sync")
	assert.Equal(t, http.StatusNotFound, rec.Code, "falls through to the storefront")

	called := false
	s, _ = newStack(t, Config{}, WithDevSync(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})))
	rec = get(t, s.Handler(), "mitienda.com", "/dev/sync")
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = pipeline.RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

func TestRecover(t *testing.T) {
	h := Recover(logging.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newStack(t, Config{})
	rec := get(t, s.Handler(), "anything", "/health")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestCacheControl(t *testing.T) {
	assert.Equal(t, "public, max-age=60", cacheControl(http.StatusOK, time.Minute))
	assert.Equal(t, "no-store", cacheControl(http.StatusOK, 0))
	assert.Equal(t, "no-store", cacheControl(http.StatusNotFound, time.Minute))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s, _ := newStack(t, Config{Host: "127.0.0.1", Port: 0})
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = s.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.NoError(t, err)
}
