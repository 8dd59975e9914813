package server

import (
	"crypto/subtle"
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/storefront/internal/cache"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/version"
)

const assetMaxAge = time.Hour

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(CartCookie); err == nil {
		token = c.Value
	}
	pageType, params := rendering.ParamsFromURL(r.URL, token)

	resp := s.pages.RenderResponse(r.Context(), r.Host, pageType, params)

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", cacheControl(resp.StatusCode, resp.CacheTTL))
	if resp.Cached {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(resp.HTML)); err != nil {
		s.logger.Debug(r.Context(), "write page failed", "error", err.Error())
	}
}

// cacheControl lets shared caches keep successful pages as long as the
// page cache does.
func cacheControl(status int, ttl time.Duration) string {
	if status != http.StatusOK || ttl <= 0 {
		return "no-store"
	}
	return "public, max-age=" + strconv.Itoa(int(ttl.Seconds()))
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	file := r.PathValue("file")

	data, err := s.assets.LoadAsset(r.Context(), storeID, file)
	if err != nil {
		status := rerrors.StatusCode(err)
		if status != http.StatusNotFound {
			s.logger.Error(r.Context(), err, "load asset failed",
				"store_id", logging.SanitizeForLog(storeID),
				"file", logging.SanitizeForLog(file))
		}
		http.Error(w, rerrors.PublicMessage(status), status)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(file))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(assetMaxAge.Seconds())))
	_, _ = w.Write(data)
}

type invalidateResponse struct {
	StoreID     string `json:"store_id"`
	Invalidated int    `json:"invalidated"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("id")
	if strings.TrimSpace(storeID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing store id"})
		return
	}
	n := s.cache.InvalidateStore(storeID)
	s.logger.Info(r.Context(), "store cache invalidated",
		"store_id", logging.SanitizeForLog(storeID), "entries", n)
	writeJSON(w, http.StatusOK, invalidateResponse{StoreID: storeID, Invalidated: n})
}

type invalidateDomainResponse struct {
	Domain      string `json:"domain"`
	Invalidated bool   `json:"invalidated"`
}

func (s *Server) handleInvalidateDomain(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.PathValue("host"))
	if host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing domain"})
		return
	}
	dropped := s.domains.Invalidate(host)
	s.logger.Info(r.Context(), "domain resolution invalidated",
		"domain", logging.SanitizeForLog(host), "dropped", dropped)
	writeJSON(w, http.StatusOK, invalidateDomainResponse{Domain: host, Invalidated: dropped})
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Cache   *cache.Stats `json:"cache,omitempty"`
}

// statser is implemented by invalidators that report cache statistics.
type statser interface {
	Stats() cache.Stats
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: version.GetShortVersion(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if st, ok := s.cache.(statser); ok {
		stats := st.Stats()
		resp.Cache = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAdmin checks the bearer token when one is configured.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminToken)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
