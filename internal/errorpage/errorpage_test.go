package errorpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		status int
		title  string
	}{
		{http.StatusNotFound, "Page not found"},
		{http.StatusPaymentRequired, "Store unavailable"},
		{http.StatusInternalServerError, "Something went wrong"},
	}
	for _, tt := range tests {
		out, err := Render(context.Background(), tt.status, "Mi <Tienda>")
		require.NoError(t, err)
		assert.Contains(t, out, "<h1>"+tt.title+"</h1>")
		assert.Contains(t, out, `data-status="`+strconv.Itoa(tt.status)+`"`)
		assert.Contains(t, out, "Mi &lt;Tienda&gt;")
	}
}

func TestRenderHidesDetail(t *testing.T) {
	out, err := Render(context.Background(), http.StatusInternalServerError, "")
	require.NoError(t, err)
	assert.NotContains(t, out, `class="store"`)
	assert.NotContains(t, out, "Back to the home page")
	assert.Contains(t, out, "Something went wrong while loading this page.")
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Render(ctx, http.StatusNotFound, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(http.StatusPaymentRequired, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "This store is currently unavailable.")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}
