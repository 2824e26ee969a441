package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPAFileServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	handler := SPAFileServer(dir)

	t.Run("existing asset", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/app.js", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "console.log(1)", w.Body.String())
		assert.Contains(t, w.Header().Get("Cache-Control"), "max-age")
	})

	t.Run("client route falls back to index", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/orders/5", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<html>app</html>", w.Body.String())
	})

	t.Run("unknown api path stays a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/nope", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
