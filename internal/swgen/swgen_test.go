package swgen_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/kumo/internal/classify"
	"github.com/fieldsafe/kumo/internal/swgen"
	"github.com/fieldsafe/kumo/internal/worker"
)

func testConfig() swgen.Config {
	return swgen.Config{
		Worker: worker.Config{
			Version:     "1.2.3",
			ShellAssets: []string{"/", "/index.html", "/favicon.ico"},
			Rules: classify.Rules{
				APIPrefixes:      []string{"/api/"},
				BackendHosts:     []string{".backend.example.com"},
				StaticExtensions: []string{".js", ".css"},
			},
		},
	}
}

func TestBuildWorkerSource(t *testing.T) {
	source, err := swgen.BuildWorkerSource(testConfig())
	require.NoError(t, err)

	t.Run("embeds the configuration as literals", func(t *testing.T) {
		assert.Contains(t, source, `const CACHE_NAME = 'app-cache-v1.2.3';`)
		assert.Contains(t, source, `["/","/index.html","/favicon.ico"]`)
		assert.Contains(t, source, `["/api/"]`)
		assert.Contains(t, source, `[".backend.example.com"]`)
	})

	t.Run("covers every lifecycle and protocol event", func(t *testing.T) {
		for _, event := range []string{"'install'", "'activate'", "'fetch'", "'message'", "'sync'"} {
			assert.Contains(t, source, "self.addEventListener("+event)
		}
		assert.Contains(t, source, "INVALIDATE_CACHE")
		assert.Contains(t, source, "CACHE_INVALIDATED")
		assert.Contains(t, source, "SYNC_NEEDED")
	})

	t.Run("keeps the apikey pass-through", func(t *testing.T) {
		assert.Contains(t, source, `url.searchParams.has('apikey')`)
	})

	t.Run("is deterministic", func(t *testing.T) {
		again, err := swgen.BuildWorkerSource(testConfig())
		require.NoError(t, err)
		assert.Equal(t, source, again)
	})
}

func TestBuildDevInstallerSource(t *testing.T) {
	installer, err := swgen.BuildDevInstallerSource(testConfig())
	require.NoError(t, err)

	assert.Contains(t, installer, "installServiceWorkerForDev")
	assert.Contains(t, installer, "URL.createObjectURL")
	assert.Contains(t, installer, "URL.revokeObjectURL")
	// The worker source rides along as an embedded string literal.
	assert.Contains(t, installer, `app-cache-v1.2.3`)
}

func TestDevHandler(t *testing.T) {
	handler, err := swgen.DevHandler(testConfig())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sw.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "app-cache-v1.2.3")
}
