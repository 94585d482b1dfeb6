package classify_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldsafe/kumo/internal/classify"
)

var testRules = classify.Rules{
	APIPrefixes:      []string{"/api/", "/rest/v1/"},
	BackendHosts:     []string{".backend.example.com"},
	StaticExtensions: []string{".js", ".css", ".png", ".ico", ".woff2"},
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		headers map[string]string
		want    classify.Strategy
	}{
		{
			name:   "apikey is never intercepted",
			target: "/rest/v1/inspections?apikey=secret",
			want:   classify.Bypass,
		},
		{
			name:   "apikey wins over versioned markers",
			target: "/bundle.js?v=3&t=123&apikey=secret",
			want:   classify.Bypass,
		},
		{
			name:   "versioned asset",
			target: "/assets/logo.png?v=3&t=1700000000",
			want:   classify.CacheFirstVersioned,
		},
		{
			name:   "versioned wins over static extension",
			target: "/app.css?v=1&t=2",
			want:   classify.CacheFirstVersioned,
		},
		{
			name:   "v without t is not versioned",
			target: "/app.css?v=1",
			want:   classify.StaleWhileRevalidate,
		},
		{
			name:   "api prefix",
			target: "/api/checklists",
			want:   classify.NetworkFirst,
		},
		{
			name:   "backend host",
			target: "https://db.backend.example.com/rest/things",
			want:   classify.NetworkFirst,
		},
		{
			name:   "static asset",
			target: "/fonts/inter.woff2",
			want:   classify.StaleWhileRevalidate,
		},
		{
			name:    "navigation",
			target:  "/inspections/42",
			headers: map[string]string{"Sec-Fetch-Mode": "navigate"},
			want:    classify.NetworkFirst,
		},
		{
			name:   "everything else falls through",
			target: "/some/opaque/endpoint",
			want:   classify.Default,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			decision := classify.Classify(req, testRules)

			assert.Equal(t, tc.want, decision.Strategy, "reason: %s", decision.Reason)
		})
	}
}

func TestIsVersionedKey(t *testing.T) {
	assert.True(t, classify.IsVersionedKey("/a.js?v=1&t=2"))
	assert.False(t, classify.IsVersionedKey("/a.js?v=1"))
	assert.False(t, classify.IsVersionedKey("/a.js?t=2"))
	assert.False(t, classify.IsVersionedKey("/a.js"))
}
