package classify_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldsafe/kumo/internal/classify"
)

func TestIsNavigation(t *testing.T) {
	cases := []struct {
		name   string
		accept string
		mode   string
		want   bool
	}{
		{
			name: "fetch metadata navigate",
			mode: "navigate",
			want: true,
		},
		{
			name:   "fetch metadata cors overrides accept",
			mode:   "cors",
			accept: "text/html",
			want:   false,
		},
		{
			name:   "browser address bar accept header",
			accept: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			want:   true,
		},
		{
			name:   "json fetch",
			accept: "application/json",
			want:   false,
		},
		{
			name:   "html outranked by json q-values",
			accept: "application/json;q=1.0,text/html;q=0.5",
			want:   false,
		},
		{
			name: "no accept header",
			want: false,
		},
		{
			name:   "wildcard only",
			accept: "*/*",
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/page", nil)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			if tc.mode != "" {
				req.Header.Set("Sec-Fetch-Mode", tc.mode)
			}

			assert.Equal(t, tc.want, classify.IsNavigation(req))
		})
	}
}
