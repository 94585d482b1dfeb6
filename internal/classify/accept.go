package classify

import (
	"net/http"
	"strconv"
	"strings"
)

// IsNavigation reports whether r is a page navigation rather than a
// subresource fetch. Fetch-metadata headers are authoritative when present;
// otherwise the Accept header decides by q-value, the way a browser address
// bar request prefers text/html over everything else.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return acceptsHTMLFirst(r.Header.Get("Accept"))
}

func acceptsHTMLFirst(header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	maxHTML := -1.0
	maxOther := -1.0

	parts := strings.Split(header, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		mediaType, q := parseAcceptPart(part)
		if mediaType == "" || q <= 0 {
			continue
		}

		switch mediaType {
		case "text/html", "application/xhtml+xml":
			if q > maxHTML {
				maxHTML = q
			}
		case "*/*":
			// wildcard alone does not signal a navigation
		default:
			if q > maxOther {
				maxOther = q
			}
		}
	}

	if maxHTML < 0 {
		return false
	}
	return maxHTML >= maxOther
}

func parseAcceptPart(part string) (string, float64) {
	mediaType := part
	q := 1.0

	if idx := strings.Index(part, ";"); idx != -1 {
		mediaType = strings.TrimSpace(part[:idx])
		params := strings.Split(part[idx+1:], ";")
		for _, p := range params {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(strings.ToLower(p), "q=") {
				val := strings.TrimSpace(p[2:])
				if v, err := strconv.ParseFloat(val, 64); err == nil {
					q = v
				}
			}
		}
	}

	return strings.ToLower(strings.TrimSpace(mediaType)), q
}
