package worker

import (
	"net/http"
	"net/http/httputil"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/classify"
	"github.com/fieldsafe/kumo/internal/strategy"
)

const cacheStatusHeader = "X-Kumo-Cache"

// Handler is the fetch router: it classifies every intercepted request and
// dispatches it to a caching strategy. Requests carrying an apikey secret are
// proxied untouched and never enter the cache.
type Handler struct {
	worker *Worker
	exec   *strategy.Executor
	proxy  *httputil.ReverseProxy
	logger zerolog.Logger
}

func NewHandler(w *Worker, exec *strategy.Executor, proxy *httputil.ReverseProxy, logger zerolog.Logger) *Handler {
	return &Handler{
		worker: w,
		exec:   exec,
		proxy:  proxy,
		logger: logger.With().Str("component", "fetch").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.proxy.ServeHTTP(w, r)
		return
	}

	decision := classify.Classify(r, h.worker.Config().Rules)
	if decision.Strategy == classify.Bypass {
		h.proxy.ServeHTTP(w, r)
		return
	}

	generation, ok := h.worker.ActiveGeneration()
	if !ok {
		// Not activated yet; nothing is claimed, so nothing is intercepted.
		h.proxy.ServeHTTP(w, r)
		return
	}

	key := r.URL.RequestURI()
	ctx := r.Context()

	var (
		result strategy.Result
		err    error
	)
	switch decision.Strategy {
	case classify.CacheFirstVersioned:
		result, err = h.exec.CacheFirstVersioned(ctx, generation, key)
	case classify.NetworkFirst:
		result, err = h.exec.NetworkFirst(ctx, generation, key)
	case classify.StaleWhileRevalidate:
		result, err = h.exec.StaleWhileRevalidate(ctx, generation, key)
	default:
		result, err = h.exec.NetworkFallback(ctx, generation, key)
	}
	if err != nil {
		h.logger.Debug().Err(err).Str("key", key).Str("strategy", decision.Strategy.String()).Msg("fetch failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result strategy.Result) {
	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	if result.Encoding != "" {
		w.Header().Set("Content-Encoding", result.Encoding)
	}
	w.Header().Set(cacheStatusHeader, result.CacheStatus)
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}
