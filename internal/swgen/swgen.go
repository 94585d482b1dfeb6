package swgen

import (
	"encoding/json"
	"net/http"
	"strings"
	"text/template"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/message"
	"github.com/fieldsafe/kumo/internal/worker"
)

// Config names the outbox database the generated worker's background-sync
// stub inspects. The rest of the worker behavior comes straight from the
// worker.Config strategy table, so the generated script and the Go router
// share one specification.
type Config struct {
	Worker      worker.Config
	OutboxDB    string
	OutboxStore string
	SyncTag     string
}

type templateData struct {
	CacheName        string
	CachePrefix      string
	ShellAssets      string
	APIPrefixes      string
	BackendHosts     string
	StaticExtensions string
	OutboxDB         string
	OutboxStore      string
	SyncTag          string
	TagInvalidate    string
	TagInvalidated   string
	TagSyncNeeded    string
}

// BuildWorkerSource renders the full service-worker script for cfg. The
// output is self-contained: cache name, shell asset list and strategy table
// are embedded as literals.
func BuildWorkerSource(cfg Config) (string, error) {
	data, err := buildData(cfg)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := workerTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// BuildDevInstallerSource renders the page-side snippet that installs the
// worker from a Blob URL during development, without a build step emitting a
// static file. The object URL is revoked once registration succeeds.
func BuildDevInstallerSource(cfg Config) (string, error) {
	source, err := BuildWorkerSource(cfg)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := installerTemplate.Execute(&sb, map[string]string{
		"WorkerSource": source,
	}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DevHandler serves the generated worker script over HTTP so a dev page can
// register it from the origin root. The script must be served from the root
// path for its scope to cover the whole origin.
func DevHandler(cfg Config) (http.Handler, error) {
	source, err := BuildWorkerSource(cfg)
	if err != nil {
		return nil, err
	}
	body := []byte(source)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Service-Worker-Allowed", "/")
		_, _ = w.Write(body)
	}), nil
}

func buildData(cfg Config) (templateData, error) {
	assets, err := jsArray(cfg.Worker.ShellAssets)
	if err != nil {
		return templateData{}, err
	}
	prefixes, err := jsArray(cfg.Worker.Rules.APIPrefixes)
	if err != nil {
		return templateData{}, err
	}
	hosts, err := jsArray(cfg.Worker.Rules.BackendHosts)
	if err != nil {
		return templateData{}, err
	}
	extensions, err := jsArray(cfg.Worker.Rules.StaticExtensions)
	if err != nil {
		return templateData{}, err
	}

	outboxDB := cfg.OutboxDB
	if outboxDB == "" {
		outboxDB = "kumo-outbox"
	}
	outboxStore := cfg.OutboxStore
	if outboxStore == "" {
		outboxStore = "mutations"
	}
	syncTag := cfg.SyncTag
	if syncTag == "" {
		syncTag = "kumo-pending-sync"
	}

	return templateData{
		CacheName:        cache.GenerationName(cfg.Worker.Version),
		CachePrefix:      cache.GenerationPrefix,
		ShellAssets:      assets,
		APIPrefixes:      prefixes,
		BackendHosts:     hosts,
		StaticExtensions: extensions,
		OutboxDB:         outboxDB,
		OutboxStore:      outboxStore,
		SyncTag:          syncTag,
		TagInvalidate:    message.TagInvalidateCache,
		TagInvalidated:   message.TagCacheInvalidated,
		TagSyncNeeded:    message.TagSyncNeeded,
	}, nil
}

func jsArray(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var workerTemplate = template.Must(template.New("worker").Parse(`'use strict';

const CACHE_NAME = '{{.CacheName}}';
const CACHE_PREFIX = '{{.CachePrefix}}';
const SHELL_ASSETS = {{.ShellAssets}};
const API_PREFIXES = {{.APIPrefixes}};
const BACKEND_HOSTS = {{.BackendHosts}};
const STATIC_EXTENSIONS = {{.StaticExtensions}};
const OUTBOX_DB = '{{.OutboxDB}}';
const OUTBOX_STORE = '{{.OutboxStore}}';
const SYNC_TAG = '{{.SyncTag}}';

self.addEventListener('install', (event) => {
  event.waitUntil(
    caches.open(CACHE_NAME)
      .then((cache) => cache.addAll(SHELL_ASSETS))
      .then(() => self.skipWaiting())
  );
});

self.addEventListener('activate', (event) => {
  event.waitUntil(
    caches.keys()
      .then((names) => Promise.all(
        names.filter((name) => name !== CACHE_NAME && name.startsWith(CACHE_PREFIX)).map((name) => caches.delete(name))
      ))
      .then(() => self.clients.claim())
  );
});

function isVersioned(url) {
  return url.searchParams.has('v') && url.searchParams.has('t');
}

function isApiRequest(url) {
  if (API_PREFIXES.some((prefix) => url.pathname.startsWith(prefix))) {
    return true;
  }
  return BACKEND_HOSTS.some((host) => host.startsWith('.')
    ? url.hostname.endsWith(host) || url.hostname === host.slice(1)
    : url.hostname === host);
}

function isStaticAsset(url) {
  return STATIC_EXTENSIONS.some((ext) => url.pathname.endsWith(ext));
}

self.addEventListener('fetch', (event) => {
  const url = new URL(event.request.url);
  if (url.searchParams.has('apikey')) {
    return;
  }
  if (isVersioned(url)) {
    event.respondWith(cacheFirstVersioned(event.request));
    return;
  }
  if (isApiRequest(url)) {
    event.respondWith(networkFirst(event.request));
    return;
  }
  if (isStaticAsset(url)) {
    event.respondWith(staleWhileRevalidate(event.request));
    return;
  }
  if (event.request.mode === 'navigate') {
    event.respondWith(networkFirst(event.request));
    return;
  }
  event.respondWith(fetch(event.request).catch(() => caches.match(event.request)));
});

function staleWhileRevalidate(request) {
  return caches.open(CACHE_NAME).then((cache) =>
    cache.match(request).then((cached) => {
      const refresh = fetch(request).then((response) => {
        if (response.ok) {
          cache.put(request, response.clone());
        }
        return response;
      });
      if (cached) {
        refresh.catch(() => {});
        return cached;
      }
      return refresh;
    })
  );
}

function networkFirst(request) {
  return fetch(request).catch(() => caches.match(request).then((cached) => {
    if (cached) {
      return cached;
    }
    throw new TypeError('network unavailable and no cached fallback');
  }));
}

function cacheFirstVersioned(request) {
  return caches.open(CACHE_NAME).then((cache) =>
    cache.match(request).then((cached) => {
      if (cached) {
        return cached;
      }
      return fetch(request).then((response) => {
        if (response.ok) {
          cache.put(request, response.clone());
        }
        return response;
      });
    })
  );
}

self.addEventListener('message', (event) => {
  const data = event.data || {};
  if (data.tag === '{{.TagInvalidate}}') {
    event.waitUntil(invalidateCache(data.id));
  }
});

function invalidateCache(requestId) {
  return caches.open(CACHE_NAME)
    .then((cache) => cache.keys().then((requests) => Promise.all(
      requests
        .filter((request) => !isVersioned(new URL(request.url)))
        .map((request) => cache.delete(request))
    )))
    .then(() => broadcast({ tag: '{{.TagInvalidated}}', replyTo: requestId, timestamp: Date.now() }));
}

self.addEventListener('sync', (event) => {
  if (event.tag === SYNC_TAG) {
    event.waitUntil(pendingMutationCount().then((count) => {
      if (count > 0) {
        return broadcast({ tag: '{{.TagSyncNeeded}}' });
      }
    }));
  }
});

function pendingMutationCount() {
  return new Promise((resolve) => {
    const open = indexedDB.open(OUTBOX_DB);
    open.onerror = () => resolve(0);
    open.onsuccess = () => {
      const db = open.result;
      if (!db.objectStoreNames.contains(OUTBOX_STORE)) {
        db.close();
        resolve(0);
        return;
      }
      const count = db.transaction(OUTBOX_STORE, 'readonly').objectStore(OUTBOX_STORE).count();
      count.onerror = () => { db.close(); resolve(0); };
      count.onsuccess = () => { db.close(); resolve(count.result); };
    };
  });
}

function broadcast(msg) {
  return self.clients.matchAll().then((clients) => {
    clients.forEach((client) => client.postMessage(msg));
  });
}
`))

var installerTemplate = template.Must(template.New("installer").Parse(`'use strict';

function installServiceWorkerForDev() {
  if (!('serviceWorker' in navigator)) {
    return Promise.resolve(null);
  }
  const source = {{printf "%q" .WorkerSource}};
  const blob = new Blob([source], { type: 'application/javascript' });
  const url = URL.createObjectURL(blob);
  return navigator.serviceWorker.register(url, { scope: '/' })
    .then((registration) => {
      URL.revokeObjectURL(url);
      return registration;
    })
    .catch((err) => {
      console.error('dev service worker registration failed', err);
      return null;
    });
}
`))
