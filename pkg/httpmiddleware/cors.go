package httpmiddleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// Defaults used by CORS when the matching CORSConfig field is empty. The
// storefront sends bearer tokens on cart and order routes and the admin
// console sends the api_key header.
var (
	DefaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	DefaultCORSHeaders = []string{"Content-Type", "Authorization", "api_key"}
	DefaultCORSExpose  = []string{
		"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
	}
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists the accepted origins. Empty or "*" accepts any.
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials disables the "*" origin: the request origin is echoed.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits it.
	MaxAge int
}

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]string // lowercase -> configured spelling
	headers   map[string]struct{}

	methods, allowHeaders, expose string
	credentials                   bool
	maxAge                        string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		headers:     make(map[string]struct{}),
		credentials: cfg.AllowCredentials,
	}

	p.anyOrigin = len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*")
	for _, o := range cfg.AllowOrigins {
		if o != "*" {
			p.origins[strings.ToLower(o)] = o
		}
	}

	headers := orDefault(cfg.AllowHeaders, DefaultCORSHeaders)
	for _, h := range headers {
		p.headers[strings.ToLower(h)] = struct{}{}
	}
	p.allowHeaders = strings.Join(headers, ", ")
	p.methods = strings.Join(orDefault(cfg.AllowMethods, DefaultCORSMethods), ", ")
	p.expose = strings.Join(orDefault(cfg.ExposeHeaders, DefaultCORSExpose), ", ")
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when it is not accepted.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.anyOrigin && !p.credentials:
		return "*"
	case p.anyOrigin:
		return origin
	}
	return p.origins[strings.ToLower(origin)]
}

// headersAllowed reports whether every header named in an
// Access-Control-Request-Headers value is accepted.
func (p *corsPolicy) headersAllowed(requested string) bool {
	for h := range strings.SplitSeq(requested, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := p.headers[h]; !ok {
			return false
		}
	}
	return true
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	// A refused preflight gets no CORS headers; the browser blocks the call.
	if allow == "" || !p.headersAllowed(r.Header.Get("Access-Control-Request-Headers")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.allowHeaders)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) decorate(w http.ResponseWriter, allow string) {
	h := w.Header()
	if allow != "*" {
		h.Add("Vary", "Origin")
	}
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Expose-Headers", p.expose)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// CORS answers preflight requests and decorates cross-origin responses.
// Requests without an Origin header pass through untouched apart from Vary.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !p.anyOrigin || p.credentials {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allow := p.allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allow)
				return
			}

			p.decorate(w, allow)
			next.ServeHTTP(w, r)
		})
	}
}
