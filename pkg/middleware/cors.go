package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists allowed origins. "*" allows any origin.
	AllowedOrigins []string

	// AllowedMethods defaults to GET, POST, DELETE, OPTIONS.
	AllowedMethods []string

	// AllowedHeaders defaults to Accept, Content-Type, X-Correlation-ID.
	AllowedHeaders []string

	// ExposedHeaders is the list of headers the browser may access.
	ExposedHeaders []string

	// MaxAge is how long (in seconds) preflight results can be cached. Zero
	// omits the header.
	MaxAge int

	// AllowCredentials indicates whether cookies are supported. It is ignored
	// for wildcard origins.
	AllowCredentials bool

	// PreflightStatus is written for OPTIONS requests. Defaults to 204.
	PreflightStatus int

	// Separator joins the method and header lists. Defaults to ", ".
	Separator string
}

// DefaultCORSConfig returns the configuration for the session API.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderCorrelationID},
		ExposedHeaders: []string{HeaderCorrelationID},
		MaxAge:         3600,
	}
}

// RelayCORSConfig returns the open policy the relay endpoints answer with:
// any origin, OPTIONS and POST, Content-Type, and a 200 preflight.
func RelayCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:  []string{"*"},
		AllowedMethods:  []string{http.MethodOptions, http.MethodPost},
		AllowedHeaders:  []string{"Content-Type"},
		PreflightStatus: http.StatusOK,
		Separator:       ",",
	}
}

// CORS returns middleware that sets Cross-Origin Resource Sharing headers
// and answers preflight requests.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Accept", "Content-Type", HeaderCorrelationID}
	}
	if cfg.PreflightStatus == 0 {
		cfg.PreflightStatus = http.StatusNoContent
	}
	if cfg.Separator == "" {
		cfg.Separator = ", "
	}

	allowWildcard := false
	originSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowWildcard = true
		}
		originSet[o] = struct{}{}
	}

	methods := strings.Join(cfg.AllowedMethods, cfg.Separator)
	headers := strings.Join(cfg.AllowedHeaders, cfg.Separator)
	exposed := strings.Join(cfg.ExposedHeaders, cfg.Separator)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			switch {
			case allowWildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := originSet[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(cfg.PreflightStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
