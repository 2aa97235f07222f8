package app

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Odyssey middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	long := map[string]time.Duration{}
	if cfg.Config != nil && cfg.Config.LedgerBatchTimeout > 0 {
		long[accounting.BatchRoute] = cfg.Config.LedgerBatchTimeout + accounting.BatchResponseGrace
	}
	limit := 300
	if cfg.Config != nil && cfg.Config.AppRateLimit > 0 {
		limit = cfg.Config.AppRateLimit
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		routeDeadlines(cfg.Logger, timeout, long),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// routeDeadlines applies the request timeout. Paths in long get their own
// timeout instead, and their write deadline is pushed past the server's
// WriteTimeout so the result can still be written.
func routeDeadlines(logger *slog.Logger, fallback time.Duration, long map[string]time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		short := middleware.Timeout(fallback)(next)
		extended := make(map[string]http.Handler, len(long))
		for path, d := range long {
			extended[path] = writeDeadline(logger, d, middleware.Timeout(d)(next))
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h, ok := extended[strings.TrimSuffix(r.URL.Path, "/")]; ok {
				h.ServeHTTP(w, r)
				return
			}
			short.ServeHTTP(w, r)
		})
	}
}

func writeDeadline(logger *slog.Logger, d time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Warn("extend write deadline", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		next.ServeHTTP(w, r)
	})
}
