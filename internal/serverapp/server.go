// Package serverapp assembles the HTTP handler served by cmd/server.
package serverapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"bossspawner/internal/httpmw"
	"bossspawner/internal/server"
	staticfiles "bossspawner/static"
)

type Options struct {
	Admin         *server.Admin
	StaticDir     string
	UseDiskStatic bool
	// Ready reports whether the spawner can take commands; nil means always.
	Ready  func() error
	Logger *zap.Logger
}

func NewHandler(opts Options) (http.Handler, error) {
	if opts.Admin == nil || opts.Admin.Registry == nil || opts.Admin.Loop == nil {
		return nil, errors.New("admin registry and loop are required")
	}
	if opts.Admin.Events == nil {
		return nil, errors.New("telemetry repository is required")
	}
	if strings.TrimSpace(opts.StaticDir) == "" {
		opts.StaticDir = "static"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Admin.Logger == nil {
		opts.Admin.Logger = opts.Logger.Named("admin")
	}

	mux := http.NewServeMux()

	staticHandler := http.FileServer(http.FS(staticfiles.EmbeddedFS()))
	if opts.UseDiskStatic {
		staticHandler = http.FileServer(http.Dir(opts.StaticDir))
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticHandler))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "bossspawner",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"ok":    false,
					"error": err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "bossspawner",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin", http.StatusFound)
	})

	rr := &server.RouteRegistry{}
	server.RegisterAdminRoutes(mux, rr, opts.Admin)

	return httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger.Named("http")),
		httpmw.WithRequestID,
		httpmw.WithRecover(opts.Logger.Named("http")),
	), nil
}

func UseDiskStaticByEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("BOSS_DEV_STATIC"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
