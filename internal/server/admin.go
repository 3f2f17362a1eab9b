// Package server exposes the boss registry to operators over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"bossspawner/internal/auth"
	"bossspawner/internal/boss"
	"bossspawner/internal/config"
	"bossspawner/internal/game"
	"bossspawner/internal/httpmw"
	"bossspawner/internal/marker"
	"bossspawner/internal/registry"
	"bossspawner/internal/telemetry"
)

// Runner executes fn on the goroutine that owns the registry.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// Admin holds what the admin handlers depend on.
type Admin struct {
	Registry *registry.Registry
	Loop     Runner
	Events   telemetry.Repository
	Markers  *marker.Relay
	// Remote holds markers mirrored from peer relays.
	Remote *marker.Memory
	Check  auth.Check
	Clock  game.Clock
	Logger *zap.Logger
}

type actionResult struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeLoopErr maps registry and loop errors onto status codes.
func writeLoopErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownBoss):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNoLoader):
		writeErr(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, game.ErrLoopStopped):
		writeErr(w, http.StatusServiceUnavailable, "spawner is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeErr(w, http.StatusGatewayTimeout, "spawner did not respond")
	default:
		writeErr(w, http.StatusBadRequest, err.Error())
	}
}

func (a *Admin) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *Admin) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock.Now()
}

// do runs fn on the loop with a bounded wait.
func (a *Admin) do(r *http.Request, fn func() error) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	return a.Loop.Do(ctx, fn)
}

func (a *Admin) audit(r *http.Request, action, id string, ok bool) {
	caller, _ := auth.AdminFromContext(r.Context())
	a.logger().Info("admin command",
		zap.String("action", action),
		zap.String("boss", id),
		zap.Bool("ok", ok),
		zap.String("by", caller.Addr),
		zap.String("request_id", httpmw.RequestIDFromContext(r.Context())))
}

// bossAction adapts a registry call that takes a boss id.
func (a *Admin) bossAction(action string, fn func(id string) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		var ok bool
		err := a.do(r, func() error {
			var err error
			ok, err = fn(id)
			return err
		})
		if err != nil {
			writeLoopErr(w, err)
			return
		}
		a.audit(r, action, id, ok)
		writeJSON(w, http.StatusOK, actionResult{ID: id, Action: action, OK: ok})
	}
}

func RegisterAdminRoutes(mux *http.ServeMux, rr *RouteRegistry, a *Admin) {
	reg := a.Registry

	HandleAdmin(mux, rr, a.Check, "GET /api/bosses", "List boss status", "", func(w http.ResponseWriter, r *http.Request) {
		var status []boss.Status
		var enabled bool
		if err := a.do(r, func() error {
			status, enabled = reg.Status(), reg.Enabled()
			return nil
		}); err != nil {
			writeLoopErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"enabled": enabled,
			"bosses":  status,
		})
	})

	HandleAdmin(mux, rr, a.Check, "GET /api/bosses/{id}", "One boss's status", "", func(w http.ResponseWriter, r *http.Request) {
		var status boss.Status
		if err := a.do(r, func() error {
			var err error
			status, err = reg.BossStatus(r.PathValue("id"))
			return err
		}); err != nil {
			writeLoopErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	HandleAdmin(mux, rr, a.Check, "POST /api/bosses/{id}/spawn", "Spawn a boss now", "", a.bossAction("spawn", reg.Spawn))

	HandleAdmin(mux, rr, a.Check, "POST /api/bosses/{id}/despawn", "Destroy a boss and clear its activation", "", a.bossAction("despawn", func(id string) (bool, error) {
		return true, reg.Despawn(id)
	}))

	HandleAdmin(mux, rr, a.Check, "POST /api/bosses/{id}/activate", "Activate a boss at its advertised position", "", a.bossAction("activate", reg.Activate))

	HandleAdmin(mux, rr, a.Check, "POST /api/bosses/{id}/reset-position", "Pick a new activation position", "", a.bossAction("reset-position", reg.ResetPosition))

	HandleAdmin(mux, rr, a.Check, "POST /api/spawner/enabled", "Toggle the global switch until the next reload", `{"enabled":false}`, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if body.Enabled == nil {
			writeErr(w, http.StatusBadRequest, "enabled is required")
			return
		}
		if err := a.do(r, func() error {
			reg.SetEnabled(*body.Enabled)
			return nil
		}); err != nil {
			writeLoopErr(w, err)
			return
		}
		action := "disable"
		if *body.Enabled {
			action = "enable"
		}
		a.audit(r, action, "", true)
		writeJSON(w, http.StatusOK, map[string]any{"enabled": *body.Enabled})
	})

	HandleAdmin(mux, rr, a.Check, "POST /api/config/reload", "Reread the config file and rebuild every boss", "", func(w http.ResponseWriter, r *http.Request) {
		err := a.do(r, reg.Reload)
		a.audit(r, "reload", "", err == nil)
		if err != nil {
			writeLoopErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, actionResult{Action: "reload", OK: true})
	})

	HandleAdmin(mux, rr, a.Check, "GET /api/config", "Active config", "", func(w http.ResponseWriter, r *http.Request) {
		var cfg config.Config
		if err := a.do(r, func() error {
			cfg = *reg.Config()
			return nil
		}); err != nil {
			writeLoopErr(w, err)
			return
		}
		cfg.Server.AdminToken = ""
		writeJSON(w, http.StatusOK, cfg)
	})

	HandleAdmin(mux, rr, a.Check, "GET /api/telemetry/events", "Recent lifecycle events (?since=RFC3339&type=boss_spawned)", "", func(w http.ResponseWriter, r *http.Request) {
		since, types, ok := eventFilter(w, r)
		if !ok {
			return
		}
		events, err := a.Events.GetEvents(since, types)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	HandleAdmin(mux, rr, a.Check, "GET /api/telemetry/stats", "Per-boss counters (?since=RFC3339, default 24h)", "", func(w http.ResponseWriter, r *http.Request) {
		since, _, ok := eventFilter(w, r)
		if !ok {
			return
		}
		if since.IsZero() {
			since = a.now().Add(-24 * time.Hour)
		}
		events, err := a.Events.GetEvents(since, nil)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats, err := telemetry.CalculateStats(events, since)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	if a.Markers != nil {
		Handle(mux, rr, "GET /api/markers", "Markers currently shown", "", func(w http.ResponseWriter, r *http.Request) {
			remote := []marker.Marker{}
			if a.Remote != nil {
				remote = a.Remote.All()
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"local":  a.Markers.Markers(),
				"remote": remote,
			})
		})
		Handle(mux, rr, "GET /ws/markers", "Marker feed (websocket)", "", a.Markers.ServeHTTP)
	}

	Handle(mux, rr, "GET /_/admin/routes.json", "This list", "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rr.List())
	})

	HandleAdmin(mux, rr, a.Check, "GET /admin", "Status page", "", func(w http.ResponseWriter, r *http.Request) {
		var page StatusPageData
		if err := a.do(r, func() error {
			page = StatusPageData{
				Enabled: reg.Enabled(),
				Bosses:  reg.Status(),
			}
			return nil
		}); err != nil {
			writeLoopErr(w, err)
			return
		}
		page.Now = a.now()
		page.Routes = rr.List()
		if a.Markers != nil {
			page.Peers = a.Markers.Peers()
		}
		templ.Handler(StatusPage(page), templ.WithErrorHandler(func(_ *http.Request, err error) http.Handler {
			a.logger().Warn("status page render failed", zap.Error(err))
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeErr(w, http.StatusInternalServerError, "status page unavailable")
			})
		})).ServeHTTP(w, r)
	})
}

func eventFilter(w http.ResponseWriter, r *http.Request) (time.Time, []telemetry.EventType, bool) {
	var since time.Time
	if s := strings.TrimSpace(r.URL.Query().Get("since")); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "since must be RFC3339")
			return time.Time{}, nil, false
		}
		since = t
	}
	var types []telemetry.EventType
	for _, t := range r.URL.Query()["type"] {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, telemetry.EventType(t))
		}
	}
	return since, types, true
}
