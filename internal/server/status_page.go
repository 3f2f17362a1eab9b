package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"bossspawner/internal/boss"
)

//go:embed templates/status.html
var statusTemplatesFS embed.FS

var statusTmpl = template.Must(
	template.New("status.html").
		Funcs(template.FuncMap{
			"bossState":  bossState,
			"spawnState": spawnState,
			"formatPos":  formatPos,
			"entityCell": entityCell,
		}).
		ParseFS(statusTemplatesFS, "templates/status.html"),
)

type StatusPageData struct {
	Now     time.Time
	Enabled bool
	Bosses  []boss.Status
	Routes  []RouteDoc
	Peers   int
}

// StatusPage renders the operator overview.
func StatusPage(d StatusPageData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return statusTmpl.Execute(w, d)
	})
}

func bossState(s boss.Status) string {
	switch {
	case !s.Enabled:
		return "disabled"
	case s.Closed:
		return "closed (" + s.CloseReason + ")"
	case s.Activated:
		return "activated"
	default:
		return "waiting"
	}
}

func spawnState(s boss.Status) string {
	if s.FailureReason != "" {
		return s.SpawnState + ": " + s.FailureReason
	}
	return s.SpawnState
}

func formatPos(s boss.Status) string {
	if s.Position == nil {
		return "-"
	}
	p := *s.Position
	return fmt.Sprintf("%.0f, %.0f, %.0f", p[0], p[1], p[2])
}

func entityCell(s boss.Status) string {
	if s.EntityID == 0 {
		return "-"
	}
	out := fmt.Sprintf("#%d", s.EntityID)
	if s.AbandonedSince != nil {
		out += " abandoned since " + s.AbandonedSince.Format(time.Kitchen)
	}
	return out
}
