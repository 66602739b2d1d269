package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"roomstats/internal/config"
	appLog "roomstats/internal/log"
	"roomstats/internal/rooms"
	"roomstats/internal/stats"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTmpl = template.Must(
	template.New("report.html.tmpl").
		Funcs(template.FuncMap{
			"hours": func(h float64) string { return strconv.FormatFloat(h, 'f', 1, 64) },
		}).
		ParseFS(templateFS, "templates/report.html.tmpl"),
)

// reportPage is the data behind the printable usage report.
type reportPage struct {
	Title  string
	Report rooms.UsageReport
	Days   []string
	Trends []rooms.TrendSeries
}

// handleReport renders the printable HTML report. The PDF export captures
// this page through headless Chromium.
//
// GET /report?room=all&range=week
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	rng := stats.ParseRange(r.URL.Query().Get("range"))
	if rng == stats.RangeAll {
		writeError(w, http.StatusBadRequest, "range all is not available for the report")
		return
	}

	html, err := s.renderReport(r.Context(), selected, sel, rng, s.now())
	if err != nil {
		appLog.Error("report render failed", err, "room", sel, "range", rng)
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

func (s *Server) renderReport(ctx context.Context, selected []config.RoomConfig, sel string, rng stats.Range, now time.Time) ([]byte, error) {
	loc := s.svc.Location()
	win := stats.NewWindow(now, rng.Days(), loc)

	page := reportPage{
		Title:  fmt.Sprintf("Room usage report: %s", sel),
		Report: s.svc.Usage(ctx, selected, rng, win, s.cfg.AvailableHoursPerDay),
		Days:   win.DayKeys(),
		Trends: s.svc.Trends(ctx, selected, win),
	}
	page.Report.GeneratedAt = now.In(loc)

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("report template: %w", err)
	}
	return buf.Bytes(), nil
}
