package web

import (
	"bytes"
	"net/http"
	"strconv"

	"roomstats/internal/export"
	appLog "roomstats/internal/log"
	"roomstats/internal/stats"
)

// handleExport serves a report file download.
//
// GET /api/export?room=all&range=week&format=csv
//   - format: csv (default) | json | ics | pdf
//   - range=all is only available as json (all-time statistics)
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, ok := export.ParseFormat(q.Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported format")
		return
	}
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	rng := stats.ParseRange(q.Get("range"))
	if rng == stats.RangeAll && format != export.FormatJSON {
		writeError(w, http.StatusBadRequest, "range all is only available as json")
		return
	}

	ctx := r.Context()
	now := s.now().In(s.svc.Location())
	var buf bytes.Buffer
	var err error

	switch format {
	case export.FormatCSV:
		win := stats.NewWindow(now, rng.Days(), s.svc.Location())
		rep := s.svc.Usage(ctx, selected, rng, win, s.cfg.AvailableHoursPerDay)
		err = export.WriteSummariesCSV(&buf, rep.Rooms)

	case export.FormatJSON:
		if rng == stats.RangeAll {
			err = export.WriteJSON(&buf, allTimeResponse{Range: rng, Rooms: s.svc.AllTime(ctx, selected)})
			break
		}
		win := stats.NewWindow(now, rng.Days(), s.svc.Location())
		err = export.WriteJSON(&buf, s.svc.Usage(ctx, selected, rng, win, s.cfg.AvailableHoursPerDay))

	case export.FormatICS:
		win := stats.NewWindow(now, rng.Days(), s.svc.Location())
		occs := s.svc.Occurrences(ctx, selected, win)
		err = export.WriteICS(&buf, "Room usage "+sel, occs, now)

	case export.FormatPDF:
		if s.pdf == nil {
			writeError(w, http.StatusNotImplemented, "pdf export is not configured")
			return
		}
		var html, pdf []byte
		html, err = s.renderReport(ctx, selected, sel, rng, now)
		if err == nil {
			pdf, err = s.pdf.RenderPDF(ctx, html)
		}
		buf.Write(pdf)
	}

	if err != nil {
		appLog.Error("export failed", err, "room", sel, "range", rng, "format", format)
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}

	name := export.Filename(sel, rng, now, format)
	appLog.Info("export served", "room", sel, "range", rng, "format", format, "bytes", buf.Len())

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
