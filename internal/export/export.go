// Package export writes room usage reports as downloadable files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"roomstats/internal/stats"
)

// Format is a report file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatICS  Format = "ics"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatICS, FormatPDF:
		return f, true
	case "":
		return FormatCSV, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatICS:
		return "text/calendar; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Filename builds "room-analytics-<room>-<range>-<YYYY-MM-DD>.<ext>" with
// the date of now in now's location.
func Filename(room string, r stats.Range, now time.Time, f Format) string {
	if room == "" {
		room = "all"
	}
	return fmt.Sprintf("room-analytics-%s-%s-%s.%s", room, r, now.Format(stats.DateLayout), f)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: json: %w", err)
	}
	return nil
}
