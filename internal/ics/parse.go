package ics

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "roomstats/internal/log"
	"roomstats/internal/model"
)

const (
	layoutDate       = "20060102"
	layoutDateTime   = "20060102T150405"
	layoutDateTimeZ  = "20060102T150405Z"
	maxScanLineBytes = 1 << 20
)

var errNoLibraryEvents = errors.New("library found no events in a body containing VEVENT")

// ParseReport carries counters of a single parse pass for logging.
type ParseReport struct {
	// VEvents is the number of VEVENT components seen.
	VEvents int
	// Emitted is the number of events returned.
	Emitted int
	// Dropped counts VEVENTs without a usable DTSTART/DTEND pair.
	Dropped int
	// Lenient is true when the document was rejected by the iCalendar
	// library and the line scanner was used instead.
	Lenient bool
}

// rawProp is one property line: value plus parameters.
type rawProp struct {
	Value  string
	Params map[string][]string
}

// rawEvent is the subset of VEVENT properties the analytics pipeline reads,
// independent of which parser produced it.
type rawEvent map[string]rawProp

// textProps are TEXT values whose backslash escapes the line scanner has
// to undo itself; golang-ical does it while parsing.
var textProps = map[string]bool{
	string(ical.ComponentPropertyUniqueId): true,
	string(ical.ComponentPropertySummary):  true,
	string(ical.ComponentPropertyLocation): true,
}

var wantedProps = []ical.ComponentProperty{
	ical.ComponentPropertyUniqueId,
	ical.ComponentPropertySummary,
	ical.ComponentPropertyLocation,
	ical.ComponentPropertyDtStart,
	ical.ComponentPropertyDtEnd,
	ical.ComponentPropertyRrule,
}

// ParseFeed converts a raw feed body into CalendarEvents in feed order.
//
//   - It never fails: unparseable constructs are skipped.
//   - Well-formed documents go through golang-ical; documents the library
//     rejects (bare VEVENT fragments, stray lines) are read by a lenient
//     line scanner with the same unfolding and property rules.
//   - Date values are interpreted by parseICSTime in loc; TZID parameters
//     are not consulted.
//   - Events without a resolvable start and end, or with end <= start, are
//     dropped.
//
// Deduplication and recurrence expansion happen later, in BuildOccurrences.
func ParseFeed(src Source, body []byte, loc *time.Location) ([]model.CalendarEvent, ParseReport) {
	var report ParseReport
	if loc == nil {
		loc = time.UTC
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []model.CalendarEvent{}, report
	}

	raws, err := libraryEvents(body)
	if err == nil && len(raws) == 0 && bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VEVENT")) {
		err = errNoLibraryEvents
	}
	if err != nil {
		appLog.Debug("ics library parse rejected feed; using line scanner", "id", src.ID, "url", redactURL(src.URL), "reason", err.Error())
		raws = scanEvents(body)
		report.Lenient = true
	}
	report.VEvents = len(raws)

	events := make([]model.CalendarEvent, 0, len(raws))
	for _, raw := range raws {
		ev, ok := buildEvent(raw, loc)
		if !ok {
			report.Dropped++
			continue
		}
		events = append(events, ev)
	}
	report.Emitted = len(events)

	appLog.Info("ics parse completed",
		"id", src.ID,
		"url", redactURL(src.URL),
		"vevents", report.VEvents,
		"event_count", report.Emitted,
		"dropped", report.Dropped,
		"lenient", report.Lenient,
	)
	return events, report
}

// libraryEvents parses body with golang-ical.
func libraryEvents(body []byte) ([]rawEvent, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]rawEvent, 0)
	for _, ve := range cal.Events() {
		raw := make(rawEvent, len(wantedProps))
		for _, name := range wantedProps {
			p := ve.GetProperty(name)
			if p == nil {
				continue
			}
			raw[string(name)] = rawProp{Value: p.Value, Params: p.ICalParameters}
		}
		out = append(out, raw)
	}
	return out, nil
}

// scanEvents is the lenient fallback parser. It unfolds continuation lines,
// tracks BEGIN:VEVENT / END:VEVENT blocks (ignoring nested components such
// as VALARM) and keeps the first occurrence of each wanted property.
func scanEvents(body []byte) []rawEvent {
	lines := unfoldLines(body)

	wanted := make(map[string]struct{}, len(wantedProps))
	for _, name := range wantedProps {
		wanted[string(name)] = struct{}{}
	}

	out := make([]rawEvent, 0)
	var cur rawEvent
	inEvent := false
	nested := 0

	for _, line := range lines {
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case upper == "BEGIN:VEVENT":
			// A new VEVENT implicitly abandons an unterminated one.
			inEvent = true
			nested = 0
			cur = make(rawEvent)
			continue
		case upper == "END:VEVENT":
			if inEvent {
				out = append(out, cur)
			}
			inEvent = false
			cur = nil
			continue
		case !inEvent:
			continue
		case strings.HasPrefix(upper, "BEGIN:"):
			nested++
			continue
		case strings.HasPrefix(upper, "END:"):
			if nested > 0 {
				nested--
			}
			continue
		case nested > 0:
			continue
		}

		name, prop, ok := parsePropertyLine(line)
		if !ok {
			continue
		}
		if _, want := wanted[name]; !want {
			continue
		}
		if _, exists := cur[name]; exists {
			continue
		}
		if textProps[name] {
			prop.Value = ical.FromText(prop.Value)
		}
		cur[name] = prop
	}

	return out
}

// unfoldLines splits body into logical lines: a physical line starting with
// a space or tab is appended (minus that first character) to the previous one.
func unfoldLines(body []byte) []string {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxScanLineBytes)

	lines := make([]string, 0)
	for sc.Scan() {
		l := strings.TrimRight(sc.Text(), "\r")
		if len(l) > 0 && (l[0] == ' ' || l[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, strings.TrimSpace(l))
	}
	// A scanner error (line longer than maxScanLineBytes) ends the scan;
	// whatever was read so far is still used.
	return lines
}

// parsePropertyLine splits "NAME;P1=V1;P2=\"V:2\":VALUE". Colons and
// semicolons inside double quotes belong to the parameter value.
func parsePropertyLine(line string) (string, rawProp, bool) {
	colon := -1
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ':':
			if !inQuote {
				colon = i
			}
		}
		if colon >= 0 {
			break
		}
	}
	if colon <= 0 {
		return "", rawProp{}, false
	}

	head := line[:colon]
	prop := rawProp{Value: line[colon+1:]}

	parts := splitOutsideQuotes(head, ';')
	name := strings.ToUpper(strings.TrimSpace(parts[0]))
	if name == "" {
		return "", rawProp{}, false
	}
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		if prop.Params == nil {
			prop.Params = make(map[string][]string)
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		for _, item := range splitOutsideQuotes(v, ',') {
			prop.Params[k] = append(prop.Params[k], strings.Trim(item, `"`))
		}
	}
	return name, prop, true
}

func splitOutsideQuotes(s string, sep byte) []string {
	var out []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// buildEvent turns raw properties into a validated CalendarEvent.
func buildEvent(raw rawEvent, loc *time.Location) (model.CalendarEvent, bool) {
	var ev model.CalendarEvent

	startProp, ok := raw[string(ical.ComponentPropertyDtStart)]
	if !ok {
		return ev, false
	}
	endProp, ok := raw[string(ical.ComponentPropertyDtEnd)]
	if !ok {
		return ev, false
	}
	start, ok := parseICSTime(startProp.Value, loc)
	if !ok {
		return ev, false
	}
	end, ok := parseICSTime(endProp.Value, loc)
	if !ok {
		return ev, false
	}
	if !end.After(start) {
		return ev, false
	}

	ev.Start = start
	ev.End = end
	ev.UID = strings.TrimSpace(raw[string(ical.ComponentPropertyUniqueId)].Value)
	ev.Summary = raw[string(ical.ComponentPropertySummary)].Value
	if strings.TrimSpace(ev.Summary) == "" {
		ev.Summary = model.DefaultSummary
	}
	ev.Location = raw[string(ical.ComponentPropertyLocation)].Value
	ev.RRule = strings.TrimSpace(raw[string(ical.ComponentPropertyRrule)].Value)

	return ev, true
}

// parseICSTime parses an ICS DATE or DATE-TIME value into loc.
//
//   - 8 chars  (20250106)         -> 00:00 of that date in loc
//   - 15 chars (20250106T090000)  -> wall clock in loc
//   - 16 chars (20250106T140000Z) -> UTC, converted to loc
//
// Any other shape, or a value that does not parse, yields ok=false.
func parseICSTime(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)

	var (
		t   time.Time
		err error
	)
	switch {
	case len(v) == 8:
		t, err = time.ParseInLocation(layoutDate, v, loc)
	case len(v) == 15:
		t, err = time.ParseInLocation(layoutDateTime, v, loc)
	case len(v) == 16 && (v[15] == 'Z' || v[15] == 'z'):
		t, err = time.Parse(layoutDateTimeZ, strings.ToUpper(v))
	default:
		return time.Time{}, false
	}
	if err != nil {
		return time.Time{}, false
	}
	return t.In(loc), true
}
