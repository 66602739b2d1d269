package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"roomstats/internal/rooms"
)

const productID = "-//roomstats//Room Usage Export//EN"

// uidNamespace seeds name-based UIDs for occurrences the feed left without
// an identifier, so re-exports of the same data keep stable UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("roomstats.export"))

// WriteICS serializes occurrences as a VCALENDAR. stamp is written as
// DTSTAMP of every event.
func WriteICS(w io.Writer, name string, occs []rooms.RoomOccurrence, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, o := range occs {
		ev := cal.AddEvent(EventUID(o))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(o.Start)
		ev.SetEndAt(o.End)
		ev.SetSummary(o.Summary)
		if o.Location != "" {
			ev.SetLocation(o.Location)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("export: ics: %w", err)
	}
	return nil
}

// EventUID is "<occurrence id>@<room id>"; occurrences without id get a
// name-based UUID derived from room and start.
func EventUID(o rooms.RoomOccurrence) string {
	id := o.ID
	if id == "" {
		name := o.RoomID + "|" + o.Start.UTC().Format(time.RFC3339)
		id = uuid.NewSHA1(uidNamespace, []byte(name)).String()
	}
	return id + "@" + o.RoomID
}
