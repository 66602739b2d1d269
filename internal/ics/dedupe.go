package ics

// Deduper remembers the identifiers seen during one parse pass. The first
// record carrying an identifier wins; later ones are dropped whole.
// Records without an identifier are always kept.
type Deduper struct {
	seen    map[string]struct{}
	dropped int
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Keep reports whether a record with identifier id should be kept, and
// marks id as seen.
func (d *Deduper) Keep(id string) bool {
	if id == "" {
		return true
	}
	if _, dup := d.seen[id]; dup {
		d.dropped++
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Dropped returns how many records Keep rejected.
func (d *Deduper) Dropped() int {
	return d.dropped
}
