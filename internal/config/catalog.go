package config

import "sort"

// Catalog is a read-only, id-keyed view over the configured rooms.
// It preserves configuration order for listing.
type Catalog struct {
	order []string
	byID  map[string]RoomConfig
}

// NewCatalog builds a Catalog from the given rooms. Later duplicates of an
// id are ignored; Validate rejects them for file-based configs.
func NewCatalog(rooms []RoomConfig) *Catalog {
	c := &Catalog{byID: make(map[string]RoomConfig, len(rooms))}
	for _, r := range rooms {
		if _, ok := c.byID[r.ID]; ok {
			continue
		}
		c.byID[r.ID] = r
		c.order = append(c.order, r.ID)
	}
	return c
}

// Catalog returns the room catalog for this configuration.
func (c *Config) Catalog() *Catalog {
	return NewCatalog(c.Rooms)
}

// Room looks up a room by id.
func (c *Catalog) Room(id string) (RoomConfig, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Rooms returns all rooms in configuration order.
func (c *Catalog) Rooms() []RoomConfig {
	out := make([]RoomConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns all room ids in configuration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Select resolves a room selector: "all" or "" yields every room, otherwise
// the single matching room. ok is false for an unknown id.
func (c *Catalog) Select(selector string) (rooms []RoomConfig, ok bool) {
	if selector == "" || selector == "all" {
		return c.Rooms(), true
	}
	r, ok := c.byID[selector]
	if !ok {
		return nil, false
	}
	return []RoomConfig{r}, true
}

// FeedURLs returns the distinct feed URLs, sorted.
func (c *Catalog) FeedURLs() []string {
	seen := make(map[string]struct{})
	for _, r := range c.byID {
		seen[r.URL] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of rooms.
func (c *Catalog) Len() int {
	return len(c.order)
}
