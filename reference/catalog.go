package reference

import (
	"sync"
)

// Catalog is the operator's set of reference slots. Entries keep insertion
// order, which the matcher uses for tie-breaking. Catalog is safe for
// concurrent use; the upload pipeline mutates states while readers take
// snapshots.
type Catalog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewCatalog returns a catalog holding entries in order.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		c.entries = append(c.entries, e)
	}
	return c
}

// Add appends an entry and returns its index.
func (c *Catalog) Add(e Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return len(c.entries) - 1
}

// SetStyle installs e as the single style entry, replacing any existing one.
func (c *Catalog) SetStyle(caption, localPath string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].Category == CategoryStyle {
			c.entries[i] = NewStyle(caption, localPath)
			return i
		}
	}
	c.entries = append(c.entries, NewStyle(caption, localPath))
	return len(c.entries) - 1
}

// Remove deletes the slot at i. Later indices shift down by one.
func (c *Catalog) Remove(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.entries) {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return true
}

// Clear resets the slot at i to a fresh entry of the same category,
// discarding its image, metadata and any asset id.
func (c *Catalog) Clear(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.entries) {
		return false
	}
	c.entries[i] = Entry{Category: c.entries[i].Category}
	return true
}

// Len returns the number of slots.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entry returns a copy of the slot at i.
func (c *Catalog) Entry(i int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Snapshot returns a copy of all entries in catalog order.
func (c *Catalog) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Attached returns the entries that have an image, in catalog order.
func (c *Catalog) Attached() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.HasImage() {
			out = append(out, e)
		}
	}
	return out
}

// SetState updates the upload state of slot i.
func (c *Catalog) SetState(i int, s UploadState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= 0 && i < len(c.entries) {
		c.entries[i].State = s
	}
}

// SetCaption replaces the caption of slot i.
func (c *Catalog) SetCaption(i int, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= 0 && i < len(c.entries) {
		c.entries[i].Caption = caption
	}
}
