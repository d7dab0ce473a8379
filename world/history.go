package world

// History is a ring of recent snapshots used as delta baselines. The ring
// size is a hard cap: adding to a full ring overwrites the oldest entry.
type History struct {
	snapshots []*Snapshot
	index     int
}

func NewHistory(maxCapacity int) *History {
	if maxCapacity < 1 {
		maxCapacity = 1
	}
	return &History{snapshots: make([]*Snapshot, maxCapacity), index: -1}
}

func (h *History) Cap() int {
	return len(h.snapshots)
}

// Add appends s; ticks must increase.
func (h *History) Add(s *Snapshot) {
	h.index = (h.index + 1) % len(h.snapshots)
	h.snapshots[h.index] = s
}

func (h *History) Latest() *Snapshot {
	if h.index < 0 {
		return nil
	}
	return h.snapshots[h.index]
}

func (h *History) Get(tick Tick) *Snapshot {
	for _, s := range h.snapshots {
		if s != nil && s.Tick == tick {
			return s
		}
	}
	return nil
}

// After returns the earliest snapshot newer than tick.
func (h *History) After(tick Tick) *Snapshot {
	var found *Snapshot
	for _, s := range h.snapshots {
		if s != nil && s.Tick > tick && (found == nil || s.Tick < found.Tick) {
			found = s
		}
	}
	return found
}

// AtOrBefore returns the latest snapshot no newer than tick.
func (h *History) AtOrBefore(tick Tick) *Snapshot {
	var found *Snapshot
	for _, s := range h.snapshots {
		if s != nil && s.Tick <= tick && (found == nil || s.Tick > found.Tick) {
			found = s
		}
	}
	return found
}

// Oldest returns the oldest retained tick, or NilTick when empty.
func (h *History) Oldest() Tick {
	oldest := NilTick
	for _, s := range h.snapshots {
		if s != nil && (oldest == NilTick || s.Tick < oldest) {
			oldest = s.Tick
		}
	}
	return oldest
}

func (h *History) Len() int {
	n := 0
	for _, s := range h.snapshots {
		if s != nil {
			n++
		}
	}
	return n
}

// Trim drops snapshots older than tick.
func (h *History) Trim(tick Tick) {
	for i, s := range h.snapshots {
		if s != nil && s.Tick < tick {
			h.snapshots[i] = nil
		}
	}
}

func (h *History) Clear() {
	for i := range h.snapshots {
		h.snapshots[i] = nil
	}
	h.index = -1
}
