package world

// SendState tracks what one destination has received and acknowledged.
type SendState struct {
	LastAcked Tick
	LastSent  Tick
	// LastFull is the last tick sent without a baseline.
	LastFull Tick
}

func NewSendState() SendState {
	return SendState{LastAcked: NilTick, LastSent: NilTick, LastFull: NilTick}
}

// Sent records that tick went out, in full when full is set.
func (s *SendState) Sent(tick Tick, full bool) {
	s.LastSent = tick
	if full {
		s.LastFull = tick
	}
}

// Ack records an acknowledgement. Acks arrive out of order over an
// unreliable channel, so only newer ticks that were actually sent count.
func (s *SendState) Ack(tick Tick) bool {
	if tick == NilTick || tick <= s.LastAcked || tick > s.LastSent {
		return false
	}
	s.LastAcked = tick
	return true
}

// Baseline picks the snapshot to diff tick against for s, or nil to send in
// full. Full snapshots go out when nothing was acknowledged yet, once
// safeInterval ticks have passed since the last full one, and when the
// acked baseline is no longer retained. Measuring from the last full send
// keeps the interval honest when broadcasts skip ticks.
func (h *History) Baseline(s SendState, tick Tick, safeInterval Tick) *Snapshot {
	if s.LastAcked == NilTick || s.LastSent == NilTick {
		return nil
	}
	if safeInterval > 0 && (s.LastFull == NilTick || tick-s.LastFull >= safeInterval) {
		return nil
	}
	return h.Get(s.LastAcked)
}

// TrimAcked evicts snapshots no destination can still use as a baseline.
// Destinations without an ack do not hold anything back.
func (h *History) TrimAcked(states []SendState) {
	min := NilTick
	for _, s := range states {
		if s.LastAcked == NilTick {
			continue
		}
		if min == NilTick || s.LastAcked < min {
			min = s.LastAcked
		}
	}
	if min != NilTick {
		h.Trim(min)
	}
}
