package transform

import "time"

const (
	DefaultPendingTTL = 10 * time.Minute
	DefaultMaxPending = 4096
)

type pendingEntry struct {
	start   int64 // epoch ms, the pre event's timestamp
	addedAt time.Time
	gen     uint64
}

type pendingSlot struct {
	id  string
	gen uint64
}

// pendingTable maps an in-flight tool invocation id to its start timestamp.
// It belongs to one Transformer and is not safe for concurrent use.
// Entries whose post event never arrives are evicted by age and by count.
type pendingTable struct {
	entries map[string]pendingEntry
	order   []pendingSlot // insertion order; a slot is live iff its gen matches the entry
	gen     uint64
	ttl     time.Duration
	max     int
}

func newPendingTable(ttl time.Duration, max int) *pendingTable {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if max <= 0 {
		max = DefaultMaxPending
	}
	return &pendingTable{
		entries: make(map[string]pendingEntry),
		ttl:     ttl,
		max:     max,
	}
}

// Start records the start timestamp for id, replacing any previous one.
func (p *pendingTable) Start(id string, start int64, now time.Time) {
	p.sweep(now)
	p.gen++
	p.entries[id] = pendingEntry{start: start, addedAt: now, gen: p.gen}
	p.order = append(p.order, pendingSlot{id: id, gen: p.gen})
	for len(p.entries) > p.max {
		p.evictOldest()
	}
}

// Finish returns and removes the start timestamp recorded for id.
func (p *pendingTable) Finish(id string) (int64, bool) {
	e, ok := p.entries[id]
	if !ok {
		return 0, false
	}
	delete(p.entries, id)
	return e.start, true
}

func (p *pendingTable) Len() int {
	return len(p.entries)
}

func (p *pendingTable) Clear() {
	p.entries = make(map[string]pendingEntry)
	p.order = nil
}

func (p *pendingTable) live(s pendingSlot) (pendingEntry, bool) {
	e, ok := p.entries[s.id]
	if !ok || e.gen != s.gen {
		return pendingEntry{}, false
	}
	return e, true
}

// sweep drops expired entries from the front of the insertion order.
func (p *pendingTable) sweep(now time.Time) {
	i := 0
	for ; i < len(p.order); i++ {
		e, ok := p.live(p.order[i])
		if !ok {
			continue
		}
		if now.Sub(e.addedAt) < p.ttl {
			break
		}
		delete(p.entries, p.order[i].id)
	}
	p.order = p.order[i:]

	// Finished or replaced slots behind a live head still occupy order.
	if len(p.order) > 2*p.max {
		compact := p.order[:0]
		for _, s := range p.order {
			if _, ok := p.live(s); ok {
				compact = append(compact, s)
			}
		}
		p.order = compact
	}
}

func (p *pendingTable) evictOldest() {
	for len(p.order) > 0 {
		s := p.order[0]
		p.order = p.order[1:]
		if _, ok := p.live(s); ok {
			delete(p.entries, s.id)
			return
		}
	}
}
