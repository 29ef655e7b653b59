package engine

import (
	"sync"
	"time"

	"github.com/Penlect/emqxlwm2m/lwm2m"
)

// Record is the last known lifecycle state of one endpoint. It is
// replaced wholesale on every register/update event, never merged.
type Record struct {
	Endpoint      string
	Event         lwm2m.MessageType // register or update
	Lifetime      int64             // seconds
	Version       string
	Binding       string
	SMS           string
	AlternatePath string
	ObjectList    []string
	LastUpdate    time.Time
}

// Stale reports whether the endpoint's registration lifetime has lapsed
// at the given instant. Staleness is derived at read time; the tracker
// never evicts records on its own.
func (r Record) Stale(now time.Time) bool {
	if r.Lifetime <= 0 {
		return false
	}
	return now.Sub(r.LastUpdate) > time.Duration(r.Lifetime)*time.Second
}

// Tracker records endpoint lifecycle state, keyed by endpoint name.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]Record)}
}

// Apply replaces the endpoint's record with the state in the event.
func (t *Tracker) Apply(lc *lwm2m.Lifecycle) {
	rec := Record{
		Endpoint:      lc.Endpoint,
		Event:         lc.MsgType,
		Lifetime:      lc.Lifetime,
		Version:       lc.Version,
		Binding:       lc.Binding,
		SMS:           lc.SMS,
		AlternatePath: lc.AlternatePath,
		ObjectList:    lc.ObjectList,
		LastUpdate:    lc.Timestamp,
	}
	t.mu.Lock()
	t.records[lc.Endpoint] = rec
	t.mu.Unlock()
}

// Get returns the endpoint's record.
func (t *Tracker) Get(endpoint string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[endpoint]
	return rec, ok
}

// Snapshot returns a copy of every record.
func (t *Tracker) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	return out
}
