package engine

import (
	"sync"
	"time"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

// outcome is the terminal result of a pending request: a matching
// response, a timeout, or a cancellation.
type outcome struct {
	resp *lwm2m.Response
	err  error
}

// PendingRequest is the caller's handle for one in-flight command.
type PendingRequest struct {
	ID       int
	Endpoint string
	MsgType  lwm2m.MessageType
	Path     lwm2m.Path
	Deadline time.Time

	done chan outcome // buffered, written exactly once
}

// Wait blocks until the request reaches its terminal state.
func (p *PendingRequest) Wait() (*lwm2m.Response, error) {
	out := <-p.done
	return out.resp, out.err
}

// PendingTable tracks in-flight commands. All mutation is serialized by a
// single mutex; entries leave the table on completion, expiry, or
// cancellation, and each entry resolves exactly once.
type PendingTable struct {
	mu   sync.Mutex
	byID map[int]*PendingRequest
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{byID: make(map[int]*PendingRequest)}
}

// Register inserts an entry for a newly issued command. It must be called
// before the command is published so a fast reply can't arrive unmatched.
func (t *PendingTable) Register(id int, endpoint string, msgType lwm2m.MessageType, path lwm2m.Path, deadline time.Time) *PendingRequest {
	entry := &PendingRequest{
		ID:       id,
		Endpoint: endpoint,
		MsgType:  msgType,
		Path:     path,
		Deadline: deadline,
		done:     make(chan outcome, 1),
	}
	t.mu.Lock()
	t.byID[id] = entry
	t.mu.Unlock()
	return entry
}

// Complete resolves the entry matching resp and removes it. When the
// response carries no identifier, a secondary match by endpoint, message
// type, and path is attempted, but only when exactly one outstanding entry
// matches; with several candidates the response stays unmatched rather
// than guessed. Returns the identifier of the resolved entry.
func (t *PendingTable) Complete(resp *lwm2m.Response) (int, bool) {
	t.mu.Lock()
	entry := t.lookup(resp)
	if entry != nil {
		delete(t.byID, entry.ID)
	}
	t.mu.Unlock()

	if entry == nil {
		return 0, false
	}
	entry.done <- outcome{resp: resp}
	return entry.ID, true
}

// lookup must run under t.mu.
func (t *PendingTable) lookup(resp *lwm2m.Response) *PendingRequest {
	if resp.ReqID != lwm2m.NoReqID {
		return t.byID[resp.ReqID]
	}
	var match *PendingRequest
	for _, entry := range t.byID {
		if entry.Endpoint == resp.Endpoint &&
			entry.MsgType == resp.MsgType &&
			entry.Path.String() == resp.ReqPath.String() {
			if match != nil {
				return nil // ambiguous, leave unmatched
			}
			match = entry
		}
	}
	return match
}

// CompleteObserve resolves a pending observe command by identifier. Used
// when the first notification doubles as the observe acknowledgment.
func (t *PendingTable) CompleteObserve(id int, resp *lwm2m.Response) bool {
	t.mu.Lock()
	entry, ok := t.byID[id]
	if ok && entry.MsgType != lwm2m.TypeObserve {
		entry, ok = nil, false
	}
	if ok {
		delete(t.byID, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.done <- outcome{resp: resp}
	return true
}

// Expire removes every entry whose deadline has passed and resolves its
// caller with ErrTimeout. It returns the identifiers released.
func (t *PendingTable) Expire(now time.Time) []int {
	t.mu.Lock()
	var expired []*PendingRequest
	for id, entry := range t.byID {
		if !entry.Deadline.After(now) {
			expired = append(expired, entry)
			delete(t.byID, id)
		}
	}
	t.mu.Unlock()

	ids := make([]int, 0, len(expired))
	for _, entry := range expired {
		entry.done <- outcome{err: errors.WrapTransient(
			errors.ErrTimeout, "PendingTable", "Expire", string(entry.MsgType)+" "+entry.Path.String())}
		ids = append(ids, entry.ID)
	}
	return ids
}

// Cancel removes an entry and resolves its caller with ErrCancelled.
// Returns false when the entry already reached a terminal state.
func (t *PendingTable) Cancel(id int) bool {
	t.mu.Lock()
	entry, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.done <- outcome{err: errors.ErrCancelled}
	return true
}

// CancelAll cancels every outstanding entry, used at shutdown.
func (t *PendingTable) CancelAll() []int {
	t.mu.Lock()
	entries := make([]*PendingRequest, 0, len(t.byID))
	for id, entry := range t.byID {
		entries = append(entries, entry)
		delete(t.byID, id)
	}
	t.mu.Unlock()

	ids := make([]int, 0, len(entries))
	for _, entry := range entries {
		entry.done <- outcome{err: errors.ErrCancelled}
		ids = append(ids, entry.ID)
	}
	return ids
}

// Len returns the number of in-flight commands.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
