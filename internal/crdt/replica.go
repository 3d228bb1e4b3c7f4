package crdt

import (
	"strings"
	"sync"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

// maxPendingPerDocument bounds the deferred-op queue (spec.md §7, §9):
// an op whose origin_left has not yet arrived waits here instead of being
// rejected. Unbounded growth indicates a peer never sent the missing op.
const maxPendingPerDocument = 4096

// pendingInsert is an insert buffered because its origin_left was not yet
// present locally (spec.md §7 UnknownOrigin: deferred, not rejected).
type pendingInsert struct {
	id         CharID
	content    rune
	originLeft CharID
}

// Replica holds one Document Replica's RGA sequence: an ordered, singly
// linked list of nodes headed by an implicit sentinel, plus an id index for
// O(1) lookup. Every public method is safe for concurrent use; callers that
// need insert+broadcast to be atomic (the CRDT Manager) take the coarser
// lock themselves — see Manager.
type Replica struct {
	mu      sync.RWMutex
	byID    map[CharID]*node
	head    *node // sentinel; head.id == Sentinel, never removed
	pending []pendingInsert
}

// NewReplica returns an empty Document Replica.
func NewReplica() *Replica {
	head := &node{id: Sentinel}
	return &Replica{
		byID: map[CharID]*node{Sentinel: head},
		head: head,
	}
}

// ApplyInsert integrates a (possibly remote) insert. It is idempotent: a
// second application of the same id is a silent no-op. If originLeft is not
// yet present, the op is deferred per spec.md §7 and retried after every
// later successful insert on this replica.
func (r *Replica) ApplyInsert(id CharID, content rune, originLeft CharID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyInsertLocked(id, content, originLeft)
	r.drainPendingLocked()
}

func (r *Replica) applyInsertLocked(id CharID, content rune, originLeft CharID) bool {
	if _, exists := r.byID[id]; exists {
		return true
	}

	anchor, ok := r.byID[originLeft]
	if !ok {
		r.pending = append(r.pending, pendingInsert{id: id, content: content, originLeft: originLeft})
		if len(r.pending) > maxPendingPerDocument {
			// Drop the oldest: a bound, not a correctness mechanism — a
			// well-behaved peer will have delivered the missing op long
			// before this queue could fill.
			r.pending = r.pending[1:]
		}
		return false
	}

	prev := anchor
	cur := anchor.next
	for cur != nil && cur.originLeft.Equal(originLeft) && id.Less(cur.id) {
		prev = cur
		cur = cur.next
	}

	n := &node{id: id, content: content, originLeft: originLeft}
	n.next = cur
	prev.next = n
	r.byID[id] = n
	return true
}

// drainPendingLocked retries deferred inserts whose origin has since
// arrived. It loops until a full pass makes no progress, because resolving
// one pending op can unblock another chained on it.
func (r *Replica) drainPendingLocked() {
	for {
		progressed := false
		remaining := r.pending[:0]
		batch := r.pending
		r.pending = nil
		for _, p := range batch {
			if r.applyInsertLocked(p.id, p.content, p.originLeft) {
				progressed = true
			} else {
				remaining = append(remaining, p)
			}
		}
		r.pending = remaining
		if !progressed || len(r.pending) == 0 {
			return
		}
	}
}

// ApplyDelete tombstones the node named by id. A no-op if id is unknown or
// already deleted.
func (r *Replica) ApplyDelete(id CharID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byID[id]; ok {
		n.deleted = true
	}
}

// ReadText concatenates the content of every non-deleted node in sequence
// order.
func (r *Replica) ReadText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for n := r.head.next; n != nil; n = n.next {
		if !n.deleted {
			sb.WriteRune(n.content)
		}
	}
	return sb.String()
}

// OriginForVisibleIndex returns the id of the i-th visible (non-deleted)
// node, or Sentinel when i==0. It is used to translate a user-visible
// insertion index into an origin_left. Returns ferr.IndexOutOfRange if i
// exceeds the number of visible characters.
func (r *Replica) OriginForVisibleIndex(i int) (CharID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i == 0 {
		return Sentinel, nil
	}
	visible := 0
	for n := r.head.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		visible++
		if visible == i {
			return n.id, nil
		}
	}
	return CharID{}, ferr.New(ferr.IndexOutOfRange, "visible index %d exceeds document length", i)
}

// TargetForVisibleIndex returns the id of the i-th visible node, for
// resolving a local delete by user-visible position.
func (r *Replica) TargetForVisibleIndex(i int) (CharID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	visible := 0
	for n := r.head.next; n != nil; n = n.next {
		if n.deleted {
			continue
		}
		if visible == i {
			return n.id, nil
		}
		visible++
	}
	return CharID{}, ferr.New(ferr.IndexOutOfRange, "visible index %d exceeds document length", i)
}

// PendingCount reports the number of deferred inserts awaiting their
// origin_left. Exposed for diagnostics (spec.md §9).
func (r *Replica) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
