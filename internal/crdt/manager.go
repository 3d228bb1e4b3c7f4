package crdt

import (
	"sync"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

// InsertOp is what Manager.LocalInsert returns for the caller to broadcast.
type InsertOp struct {
	DocName    string
	NewID      CharID
	OriginLeft CharID
	Content    rune
}

// DeleteOp is what Manager.LocalDelete returns for the caller to broadcast.
type DeleteOp struct {
	DocName  string
	TargetID CharID
}

// Manager owns a set of Document Replicas keyed by name, plus the single
// site id and logical clock used to mint new character ids. It is the only
// place the clock advances; replicas themselves are passive stores
// (spec.md §4.3).
//
// The manager lock is held across the entirety of a local op or a remote
// apply (spec.md §5): the RGA insertion scan is not safe against concurrent
// mutation of the same replica, and advancing the clock must stay atomic
// with the insert that consumes it.
type Manager struct {
	mu     sync.Mutex
	siteID string
	clock  uint32
	docs   map[string]*Replica
}

// NewManager returns a Manager identified by siteID. siteID must be unique
// across the whole deployment; it is the high half of every id this
// manager mints.
func NewManager(siteID string) *Manager {
	return &Manager{siteID: siteID, docs: make(map[string]*Replica)}
}

// SiteID returns this manager's replica identity.
func (m *Manager) SiteID() string { return m.siteID }

func (m *Manager) docLocked(name string) *Replica {
	d, ok := m.docs[name]
	if !ok {
		d = NewReplica()
		m.docs[name] = d
	}
	return d
}

// LocalInsert mints a new character id, resolves origin_left from the
// user-visible index, applies it locally, and returns the op to broadcast.
func (m *Manager) LocalInsert(doc string, visibleIndex int, content rune) (InsertOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.docLocked(doc)
	origin, err := d.OriginForVisibleIndex(visibleIndex)
	if err != nil {
		return InsertOp{}, err
	}

	m.clock++
	id := CharID{SiteID: m.siteID, Clock: m.clock}
	d.ApplyInsert(id, content, origin)

	return InsertOp{DocName: doc, NewID: id, OriginLeft: origin, Content: content}, nil
}

// LocalDelete resolves the i-th visible character and tombstones it,
// returning the op to broadcast.
func (m *Manager) LocalDelete(doc string, visibleIndex int) (DeleteOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.docLocked(doc)
	target, err := d.TargetForVisibleIndex(visibleIndex)
	if err != nil {
		return DeleteOp{}, err
	}
	d.ApplyDelete(target)
	return DeleteOp{DocName: doc, TargetID: target}, nil
}

// ApplyRemoteInsert applies a remote insert and raises the local clock to
// at least the op's clock (Lamport-style, spec.md §3/§9).
func (m *Manager) ApplyRemoteInsert(doc string, id CharID, content rune, originLeft CharID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docLocked(doc)
	d.ApplyInsert(id, content, originLeft)
	if id.Clock > m.clock {
		m.clock = id.Clock
	}
}

// ApplyRemoteDelete applies a remote delete. Deletes carry no clock of
// their own in this protocol (spec.md §4.4), so they do not advance the
// manager's clock.
func (m *Manager) ApplyRemoteDelete(doc string, targetID CharID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docLocked(doc)
	d.ApplyDelete(targetID)
}

// Read returns the current visible text of doc.
func (m *Manager) Read(doc string) string {
	m.mu.Lock()
	d := m.docLocked(doc)
	m.mu.Unlock()
	return d.ReadText()
}

// Clock returns the manager's current logical clock value. Exercised by
// the monotonic-clock property tests (spec.md §8).
func (m *Manager) Clock() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// ValidateInsertContent enforces spec.md §7's MalformedOp rule for wire
// inserts: content must be exactly one codepoint.
func ValidateInsertContent(s string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, ferr.New(ferr.MalformedOp, "insert content must be exactly one codepoint, got %d", len(runes))
	}
	return runes[0], nil
}

// ValidateDeleteTarget enforces spec.md §7's MalformedOp rule for wire
// deletes: a DELETE must name a target.
func ValidateDeleteTarget(siteID string) error {
	if siteID == "" {
		return ferr.New(ferr.MalformedOp, "delete op missing target")
	}
	return nil
}
