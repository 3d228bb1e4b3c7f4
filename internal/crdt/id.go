// Package crdt implements the Replicated Growable Array (RGA) sequence CRDT
// used for collaborative text editing, and the manager that owns one
// replica per document name.
package crdt

// CharID uniquely identifies one character node across every replica.
// Uniqueness is the minting replica's responsibility: each replica
// increments Clock strictly on every local insert before using it.
type CharID struct {
	SiteID string
	Clock  uint32
}

// Sentinel denotes "beginning of document". It is never minted by a
// replica and is not comparable with Less — callers must branch on
// IsSentinel first.
var Sentinel = CharID{SiteID: "", Clock: 0}

// IsSentinel reports whether id is the reserved "beginning of document" id.
func (id CharID) IsSentinel() bool {
	return id.Clock == 0 && id.SiteID == ""
}

// Less defines the strict total order used for RGA sibling tie-breaking:
// higher Clock wins, SiteID breaks ties. It is not a causal order and is
// only meaningful for two non-sentinel ids.
func (id CharID) Less(other CharID) bool {
	if id.Clock != other.Clock {
		return id.Clock < other.Clock
	}
	return id.SiteID < other.SiteID
}

// Equal reports whether id and other name the same character.
func (id CharID) Equal(other CharID) bool {
	return id.Clock == other.Clock && id.SiteID == other.SiteID
}
