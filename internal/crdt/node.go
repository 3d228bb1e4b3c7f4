package crdt

// node is one character in a Document Replica's sequence.
//
// OriginLeft is the id of the node that was immediately to the left of this
// character at the moment it was first inserted on its originating replica.
// It never changes, and may name a node that is now tombstoned — referencing
// ops must still resolve against it.
type node struct {
	id         CharID
	content    rune
	deleted    bool
	originLeft CharID
	next       *node
}
