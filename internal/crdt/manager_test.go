package crdt

import "testing"

func TestManager_LocalInsertAdvancesClockStrictly(t *testing.T) {
	m := NewManager("A")
	before := m.Clock()
	if _, err := m.LocalInsert("doc", 0, 'H'); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Clock() <= before {
		t.Fatalf("expected clock to strictly increase, before=%d after=%d", before, m.Clock())
	}
}

func TestManager_LocalInsertAtZeroUsesSentinel(t *testing.T) {
	m := NewManager("A")
	op, err := m.LocalInsert("doc", 0, 'H')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !op.OriginLeft.IsSentinel() {
		t.Fatalf("expected sentinel origin on empty doc, got %v", op.OriginLeft)
	}
}

func TestManager_LocalInsertAppend(t *testing.T) {
	m := NewManager("A")
	first, _ := m.LocalInsert("doc", 0, 'H')
	second, err := m.LocalInsert("doc", 1, 'i')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.OriginLeft != first.NewID {
		t.Fatalf("append should anchor on previous char, got %v want %v", second.OriginLeft, first.NewID)
	}
	if got := m.Read("doc"); got != "Hi" {
		t.Fatalf("expected Hi, got %s", got)
	}
}

func TestManager_ApplyRemoteRaisesClockToAtLeastOpClock(t *testing.T) {
	m := NewManager("A")
	m.ApplyRemoteInsert("doc", CharID{"B", 42}, 'x', Sentinel)
	if m.Clock() < 42 {
		t.Fatalf("expected clock >= 42, got %d", m.Clock())
	}
}

func TestManager_SequentialReplicationConverges(t *testing.T) {
	// Scenario 1 (spec.md §8): A inserts H@0, i@1; B receives both in order.
	a := NewManager("A")
	b := NewManager("B")

	opH, _ := a.LocalInsert("doc", 0, 'H')
	opI, _ := a.LocalInsert("doc", 1, 'i')

	b.ApplyRemoteInsert("doc", opH.NewID, opH.Content, opH.OriginLeft)
	b.ApplyRemoteInsert("doc", opI.NewID, opI.Content, opI.OriginLeft)

	if a.Read("doc") != "Hi" || b.Read("doc") != "Hi" {
		t.Fatalf("expected both replicas at Hi, got a=%q b=%q", a.Read("doc"), b.Read("doc"))
	}
}

func TestManager_LocalDeleteResolvesVisibleIndex(t *testing.T) {
	m := NewManager("A")
	opH, _ := m.LocalInsert("doc", 0, 'H')
	m.LocalInsert("doc", 1, 'i')

	del, err := m.LocalDelete("doc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if del.TargetID != opH.NewID {
		t.Fatalf("expected delete to target H, got %v", del.TargetID)
	}
	if got := m.Read("doc"); got != "i" {
		t.Fatalf("expected i after deleting H, got %s", got)
	}
}

func TestValidateInsertContent(t *testing.T) {
	if _, err := ValidateInsertContent(""); err == nil {
		t.Fatalf("expected MalformedOp for empty content")
	}
	if _, err := ValidateInsertContent("ab"); err == nil {
		t.Fatalf("expected MalformedOp for multi-codepoint content")
	}
	r, err := ValidateInsertContent("é")
	if err != nil || r != 'é' {
		t.Fatalf("expected single codepoint é to validate, got %v err=%v", r, err)
	}
}
