package crdt

import (
	"bytes"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestInsertAndDeleteLocal(t *testing.T) {
	d := New()
	if _, err := d.InsertAt(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := d.InsertAt(5, " world"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := d.Text(); got != "hello world" {
		t.Fatalf("unexpected text %q", got)
	}
	if _, err := d.DeleteAt(0, 6); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := d.Text(); got != "world" {
		t.Fatalf("unexpected text after delete %q", got)
	}
	if d.Len() != 5 {
		t.Fatalf("unexpected length %d", d.Len())
	}
}

func TestInsertAtMiddle(t *testing.T) {
	d := New()
	if _, err := d.InsertAt(0, "ac"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := d.InsertAt(1, "b"); err != nil {
		t.Fatalf("insert middle: %v", err)
	}
	if got := d.Text(); got != "abc" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestOutOfRangeEdits(t *testing.T) {
	d := New()
	if _, err := d.InsertAt(1, "x"); err == nil {
		t.Fatalf("expected out of range insert to fail")
	}
	if _, err := d.DeleteAt(0, 1); err == nil {
		t.Fatalf("expected out of range delete to fail")
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	a := New()
	b := New()

	u1, err := a.InsertAt(0, "shared")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.ApplyUpdate(u1); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b.Text() != "shared" {
		t.Fatalf("replica text %q", b.Text())
	}

	u2, err := b.DeleteAt(0, 2)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.ApplyUpdate(u2); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if a.Text() != "ared" {
		t.Fatalf("origin text %q", a.Text())
	}
}

func TestConvergenceUnderReordering(t *testing.T) {
	origin := New()
	var updates [][]byte
	for _, word := range []string{"alpha ", "beta ", "gamma"} {
		u, err := origin.InsertAt(origin.Len(), word)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		updates = append(updates, u)
	}
	del, err := origin.DeleteAt(0, 6)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	updates = append(updates, del)

	forward := New()
	for _, u := range updates {
		if err := forward.ApplyUpdate(u); err != nil {
			t.Fatalf("forward apply: %v", err)
		}
	}
	backward := New()
	for i := len(updates) - 1; i >= 0; i-- {
		if err := backward.ApplyUpdate(updates[i]); err != nil {
			t.Fatalf("backward apply: %v", err)
		}
	}

	if forward.Text() != backward.Text() {
		t.Fatalf("texts diverged: %q vs %q", forward.Text(), backward.Text())
	}
	if !bytes.Equal(forward.EncodeState(), backward.EncodeState()) {
		t.Fatalf("encoded states diverged")
	}
	if forward.Text() != origin.Text() {
		t.Fatalf("replicas diverged from origin: %q vs %q", forward.Text(), origin.Text())
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	a := New()
	u, err := a.InsertAt(0, "once")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	b := New()
	for i := 0; i < 3; i++ {
		if err := b.ApplyUpdate(u); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if b.Text() != "once" {
		t.Fatalf("duplicate applies mutated text: %q", b.Text())
	}
}

func TestFullStateHydration(t *testing.T) {
	a := New()
	if _, err := a.InsertAt(0, "persisted"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := a.DeleteAt(0, 3); err != nil {
		t.Fatalf("delete: %v", err)
	}

	b := New()
	if err := b.ApplyUpdate(a.EncodeState()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if b.Text() != "sisted" {
		t.Fatalf("hydrated text %q", b.Text())
	}
	if !bytes.Equal(a.EncodeState(), b.EncodeState()) {
		t.Fatalf("hydrated state differs from source")
	}
}

func TestEmptyDocEncodesEmpty(t *testing.T) {
	d := New()
	if state := d.EncodeState(); len(state) != 0 {
		t.Fatalf("expected empty state, got %d bytes", len(state))
	}
	if err := d.ApplyUpdate(nil); err != nil {
		t.Fatalf("empty apply: %v", err)
	}
}

func TestMalformedUpdateFailsAtomically(t *testing.T) {
	d := New()
	if _, err := d.InsertAt(0, "keep"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	before := d.Text()

	if err := d.ApplyUpdate([]byte("not cbor at all")); err == nil {
		t.Fatalf("expected decode error")
	}

	// Structurally valid CBOR whose insert is missing its identity must be
	// rejected without applying any sibling operation.
	bad := update{Inserts: []Item{
		{ID: ItemID{Peer: "p", Clock: 1}, Pos: []uint32{1}, Value: "x"},
		{Pos: []uint32{2}, Value: "y"},
	}}
	data := mustMarshal(t, bad)
	if err := d.ApplyUpdate(data); err == nil {
		t.Fatalf("expected validation error")
	}
	if d.Text() != before {
		t.Fatalf("malformed update mutated document: %q", d.Text())
	}
}

func mustMarshal(t *testing.T, u update) []byte {
	t.Helper()
	data, err := cbor.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestPosBetweenStaysStrictlyOrdered(t *testing.T) {
	cases := [][2][]uint32{
		{nil, nil},
		{{5}, {6}},
		{{5}, {5, 3}},
		{{5, 7}, {6}},
		{{math.MaxUint32 - 1}, nil},
	}
	for _, c := range cases {
		p := posBetween(c[0], c[1])
		if comparePos(p, c[0]) <= 0 {
			t.Fatalf("posBetween(%v, %v) = %v, not after left", c[0], c[1], p)
		}
		if c[1] != nil && comparePos(p, c[1]) >= 0 {
			t.Fatalf("posBetween(%v, %v) = %v, not before right", c[0], c[1], p)
		}
	}
}

func TestPosBetweenDegenerateBounds(t *testing.T) {
	shared := []uint32{4, 2}
	p := posBetween(shared, shared)
	if comparePos(p, shared) <= 0 {
		t.Fatalf("equal bounds must allocate after the shared path, got %v", p)
	}

	q := posBetween([]uint32{9}, []uint32{3})
	if comparePos(q, []uint32{9}) <= 0 {
		t.Fatalf("inverted bounds must still exceed the left path, got %v", q)
	}
}
