// Package crdt implements the replicated-text primitive behind a document
// session: a sequence CRDT over uniquely identified characters with dense
// position paths and tombstoned deletes. Concurrent updates merge
// commutatively and idempotently, so replicas that see the same set of
// updates converge regardless of delivery order.
package crdt

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	// ErrMalformedUpdate reports an update that failed to decode or
	// validate. The document is left untouched.
	ErrMalformedUpdate = errors.New("malformed update")

	// ErrOutOfRange reports a local edit outside the visible text.
	ErrOutOfRange = errors.New("index out of range")
)

// ItemID uniquely identifies an inserted character across replicas.
type ItemID struct {
	Peer  string `cbor:"p"`
	Clock uint64 `cbor:"c"`
}

// Item is one character of the sequence. Items order by Pos, with ID as the
// tiebreak for concurrent allocations that landed on the same path.
type Item struct {
	ID    ItemID   `cbor:"id"`
	Pos   []uint32 `cbor:"pos"`
	Value string   `cbor:"v"`
}

// update is the wire form of both deltas and full-state snapshots. A full
// state is simply an update carrying every item and every tombstone, which
// makes hydration a plain merge.
type update struct {
	Inserts []Item   `cbor:"i,omitempty"`
	Deletes []ItemID `cbor:"d,omitempty"`
}

// Doc is a single replica. It is not goroutine safe; the owning session
// serializes all access.
type Doc struct {
	peer    string
	clock   uint64
	items   []Item
	seen    map[ItemID]struct{}
	removed map[ItemID]struct{}
}

// New returns an empty replica with a unique peer identity.
func New() *Doc {
	return &Doc{
		peer:    uuid.NewString(),
		seen:    make(map[ItemID]struct{}),
		removed: make(map[ItemID]struct{}),
	}
}

// ApplyUpdate merges an encoded update into the document. Malformed input
// fails atomically: the error is returned before any state changes.
func (d *Doc) ApplyUpdate(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var u update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	for _, it := range u.Inserts {
		if it.ID.Peer == "" || len(it.Pos) == 0 || it.Value == "" {
			return fmt.Errorf("%w: incomplete insert", ErrMalformedUpdate)
		}
	}
	for _, id := range u.Deletes {
		if id.Peer == "" {
			return fmt.Errorf("%w: incomplete delete", ErrMalformedUpdate)
		}
	}
	for _, it := range u.Inserts {
		d.insertItem(it)
	}
	for _, id := range u.Deletes {
		d.removed[id] = struct{}{}
	}
	return nil
}

// EncodeState returns the full document as a single mergeable update.
// Converged replicas produce byte-identical encodings. An empty document
// encodes to an empty slice.
func (d *Doc) EncodeState() []byte {
	if len(d.items) == 0 && len(d.removed) == 0 {
		return nil
	}
	u := update{Inserts: d.items, Deletes: d.sortedRemoved()}
	data, err := cbor.Marshal(u)
	if err != nil {
		// Marshalling in-memory items cannot fail with well-formed input.
		panic(err)
	}
	return data
}

// Text projects the visible characters to a plain string.
func (d *Doc) Text() string {
	var b strings.Builder
	for _, it := range d.items {
		if _, gone := d.removed[it.ID]; gone {
			continue
		}
		b.WriteString(it.Value)
	}
	return b.String()
}

// Len reports the number of visible characters.
func (d *Doc) Len() int {
	n := 0
	for _, it := range d.items {
		if _, gone := d.removed[it.ID]; !gone {
			n++
		}
	}
	return n
}

// InsertAt inserts s before the index-th visible character and returns the
// encoded update that reproduces the insertion on other replicas.
func (d *Doc) InsertAt(index int, s string) ([]byte, error) {
	if index < 0 || index > d.Len() {
		return nil, ErrOutOfRange
	}
	if s == "" {
		return nil, nil
	}
	left, right := d.neighbors(index)
	var inserts []Item
	for _, r := range s {
		d.clock++
		it := Item{
			ID:    ItemID{Peer: d.peer, Clock: d.clock},
			Pos:   posBetween(left, right),
			Value: string(r),
		}
		d.insertItem(it)
		inserts = append(inserts, it)
		left = it.Pos
	}
	data, err := cbor.Marshal(update{Inserts: inserts})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// DeleteAt removes n visible characters starting at index and returns the
// encoded update carrying the tombstones.
func (d *Doc) DeleteAt(index, n int) ([]byte, error) {
	if index < 0 || n < 0 || index+n > d.Len() {
		return nil, ErrOutOfRange
	}
	if n == 0 {
		return nil, nil
	}
	var ids []ItemID
	visible := 0
	for _, it := range d.items {
		if _, gone := d.removed[it.ID]; gone {
			continue
		}
		if visible >= index && visible < index+n {
			ids = append(ids, it.ID)
		}
		visible++
	}
	for _, id := range ids {
		d.removed[id] = struct{}{}
	}
	data, err := cbor.Marshal(update{Deletes: ids})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// insertItem places an item at its ordered slot, ignoring duplicates.
func (d *Doc) insertItem(it Item) {
	if _, ok := d.seen[it.ID]; ok {
		return
	}
	d.seen[it.ID] = struct{}{}
	idx := sort.Search(len(d.items), func(i int) bool {
		return compareItems(d.items[i], it) >= 0
	})
	d.items = append(d.items, Item{})
	copy(d.items[idx+1:], d.items[idx:])
	d.items[idx] = it
}

// neighbors returns the position paths surrounding the index-th visible
// character: the item to the left of the insertion point and the item
// currently occupying it. Either may be nil at the sequence edges.
func (d *Doc) neighbors(index int) (left, right []uint32) {
	visible := 0
	for _, it := range d.items {
		if _, gone := d.removed[it.ID]; gone {
			continue
		}
		if visible == index {
			right = it.Pos
			return left, right
		}
		left = it.Pos
		visible++
	}
	return left, nil
}

func (d *Doc) sortedRemoved() []ItemID {
	if len(d.removed) == 0 {
		return nil
	}
	ids := make([]ItemID, 0, len(d.removed))
	for id := range d.removed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Peer != ids[j].Peer {
			return ids[i].Peer < ids[j].Peer
		}
		return ids[i].Clock < ids[j].Clock
	})
	return ids
}

// posBetween allocates a position path strictly between l and r. Missing
// levels read as the minimum on the left and the maximum on the right; once
// a level clears the right bound, deeper levels only need to exceed l.
// When r does not exceed l (concurrent remote inserts can land two items on
// one path, ordered only by item id) no path between the two exists; the
// allocation then goes right of the shared path so the result stays
// strictly greater than l and the ordering stays total.
func posBetween(l, r []uint32) []uint32 {
	if comparePos(l, r) >= 0 {
		r = nil
	}
	var out []uint32
	bounded := true
	for i := 0; ; i++ {
		lv := uint32(0)
		if i < len(l) {
			lv = l[i]
		}
		rv := uint32(math.MaxUint32)
		if bounded && i < len(r) {
			rv = r[i]
		}
		if rv-lv > 1 {
			return append(out, lv+(rv-lv)/2)
		}
		out = append(out, lv)
		if lv < rv {
			bounded = false
		}
	}
}

func compareItems(a, b Item) int {
	if c := comparePos(a.Pos, b.Pos); c != 0 {
		return c
	}
	if a.ID.Peer != b.ID.Peer {
		if a.ID.Peer < b.ID.Peer {
			return -1
		}
		return 1
	}
	switch {
	case a.ID.Clock < b.ID.Clock:
		return -1
	case a.ID.Clock > b.ID.Clock:
		return 1
	}
	return 0
}

func comparePos(a, b []uint32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
