// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package robin is a Go implementation of Robin Hood hashing as described
// in Pedro Celis' thesis
// (https://cs.uwaterloo.ca/research/tr/1986/CS-86-14.pdf). See also
// https://codecapsule.com/2013/11/11/robin-hood-hashing/ and
// https://codecapsule.com/2013/11/17/robin-hood-hashing-backward-shift-deletion/
// for a gentler introduction.
//
// # Robin Hood hashing
//
// Robin Hood tables are open-addressing hash tables: entries are stored in
// the slot array itself and collisions are resolved by probing, here with
// unit stride over a power-of-two sized array. Each entry remembers its
// probe distance, the number of slots between the slot it occupies and its
// preferred slot (hash mod capacity). Insertion's twist is slot theft: when
// probing passes an occupant whose probe distance is smaller than the
// probing entry's current distance, the occupant is rich (close to home),
// the new entry is poor (far from home), so the new entry takes the slot
// and the occupant is pushed onward and re-placed by the same rule. Robbing
// the rich to pay the poor minimizes the variance of probe distances,
// keeping worst-case lookups short even at high load factors.
//
// Deletion shifts backward rather than leaving tombstones: after a slot is
// emptied, subsequent entries that are not already in their preferred slot
// move back one position each, with their distances decremented, until an
// empty slot or a zero-distance entry terminates the run. The table is left
// exactly as if the deleted key had never been inserted, so performance
// does not degrade with delete-heavy workloads and lookups can stop at the
// first empty slot.
//
// Unsuccessful lookups are additionally bounded by the maximum probe
// distance at which any entry has come to rest: no entry lies beyond that
// distance from its preferred slot, so a probe that passes it can stop.
//
// # Implementation
//
// The table is a single flat slice of slots. Its capacity is always a power
// of two and at least 8, so preferred slots and probe positions are
// computed with a mask rather than a modulo. The load factor is kept at or
// below 3/4: an insert that would exceed that doubles the capacity and
// re-places every entry in the new array with freshly derived distances.
// Growth is the only time entries are rehashed, and with hash caching
// enabled (the default) even that rehash is avoided: slots store the key's
// hash alongside the key, which also lets probes skip most key comparisons.
// Building with the robin_nocachedhash tag compiles hash caching out,
// shrinking slots at the cost of rehashing during growth, a trade worth
// measuring only for cheaply hashed keys such as fixed-size integers.
//
// Two slot representations are provided and selected by the type of set
// constructed. Set stores entries inline in the slot array: zero per-entry
// allocations, but every entry is moved when the table grows. NodeSet
// stores a pointer per slot to a separately allocated node holding the
// entry: one allocation per insert, but growth and backward shifts move
// only pointers, which matters when keys are large or expensive to move.
//
// To support hashing of arbitrary key types, a hack is performed to extract
// the hash function from Go's implementation of map[K]struct{} by reaching
// into the internals of the type. (This might break in a future version of
// Go, but is likely fixable unless the Go runtime does something drastic).
//
// # Performance
//
// In rough terms, expect lookups to be comparable to Go's builtin map with
// a somewhat cheaper miss path due to the maximum-distance bound, inserts
// to be slightly slower due to displacement, and deletes to be faster than
// tombstone-based schemes under churn because the table never accumulates
// garbage. NodeSet trades insert throughput for cheap growth. As always,
// benchmark with your own key distribution before believing any of this.
package robin

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"
)

const debug = false

const (
	// minCapacity is the smallest slot array a table will use.
	minCapacity = 8
	// maxCapacity bounds growth. Doubling past it would overflow the
	// uintptr arithmetic used for slot indexes.
	maxCapacity = uintptr(1) << (bits.UintSize - 2)

	// The table grows when an insert would push the number of used slots
	// above maxLoadFactorNum/maxLoadFactorDen of capacity, keeping the load
	// factor at or below 3/4 after every insert.
	maxLoadFactorNum = 3
	maxLoadFactorDen = 4
)

// Set is an unordered collection of unique keys, implemented as a Robin
// Hood hash table with inline storage: keys live directly in the table's
// slot array and no per-entry allocation is performed. By default, a Set
// hashes keys with the same hash function the runtime uses for
// map[K]struct{}; the WithHash option overrides that.
//
// A Set is NOT goroutine-safe. Callers sharing one across goroutines must
// serialize all access, reads included.
//
// Any mutation (Insert, Delete, Clear, Close) invalidates references
// obtained from earlier calls, including keys observed by an in-progress
// All: growth relocates every entry and deletion shifts entries between
// slots.
//
// The zero value for a Set is not usable. Use New to construct one.
type Set[K comparable] struct {
	tbl table[K, Slot[K], *Slot[K]]
}

// New constructs a Set. The table's initial capacity is the smallest power
// of two greater than initialCapacity, and at least 8; pass 0 when no
// useful estimate exists.
func New[K comparable](initialCapacity int, options ...option[K, Slot[K]]) *Set[K] {
	s := &Set[K]{}
	s.tbl.init(initialCapacity, options)
	return s
}

// Of constructs a Set containing the given keys. Duplicates collapse to a
// single entry.
func Of[K comparable](keys ...K) *Set[K] {
	s := New[K](len(keys))
	for _, k := range keys {
		s.Insert(k)
	}
	return s
}

// Insert adds key to the set. It returns true if the key was added, and
// false if the set already contained it, in which case the set is
// unchanged.
func (s *Set[K]) Insert(key K) bool {
	return s.tbl.insert(key)
}

// Delete removes key from the set, reporting whether it was present.
// Deleting an absent key is a no-op.
func (s *Set[K]) Delete(key K) bool {
	return s.tbl.erase(key)
}

// Contains reports whether key is in the set.
func (s *Set[K]) Contains(key K) bool {
	return s.tbl.lookup(key)
}

// Count returns 1 if key is in the set and 0 otherwise.
func (s *Set[K]) Count(key K) int {
	if s.tbl.lookup(key) {
		return 1
	}
	return 0
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return s.tbl.used
}

// Cap returns the current capacity of the set's slot array.
func (s *Set[K]) Cap() int {
	return len(s.tbl.slots)
}

// LoadFactor returns the ratio of stored keys to slot capacity. It never
// exceeds 0.75.
func (s *Set[K]) LoadFactor() float64 {
	return s.tbl.loadFactor()
}

// Clear removes all keys, retaining the current capacity.
func (s *Set[K]) Clear() {
	s.tbl.clear()
}

// Close releases the set's memory back to its configured allocator. It is
// unnecessary to close a Set using the default allocator. It is invalid to
// use a Set after calling Close, though Close itself is idempotent.
func (s *Set[K]) Close() {
	s.tbl.close()
}

// All calls yield for every key in the set, stopping early if yield
// returns false. Iteration is in slot order, which is neither insertion
// order nor stable across mutations, and like any reference into the table
// it is invalidated by Insert, Delete, Clear, or Close.
func (s *Set[K]) All(yield func(key K) bool) {
	s.tbl.all(yield)
}

// NodeSet is a Set variant that stores each entry in a separately
// allocated node, with the table's slot array holding only pointers.
// Inserts pay one heap allocation, but growth and deletion move pointers
// rather than keys, so NodeSet is preferable when keys are large.
//
// A NodeSet is NOT goroutine-safe, and the reference invalidation contract
// of Set applies equally.
//
// The zero value for a NodeSet is not usable. Use NewNodeSet to construct
// one.
type NodeSet[K comparable] struct {
	tbl table[K, NodeSlot[K], *NodeSlot[K]]
}

// NewNodeSet constructs a NodeSet. The table's initial capacity is the
// smallest power of two greater than initialCapacity, and at least 8.
func NewNodeSet[K comparable](initialCapacity int, options ...option[K, NodeSlot[K]]) *NodeSet[K] {
	s := &NodeSet[K]{}
	s.tbl.init(initialCapacity, options)
	return s
}

// Insert adds key to the set. It returns true if the key was added, and
// false if the set already contained it, in which case the set is
// unchanged.
func (s *NodeSet[K]) Insert(key K) bool {
	return s.tbl.insert(key)
}

// Delete removes key from the set, reporting whether it was present.
// Deleting an absent key is a no-op.
func (s *NodeSet[K]) Delete(key K) bool {
	return s.tbl.erase(key)
}

// Contains reports whether key is in the set.
func (s *NodeSet[K]) Contains(key K) bool {
	return s.tbl.lookup(key)
}

// Count returns 1 if key is in the set and 0 otherwise.
func (s *NodeSet[K]) Count(key K) int {
	if s.tbl.lookup(key) {
		return 1
	}
	return 0
}

// Len returns the number of keys in the set.
func (s *NodeSet[K]) Len() int {
	return s.tbl.used
}

// Cap returns the current capacity of the set's slot array.
func (s *NodeSet[K]) Cap() int {
	return len(s.tbl.slots)
}

// LoadFactor returns the ratio of stored keys to slot capacity. It never
// exceeds 0.75.
func (s *NodeSet[K]) LoadFactor() float64 {
	return s.tbl.loadFactor()
}

// Clear removes all keys, retaining the current capacity. The entries'
// nodes are released to the garbage collector.
func (s *NodeSet[K]) Clear() {
	s.tbl.clear()
}

// Close releases the set's memory back to its configured allocator. It is
// unnecessary to close a NodeSet using the default allocator. It is
// invalid to use a NodeSet after calling Close, though Close itself is
// idempotent.
func (s *NodeSet[K]) Close() {
	s.tbl.close()
}

// All calls yield for every key in the set, stopping early if yield
// returns false. Iteration is in slot order, which is neither insertion
// order nor stable across mutations, and like any reference into the table
// it is invalidated by Insert, Delete, Clear, or Close.
func (s *NodeSet[K]) All(yield func(key K) bool) {
	s.tbl.all(yield)
}

// table implements the Robin Hood hash table underlying Set and NodeSet:
// open addressing with unit-stride probing, slot theft on insert, backward
// shifting on delete. The slot representation is fixed at instantiation
// through the S and PS type parameters; the engine manipulates slots only
// through the slotOps methods on PS, so it never touches keys or nodes
// directly.
type table[K comparable, S any, PS slotPtr[S, K]] struct {
	config[S]
	// slots is the backing array. Its length is always a power of two and
	// at least minCapacity, so probe positions are computed with a mask.
	slots []S
	// The number of occupied slots.
	used int
	// The largest probe distance at which any entry has come to rest since
	// the last resize or clear. Deletion does not lower it, so it is an
	// upper bound, not a maximum: lookups scan at most maxDist+1 slots.
	maxDist uint16
}

func (t *table[K, S, PS]) init(initialCapacity int, options []option[K, S]) {
	t.hash = getRuntimeHasher[K]()
	t.seed = uintptr(fastrand64())
	t.alloc = defaultAllocator[S]{}
	for _, op := range options {
		op.apply(&t.config)
	}
	t.slots = t.alloc.Alloc(int(startCapacity(initialCapacity)))
	t.checkInvariants()
}

func (t *table[K, S, PS]) mask() uintptr {
	return uintptr(len(t.slots) - 1)
}

func (t *table[K, S, PS]) hashKey(key *K) uintptr {
	return t.hash(noescape(unsafe.Pointer(key)), t.seed)
}

// slotHash returns the hash of the entry in an occupied slot, using the
// cached copy when the slot stores one.
func (t *table[K, S, PS]) slotHash(s PS) uintptr {
	if h, ok := s.cachedHash(); ok {
		return h
	}
	return t.hashKey(s.get())
}

func (t *table[K, S, PS]) recordDist(d uint16) {
	if d > t.maxDist {
		t.maxDist = d
	}
}

// insert adds key to the table if not already present, returning true if
// it was added. The probe walks the key's sequence until it finds the key,
// an empty slot, or a richer occupant to displace.
func (t *table[K, S, PS]) insert(key K) bool {
	if t.growthRequired() {
		t.grow()
	}
	h := t.hashKey(&key)
	seq := makeProbeSeq(h, t.mask())
	if debug {
		fmt.Printf("insert(%v): %s\n", key, seq)
	}

	for dist := uint16(0); ; dist, seq = dist+1, seq.next() {
		s := PS(&t.slots[seq.offset])
		if !s.alive() {
			s.construct(h, dist, key)
			t.used++
			t.recordDist(dist)
			t.checkInvariants()
			return true
		}
		if s.matches(h, &key) {
			return false
		}
		if dist > s.dist() {
			// The occupant is closer to its preferred slot than the new key
			// is to its own. Take the slot and re-place the occupant.
			displaced := t.slots[seq.offset]
			s.destroy()
			s.construct(h, dist, key)
			t.recordDist(dist)
			t.recordDist(t.reinsert(t.slots, displaced))
			t.used++
			t.checkInvariants()
			return true
		}
	}
}

// reinsert places an already-constructed slot into slots, continuing the
// displacement chain until it terminates in an empty slot. The entry's
// probe distance is trusted: probing resumes that many steps into its
// sequence rather than from its preferred slot. It returns the largest
// distance at which any entry in the chain came to rest.
func (t *table[K, S, PS]) reinsert(slots []S, v S) uint16 {
	pv := PS(&v)
	mask := uintptr(len(slots) - 1)
	seq := makeProbeSeq(t.slotHash(pv), mask).advance(uintptr(pv.dist()))
	if debug {
		fmt.Printf("reinsert(%v): dist=%d %s\n", *pv.get(), pv.dist(), seq)
	}
	var maxRest uint16
	for {
		s := PS(&slots[seq.offset])
		if !s.alive() {
			if d := pv.dist(); d > maxRest {
				maxRest = d
			}
			slots[seq.offset] = v
			return maxRest
		}
		if pv.dist() > s.dist() {
			if d := pv.dist(); d > maxRest {
				maxRest = d
			}
			v, slots[seq.offset] = slots[seq.offset], v
		}
		pv.setDist(pv.dist() + 1)
		seq = seq.next()
	}
}

// lookup reports whether key is in the table. The probe stops at the first
// empty slot, or after maxDist+1 slots: no entry rests farther than that
// from its preferred slot.
func (t *table[K, S, PS]) lookup(key K) bool {
	h := t.hashKey(&key)
	seq := makeProbeSeq(h, t.mask())
	for rem := int(t.maxDist) + 1; rem > 0; rem, seq = rem-1, seq.next() {
		s := PS(&t.slots[seq.offset])
		if !s.alive() {
			return false
		}
		if s.matches(h, &key) {
			return true
		}
	}
	return false
}

// erase removes key from the table, reporting whether it was present.
// Removal shifts the entries following the vacated slot backward rather
// than leaving a tombstone, so the table ends up exactly as if the key had
// never been inserted.
func (t *table[K, S, PS]) erase(key K) bool {
	h := t.hashKey(&key)
	seq := makeProbeSeq(h, t.mask())
	if debug {
		fmt.Printf("erase(%v): %s\n", key, seq)
	}

	for rem := int(t.maxDist) + 1; rem > 0; rem, seq = rem-1, seq.next() {
		s := PS(&t.slots[seq.offset])
		if !s.alive() {
			return false
		}
		if !s.matches(h, &key) {
			continue
		}
		s.destroy()
		// Backward shift: each successor that is out of its preferred slot
		// moves one position toward home with its distance decremented. An
		// empty slot or a zero-distance entry ends the run.
		for {
			next := seq.offsetAt(1)
			ns := PS(&t.slots[next])
			if !ns.alive() || ns.dist() == 0 {
				break
			}
			ns.setDist(ns.dist() - 1)
			t.slots[seq.offset] = t.slots[next]
			PS(&t.slots[next]).destroy()
			seq = seq.next()
		}
		t.used--
		t.checkInvariants()
		return true
	}
	return false
}

// clear removes all entries, retaining the slot array.
func (t *table[K, S, PS]) clear() {
	for i := range t.slots {
		PS(&t.slots[i]).destroy()
	}
	t.used = 0
	t.maxDist = 0
	t.checkInvariants()
}

// close returns the slot array to the allocator. The table is unusable
// afterwards.
func (t *table[K, S, PS]) close() {
	if t.slots != nil {
		t.alloc.Free(t.slots)
		t.slots = nil
	}
	t.used = 0
	t.maxDist = 0
}

// all calls yield for each entry until yield returns false. It iterates
// over the slot array as it was when the call started: a growth triggered
// by the caller mid-iteration walks the old array, it does not stray into
// the new one.
func (t *table[K, S, PS]) all(yield func(key K) bool) {
	slots := t.slots
	for i := range slots {
		s := PS(&slots[i])
		if s.alive() && !yield(*s.get()) {
			return
		}
	}
}

func (t *table[K, S, PS]) loadFactor() float64 {
	if len(t.slots) == 0 {
		return 0
	}
	return float64(t.used) / float64(len(t.slots))
}

func (t *table[K, S, PS]) growthRequired() bool {
	return maxLoadFactorDen*(t.used+1) > maxLoadFactorNum*len(t.slots)
}

func (t *table[K, S, PS]) grow() {
	t.resize(nextCapacity(uintptr(len(t.slots))))
}

// resize moves every entry into a freshly allocated slot array of the
// given capacity, re-deriving probe distances from scratch. The array swap
// is the last step: if the allocator panics, the table is still intact.
func (t *table[K, S, PS]) resize(newCapacity uintptr) {
	if debug {
		fmt.Printf("resize: capacity=%d new-capacity=%d used=%d\n",
			len(t.slots), newCapacity, t.used)
	}
	newSlots := t.alloc.Alloc(int(newCapacity))
	var maxDist uint16
	for i := range t.slots {
		s := PS(&t.slots[i])
		if !s.alive() {
			continue
		}
		// Re-placement order does not matter: the same Robin Hood layout
		// invariant holds regardless of the order entries arrive in.
		s.setDist(0)
		if d := t.reinsert(newSlots, t.slots[i]); d > maxDist {
			maxDist = d
		}
	}
	oldSlots := t.slots
	t.slots = newSlots
	t.maxDist = maxDist
	t.alloc.Free(oldSlots)
	t.checkInvariants()
}

func (t *table[K, S, PS]) checkInvariants() {
	if invariants {
		if n := len(t.slots); n < minCapacity || n&(n-1) != 0 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of 2 >= %d", n, minCapacity))
		}
		var used int
		for i := range t.slots {
			s := PS(&t.slots[i])
			if !s.alive() {
				continue
			}
			used++
			d := s.dist()
			if d > t.maxDist {
				panic(fmt.Sprintf("invariant failed: slot(%d): distance %d exceeds bound %d\n%s",
					i, d, t.maxDist, t.debugString()))
			}
			h := t.hashKey(s.get())
			if cachedHashes {
				if ch, _ := s.cachedHash(); ch != h {
					panic(fmt.Sprintf("invariant failed: slot(%d): cached hash %08x, but key hashes to %08x\n%s",
						i, ch, h, t.debugString()))
				}
			}
			if rest := (h + uintptr(d)) & t.mask(); rest != uintptr(i) {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v has distance %d, but hash+distance lands at %d\n%s",
					i, *s.get(), d, rest, t.debugString()))
			}
			if d > 0 {
				prev := PS(&t.slots[(uintptr(i)-1)&t.mask()])
				if !prev.alive() || prev.dist() < d-1 {
					panic(fmt.Sprintf("invariant failed: slot(%d): distance %d entry preceded by a poorer slot\n%s",
						i, d, t.debugString()))
				}
			}
			// Every stored key must be reachable through lookup.
			if !t.lookup(*s.get()) {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v cannot be found by lookup\n%s",
					i, *s.get(), t.debugString()))
			}
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d occupied slots, but used is %d\n%s",
				used, t.used, t.debugString()))
		}
	}
}

func (t *table[K, S, PS]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  max-distance=%d\n", len(t.slots), t.used, t.maxDist)
	for i := range t.slots {
		s := PS(&t.slots[i])
		if s.alive() {
			fmt.Fprintf(&buf, "  %4d: %v [distance=%d hash=%08x]\n", i, *s.get(), s.dist(), t.slotHash(s))
		} else {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		}
	}
	return buf.String()
}

// startCapacity returns the initial slot array capacity for a size hint:
// the smallest power of two that is both at least minCapacity and strictly
// greater than the hint.
func startCapacity(sizeHint int) uintptr {
	if sizeHint < minCapacity {
		return minCapacity
	}
	return uintptr(1) << bits.Len(uint(sizeHint))
}

// nextCapacity returns the capacity for one growth step. Growth doubles;
// past maxCapacity the index arithmetic would overflow, which is not
// recoverable.
func nextCapacity(current uintptr) uintptr {
	if current >= maxCapacity {
		panic("robin: table capacity overflow")
	}
	return 2 * current
}

// probeSeq maintains the state for a probe sequence that iterates the
// slots of a power-of-two sized table with unit stride:
//
//	p(i) := (hash + i) (mod mask+1)
//
// The sequence visits every slot exactly once over mask+1 steps. Unit
// stride is what makes backward-shift deletion work: the entries displaced
// by any key form a contiguous run following its preferred slot, so a
// deletion only ever moves entries one slot back within that run.
type probeSeq struct {
	mask   uintptr
	offset uintptr
	index  uintptr
}

func makeProbeSeq(hash, mask uintptr) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: hash & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + 1) & s.mask
	return s
}

// advance returns the sequence moved k steps forward, equivalent to k
// calls of next.
func (s probeSeq) advance(k uintptr) probeSeq {
	s.index += k
	s.offset = (s.offset + k) & s.mask
	return s
}

func (s probeSeq) offsetAt(i uintptr) uintptr {
	return (s.offset + i) & s.mask
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}
