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

package robin

// slotOps is the contract the table engine requires of a slot
// representation. A slot is either empty or holds a single entry: a key,
// the entry's probe distance, and, when the build caches hashes, the key's
// hash.
type slotOps[K comparable] interface {
	// alive reports whether the slot holds an entry.
	alive() bool
	// construct fills an empty slot with an entry. Calling it on an
	// occupied slot has no effect.
	construct(hash uintptr, dist uint16, key K)
	// destroy empties the slot, releasing the entry. Idempotent.
	destroy()
	// get returns the stored key. It panics on an empty slot.
	get() *K
	// dist and setDist access the entry's probe distance. Only valid on an
	// occupied slot.
	dist() uint16
	setDist(dist uint16)
	// cachedHash returns the entry's stored hash, if the slot keeps one.
	cachedHash() (uintptr, bool)
	// matches reports whether the slot holds key, pre-filtering on the
	// cached hash when one is present.
	matches(hash uintptr, key *K) bool
}

// slotPtr constrains a pointer to a slot representation. The engine stores
// []S but operates on *S, and threading the pointer type through as its
// own parameter lets the compiler resolve every slotOps call statically.
type slotPtr[S any, K comparable] interface {
	*S
	slotOps[K]
}

// Slot is the inline slot representation used by Set: the key is stored
// directly in the table's slot array. The zero value is an empty slot.
type Slot[K comparable] struct {
	hashCache
	key      K
	distance uint16
	occupied bool
}

func (s *Slot[K]) alive() bool {
	return s.occupied
}

func (s *Slot[K]) construct(hash uintptr, dist uint16, key K) {
	if s.occupied {
		return
	}
	s.storeHash(hash)
	s.key = key
	s.distance = dist
	s.occupied = true
}

func (s *Slot[K]) destroy() {
	// Zeroing drops any pointers held by the key.
	*s = Slot[K]{}
}

func (s *Slot[K]) get() *K {
	if !s.occupied {
		panic("robin: get of an empty slot")
	}
	return &s.key
}

func (s *Slot[K]) dist() uint16 {
	return s.distance
}

func (s *Slot[K]) setDist(dist uint16) {
	s.distance = dist
}

func (s *Slot[K]) matches(hash uintptr, key *K) bool {
	if h, ok := s.cachedHash(); ok && h != hash {
		return false
	}
	return s.key == *key
}

// node is the heap block backing one NodeSlot entry.
type node[K comparable] struct {
	hashCache
	key      K
	distance uint16
}

// NodeSlot is the indirect slot representation used by NodeSet: the slot
// array holds a pointer to a heap-allocated node owning the entry. Moving
// a NodeSlot during growth or a backward shift copies the pointer, never
// the key. The zero value is an empty slot.
type NodeSlot[K comparable] struct {
	n *node[K]
}

func (s *NodeSlot[K]) alive() bool {
	return s.n != nil
}

func (s *NodeSlot[K]) construct(hash uintptr, dist uint16, key K) {
	if s.n != nil {
		return
	}
	n := &node[K]{key: key, distance: dist}
	n.storeHash(hash)
	s.n = n
}

func (s *NodeSlot[K]) destroy() {
	// Dropping the pointer releases the node to the garbage collector.
	s.n = nil
}

func (s *NodeSlot[K]) get() *K {
	if s.n == nil {
		panic("robin: get of an empty slot")
	}
	return &s.n.key
}

func (s *NodeSlot[K]) dist() uint16 {
	return s.n.distance
}

func (s *NodeSlot[K]) setDist(dist uint16) {
	s.n.distance = dist
}

func (s *NodeSlot[K]) cachedHash() (uintptr, bool) {
	return s.n.cachedHash()
}

func (s *NodeSlot[K]) matches(hash uintptr, key *K) bool {
	if h, ok := s.n.cachedHash(); ok && h != hash {
		return false
	}
	return s.n.key == *key
}
