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

import "unsafe"

// config holds the table settings that options can override. S is the slot
// representation of the set being configured: Slot[K] for a Set[K],
// NodeSlot[K] for a NodeSet[K].
type config[S any] struct {
	hash  hashFn
	seed  uintptr
	alloc Allocator[S]
}

// option provide an interface to do work on a set while it is being
// created.
type option[K comparable, S any] interface {
	apply(c *config[S])
}

type hashOption[K comparable, S any] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K, S]) apply(c *config[S]) {
	c.hash = *(*hashFn)(noescape(unsafe.Pointer(&op.hash)))
}

// WithHash is an option to specify the hash function to use for a Set[K]
// or NodeSet[K].
func WithHash[K comparable, S any](hash func(key *K, seed uintptr) uintptr) option[K, S] {
	return hashOption[K, S]{hash}
}

// Allocator specifies an interface for allocating and releasing memory
// used by a table. The default allocator utilizes Go's builtin make() and
// allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slot
// arrays be freed then Set.Close or NodeSet.Close must be called in order
// to ensure Free is called.
type Allocator[S any] interface {
	// Alloc should return a slice equivalent to make([]S, n). Every slot
	// in the returned slice must be empty: an allocator that recycles
	// arrays has to zero them.
	Alloc(n int) []S

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []S)
}

type defaultAllocator[S any] struct{}

func (defaultAllocator[S]) Alloc(n int) []S {
	return make([]S, n)
}

func (defaultAllocator[S]) Free(v []S) {
}

type allocatorOption[K comparable, S any] struct {
	alloc Allocator[S]
}

func (op allocatorOption[K, S]) apply(c *config[S]) {
	c.alloc = op.alloc
}

// WithAllocator is an option for specify the Allocator to use for a Set[K]
// or NodeSet[K].
func WithAllocator[K comparable, S any](alloc Allocator[S]) option[K, S] {
	return allocatorOption[K, S]{alloc}
}

// CountingAllocator is an Allocator that counts the slot arrays it hands
// out and takes back. Tables keep no global allocation statistics; inject
// a CountingAllocator into a table to observe its growth.
type CountingAllocator[S any] struct {
	allocs int
	frees  int
}

func (a *CountingAllocator[S]) Alloc(n int) []S {
	a.allocs++
	return make([]S, n)
}

func (a *CountingAllocator[S]) Free(v []S) {
	a.frees++
}

// Allocs returns the number of slot arrays allocated.
func (a *CountingAllocator[S]) Allocs() int {
	return a.allocs
}

// Frees returns the number of slot arrays freed.
func (a *CountingAllocator[S]) Frees() int {
	return a.frees
}

// Live returns the number of slot arrays allocated and not yet freed.
func (a *CountingAllocator[S]) Live() int {
	return a.allocs - a.frees
}
