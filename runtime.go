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

// hashFn matches the signature of the hash functions the Go runtime uses
// for its map implementation: a pointer to the key and a seed.
type hashFn func(unsafe.Pointer, uintptr) uintptr

// getRuntimeHasher returns the hash function the runtime would use for a
// map[K]struct{}, extracted by reaching into the map's type descriptor.
func getRuntimeHasher[K comparable]() hashFn {
	var m map[K]struct{}
	a := any(m)
	return (*mapIface)(unsafe.Pointer(&a)).typ.hasher
}

// mapIface mirrors the runtime layout of an empty interface holding a map
// value.
type mapIface struct {
	typ *mapType
	val unsafe.Pointer
}

// mapType mirrors internal/abi.MapType. It must be kept in sync with the
// runtime's definition.
type mapType struct {
	rtype
	key    *rtype
	elem   *rtype
	bucket *rtype
	// hasher computes the hash of the key at the supplied pointer, mixed
	// with seed.
	hasher     hashFn
	keySize    uint8
	valueSize  uint8
	bucketSize uint16
	flags      uint32
}

// rtype mirrors internal/abi.Type. It must be kept in sync with the
// runtime's definition.
type rtype struct {
	size       uintptr
	ptrBytes   uintptr
	hash       uint32
	tflag      uint8
	align      uint8
	fieldAlign uint8
	kind       uint8
	equal      func(unsafe.Pointer, unsafe.Pointer) bool
	gcData     *byte
	str        int32
	ptrToThis  int32
}

//go:linkname fastrand64 runtime.fastrand64
func fastrand64() uint64

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
