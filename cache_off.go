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

//go:build robin_nocachedhash

package robin

// Hash caching is compiled out: slots carry no hash field, probes compare
// keys directly, and growth rehashes every key. Worth it only when hashing
// is cheap relative to the slot size, as with fixed-size integer keys.
const cachedHashes = false

type hashCache struct{}

func (c *hashCache) storeHash(uintptr) {}

func (c *hashCache) cachedHash() (uintptr, bool) {
	return 0, false
}
