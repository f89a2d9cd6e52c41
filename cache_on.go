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

//go:build !robin_nocachedhash

package robin

// cachedHashes reports whether slots carry a copy of their key's hash.
const cachedHashes = true

// hashCache embeds the cached hash into a slot or node. Probes use it to
// skip key comparisons on mismatched hashes, and growth uses it to avoid
// rehashing every key.
type hashCache struct {
	hash uintptr
}

func (c *hashCache) storeHash(h uintptr) {
	c.hash = h
}

func (c *hashCache) cachedHash() (uintptr, bool) {
	return c.hash, true
}
