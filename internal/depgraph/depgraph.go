// Package depgraph implements the dependency hasher & versioner (C4):
// a recursive content hash over a module's transitive specifier set,
// and the locator->version bookkeeping derived from it (spec §4.4).
package depgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/jamesdiacono/replete/internal/analyze"
	"github.com/jamesdiacono/replete/internal/cache"
	"github.com/jamesdiacono/replete/internal/locator"
)

// Source is the pair of external capabilities hashing needs: reading a
// module's text (ok is false for anything that isn't a readable
// file:// text-type module, folding spec §4.4's "returns undefined"
// condition into one check) and resolving a specifier against a
// parent locator.
type Source interface {
	Read(l locator.Locator) (src string, ok bool)
	Resolve(specifier string, parent locator.Locator) (locator.Locator, error)
}

// Hasher computes hash(locator) per spec §4.4, memoizing in-flight and
// completed computations (the "hashing_source" cache from §4.5) so
// concurrent callers for the same locator share one computation.
//
// Cyclic module graphs are handled by threading a per-traversal
// "visiting" set through the recursion: a child locator already an
// ancestor of the current call contributes a fixed sentinel to the
// digest instead of recursing again, which is what makes the
// computation converge on a cycle (see DESIGN.md Open Question 4 for
// why this doesn't use the cross-call memo to break cycles, and the
// known limitation that remains).
type Hasher struct {
	src  Source
	memo *cache.Memo[string, *string]
}

func NewHasher(src Source) *Hasher {
	return &Hasher{src: src, memo: cache.NewMemo[string, *string]()}
}

// Invalidate evicts l's memoized hash, so the next Hash call
// recomputes it from a fresh read — the "hashing_source" half of spec
// §4.5's file-change invalidation (reading and analyzing are the
// caller's own caches; see internal/core).
func (h *Hasher) Invalidate(l locator.Locator) {
	h.memo.Invalidate(l.String())
}

// Hash returns locator l's content hash, or nil ("undefined" in spec
// terms) if l isn't a readable file:// text-type module.
func (h *Hasher) Hash(l locator.Locator) *string {
	return h.hash(l, map[string]bool{})
}

func (h *Hasher) hash(l locator.Locator, visiting map[string]bool) *string {
	key := l.String()
	if visiting[key] {
		sentinel := "cycle:" + key
		return &sentinel
	}
	result, _ := h.memo.Get(key, func() (*string, error) {
		return h.computeHash(l, key, visiting), nil
	})
	return result
}

func (h *Hasher) computeHash(l locator.Locator, key string, visiting map[string]bool) *string {
	src, ok := h.src.Read(l)
	if !ok {
		return nil
	}
	a, err := analyze.Parse(src)
	if err != nil {
		return nil
	}

	childVisiting := make(map[string]bool, len(visiting)+1)
	for k := range visiting {
		childVisiting[k] = true
	}
	childVisiting[key] = true

	sum := sha256.New()
	sum.Write([]byte(src))
	for _, spec := range a.SpecifierSet() {
		childLoc, err := h.src.Resolve(spec, l)
		if err != nil {
			sum.Write([]byte("\x00undefined\x00"))
			continue
		}
		childHash := h.hash(childLoc, childVisiting)
		if childHash == nil {
			sum.Write([]byte("\x00undefined\x00"))
		} else {
			sum.Write([]byte(*childHash))
		}
	}
	result := hex.EncodeToString(sum.Sum(nil))
	return &result
}

// State is the per-instance record of known hashes and assigned
// version numbers (spec §3, §4.4 "versionize"). A single instance is
// shared by every concurrent caller of Versionize, guarded by a mutex
// (spec §9 "global mutable state as a single record").
type State struct {
	mu       sync.Mutex
	Tag      string
	Hashes   map[string]string
	Versions map[string]int
}

func NewState(tag string) *State {
	return &State{Tag: tag, Hashes: map[string]string{}, Versions: map[string]int{}}
}

// Versionize implements spec §4.4's versionize(locator): if hash is
// nil, l is returned unchanged (as a string). Otherwise the version
// counter for l is bumped if the hash changed since last time (or
// initialized to 0 the first time), and the versioned locator string
// is returned.
func (st *State) Versionize(l locator.Locator, hash *string) string {
	if hash == nil {
		return l.String()
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	key := l.String()
	old, present := st.Hashes[key]
	switch {
	case !present:
		st.Versions[key] = 0
	case old != *hash:
		st.Versions[key]++
	}
	st.Hashes[key] = *hash
	return locator.Version(st.Tag, st.Versions[key], l)
}
