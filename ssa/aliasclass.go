/*
 * Copyright 2025 Nitro Project Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ssa

import (
    `fmt`
)

type _ClassKind uint8

const (
    _C_field _ClassKind = iota
    _C_index
)

/* AliasClass is the abstract key of a memory location family: the canonical
 * owner plus a nominal field slot, or the canonical buffer plus a byte range.
 * The element width participates in equality (a value must never be forwarded
 * between views of different widths) but not in interference, which is a pure
 * byte-range test. */
type AliasClass struct {
    kind _ClassKind
    root Reg
    slot Slot
    size uint8
    lo   int64
    hi   int64
    anyr bool
    idxr Reg
}

func (self AliasClass) String() string {
    switch self.kind {
        case _C_field: {
            return fmt.Sprintf("%s->%s", self.root, self.slot)
        }
        default: {
            if self.anyr {
                return fmt.Sprintf("%s[%s].u%d", self.root, self.idxr, self.size * 8)
            } else {
                return fmt.Sprintf("%s[%d:%d].u%d", self.root, self.lo, self.hi, self.size * 8)
            }
        }
    }
}

/* AliasRegistry assigns alias classes to memory accesses and decides the
 * interference of two classes, it is only valid after the classifier has
 * frozen every allocation identity. */
type AliasRegistry struct {
    du     *_DefUse
    info   *AliasInfo
    consts map[Reg]int64
}

func newAliasRegistry(cfg *CFG, du *_DefUse, info *AliasInfo) *AliasRegistry {
    return &AliasRegistry {
        du     : du,
        info   : info,
        consts : cfg.Consts(),
    }
}

/* canonicalBuf resolves a buffer reference through transparent wrappers and
 * displaced views, accumulating the byte displacement along the way. */
func (self *AliasRegistry) canonicalBuf(r Reg) (Reg, int64) {
    d := int64(0)
    for {
        def, ok := self.du.defs[r]
        if !ok {
            return r, d
        }
        switch p := def.(type) {
            case *IrBufView   : d += p.Disp; r = p.Buf
            case IrTransparent: r = *p.Wrapped()
            default           : return r, d
        }
    }
}

func (self *AliasRegistry) fieldClass(obj Reg, s Slot) AliasClass {
    return AliasClass {
        kind: _C_field,
        root: self.du.canon(obj),
        slot: s,
    }
}

/* indexClass computes the byte range addressed by an indexed access. An index
 * that does not resolve to a constant yields an unknown range covering the
 * whole buffer, keyed by the index register itself so that two accesses are
 * only considered the same location when they share the exact same index. */
func (self *AliasRegistry) indexClass(buf Reg, idx Reg, size uint8) AliasClass {
    root, disp := self.canonicalBuf(buf)
    ret := AliasClass {
        kind: _C_index,
        root: root,
        size: size,
    }
    if v, ok := self.consts[idx]; !ok {
        ret.anyr = true
        ret.idxr = idx
    } else {
        ret.lo = disp + v * int64(size)
        ret.hi = ret.lo + int64(size)
    }
    return ret
}

/* disjointRoots checks whether two owner references provably denote distinct
 * objects: two distinct allocation sites always do, and a never-stored
 * non-escaping allocation cannot be reached through any unrelated reference. */
func (self *AliasRegistry) disjointRoots(a Reg, b Reg) bool {
    if a == b {
        return false
    } else if self.info.isAlloc(a) && self.info.isAlloc(b) {
        return true
    } else {
        return self.info.unaliasedRoot(a) || self.info.unaliasedRoot(b)
    }
}

/* Interferes decides whether two classes could denote overlapping memory.
 * Field classes interfere only on the same nominal slot, indexed classes on a
 * half-open byte-range intersection, irrespective of element width. */
func (self *AliasRegistry) Interferes(a AliasClass, b AliasClass) bool {
    if a.kind != b.kind {
        return false
    } else if self.disjointRoots(a.root, b.root) {
        return false
    } else if a.kind == _C_field {
        return a.slot == b.slot
    } else if a.anyr || b.anyr {
        return true
    } else {
        return a.lo < b.hi && b.lo < a.hi
    }
}

/* survivesCall checks whether a record rooted at r stays valid across a call:
 * a callee cannot observe or mutate an allocation that never escapes. */
func (self *AliasRegistry) survivesCall(r Reg) bool {
    return self.info.Identity(r) == AliasNotAliased
}
