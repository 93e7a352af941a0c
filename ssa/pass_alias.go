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
    `github.com/oleiade/lane`
)

type AliasIdentity uint8

const (
    AliasUnknown AliasIdentity = iota
    AliasNotAliased
    AliasAliased
)

func (self AliasIdentity) String() string {
    switch self {
        case AliasUnknown    : return "unknown"
        case AliasNotAliased : return "not-aliased"
        case AliasAliased    : return "aliased"
        default              : panic("unreachable")
    }
}

/* _LiteClass is the location key used during classification, before byte
 * ranges can be resolved: a field slot, or "some indexed range". */
type _LiteClass struct {
    idx  bool
    slot Slot
}

/* interferes is deliberately coarse, the real byte-range test lives in the
 * alias-class registry, which only runs after identities are frozen. */
func (self _LiteClass) interferes(other _LiteClass) bool {
    if self.idx || other.idx {
        return self.idx == other.idx
    } else {
        return self.slot == other.slot
    }
}

type _StoreEdge struct {
    c _LiteClass
    v Reg
}

type _LoadEdge struct {
    c _LiteClass
    r Reg
}

/* AliasInfo is the side table produced by the classifier, allocation
 * identities are frozen once classification completes. */
type AliasInfo struct {
    id     map[Reg]AliasIdentity
    stored map[Reg]bool
}

/* Identity reports the aliasing identity of an allocation-site register, or
 * AliasUnknown for anything that is not an allocation. */
func (self *AliasInfo) Identity(r Reg) AliasIdentity {
    return self.id[r]
}

/* unaliasedRoot checks whether r names a non-escaping allocation that was
 * never stored into any container, such an object cannot be reached through
 * any other reference. */
func (self *AliasInfo) unaliasedRoot(r Reg) bool {
    return self.id[r] == AliasNotAliased && !self.stored[r]
}

func (self *AliasInfo) isAlloc(r Reg) bool {
    _, ok := self.id[r]
    return ok
}

/* AliasClassifier resolves the aliasing identity of every heap allocation of
 * the graph before redundancy elimination consumes it.
 *
 * An allocation stays not-aliased as long as its address is only ever used by
 * loads and stores on the object itself, possibly through transparent
 * wrappers. Passing it to a call, returning it, merging it through a phi, or
 * storing it into an escaping container makes it aliased. Storing it into
 * another non-escaping container keeps it non-aliased until either the
 * container escapes or a load that may read it back escapes, so the final
 * answer needs a fixed point rather than a single forward pass. */
type AliasClassifier struct{}

func (self AliasClassifier) classify(cfg *CFG) *AliasInfo {
    du := defuse(cfg)
    escaped := make(map[Reg]bool)
    stored := make(map[Reg]bool)
    allocs := make(map[Reg]IrNode)
    loads := make(map[Reg][]_LoadEdge)
    stores := make(map[Reg][]_StoreEdge)
    loadsite := make(map[Reg]_LoadEdge)
    loadhost := make(map[Reg]Reg)

    /* escalation worklist */
    q := lane.NewQueue()
    escalate := func(r Reg) {
        if r.Kind() != _K_zero && !escaped[r] {
            escaped[r] = true
            q.Enqueue(r)
        }
    }

    /* mark a use that is not one of the recognized safe forms */
    unsafeuse := func(r Reg) {
        escalate(du.canon(r))
    }

    /* Phase 1: collect allocation sites, load/store edges, and immediately
     *          escaping uses */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        for _, v := range bb.Phi {
            for _, u := range v.Usages() {
                unsafeuse(*u)
            }
        }

        /* scan the instructions */
        for _, v := range bb.Ins {
            switch p := v.(type) {
                default: {
                    if u, ok := v.(IrUsages); ok {
                        for _, r := range u.Usages() {
                            unsafeuse(*r)
                        }
                    }
                }

                /* allocation sites */
                case *IrAlloc    : allocs[p.R] = v
                case *IrAllocBuf : allocs[p.R] = v

                /* transparent wrappers never escalate by themselves */
                case *IrRedefine   : break
                case *IrCheckNull  : break
                case *IrAssertType : break
                case *IrBufView    : break

                /* field loads: safe for the object, remember the result */
                case *IrLoadField: {
                    c := du.canon(p.Obj)
                    e := _LoadEdge { c: _LiteClass { slot: p.S }, r: p.R }
                    loads[c] = append(loads[c], e)
                    loadsite[p.R] = e
                    loadhost[p.R] = c
                }

                /* indexed loads */
                case *IrLoadIndex: {
                    c := du.canon(p.Buf)
                    e := _LoadEdge { c: _LiteClass { idx: true }, r: p.R }
                    loads[c] = append(loads[c], e)
                    loadsite[p.R] = e
                    loadhost[p.R] = c
                    unsafeuse(p.Idx)
                }

                /* field stores: safe for the object, the stored value aliases
                 * the container's fate */
                case *IrStoreField: {
                    c := du.canon(p.Obj)
                    w := du.canon(p.V)
                    stored[w] = true
                    stores[c] = append(stores[c], _StoreEdge { c: _LiteClass { slot: p.S }, v: w })
                }

                /* indexed stores */
                case *IrStoreIndex: {
                    c := du.canon(p.Buf)
                    w := du.canon(p.V)
                    stored[w] = true
                    stores[c] = append(stores[c], _StoreEdge { c: _LiteClass { idx: true }, v: w })
                    unsafeuse(p.Idx)
                }

                /* calls: every argument escapes, every result is of unknown
                 * provenance */
                case *IrCall: {
                    for _, r := range p.In  { unsafeuse(r) }
                    for _, r := range p.Out { escalate(r) }
                }

                /* catch-entry placeholders carry values of unknown provenance */
                case *IrCatchEntry: {
                    for _, r := range p.Vars {
                        escalate(r)
                    }
                }
            }
        }

        /* returned values escape */
        if u, ok := bb.Term.(IrUsages); ok {
            for _, r := range u.Usages() {
                unsafeuse(*r)
            }
        }
    })

    /* seed the dependency edges with the current states */
    for c, ss := range stores {
        for _, s := range ss {
            if escaped[c] || allocs[c] == nil {
                escalate(s.v)
            }
        }
    }
    for r := range loadsite {
        if escaped[r] {
            q.Enqueue(r)
        }
    }

    /* Phase 2: propagate escapes to a fixed point */
    for !q.Empty() {
        r := q.Dequeue().(Reg)

        /* everything stored into an escaped container escapes */
        for _, s := range stores[r] {
            escalate(s.v)
        }

        /* an escaped load result lets everything stored into an interfering
         * location of the same container escape through it */
        if e, ok := loadsite[r]; ok {
            for _, s := range stores[loadhost[r]] {
                if s.c.interferes(e.c) {
                    escalate(s.v)
                }
            }
        }
    }

    /* Phase 3: freeze the identities */
    info := &AliasInfo {
        id     : make(map[Reg]AliasIdentity, len(allocs)),
        stored : stored,
    }
    for r := range allocs {
        if escaped[r] {
            info.id[r] = AliasAliased
        } else {
            info.id[r] = AliasNotAliased
        }
    }
    return info
}
