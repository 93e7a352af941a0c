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

type _VID interface {
    IrDefinitions
    vid() string
}

func (self *IrConstInt) vid() string {
    return fmt.Sprintf("$%d", self.V)
}

func (self *IrLoadArg) vid() string {
    return fmt.Sprintf("#%d", self.Id)
}

func (self *IrBufView) vid() string {
    return fmt.Sprintf("(view %s +%d)", self.Buf, self.Disp)
}

func (self *IrRedefine) vid() string {
    return fmt.Sprintf("(redef %s)", self.V)
}

func (self *IrCheckNull) vid() string {
    return fmt.Sprintf("(chknull %s)", self.V)
}

func (self *IrAssertType) vid() string {
    return fmt.Sprintf("(assert.%s %s)", self.Class, self.V)
}

func (self *IrUnaryExpr) vid() string {
    return fmt.Sprintf("(%s %s)", self.Op, self.V)
}

func (self *IrBinaryExpr) vid() string {
    x := self.X
    y := self.Y

    /* commutative operations, sort the operands */
    switch self.Op {
        case IrOpAdd : fallthrough
        case IrOpMul : fallthrough
        case IrOpAnd : fallthrough
        case IrOpOr  : fallthrough
        case IrOpXor : fallthrough
        case IrCmpEq : fallthrough
        case IrCmpNe : if x > y { x, y = y, x }
    }

    /* build the value ID */
    return fmt.Sprintf("(%s %s %s)", self.Op, x, y)
}

type _AvailRec struct {
    r Reg
    b *BasicBlock
}

/* _AvailTab is the set of available-expression records valid on some control
 * path: pure computations keyed by value ID, memory locations keyed by alias
 * class, and allocations still provably untouched through any other name. */
type _AvailTab struct {
    exprs map[string]_AvailRec
    mems  map[AliasClass]_AvailRec
    fresh map[Reg]*BasicBlock
}

func newAvailTab() *_AvailTab {
    return &_AvailTab {
        exprs: make(map[string]_AvailRec),
        mems : make(map[AliasClass]_AvailRec),
        fresh: make(map[Reg]*BasicBlock),
    }
}

func (self *_AvailTab) clone() *_AvailTab {
    ret := newAvailTab()
    for k, v := range self.exprs { ret.exprs[k] = v }
    for k, v := range self.mems  { ret.mems[k] = v }
    for k, v := range self.fresh { ret.fresh[k] = v }
    return ret
}

/* dropMems forgets everything a write could invalidate, keeping only the pure
 * records, which nothing can clobber. */
func (self *_AvailTab) dropMems() {
    self.mems = make(map[AliasClass]_AvailRec)
    self.fresh = make(map[Reg]*BasicBlock)
}

/* RedundancyElim removes dominator-comparable duplicate pure computations,
 * forwards loads from known stores and allocations, and deletes stores that
 * provably write the value already present at the target location.
 *
 * The pass is fail-open: whenever aliasing or availability cannot be proven
 * the instruction is simply left alone. */
type RedundancyElim struct{}

func (self RedundancyElim) Apply(cfg *CFG) {
    for self.run(cfg) {}
}

/* meet intersects the two tables in place: a record survives only if the
 * other path proves the same provider for the same key. Origin blocks that
 * disagree fall back to the provider's definition block. */
func (self RedundancyElim) meet(tab *_AvailTab, other *_AvailTab, defblk map[Reg]*BasicBlock) {
    for k, v := range tab.exprs {
        if w, ok := other.exprs[k]; !ok || w.r != v.r {
            delete(tab.exprs, k)
        } else if w.b != v.b {
            tab.exprs[k] = _AvailRec { r: v.r, b: defblk[v.r] }
        }
    }
    for k, v := range tab.mems {
        if w, ok := other.mems[k]; !ok || w.r != v.r {
            delete(tab.mems, k)
        } else if w.b != v.b {
            tab.mems[k] = _AvailRec { r: v.r, b: defblk[v.r] }
        }
    }
    for k := range tab.fresh {
        if _, ok := other.fresh[k]; !ok {
            delete(tab.fresh, k)
        }
    }
}

/* entryTable computes the records valid on entry to a block. A catch entry
 * inherits nothing, the exceptional transfer may happen mid-block. A block
 * with a not-yet-processed predecessor drops its memory records; the pure
 * records are kept only when their provider dominates the block, which holds
 * for ordinary loop headers but not for the entries of irreducible regions,
 * where the unprocessed edge is no plain back edge. */
func (self RedundancyElim) entryTable(cfg *CFG, bb *BasicBlock, outs map[int]*_AvailTab, defblk map[Reg]*BasicBlock) *_AvailTab {
    var tab *_AvailTab
    var back bool

    /* catch entries and the root block start from scratch */
    if bb == cfg.Root || bb.isCatchEntry() {
        return newAvailTab()
    }

    /* meet over the processed predecessors */
    for _, p := range bb.Pred {
        if po, ok := outs[p.Id]; !ok {
            back = true
        } else if tab == nil {
            tab = po.clone()
        } else {
            self.meet(tab, po, defblk)
        }
    }

    /* be conservative at loop headers */
    if tab == nil {
        tab = newAvailTab()
    } else if back {
        tab.dropMems()
        for k, v := range tab.exprs {
            if v.r.Kind() == _K_zero {
                continue
            }
            if db := defblk[v.r]; db != nil && cfg.Dominates(db, bb) {
                tab.exprs[k] = _AvailRec { r: v.r, b: db }
            } else {
                delete(tab.exprs, k)
            }
        }
    }
    return tab
}

func (self RedundancyElim) run(cfg *CFG) bool {
    du := defuse(cfg)
    info := AliasClassifier{}.classify(cfg)
    ar := newAliasRegistry(cfg, du, info)

    /* transformation state */
    done := true
    dead := make(map[IrNode]struct{})
    outs := make(map[int]*_AvailTab)
    rename := make(map[Reg]Reg)
    defblk := make(map[Reg]*BasicBlock)

    /* resolve a register through the pending replacement chain */
    resolve := func(r Reg) Reg {
        for {
            if v, ok := rename[r]; ok {
                r = v
            } else {
                return r
            }
        }
    }

    /* locate the defining block of every register */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        p := bb
        for _, v := range bb.Phi {
            defblk[v.R] = p
        }
        for _, v := range bb.Ins {
            if def, ok := v.(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    defblk[*r] = p
                }
            }
        }
    })

    /* dominance assertion for every forwarding decision */
    forward := func(bb *BasicBlock, rec _AvailRec, r Reg) {
        if rec.r.Kind() != _K_zero && !cfg.Dominates(rec.b, bb) {
            panic(fmt.Sprintf("redundancy: provider %s does not dominate the use of %s", rec.r, r))
        }
        rename[r] = rec.r
        done = false
    }

    /* check whether any recorded write into the same object overlaps c */
    touched := func(tab *_AvailTab, c AliasClass) bool {
        for k := range tab.mems {
            if k.root == c.root && ar.Interferes(k, c) {
                return true
            }
        }
        return false
    }

    /* zero-store check: a store of zero into a still-fresh allocation writes
     * the value already there, unless an earlier same-object write overlaps */
    deadZeroStore := func(tab *_AvailTab, c AliasClass, v Reg) bool {
        if _, ok := tab.fresh[c.root]; !ok || v != v.Zero() {
            return false
        }
        return !touched(tab, c)
    }

    /* process a load of class c defining register r */
    loads := func(bb *BasicBlock, v IrNode, r Reg, c AliasClass) {
        tab := tab0(outs, bb)
        if r.Kind() == _K_zero {
            return
        }
        if rec, ok := tab.mems[c]; ok {
            forward(bb, rec, r)
            dead[v] = struct{}{}
        } else if _, ok := tab.fresh[c.root]; ok && !touched(tab, c) {
            z := r.Zero()
            forward(bb, _AvailRec { r: z, b: bb }, r)
            dead[v] = struct{}{}
            tab.mems[c] = _AvailRec { r: z, b: bb }
        } else {
            tab.mems[c] = _AvailRec { r: r, b: bb }
        }
    }

    /* process a store of value v into class c */
    stores := func(bb *BasicBlock, n IrNode, c AliasClass, v Reg) {
        tab := tab0(outs, bb)

        /* the target location provably holds this value already */
        if rec, ok := tab.mems[c]; ok && rec.r == v {
            dead[n] = struct{}{}
            done = false
            return
        }

        /* same thing, through allocation freshness: the location still holds
         * zero, so remember that for later loads */
        if deadZeroStore(tab, c, v) {
            dead[n] = struct{}{}
            done = false
            tab.mems[c] = _AvailRec { r: v, b: bb }
            return
        }

        /* a live write into a buffer ends its all-zero freshness: byte ranges
         * can partially shadow each other, so the record table alone cannot
         * prove any remaining range of it is still untouched */
        if c.kind == _C_index {
            delete(tab.fresh, c.root)
        }

        /* invalidate everything this store may overwrite */
        for k := range tab.mems {
            if k != c && ar.Interferes(k, c) {
                delete(tab.mems, k)
            }
        }
        for a := range tab.fresh {
            if a != c.root && !ar.disjointRoots(a, c.root) {
                delete(tab.fresh, a)
            }
        }

        /* the stored value is now the known content of the location */
        tab.mems[c] = _AvailRec { r: v, b: bb }
    }

    /* walk the graph in reverse post-order, dominators are always processed
     * before the blocks they dominate */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        outs[bb.Id] = self.entryTable(cfg, bb, outs, defblk)
        tab := outs[bb.Id]

        /* process the instructions in order */
        for _, v := range bb.Ins {
            if u, ok := v.(IrUsages); ok {
                for _, r := range u.Usages() {
                    *r = resolve(*r)
                }
            }

            /* dispatch by instruction kind */
            switch p := v.(type) {
                default: {
                    if d, ok := v.(_VID); ok {
                        key := d.vid()
                        s := d.Definitions()[0]
                        if s.Kind() == _K_zero {
                            break
                        }
                        if rec, hit := tab.exprs[key]; hit && rec.r != *s {
                            forward(bb, rec, *s)
                            dead[v] = struct{}{}
                        } else if !hit {
                            tab.exprs[key] = _AvailRec { r: *s, b: bb }
                        }
                    }
                }

                /* a new allocation is fresh, nothing else can name it yet */
                case *IrAlloc    : tab.fresh[p.R] = bb
                case *IrAllocBuf : tab.fresh[p.R] = bb

                /* memory accesses */
                case *IrLoadField  : loads(bb, v, p.R, ar.fieldClass(p.Obj, p.S))
                case *IrLoadIndex  : loads(bb, v, p.R, ar.indexClass(p.Buf, p.Idx, p.Size))
                case *IrStoreField : stores(bb, v, ar.fieldClass(p.Obj, p.S), p.V)
                case *IrStoreIndex : stores(bb, v, ar.indexClass(p.Buf, p.Idx, p.Size), p.V)

                /* calls may observe and mutate everything that ever escaped */
                case *IrCall: {
                    for k := range tab.mems {
                        if !ar.survivesCall(k.root) {
                            delete(tab.mems, k)
                        }
                    }
                    for a := range tab.fresh {
                        if !ar.survivesCall(a) {
                            delete(tab.fresh, a)
                        }
                    }
                }

                /* catch placeholders define opaque values */
                case *IrCatchEntry: break
            }
        }
    })

    /* Phase 2: retarget every remaining use and unlink the dead instructions,
     * phi operands and terminators included */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        ins := bb.Ins
        bb.Ins = bb.Ins[:0]

        /* phi nodes first */
        for _, v := range bb.Phi {
            for _, u := range v.Usages() {
                *u = resolve(*u)
            }
        }

        /* instructions, dropping the dead ones */
        for _, v := range ins {
            if _, ok := dead[v]; ok {
                continue
            }
            if u, ok := v.(IrUsages); ok {
                for _, r := range u.Usages() {
                    *r = resolve(*r)
                }
            }
            bb.Ins = append(bb.Ins, v)
        }

        /* the terminator */
        if u, ok := bb.Term.(IrUsages); ok {
            for _, r := range u.Usages() {
                *r = resolve(*r)
            }
        }
    })

    /* Phase 3: consistency check, no use may point at an unlinked definition */
    if len(dead) != 0 {
        gone := make(map[Reg]struct{}, len(dead))
        for v := range dead {
            if def, ok := v.(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    gone[*r] = struct{}{}
                }
            }
        }
        cfg.ReversePostOrder(func(bb *BasicBlock) {
            usagesof(bb, func(r *Reg) {
                if _, ok := gone[*r]; ok {
                    panic("redundancy: use of an unlinked definition: " + r.String())
                }
            })
        })
    }
    return !done
}

func tab0(outs map[int]*_AvailTab, bb *BasicBlock) *_AvailTab {
    return outs[bb.Id]
}
