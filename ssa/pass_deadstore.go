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

/* DeadStoreElim removes stores that are overwritten later in the same block
 * before anything can observe them.
 *
 * The scan is backwards: a pending store is one that happens later with no
 * intervening read of its location, an earlier store it fully covers is dead.
 * Loads clear the pending entries they may read, and anything that can leave
 * the block early (a call, a null check, a type assertion) clears every entry
 * the outside world could observe. */
type DeadStoreElim struct{}

func (self DeadStoreElim) Apply(cfg *CFG) {
    du := defuse(cfg)
    info := AliasClassifier{}.classify(cfg)
    ar := newAliasRegistry(cfg, du, info)

    /* canonical roots that are ever read from */
    reads := make(map[Reg]struct{})
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        for _, v := range bb.Ins {
            switch p := v.(type) {
                case *IrLoadField: {
                    reads[du.canon(p.Obj)] = struct{}{}
                }
                case *IrLoadIndex: {
                    root, _ := ar.canonicalBuf(p.Buf)
                    reads[root] = struct{}{}
                }
            }
        }
    })

    /* a store into a never-leaked, never-read object is unobservable */
    unread := func(c AliasClass) bool {
        if _, ok := reads[c.root]; ok {
            return false
        }
        return info.unaliasedRoot(c.root)
    }

    /* process every block independently */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        dead := make(map[IrNode]struct{})
        pending := make(map[AliasClass]IrNode)

        /* clear the entries a read of class c may observe */
        observe := func(c AliasClass) {
            for k := range pending {
                if ar.Interferes(k, c) {
                    delete(pending, k)
                }
            }
        }

        /* clear every entry observable after an early exit */
        unwind := func() {
            for k := range pending {
                if !ar.survivesCall(k.root) {
                    delete(pending, k)
                }
            }
        }

        /* check whether a pending later store fully covers class c */
        covered := func(c AliasClass) bool {
            for k := range pending {
                if k == c {
                    return true
                }
                if k.kind == _C_index && c.kind == _C_index && k.root == c.root {
                    if !k.anyr && !c.anyr && k.lo <= c.lo && c.hi <= k.hi {
                        return true
                    }
                }
            }
            return false
        }

        /* walk the instructions backwards */
        for i := len(bb.Ins) - 1; i >= 0; i-- {
            switch p := bb.Ins[i].(type) {
                case *IrStoreField: {
                    c := ar.fieldClass(p.Obj, p.S)
                    if covered(c) || unread(c) {
                        dead[bb.Ins[i]] = struct{}{}
                    } else {
                        pending[c] = bb.Ins[i]
                    }
                }

                case *IrStoreIndex: {
                    c := ar.indexClass(p.Buf, p.Idx, p.Size)
                    if covered(c) || unread(c) {
                        dead[bb.Ins[i]] = struct{}{}
                    } else {
                        pending[c] = bb.Ins[i]
                    }
                }

                case *IrLoadField  : observe(ar.fieldClass(p.Obj, p.S))
                case *IrLoadIndex  : observe(ar.indexClass(p.Buf, p.Idx, p.Size))

                /* potential early exits */
                case *IrCall       : unwind()
                case *IrCheckNull  : unwind()
                case *IrAssertType : unwind()
            }
        }

        /* unlink the dead stores */
        if len(dead) != 0 {
            ins := bb.Ins
            bb.Ins = bb.Ins[:0]
            for _, v := range ins {
                if _, ok := dead[v]; !ok {
                    bb.Ins = append(bb.Ins, v)
                }
            }
        }
    })
}
