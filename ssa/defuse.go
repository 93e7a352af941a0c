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

type _DefUse struct {
    defs map[Reg]IrNode
}

/* defuse builds the definition table of the graph, every normalized register
 * maps to the single instruction that defines it. */
func defuse(cfg *CFG) *_DefUse {
    ret := &_DefUse {
        defs: make(map[Reg]IrNode),
    }

    /* scan every reachable block */
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        for _, v := range bb.Phi {
            ret.addDefs(v)
        }
        for _, v := range bb.Ins {
            ret.addDefs(v)
        }
    })
    return ret
}

func (self *_DefUse) addDefs(v IrNode) {
    if def, ok := v.(IrDefinitions); ok {
        for _, r := range def.Definitions() {
            if r.Kind() != _K_zero {
                if _, dup := self.defs[*r]; dup {
                    panic("defuse: multiple definitions of register " + r.String())
                } else {
                    self.defs[*r] = v
                }
            }
        }
    }
}

/* canon resolves a register through every transparent wrapper down to the
 * definition of the underlying object. */
func (self *_DefUse) canon(r Reg) Reg {
    for {
        def, ok := self.defs[r]
        if !ok {
            return r
        }
        tr, ok := def.(IrTransparent)
        if !ok {
            return r
        }
        r = *tr.Wrapped()
    }
}
