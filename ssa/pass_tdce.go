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

/* TDCE removes trivial dead-code, an instruction is dead when it has no side
 * effects and none of its results is ever used. */
type TDCE struct{}

func (self TDCE) Apply(cfg *CFG) {
    for {
        done := true
        used := make(map[Reg]struct{})

        /* Phase 1: mark all the used registers */
        cfg.PostOrder().ForEach(func(bb *BasicBlock) {
            usagesof(bb, func(r *Reg) {
                if r.Kind() != _K_zero {
                    used[*r] = struct{}{}
                }
            })
        })

        /* Phase 2: zero every definition that is never used, the catch-entry
         *          placeholders are managed by the catch-entry optimizer and
         *          are left alone here */
        cfg.PostOrder().ForEach(func(bb *BasicBlock) {
            for _, v := range bb.Phi {
                if _, ok := used[v.R]; !ok && v.R.Kind() != _K_zero {
                    v.R = v.R.Zero()
                    done = false
                }
            }
            for _, v := range bb.Ins {
                if _, ok := v.(*IrCatchEntry); ok {
                    continue
                }
                if def, ok := v.(IrDefinitions); ok {
                    for _, r := range def.Definitions() {
                        if _, ok := used[*r]; !ok && r.Kind() != _K_zero {
                            *r = r.Zero()
                            done = false
                        }
                    }
                }
            }
        })

        /* Phase 3: remove the pure instructions that define nothing */
        cfg.PostOrder().ForEach(func(bb *BasicBlock) {
            phi := bb.Phi
            ins := bb.Ins
            bb.Phi = bb.Phi[:0]
            bb.Ins = bb.Ins[:0]

            /* phi nodes with a zeroed target */
            for _, v := range phi {
                if v.R.Kind() != _K_zero {
                    bb.Phi = append(bb.Phi, v)
                } else {
                    done = false
                }
            }

            /* instructions, side effects always stay */
            for _, v := range ins {
                if _, ok := v.(IrImpure); ok {
                    bb.Ins = append(bb.Ins, v)
                    continue
                }
                def, ok := v.(IrDefinitions)
                if !ok {
                    bb.Ins = append(bb.Ins, v)
                    continue
                }
                live := false
                for _, r := range def.Definitions() {
                    if r.Kind() != _K_zero {
                        live = true
                        break
                    }
                }
                if live {
                    bb.Ins = append(bb.Ins, v)
                } else {
                    done = false
                }
            }
        })

        /* loop until no more modifications */
        if done {
            break
        }
    }
}
