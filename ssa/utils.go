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

func minint(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

func regsliceref(v []Reg) (r []*Reg) {
    r = make([]*Reg, len(v))
    for i := range v { r[i] = &v[i] }
    return
}

func blockreverse(s []*BasicBlock) {
    for i, j := 0, len(s) - 1; i < j; i, j = i + 1, j - 1 {
        s[i], s[j] = s[j], s[i]
    }
}

func stacknew(v interface{}) (r *lane.Stack) {
    r = lane.NewStack()
    r.Push(v)
    return
}

/* usagesof enumerates every operand slot of a block, phi nodes and the
 * terminator included. */
func usagesof(bb *BasicBlock, action func(r *Reg)) {
    for _, v := range bb.Phi {
        for _, u := range v.Usages() {
            action(u)
        }
    }
    for _, v := range bb.Ins {
        if u, ok := v.(IrUsages); ok {
            for _, r := range u.Usages() {
                action(r)
            }
        }
    }
    if u, ok := bb.Term.(IrUsages); ok {
        for _, r := range u.Usages() {
            action(r)
        }
    }
}
