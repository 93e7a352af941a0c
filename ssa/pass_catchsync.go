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
    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/traverse`
)

/* OptimizeCatchEntryStates clears the catch-entry placeholders that no
 * handler code can observe, so that the blocks throwing into the handler no
 * longer need to keep those variable slots synchronized.
 *
 * A placeholder is observable when its register is used anywhere reachable
 * from the catch entry, cycles included. Under precompilation that is the
 * whole story; a runtime that can deoptimize back into the interpreter must
 * additionally keep every parameter slot, the interpreter frame re-reads the
 * parameters on re-entry no matter what the optimized code used. */
func OptimizeCatchEntryStates(cfg *CFG, aot bool) {
    if len(cfg.Catches) == 0 {
        return
    }

    /* mirror the control flow graph, exceptional edges included */
    g := simple.NewDirectedGraph()
    addnode := func(id int) graph.Node {
        if n := g.Node(int64(id)); n != nil {
            return n
        }
        n := simple.Node(id)
        g.AddNode(n)
        return n
    }

    /* build the edges */
    blocks := make(map[int64]*BasicBlock)
    cfg.ReversePostOrder(func(bb *BasicBlock) {
        p := addnode(bb.Id)
        blocks[int64(bb.Id)] = bb
        bb.successors(func(v *BasicBlock) {
            if q := addnode(v.Id); p.ID() != q.ID() {
                g.SetEdge(g.NewEdge(p, q))
            }
        })
    })

    /* retained parameter slots */
    args := 0
    if !aot && cfg.Env != nil {
        args = cfg.Env.Args
    }

    /* prune every catch entry independently */
    cleared := make(map[Reg]struct{})
    for _, cb := range cfg.Catches {
        entry := cb.catchEntry()
        live := make(map[Reg]struct{})

        /* everything used in a block reachable from the catch entry is live */
        bfs := traverse.BreadthFirst {
            Visit: func(n graph.Node) {
                usagesof(blocks[n.ID()], func(r *Reg) {
                    live[*r] = struct{}{}
                })
            },
        }
        bfs.Walk(g, g.Node(int64(cb.Id)), nil)

        /* clear the dead placeholders */
        for i, r := range entry.Vars {
            if r.Kind() == _K_zero || i < args {
                continue
            }
            if _, ok := live[r]; !ok {
                entry.Vars[i] = r.Zero()
                cleared[r] = struct{}{}
            }
        }
    }

    /* a cleared placeholder must not be in use anywhere */
    if len(cleared) != 0 {
        cfg.ReversePostOrder(func(bb *BasicBlock) {
            usagesof(bb, func(r *Reg) {
                if _, ok := cleared[*r]; ok {
                    panic("catchsync: use of a cleared catch-entry placeholder: " + r.String())
                }
            })
        })
    }
}
