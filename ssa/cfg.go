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
    `sort`
)

type BasicBlock struct {
    Id      int
    Phi     []*IrPhi
    Ins     []IrNode
    Pred    []*BasicBlock
    Term    IrTerminator
    Handler *BasicBlock
}

/* successors iterates over every control edge leaving the block, including
 * the exceptional edge to its catch handler, if any. */
func (self *BasicBlock) successors(action func(bb *BasicBlock)) {
    for it := self.Term.Successors(); it.Next(); {
        action(it.Block())
    }
    if self.Handler != nil {
        action(self.Handler)
    }
}

func (self *BasicBlock) isCatchEntry() bool {
    if len(self.Ins) == 0 {
        return false
    } else {
        _, ok := self.Ins[0].(*IrCatchEntry)
        return ok
    }
}

func (self *BasicBlock) catchEntry() *IrCatchEntry {
    if !self.isCatchEntry() {
        panic("cfg: not a catch-entry block")
    } else {
        return self.Ins[0].(*IrCatchEntry)
    }
}

/* Environment is an ordered snapshot of the source-level variables live at a
 * try region, slots 0 ..< Args belong to the enclosing function's parameters. */
type Environment struct {
    Args  int
    Names []string
}

type CFG struct {
    Root        *BasicBlock
    Catches     []*BasicBlock
    Env         *Environment
    Depth       map[int]int
    DominatedBy map[int]*BasicBlock
    DominatorOf map[int][]*BasicBlock
}

func BuildCFG(root *BasicBlock, catches ...*BasicBlock) *CFG {
    ret := &CFG {
        Root    : root,
        Catches : catches,
    }
    ret.Rebuild()
    return ret
}

/* Rebuild recomputes predecessor lists, the dominator tree and the dominator
 * depth of every reachable block. */
func (self *CFG) Rebuild() {
    blocks := self.blocks()

    /* reset the predecessors */
    for _, bb := range blocks {
        bb.Pred = nil
    }

    /* add the control edges back */
    for _, bb := range blocks {
        p := bb
        p.successors(func(v *BasicBlock) { v.Pred = append(v.Pred, p) })
    }

    /* rebuild the dominator tree */
    buildDominatorTree(self)

    /* recompute dominator depths, level by level */
    self.Depth = make(map[int]int, len(blocks))
    for q := []*BasicBlock { self.Root }; len(q) != 0; {
        p := q[0]
        q = q[1:]
        for _, v := range self.DominatorOf[p.Id] {
            self.Depth[v.Id] = self.Depth[p.Id] + 1
            q = append(q, v)
        }
    }
}

/* blocks returns every reachable block, in a deterministic order. */
func (self *CFG) blocks() []*BasicBlock {
    vis := make(map[int]*BasicBlock)
    self.dfs(self.Root, vis)

    /* sort by block ID */
    ret := make([]*BasicBlock, 0, len(vis))
    for _, bb := range vis { ret = append(ret, bb) }
    sort.Slice(ret, func(i int, j int) bool { return ret[i].Id < ret[j].Id })
    return ret
}

func (self *CFG) dfs(bb *BasicBlock, vis map[int]*BasicBlock) {
    if _, ok := vis[bb.Id]; !ok {
        vis[bb.Id] = bb
        bb.successors(func(v *BasicBlock) { self.dfs(v, vis) })
    }
}

/* PostOrder iterates over the dominator tree in post-order. */
func (self *CFG) PostOrder() *BasicBlockIter {
    return newBasicBlockIter(self)
}

/* ReversePostOrder visits every reachable block in reverse post-order of the
 * control flow graph: every block is visited after all of its non-back-edge
 * predecessors. */
func (self *CFG) ReversePostOrder(action func(bb *BasicBlock)) {
    vis := make(map[int]bool)
    ord := make([]*BasicBlock, 0, len(self.Depth))

    /* post-order DFS over control edges */
    var walk func(bb *BasicBlock)
    walk = func(bb *BasicBlock) {
        if !vis[bb.Id] {
            vis[bb.Id] = true
            bb.successors(func(v *BasicBlock) { walk(v) })
            ord = append(ord, bb)
        }
    }

    /* dump and reverse the order */
    walk(self.Root)
    blockreverse(ord)
    for _, bb := range ord {
        action(bb)
    }
}

/* Dominates checks whether block p dominates block q. */
func (self *CFG) Dominates(p *BasicBlock, q *BasicBlock) bool {
    for q != nil && self.Depth[q.Id] > self.Depth[p.Id] {
        q = self.DominatedBy[q.Id]
    }
    return q == p
}

/* Consts collects every integer constant definition of the graph. */
func (self *CFG) Consts() map[Reg]int64 {
    ret := make(map[Reg]int64)
    ret[Rz] = 0
    self.ReversePostOrder(func(bb *BasicBlock) {
        for _, v := range bb.Ins {
            if p, ok := v.(*IrConstInt); ok {
                ret[p.R] = p.V
            }
        }
    })
    return ret
}
