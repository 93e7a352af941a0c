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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/bytedance/gopkg/lang/fastrand`
    `github.com/stretchr/testify/require`
)

func TestRedundancy_LoadForwarding(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg   { R: Po(0), Id: 0 },
        &IrLoadField { R: Rn(1), Obj: Po(0), S: fieldF },
        &IrLoadField { R: Rn(2), Obj: Po(0), S: fieldF },
    }
    mkreturn(b0, Rn(1), Rn(2))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the second load reads the exact same location */
    require.Equal(t, 1, nloads(cfg))
    require.Equal(t, []Reg { Rn(1), Rn(1) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_FreshAllocationForwardsNull(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrAlloc      { R: Po(0), Class: "Foo" },
        &IrLoadField  { R: Po(1), Obj: Po(0), S: fieldF },
        &IrStoreField { Obj: Po(0), S: fieldG, V: Pn },
    }
    mkreturn(b0, Po(1))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* every field of a fresh object is null, and writing null back into one
     * changes nothing */
    require.Equal(t, 0, nloads(cfg))
    require.Equal(t, 0, nstores(cfg))
    require.Equal(t, []Reg { Pn }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_FreshBufferForwardsZero(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrAllocBuf  { R: Po(0), Len: 16 },
        &IrConstInt  { R: Rn(0), V: 0 },
        &IrLoadIndex { R: Rn(1), Buf: Po(0), Idx: Rn(0), Size: 8 },
    }
    mkreturn(b0, Rn(1))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* every byte of a fresh buffer is zero */
    require.Equal(t, 0, nloads(cfg))
    require.Equal(t, []Reg { Rz }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_FreshBufferKeepsWrittenBytes(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrAllocBuf   { R: Po(0), Len: 16 },
        &IrLoadArg    { R: Rn(9), Id: 0 },
        &IrConstInt   { R: Rn(0), V: 0 },
        &IrConstInt   { R: Rn(1), V: 1 },
        &IrStoreIndex { Buf: Po(0), Idx: Rn(1), Size: 4, V: Rn(9) },
        &IrLoadIndex  { R: Rn(2), Buf: Po(0), Idx: Rn(0), Size: 8 },
    }
    mkreturn(b0, Rn(2))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the 4-byte store at byte 4 fills the upper half of the 8-byte element,
     * the buffer is no longer all zero there */
    require.Equal(t, 1, nloads(cfg))
    require.Equal(t, 1, nstores(cfg))
    require.Equal(t, []Reg { Rn(2) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_StoreLoadPipeline(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrAlloc      { R: Po(0), Class: "Foo" },
        &IrAlloc      { R: Po(1), Class: "Foo" },
        &IrStoreField { Obj: Po(0), S: fieldF, V: Pn },
        &IrStoreField { Obj: Po(1), S: fieldF, V: Pn },
        &IrLoadField  { R: Po(2), Obj: Po(0), S: fieldF },
        &IrStoreField { Obj: Po(1), S: fieldF, V: Po(2) },
        &IrLoadField  { R: Po(3), Obj: Po(1), S: fieldF },
        &IrStoreField { Obj: Po(1), S: fieldG, V: Po(0) },
    }
    mkreturn(b0, Po(2), Po(3), Po(1))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* only the very last store has any effect, every load folds to null */
    require.Equal(t, 0, nloads(cfg))
    require.Equal(t, 1, nstores(cfg))
    require.Equal(t, []Reg { Pn, Pn, Po(1) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_OverlappingRangeInvalidates(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Po(0), Id: 0 },
        &IrLoadArg    { R: Rn(9), Id: 1 },
        &IrConstInt   { R: Rn(0), V: 0 },
        &IrConstInt   { R: Rn(1), V: 1 },
        &IrLoadIndex  { R: Rn(2), Buf: Po(0), Idx: Rn(0), Size: 8 },
        &IrStoreIndex { Buf: Po(0), Idx: Rn(1), Size: 4, V: Rn(9) },
        &IrLoadIndex  { R: Rn(3), Buf: Po(0), Idx: Rn(0), Size: 8 },
    }
    mkreturn(b0, Rn(2), Rn(3))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the 4-byte store at byte 4 clobbers half of the 8-byte element */
    require.Equal(t, 2, nloads(cfg))
    require.Equal(t, []Reg { Rn(2), Rn(3) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_DisjointRangeForwards(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Po(0), Id: 0 },
        &IrLoadArg    { R: Rn(9), Id: 1 },
        &IrConstInt   { R: Rn(0), V: 0 },
        &IrConstInt   { R: Rn(1), V: 2 },
        &IrLoadIndex  { R: Rn(2), Buf: Po(0), Idx: Rn(0), Size: 8 },
        &IrStoreIndex { Buf: Po(0), Idx: Rn(1), Size: 4, V: Rn(9) },
        &IrLoadIndex  { R: Rn(3), Buf: Po(0), Idx: Rn(0), Size: 8 },
    }
    mkreturn(b0, Rn(2), Rn(3))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the 4-byte store at byte 8 is past the 8-byte element */
    require.Equal(t, 1, nloads(cfg))
    require.Equal(t, []Reg { Rn(2), Rn(2) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_ViewWritesThrough(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Po(0), Id: 0 },
        &IrLoadArg    { R: Rn(9), Id: 1 },
        &IrBufView    { R: Po(1), Buf: Po(0), Disp: 4 },
        &IrConstInt   { R: Rn(0), V: 0 },
        &IrLoadIndex  { R: Rn(2), Buf: Po(0), Idx: Rn(0), Size: 8 },
        &IrStoreIndex { Buf: Po(1), Idx: Rn(0), Size: 4, V: Rn(9) },
        &IrLoadIndex  { R: Rn(3), Buf: Po(0), Idx: Rn(0), Size: 8 },
    }
    mkreturn(b0, Rn(2), Rn(3))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* a write through the displaced view lands on bytes 4 ..< 8 of the
     * underlying buffer */
    require.Equal(t, 2, nloads(cfg))
}

func TestRedundancy_CallInvalidation(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Po(1), Id: 0 },
        &IrAlloc      { R: Po(0), Class: "Foo" },
        &IrStoreField { Obj: Po(0), S: fieldF, V: Po(1) },
        &IrLoadField  { R: Po(2), Obj: Po(1), S: fieldF },
        &IrCall       { Fn: "blackhole", In: []Reg { Po(1) } },
        &IrLoadField  { R: Po(3), Obj: Po(0), S: fieldF },
        &IrLoadField  { R: Po(4), Obj: Po(1), S: fieldF },
    }
    mkreturn(b0, Po(2), Po(3), Po(4))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the callee can reach the argument object but not the local one, so the
     * record rooted at the local allocation survives the call; once its load
     * is forwarded the write-only local object melts away entirely */
    require.Equal(t, 2, nloads(cfg))
    require.Equal(t, 0, nstores(cfg))
    require.Equal(t, []Reg { Po(2), Po(1), Po(4) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_CommonSubexpressions(t *testing.T) {
    b0 := mkblock(0)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Rn(0), Id: 0 },
        &IrBinaryExpr { R: Rn(1), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
        &IrBinaryExpr { R: Rn(2), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
        &IrBinaryExpr { R: Rn(3), X: Rn(0), Y: Rn(1), Op: IrOpMul },
        &IrBinaryExpr { R: Rn(4), X: Rn(1), Y: Rn(0), Op: IrOpMul },
        &IrBinaryExpr { R: Rn(5), X: Rn(0), Y: Rn(1), Op: IrOpSub },
        &IrBinaryExpr { R: Rn(6), X: Rn(1), Y: Rn(0), Op: IrOpSub },
    }
    mkreturn(b0, Rn(1), Rn(2), Rn(3), Rn(4), Rn(5), Rn(6))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* addition and multiplication commute, subtraction does not */
    nb := inscount(cfg, func(v IrNode) bool { _, ok := v.(*IrBinaryExpr); return ok })
    require.Equal(t, 4, nb)
    require.Equal(t, []Reg { Rn(1), Rn(1), Rn(3), Rn(3), Rn(5), Rn(6) }, b0.Term.(*IrReturn).R)
}

func TestRedundancy_PartiallyAvailableLoadStays(t *testing.T) {
    b0 := mkblock(0)
    b1 := mkblock(1)
    b2 := mkblock(2)
    b3 := mkblock(3)
    b0.Ins = []IrNode {
        &IrLoadArg { R: Po(0), Id: 0 },
        &IrLoadArg { R: Rn(0), Id: 1 },
    }
    mkbranch(b0, Rn(0), b1, b2)
    b1.Ins = []IrNode {
        &IrLoadField { R: Rn(1), Obj: Po(0), S: fieldF },
        &IrCall      { Fn: "use", In: []Reg { Rn(1) } },
    }
    mkgoto(b1, b3)
    mkgoto(b2, b3)
    b3.Ins = []IrNode {
        &IrLoadField { R: Rn(2), Obj: Po(0), S: fieldF },
    }
    mkreturn(b3, Rn(2))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the record only exists on one of the two paths into the join */
    require.Equal(t, 2, nloads(cfg))
    require.Equal(t, []Reg { Rn(2) }, b3.Term.(*IrReturn).R)
}

func TestRedundancy_DominatingRecordCrossesJoin(t *testing.T) {
    b0 := mkblock(0)
    b1 := mkblock(1)
    b2 := mkblock(2)
    b3 := mkblock(3)
    b0.Ins = []IrNode {
        &IrLoadArg   { R: Po(0), Id: 0 },
        &IrLoadArg   { R: Rn(0), Id: 1 },
        &IrLoadField { R: Rn(1), Obj: Po(0), S: fieldF },
    }
    mkbranch(b0, Rn(0), b1, b2)
    mkgoto(b1, b3)
    mkgoto(b2, b3)
    b3.Ins = []IrNode {
        &IrLoadField { R: Rn(2), Obj: Po(0), S: fieldF },
    }
    mkreturn(b3, Rn(1), Rn(2))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the record from before the branch is valid on both paths */
    require.Equal(t, 1, nloads(cfg))
    require.Equal(t, []Reg { Rn(1), Rn(1) }, b3.Term.(*IrReturn).R)
}

func TestRedundancy_LoopHeaderDropsMemory(t *testing.T) {
    b0 := mkblock(0)
    b1 := mkblock(1)
    b2 := mkblock(2)
    b3 := mkblock(3)
    b0.Ins = []IrNode {
        &IrLoadArg    { R: Po(0), Id: 0 },
        &IrLoadArg    { R: Rn(0), Id: 1 },
        &IrLoadField  { R: Rn(1), Obj: Po(0), S: fieldF },
        &IrBinaryExpr { R: Rn(2), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
    }
    mkgoto(b0, b1)
    b1.Ins = []IrNode {
        &IrLoadField  { R: Rn(3), Obj: Po(0), S: fieldF },
        &IrBinaryExpr { R: Rn(4), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
    }
    mkbranch(b1, Rn(0), b3, b2)
    mkgoto(b2, b1)
    mkreturn(b3, Rn(1), Rn(2), Rn(3), Rn(4))
    cfg := BuildCFG(b0)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the loop body may rewrite the field, so the memory record dies at the
     * loop header, while the pure expression is still available */
    require.Equal(t, 2, nloads(cfg))
    nb := inscount(cfg, func(v IrNode) bool { _, ok := v.(*IrBinaryExpr); return ok })
    require.Equal(t, 1, nb)
    require.Equal(t, []Reg { Rn(1), Rn(2), Rn(3), Rn(2) }, b3.Term.(*IrReturn).R)
}

func TestRedundancy_IrreducibleRegionStaysConservative(t *testing.T) {
    b0 := mkblock(0)
    b1 := mkblock(1)
    b2 := mkblock(2)
    b3 := mkblock(3)
    b4 := mkblock(4)
    b5 := mkblock(5)
    b0.Ins = []IrNode {
        &IrLoadArg { R: Rn(0), Id: 0 },
    }
    mkbranch(b0, Rn(0), b1, b2)

    /* the b3/b4 loop has two entries, so neither block dominates the other */
    b1.Ins = []IrNode {
        &IrBinaryExpr { R: Rn(1), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
    }
    mkgoto(b1, b3)
    b2.Ins = []IrNode {
        &IrBinaryExpr { R: Rn(2), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
    }
    mkgoto(b2, b4)
    mkbranch(b3, Rn(0), b5, b4)
    b4.Ins = []IrNode {
        &IrBinaryExpr { R: Rn(3), X: Rn(0), Y: Rn(0), Op: IrOpAdd },
    }
    mkgoto(b4, b3)
    mkreturn(b5, Rn(0))
    cfg := BuildCFG(b0)
    RedundancyElim{}.Apply(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* none of the three providers dominates another entry of the region, so
     * nothing may be folded across it */
    nb := inscount(cfg, func(v IrNode) bool { _, ok := v.(*IrBinaryExpr); return ok })
    require.Equal(t, 3, nb)
    require.Equal(t, []Reg { Rn(0) }, b5.Term.(*IrReturn).R)
}

func TestRedundancy_CatchEntryStartsEmpty(t *testing.T) {
    b0 := mkblock(0)
    b1 := mkblock(1)
    b2 := mkblock(2)
    b3 := mkblock(3)
    b0.Ins = []IrNode {
        &IrLoadArg   { R: Po(0), Id: 0 },
        &IrLoadField { R: Rn(1), Obj: Po(0), S: fieldF },
    }
    mkgoto(b0, b1)
    b1.Handler = b2
    b1.Ins = []IrNode {
        &IrLoadField { R: Rn(2), Obj: Po(0), S: fieldF },
    }
    mkgoto(b1, b3)
    b2.Ins = []IrNode {
        &IrCatchEntry { Vars: []Reg { Po(5) } },
        &IrLoadField  { R: Rn(3), Obj: Po(0), S: fieldF },
    }
    mkreturn(b2, Rn(3))
    mkreturn(b3, Rn(1), Rn(2))
    cfg := BuildCFG(b0, b2)
    RunRedundancyElimination(cfg)
    t.Log("\n" + cfgdump(cfg))

    /* the exceptional transfer may happen at any point of the protected
     * block, so nothing is available inside the handler */
    require.Equal(t, 2, nloads(cfg))
    require.Equal(t, []Reg { Rn(1), Rn(1) }, b3.Term.(*IrReturn).R)
    require.Equal(t, []Reg { Rn(3) }, b2.Term.(*IrReturn).R)
}

func TestRedundancy_Idempotent(t *testing.T) {
    gofakeit.Seed(0x12345678)
    slots := []Slot {
        { Class: gofakeit.Word(), Field: "a" },
        { Class: gofakeit.Word(), Field: "b" },
        { Class: gofakeit.Word(), Field: "c" },
    }

    /* run a few rounds of randomly generated straight-line code */
    for round := 0; round < 32; round++ {
        ri := 0
        b0 := mkblock(0)
        newp := func() Reg { ri++; return Po(ri) }
        newr := func() Reg { ri++; return Rn(ri) }
        addi := func(v IrNode) { b0.Ins = append(b0.Ins, v) }

        /* seed with one argument object and one argument value */
        p0 := newp()
        v0 := newr()
        addi(&IrLoadArg { R: p0, Id: 0 })
        addi(&IrLoadArg { R: v0, Id: 1 })
        objs := []Reg { p0 }
        vals := []Reg { Rz, v0 }

        /* random allocations, loads, stores and arithmetic */
        for i := 0; i < 64; i++ {
            switch fastrand.Intn(5) {
                case 0: {
                    r := newp()
                    addi(&IrAlloc { R: r, Class: gofakeit.Word() })
                    objs = append(objs, r)
                }
                case 1: {
                    r := newr()
                    addi(&IrLoadField {
                        R   : r,
                        Obj : objs[fastrand.Intn(len(objs))],
                        S   : slots[fastrand.Intn(len(slots))],
                    })
                    vals = append(vals, r)
                }
                case 2: {
                    addi(&IrStoreField {
                        Obj : objs[fastrand.Intn(len(objs))],
                        S   : slots[fastrand.Intn(len(slots))],
                        V   : vals[fastrand.Intn(len(vals))],
                    })
                }
                case 3: {
                    r := newr()
                    addi(&IrBinaryExpr {
                        R  : r,
                        X  : vals[fastrand.Intn(len(vals))],
                        Y  : vals[fastrand.Intn(len(vals))],
                        Op : IrOpAdd,
                    })
                    vals = append(vals, r)
                }
                case 4: {
                    addi(&IrCall {
                        Fn : "external",
                        In : []Reg { objs[fastrand.Intn(len(objs))] },
                    })
                }
            }
        }

        /* keep the tails observable */
        mkreturn(b0, objs[len(objs) - 1], vals[len(vals) - 1])
        cfg := BuildCFG(b0)

        /* a second application must be a no-op */
        RunRedundancyElimination(cfg)
        once := cfgdump(cfg)
        RunRedundancyElimination(cfg)
        require.Equal(t, once, cfgdump(cfg))
    }
}
