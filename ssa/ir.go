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
    `sort`
    `strings`
)

type Reg uint64

const (
    _B_ptr  = 63
    _B_kind = 59
)

const (
    _M_ptr  = 1
    _M_kind = 0x0f
)

const (
    _R_ptr   = _M_ptr << _B_ptr
    _R_kind  = _M_kind << _B_kind
    _R_index = (1 << _B_kind) - 1
)

const (
    _K_zero = 0x01
    _K_norm = 0x02
)

const (
    Rz Reg = (0 << _B_ptr) | (_K_zero << _B_kind)
    Pn Reg = (1 << _B_ptr) | (_K_zero << _B_kind)
)

func Rn(i int) Reg {
    return (0 << _B_ptr) | (_K_norm << _B_kind) | Reg(i & _R_index)
}

func Po(i int) Reg {
    return (1 << _B_ptr) | (_K_norm << _B_kind) | Reg(i & _R_index)
}

func (self Reg) Ptr() bool {
    return self & _R_ptr != 0
}

func (self Reg) Kind() uint8 {
    return uint8((self & _R_kind) >> _B_kind)
}

func (self Reg) Index() int {
    return int(self & _R_index)
}

func (self Reg) Zero() Reg {
    if self.Ptr() {
        return Pn
    } else {
        return Rz
    }
}

func (self Reg) String() string {
    switch self.Kind() {
        default: {
            panic("invalid register kind")
        }

        /* zero registers */
        case _K_zero: {
            if self.Ptr() {
                return "nil"
            } else {
                return "$0"
            }
        }

        /* SSA normalized registers */
        case _K_norm: {
            if self.Ptr() {
                return fmt.Sprintf("%%p%d", self.Index())
            } else {
                return fmt.Sprintf("%%r%d", self.Index())
            }
        }
    }
}

/* Slot identifies an object field nominally, by its declaring class and name. */
type Slot struct {
    Class string
    Field string
}

func (self Slot) String() string {
    return self.Class + "." + self.Field
}

type IrNode interface {
    fmt.Stringer
    irnode()
}

func (*IrPhi)        irnode() {}
func (*IrSwitch)     irnode() {}
func (*IrReturn)     irnode() {}
func (*IrConstInt)   irnode() {}
func (*IrLoadArg)    irnode() {}
func (*IrAlloc)      irnode() {}
func (*IrAllocBuf)   irnode() {}
func (*IrBufView)    irnode() {}
func (*IrLoadField)  irnode() {}
func (*IrStoreField) irnode() {}
func (*IrLoadIndex)  irnode() {}
func (*IrStoreIndex) irnode() {}
func (*IrRedefine)   irnode() {}
func (*IrCheckNull)  irnode() {}
func (*IrAssertType) irnode() {}
func (*IrUnaryExpr)  irnode() {}
func (*IrBinaryExpr) irnode() {}
func (*IrCall)       irnode() {}
func (*IrCatchEntry) irnode() {}

type IrUsages interface {
    IrNode
    Usages() []*Reg
}

type IrDefinitions interface {
    IrNode
    Definitions() []*Reg
}

/* IrImpure marks instructions with observable effects, which must never be
 * removed just because their results are unused. */
type IrImpure interface {
    IrNode
    irimpure()
}

func (*IrStoreField) irimpure() {}
func (*IrStoreIndex) irimpure() {}
func (*IrCheckNull)  irimpure() {}
func (*IrAssertType) irimpure() {}
func (*IrCall)       irimpure() {}
func (*IrCatchEntry) irimpure() {}

/* IrTransparent marks wrapper instructions whose result is the same logical
 * object as one of their operands, which escape analysis must look through. */
type IrTransparent interface {
    IrDefinitions
    Wrapped() *Reg
}

func (self *IrBufView)    Wrapped() *Reg { return &self.Buf }
func (self *IrRedefine)   Wrapped() *Reg { return &self.V }
func (self *IrCheckNull)  Wrapped() *Reg { return &self.V }
func (self *IrAssertType) Wrapped() *Reg { return &self.V }

type IrPhi struct {
    R Reg
    V map[*BasicBlock]*Reg
}

func (self *IrPhi) String() string {
    nb := len(self.V)
    ret := make([]string, 0, nb)
    phi := make([]struct{b int; r Reg}, 0, nb)

    /* add each path */
    for bb, reg := range self.V {
        phi = append(phi, struct{b int; r Reg}{b: bb.Id, r: *reg})
    }

    /* sort by basic block ID */
    sort.Slice(phi, func(i int, j int) bool {
        return phi[i].b < phi[j].b
    })

    /* dump as string */
    for _, p := range phi {
        ret = append(ret, fmt.Sprintf("bb_%d: %s", p.b, p.r))
    }

    /* join them together */
    return fmt.Sprintf(
        "%s = φ(%s)",
        self.R,
        strings.Join(ret, ", "),
    )
}

func (self *IrPhi) Usages() (r []*Reg) {
    r = make([]*Reg, 0, len(self.V))
    for _, v := range self.V { r = append(r, v) }
    return
}

func (self *IrPhi) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrSuccessors interface {
    Next() bool
    Block() *BasicBlock
    Value() (int64, bool)
}

type IrTerminator interface {
    IrNode
    Successors() IrSuccessors
    irterminator()
}

func (*IrSwitch) irterminator() {}
func (*IrReturn) irterminator() {}

type _SwitchSuccessors struct {
    i int
    k []int64
    v []*BasicBlock
}

func (self *_SwitchSuccessors) Next() bool {
    self.i++
    return self.i < len(self.v)
}

func (self *_SwitchSuccessors) Block() *BasicBlock {
    return self.v[self.i]
}

func (self *_SwitchSuccessors) Value() (int64, bool) {
    if self.i < len(self.k) {
        return self.k[self.i], true
    } else {
        return 0, false
    }
}

type IrSwitch struct {
    V  Reg
    Ln *BasicBlock
    Br map[int64]*BasicBlock
}

func (self *IrSwitch) String() string {
    nb := len(self.Br)
    ret := make([]string, 0, nb)

    /* no branches */
    if nb == 0 {
        return fmt.Sprintf("goto bb_%d", self.Ln.Id)
    }

    /* add each case */
    for _, id := range self.keys() {
        ret = append(ret, fmt.Sprintf("  %d => bb_%d,", id, self.Br[id].Id))
    }

    /* default branch */
    ret = append(ret, fmt.Sprintf(
        "  _ => bb_%d,",
        self.Ln.Id,
    ))

    /* join them together */
    return fmt.Sprintf(
        "switch %s {\n%s\n}",
        self.V,
        strings.Join(ret, "\n"),
    )
}

func (self *IrSwitch) keys() []int64 {
    ks := make([]int64, 0, len(self.Br))
    for id := range self.Br { ks = append(ks, id) }
    sort.Slice(ks, func(i int, j int) bool { return ks[i] < ks[j] })
    return ks
}

func (self *IrSwitch) Usages() []*Reg {
    if len(self.Br) == 0 {
        return nil
    } else {
        return []*Reg { &self.V }
    }
}

func (self *IrSwitch) Successors() IrSuccessors {
    ks := self.keys()
    vs := make([]*BasicBlock, 0, len(ks) + 1)

    /* branches first, in value order, then the default branch */
    for _, id := range ks { vs = append(vs, self.Br[id]) }
    vs = append(vs, self.Ln)
    return &_SwitchSuccessors { i: -1, k: ks, v: vs }
}

type _EmptySuccessor struct{}
func (_EmptySuccessor) Next()  bool          { return false }
func (_EmptySuccessor) Block() *BasicBlock   { return nil }
func (_EmptySuccessor) Value() (int64, bool) { return 0, false }

type IrReturn struct {
    R []Reg
}

func (self *IrReturn) String() string {
    nb := len(self.R)
    ret := make([]string, 0, nb)

    /* dump registers */
    for _, r := range self.R {
        ret = append(ret, r.String())
    }

    /* join them together */
    return fmt.Sprintf(
        "ret {%s}",
        strings.Join(ret, ", "),
    )
}

func (self *IrReturn) Usages() []*Reg {
    return regsliceref(self.R)
}

func (self *IrReturn) Successors() IrSuccessors {
    return _EmptySuccessor{}
}

type IrConstInt struct {
    R Reg
    V int64
}

func (self *IrConstInt) String() string {
    return fmt.Sprintf("%s = const.i64 %d", self.R, self.V)
}

func (self *IrConstInt) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrLoadArg struct {
    R  Reg
    Id int
}

func (self *IrLoadArg) String() string {
    return fmt.Sprintf("%s = load.arg(#%d)", self.R, self.Id)
}

func (self *IrLoadArg) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrAlloc allocates a new heap object of a known class, with every field
 * initially null. */
type IrAlloc struct {
    R     Reg
    Class string
}

func (self *IrAlloc) String() string {
    return fmt.Sprintf("%s = alloc %s", self.R, self.Class)
}

func (self *IrAlloc) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrAllocBuf allocates a new zero-filled buffer of Len bytes. */
type IrAllocBuf struct {
    R   Reg
    Len int64
}

func (self *IrAllocBuf) String() string {
    return fmt.Sprintf("%s = alloc.buf %d", self.R, self.Len)
}

func (self *IrAllocBuf) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrBufView produces a displaced view over the bytes of another buffer, it
 * does not copy or allocate backing storage. */
type IrBufView struct {
    R    Reg
    Buf  Reg
    Disp int64
}

func (self *IrBufView) String() string {
    return fmt.Sprintf("%s = view %s, +%d", self.R, self.Buf, self.Disp)
}

func (self *IrBufView) Usages() []*Reg {
    return []*Reg { &self.Buf }
}

func (self *IrBufView) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrLoadField struct {
    R   Reg
    Obj Reg
    S   Slot
}

func (self *IrLoadField) String() string {
    return fmt.Sprintf("%s = load.field %s, %s", self.R, self.Obj, self.S)
}

func (self *IrLoadField) Usages() []*Reg {
    return []*Reg { &self.Obj }
}

func (self *IrLoadField) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrStoreField struct {
    Obj Reg
    S   Slot
    V   Reg
}

func (self *IrStoreField) String() string {
    return fmt.Sprintf("store.field %s -> %s, %s", self.V, self.Obj, self.S)
}

func (self *IrStoreField) Usages() []*Reg {
    return []*Reg { &self.Obj, &self.V }
}

type IrLoadIndex struct {
    R    Reg
    Buf  Reg
    Idx  Reg
    Size uint8
}

func (self *IrLoadIndex) String() string {
    return fmt.Sprintf("%s = load.u%d %s[%s]", self.R, self.Size * 8, self.Buf, self.Idx)
}

func (self *IrLoadIndex) Usages() []*Reg {
    return []*Reg { &self.Buf, &self.Idx }
}

func (self *IrLoadIndex) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrStoreIndex struct {
    Buf  Reg
    Idx  Reg
    Size uint8
    V    Reg
}

func (self *IrStoreIndex) String() string {
    return fmt.Sprintf("store.u%d %s -> %s[%s]", self.Size * 8, self.V, self.Buf, self.Idx)
}

func (self *IrStoreIndex) Usages() []*Reg {
    return []*Reg { &self.Buf, &self.Idx, &self.V }
}

/* IrRedefine renames a value without any runtime effect. */
type IrRedefine struct {
    R Reg
    V Reg
}

func (self *IrRedefine) String() string {
    return fmt.Sprintf("%s = redef %s", self.R, self.V)
}

func (self *IrRedefine) Usages() []*Reg {
    return []*Reg { &self.V }
}

func (self *IrRedefine) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrCheckNull throws if its operand is null, and passes it through otherwise. */
type IrCheckNull struct {
    R Reg
    V Reg
}

func (self *IrCheckNull) String() string {
    return fmt.Sprintf("%s = chknull %s", self.R, self.V)
}

func (self *IrCheckNull) Usages() []*Reg {
    return []*Reg { &self.V }
}

func (self *IrCheckNull) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrAssertType throws if its operand is not an instance of Class, and passes
 * it through otherwise. */
type IrAssertType struct {
    R     Reg
    V     Reg
    Class string
}

func (self *IrAssertType) String() string {
    return fmt.Sprintf("%s = assert.type %s, %s", self.R, self.V, self.Class)
}

func (self *IrAssertType) Usages() []*Reg {
    return []*Reg { &self.V }
}

func (self *IrAssertType) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type (
    IrUnaryOp  uint8
    IrBinaryOp uint8
)

const (
    IrOpNegate IrUnaryOp = iota
    IrOpNot
)

const (
    IrOpAdd IrBinaryOp = iota
    IrOpSub
    IrOpMul
    IrOpAnd
    IrOpOr
    IrOpXor
    IrOpShr
    IrCmpEq
    IrCmpNe
    IrCmpLt
)

func (self IrUnaryOp) String() string {
    switch self {
        case IrOpNegate : return "negate"
        case IrOpNot    : return "not"
        default         : panic("unreachable")
    }
}

func (self IrBinaryOp) String() string {
    switch self {
        case IrOpAdd : return "+"
        case IrOpSub : return "-"
        case IrOpMul : return "*"
        case IrOpAnd : return "&"
        case IrOpOr  : return "|"
        case IrOpXor : return "^"
        case IrOpShr : return ">>"
        case IrCmpEq : return "=="
        case IrCmpNe : return "!="
        case IrCmpLt : return "<"
        default      : panic("unreachable")
    }
}

type IrUnaryExpr struct {
    R  Reg
    V  Reg
    Op IrUnaryOp
}

func (self *IrUnaryExpr) String() string {
    return fmt.Sprintf("%s = %s %s", self.R, self.Op, self.V)
}

func (self *IrUnaryExpr) Usages() []*Reg {
    return []*Reg { &self.V }
}

func (self *IrUnaryExpr) Definitions() []*Reg {
    return []*Reg { &self.R }
}

type IrBinaryExpr struct {
    R  Reg
    X  Reg
    Y  Reg
    Op IrBinaryOp
}

func (self *IrBinaryExpr) String() string {
    return fmt.Sprintf("%s = %s %s %s", self.R, self.X, self.Op, self.Y)
}

func (self *IrBinaryExpr) Usages() []*Reg {
    return []*Reg { &self.X, &self.Y }
}

func (self *IrBinaryExpr) Definitions() []*Reg {
    return []*Reg { &self.R }
}

/* IrCall invokes an external function, which may reenter arbitrary code and
 * observe or mutate anything reachable from its arguments. */
type IrCall struct {
    Fn  string
    In  []Reg
    Out []Reg
}

func (self *IrCall) String() string {
    in := make([]string, 0, len(self.In))
    out := make([]string, 0, len(self.Out))

    /* dump args and rets */
    for _, r := range self.In  { in = append(in, r.String()) }
    for _, r := range self.Out { out = append(out, r.String()) }

    /* join them together */
    return fmt.Sprintf(
        "{%s} = call %s, {%s}",
        strings.Join(out, ", "),
        self.Fn,
        strings.Join(in, ", "),
    )
}

func (self *IrCall) Usages() []*Reg {
    return regsliceref(self.In)
}

func (self *IrCall) Definitions() []*Reg {
    return regsliceref(self.Out)
}

/* IrCatchEntry is the first instruction of a catch-entry block, its Vars list
 * holds one placeholder definition per environment slot, representing the
 * value of the corresponding source variable on entry to the handler. Pruned
 * slots hold zero registers. */
type IrCatchEntry struct {
    Vars []Reg
}

func (self *IrCatchEntry) String() string {
    ret := make([]string, 0, len(self.Vars))

    /* dump the non-empty slots */
    for i, r := range self.Vars {
        if r.Kind() != _K_zero {
            ret = append(ret, fmt.Sprintf("%d: %s", i, r))
        }
    }

    /* join them together */
    return fmt.Sprintf(
        "catch.entry {%s}",
        strings.Join(ret, ", "),
    )
}

func (self *IrCatchEntry) Definitions() (r []*Reg) {
    for i := range self.Vars {
        if self.Vars[i].Kind() != _K_zero {
            r = append(r, &self.Vars[i])
        }
    }
    return
}
