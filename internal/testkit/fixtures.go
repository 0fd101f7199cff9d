package testkit

import (
	"tfjit/internal/ir"
)

// Diamond3 returns a unit whose exit block B4 has three predecessors
// reached through a switch. Parameter 0 (tagged) is live across the merge
// and the exit block carries an explicit tagged phi.
func Diamond3() *ir.Unit {
	ub := NewUnit("diamond3", true)
	b0 := ub.Block(0)
	x := b0.Param(0)
	sel := b0.Param(1)
	pop := b0.Int32(0)
	b0.Switch(sel, 1, 2, 3)

	b1 := ub.Block(1, 0)
	b1.IfValue(0)
	y1 := b1.Heap(0x1001)
	b1.Goto(4)

	b2 := ub.Block(2, 0)
	b2.IfValue(1)
	y2 := b2.Heap(0x1002)
	b2.Goto(4)

	b3 := ub.Block(3, 0).Deferred()
	b3.IfDefault()
	b3.Goto(4)

	b4 := ub.Block(4, 1, 2, 3)
	phi := b4.Phi(ir.RepTagged, y1, y2, x)
	b4.Store(ir.RepTagged, ir.BarrierNone, x, pop, phi)
	b4.Return(pop, x)
	return ub.Unit()
}

// Loop returns a counted loop. B1 is the header with predecessors B0 and
// the back edge from B2, so its merge must be fixed up after B2 ends.
// Parameter 0 (tagged) stays live around the loop.
func Loop() *ir.Unit {
	ub := NewUnit("loop", false)
	b0 := ub.Block(0)
	x := b0.Param(0)
	zero := b0.Int32(0)
	limit := b0.Int32(10)
	b0.Goto(1)

	// i2 is defined in B2; its id is known because ids are sequential.
	const i2 = 7
	b1 := ub.Block(1, 0, 2)
	i := b1.Phi(ir.RepWord32, zero, i2)
	cmp := b1.Binary(ir.InstrInt32LessThan, i, limit)
	b1.Branch(cmp, 2, 3)

	b2 := ub.Block(2, 1)
	one := b2.Int32(1)
	if got := b2.Binary(ir.InstrInt32Add, i, one); got != i2 {
		panic("testkit: loop fixture id drift")
	}
	b2.Goto(1)

	b3 := ub.Block(3, 1).Deferred()
	b3.Return(zero, x)
	return ub.Unit()
}

// CallWithOperands returns a unit that calls a code object with regOps
// register-class operands (assigned r0, r1, ...) followed by stackOps
// stack-class operands. The call result and parameter 0 are live afterwards.
func CallWithOperands(regOps, stackOps int) *ir.Unit {
	ub := NewUnit("call", true)
	b0 := ub.Block(0)
	x := b0.Param(0)
	target := b0.Code(0x2001)

	desc := ir.CallDescriptor{ReturnCount: 1}
	ops := []int{target}
	for i := 0; i < regOps; i++ {
		ops = append(ops, b0.Int32(int64(i)))
		desc.RegistersForOperands = append(desc.RegistersForOperands, i)
	}
	for i := 0; i < stackOps; i++ {
		ops = append(ops, b0.Int32(int64(100+i)))
		desc.RegistersForOperands = append(desc.RegistersForOperands, -1)
	}
	res := b0.Call(true, desc, ops...)
	b0.Goto(1)

	b1 := ub.Block(1, 0)
	pop := b1.Int32(0)
	b1.Store(ir.RepTagged, ir.BarrierNone, x, pop, res)
	b1.Return(pop, res)
	return ub.Unit()
}

// StoreWithBarrier returns a single-block unit storing parameter 1 into
// parameter 0 with the given barrier.
func StoreWithBarrier(kind ir.WriteBarrierKind) *ir.Unit {
	ub := NewUnit("store_"+kind.String(), true)
	b0 := ub.Block(0)
	obj := b0.Param(0)
	val := b0.Param(1)
	off := b0.Int32(11)
	b0.Store(ir.RepTagged, kind, obj, off, val)
	pop := b0.Int32(0)
	b0.Return(pop, obj)
	return ub.Unit()
}
