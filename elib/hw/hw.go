// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Memory mapped register read/write
package hw

import "fmt"

// A Bus reads and writes 32 bit registers at absolute physical addresses.
type Bus interface {
	Read32(addr uint64) uint32
	Write32(addr uint64, v uint32)
}

// A Block is a register window: a bus and the base of the window on it.
type Block struct {
	Bus  Bus
	Base uint64
}

func (b Block) String() string { return fmt.Sprintf("0x%012x", b.Base) }

// Sub returns the window starting at byte offset o of b.
func (b Block) Sub(o uint64) Block { return Block{b.Bus, b.Base + o} }

func (b Block) Read32(o uint64) uint32     { return b.Bus.Read32(b.Base + o) }
func (b Block) Write32(o uint64, v uint32) { b.Bus.Write32(b.Base+o, v) }

// Reg is the byte offset of a 32 bit register within a Block.
type Reg uint32

func (r Reg) addr(b Block) uint64 { return b.Base + uint64(r) }

func (r Reg) Get(b Block) uint32    { return b.Bus.Read32(r.addr(b)) }
func (r Reg) Set(b Block, v uint32) { b.Bus.Write32(r.addr(b), v) }

func (r Reg) Or(b Block, v uint32) (x uint32) {
	x = r.Get(b) | v
	r.Set(b, x)
	return
}

func (r Reg) AndNot(b Block, v uint32) (x uint32) {
	x = r.Get(b) &^ v
	r.Set(b, x)
	return
}

// Update is a read/modify/write of a single field.
func (r Reg) Update(b Block, f Field, v uint32) (x uint32) {
	x = f.Set(r.Get(b), v)
	r.Set(b, x)
	return
}

// Field extracts and inserts bits [Shift+Width-1:Shift] of a register value.
type Field struct {
	Shift, Width uint8
}

// Bit is a single bit field.
func Bit(n uint8) Field { return Field{n, 1} }

// Bits is the field [hi:lo].
func Bits(hi, lo uint8) Field { return Field{lo, hi - lo + 1} }

func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return ((1 << f.Width) - 1) << f.Shift
}

func (f Field) Get(x uint32) uint32 { return (x & f.Mask()) >> f.Shift }

func (f Field) Set(x, v uint32) uint32 {
	return (x &^ f.Mask()) | ((v << f.Shift) & f.Mask())
}

func (f Field) IsSet(x uint32) bool { return x&f.Mask() != 0 }

// Value is the field shifted into position; handy for or/andnot.
func (f Field) Value(v uint32) uint32 { return (v << f.Shift) & f.Mask() }
