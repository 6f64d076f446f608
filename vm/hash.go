package vm

import "github.com/pthm-cable/phylo/components"

// Hash folds a genome into an HSV colour. Each word contributes its bytes to
// three 8-bit accumulators, so genomes that differ slightly get nearby colours.
func Hash(code []uint64) [4]float32 {
	var o0, o1, o2 uint8
	for _, w := range code {
		b0, b1, b2, b3 := uint8(w), uint8(w>>8), uint8(w>>16), uint8(w>>24)
		b4, b5, b6, b7 := uint8(w>>32), uint8(w>>40), uint8(w>>48), uint8(w>>56)
		o0 += b0 + b3
		o1 += b1 + b3
		o2 += b2 + b3
		o0 += b4 + b7
		o1 += b5 + b7
		o2 += b6 + b7
	}
	return [4]float32{
		float32(o0) / 255.5 * 6,
		float32(o1) / 255.5,
		float32(o2) / 255.5,
		1,
	}
}

// SetBytecode installs a genome on a cell that has not run yet.
func SetBytecode(c *components.Cell, code []uint64) {
	c.VM.Bytecode = code
	c.VM.PC = 0
	c.Hash = Hash(code)
}

// SetBytecodeLive replaces the genome of a running cell, keeping the program
// counter in range.
func SetBytecodeLive(c *components.Cell, code []uint64) {
	if len(code) == 0 {
		code = append(code, 0)
	}
	c.VM.Bytecode = code
	c.VM.PC %= uint32(len(code))
	c.Hash = Hash(code)
}
