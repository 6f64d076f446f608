package vm

import (
	"math/rand/v2"
	"slices"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
)

// Genomes are mutated at byte granularity: byte i is byte i%8 (little
// endian) of word i/8.

func setByte(code []uint64, i int, v uint8) {
	sh := uint(i%8) * 8
	w := &code[i/8]
	*w = *w&^(0xff<<sh) | uint64(v)<<sh
}

func addByte(code []uint64, i int, delta uint8) {
	sh := uint(i%8) * 8
	w := &code[i/8]
	b := uint8(*w>>sh) + delta
	*w = *w&^(0xff<<sh) | uint64(b)<<sh
}

func randomByte(r *rand.Rand) uint8 { return uint8(r.Uint32()) }

// clampGenome enforces the genome length bounds.
func clampGenome(code []uint64) []uint64 {
	if len(code) == 0 {
		code = append(code, 0)
	}
	if len(code) > components.MaxBytecodeSize {
		code = code[:components.MaxBytecodeSize]
	}
	return code
}

// LiveMutate rolls one low-probability mutation against a running cell's
// genome. It reports whether the genome changed.
func LiveMutate(c *components.Cell, o *config.Options) bool {
	code := c.VM.Bytecode
	if len(code) == 0 || c.Roll() >= o.LiveMutationChance {
		return false
	}
	r := c.Rand
	nbytes := len(code) * 8

	switch r.IntN(8) {
	case 0:
		v := randomByte(r)
		setByte(code, r.IntN(nbytes), v)
	case 1:
		addByte(code, r.IntN(nbytes), 1)
	case 2:
		addByte(code, r.IntN(nbytes), 0xff)
	case 3:
		v := randomByte(r)
		addByte(code, r.IntN(nbytes), v)
	case 4:
		v := randomByte(r)
		addByte(code, r.IntN(nbytes), -v)
	case 5:
		v := r.Uint64()
		code = slices.Insert(code, r.IntN(len(code)+1), v)
	case 6:
		i := r.IntN(len(code))
		code = slices.Delete(code, i, i+1)
	case 7:
		// Copy a random range to a random position.
		from := r.IntN(len(code))
		size := 1 + r.IntN(len(code)-from)
		at := r.IntN(len(code) + 1)
		chunk := slices.Clone(code[from : from+size])
		code = slices.Insert(code, at, chunk...)
	}

	SetBytecodeLive(c, clampGenome(code))
	return true
}

// MutateChild applies the split-time mutation operators to a copy of the
// parent genome, each rolled independently with r (the child's source).
func MutateChild(r *rand.Rand, code []uint64, o *config.Options) []uint64 {
	roll := func(chance float32) bool {
		return len(code) > 0 && r.Float32() < chance
	}

	if roll(o.MutationSubstitutionChance) {
		v := randomByte(r)
		setByte(code, r.IntN(len(code)*8), v)
	}
	if roll(o.MutationIncrementChance) {
		addByte(code, r.IntN(len(code)*8), 1)
	}
	if roll(o.MutationDecrementChance) {
		addByte(code, r.IntN(len(code)*8), 0xff)
	}
	if roll(o.MutationInsertionChance) {
		v := r.Uint64()
		code = slices.Insert(code, r.IntN(len(code)+1), v)
	}
	if roll(o.MutationDeletionChance) {
		i := r.IntN(len(code))
		code = slices.Delete(code, i, i+1)
	}
	if roll(o.MutationDuplicationChance) {
		src := r.IntN(len(code))
		at := r.IntN(len(code) + 1)
		code = slices.Insert(code, at, code[src])
	}
	if roll(o.MutationRangeDuplicationChance) {
		src := r.IntN(len(code))
		at := r.IntN(len(code) + 1)
		size := min(r.IntN(len(code)), len(code)-src)
		chunk := slices.Clone(code[src : src+size])
		code = slices.Insert(code, at, chunk...)
	}
	if roll(o.MutationRangeDeletionChance) {
		src := r.IntN(len(code))
		size := min(r.IntN(len(code)), len(code)-src)
		code = slices.Delete(code, src, src+size)
	}

	return clampGenome(code)
}
