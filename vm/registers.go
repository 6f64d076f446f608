package vm

import "github.com/pthm-cable/phylo/components"

// NumRegisters is the register file size. Register indices wrap modulo it.
const NumRegisters = components.NumRegisters

// Registers are 16 bits wide and reinterpreted by each consumer as unsigned,
// signed, or a fixed-point fraction in [0,1].

// FromFloat encodes v as a register fraction, clamping to [0,1].
func FromFloat(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v * 65535.5)
}

// ToFloat decodes a register fraction.
func ToFloat(r uint16) float32 {
	return float32(r) / 65535
}

// Signed reinterprets a register as a two's complement integer.
func Signed(r uint16) int16 {
	return int16(r)
}

func boolReg(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
