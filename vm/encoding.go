// Package vm implements the register machine that executes cell genomes, the
// genome mutation operators, and the deferred command queues through which
// cells affect each other.
package vm

import "fmt"

// Opcode identifies an operation. Raw opcode fields are reduced modulo
// NumOperations before dispatch so every word decodes to a valid operation.
type Opcode uint16

const (
	OpNop Opcode = iota
	OpCopy
	OpLoad
	OpStore
	OpLoadStore

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpModF

	OpAnd
	OpNand
	OpOr
	OpNor
	OpNegate
	OpXor

	OpJump
	OpJumpZ
	OpJumpNZ
	OpJumpGZ
	OpJumpLZ
	OpJumpGEZ
	OpJumpLEZ

	OpSleep
	OpSleepTouch
	OpSleepAttack
	OpMove
	OpRotate
	OpSplit
	OpBurn
	OpSuicide
	OpColorGreen
	OpColorRed
	OpColorBlue
	OpGrow
	OpGetEnergy
	OpGetLightGreen
	OpGetLightRed
	OpGetWaste
	OpWasTouched
	OpWasAttacked
	OpSee
	OpSize
	OpMySize
	OpArmor
	OpMyArmor
	OpAttack
	OpTransfer

	NumOperations
)

var opNames = [NumOperations]string{
	"nop", "copy", "load", "store", "loadstore",
	"add", "sub", "mul", "div", "mod",
	"addf", "subf", "mulf", "divf", "modf",
	"and", "nand", "or", "nor", "negate", "xor",
	"jump", "jz", "jnz", "jgz", "jlz", "jgez", "jlez",
	"sleep", "sleep.touch", "sleep.attack",
	"move", "rotate", "split", "burn", "suicide",
	"color.green", "color.red", "color.blue",
	"grow", "energy", "light.green", "light.red", "waste",
	"touched", "attacked",
	"see", "size", "mysize", "armor", "myarmor",
	"attack", "transfer",
}

func (o Opcode) String() string {
	if o < NumOperations {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// Word layout.
const (
	opcodeMask    = 0x3fff
	op1RegBit     = 1 << 14
	op2RegBit     = 1 << 15
	resultShift   = 16
	operand1Shift = 32
	operand2Shift = 48
)

// Instruction is one packed genome word:
//
//	bits  0..13  opcode
//	bit   14     operand 1 names a register
//	bit   15     operand 2 names a register
//	bits 16..31  result register
//	bits 32..47  operand 1
//	bits 48..63  operand 2
type Instruction uint64

// Opcode returns the decoded operation.
func (in Instruction) Opcode() Opcode {
	return Opcode(uint16(in&opcodeMask) % uint16(NumOperations))
}

// Op1IsRegister reports whether operand 1 is a register index.
func (in Instruction) Op1IsRegister() bool { return in&op1RegBit != 0 }

// Op2IsRegister reports whether operand 2 is a register index.
func (in Instruction) Op2IsRegister() bool { return in&op2RegBit != 0 }

// Result returns the raw result register field.
func (in Instruction) Result() uint16 { return uint16(in >> resultShift) }

// Operand1 returns the raw first operand field.
func (in Instruction) Operand1() uint16 { return uint16(in >> operand1Shift) }

// Operand2 returns the raw second operand field.
func (in Instruction) Operand2() uint16 { return uint16(in >> operand2Shift) }

// Operand is one encoded operand: an immediate value or a register index.
type Operand struct {
	Value    uint16
	Register bool
}

// Imm returns an immediate operand.
func Imm(v uint16) Operand { return Operand{Value: v} }

// ImmF returns an immediate operand holding a [0,1] float.
func ImmF(v float32) Operand { return Operand{Value: FromFloat(v)} }

// Reg returns a register operand.
func Reg(i uint16) Operand { return Operand{Value: i, Register: true} }

// Encode packs an instruction.
func Encode(op Opcode, result uint16, a, b Operand) Instruction {
	in := Instruction(op) & opcodeMask
	if a.Register {
		in |= op1RegBit
	}
	if b.Register {
		in |= op2RegBit
	}
	in |= Instruction(result) << resultShift
	in |= Instruction(a.Value) << operand1Shift
	in |= Instruction(b.Value) << operand2Shift
	return in
}

func (in Instruction) String() string {
	operand := func(v uint16, reg bool) string {
		if reg {
			return fmt.Sprintf("r%d", v%NumRegisters)
		}
		return fmt.Sprintf("#%d", v)
	}
	return fmt.Sprintf("r%d = %s %s, %s",
		in.Result()%NumRegisters,
		in.Opcode(),
		operand(in.Operand1(), in.Op1IsRegister()),
		operand(in.Operand2(), in.Op2IsRegister()),
	)
}

// SeedGenome returns the genome of a freshly spawned root cell: set a low
// growth point, sleep, then split.
func SeedGenome() []uint64 {
	return []uint64{
		uint64(Encode(OpGrow, 0, ImmF(0.01), Imm(0))),
		uint64(Encode(OpSleep, 0, Imm(256), Imm(0))),
		uint64(Encode(OpSplit, 0, ImmF(0.9), Imm(0))),
	}
}
