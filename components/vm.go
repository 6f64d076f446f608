package components

// SleepState is a wake condition latched by the sleep-until instructions.
type SleepState uint8

const (
	SleepNone SleepState = iota
	SleepTouched
	SleepAttacked
)

// VMState is the register machine state of one cell.
type VMState struct {
	Registers  [NumRegisters]uint16
	PC         uint32
	Sleep      SleepState
	SleepCount uint16
	Bytecode   []uint64
}
