package config

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
)

// Options is the flat set of runtime tunables. Every field is fixed-size so
// the struct can be written to and read from save files field by field.
type Options struct {
	LightMapChangeRate float32 `yaml:"light_map_change_rate"`

	BaselineBytecodeSize int32   `yaml:"baseline_bytecode_size"`
	BurnEnergyPercentage float32 `yaml:"burn_energy_percentage"`
	BaseEnergyMultiplier float32 `yaml:"base_energy_multiplier"`

	// Child genome mutation chances, rolled independently on every split.
	MutationSubstitutionChance     float32 `yaml:"mutation_substitution_chance"`
	MutationIncrementChance        float32 `yaml:"mutation_increment_chance"`
	MutationDecrementChance        float32 `yaml:"mutation_decrement_chance"`
	MutationInsertionChance        float32 `yaml:"mutation_insertion_chance"`
	MutationDeletionChance         float32 `yaml:"mutation_deletion_chance"`
	MutationDuplicationChance      float32 `yaml:"mutation_duplication_chance"`
	MutationRangeDuplicationChance float32 `yaml:"mutation_range_duplication_chance"`
	MutationRangeDeletionChance    float32 `yaml:"mutation_range_deletion_chance"`

	// Reserved for operand-level mutation; persisted so saves stay compatible.
	CodeMutationIncrementChance float32 `yaml:"code_mutation_increment_chance"`
	CodeMutationDecrementChance float32 `yaml:"code_mutation_decrement_chance"`
	CodeMutationRandomChance    float32 `yaml:"code_mutation_random_chance"`
	CodeMutationSwapChance      float32 `yaml:"code_mutation_swap_chance"`

	ArmorRegrowthRate  float32 `yaml:"armor_regrowth_rate"`
	LiveMutationChance float32 `yaml:"live_mutation_chance"`
	CrowdingPenalty    float32 `yaml:"crowding_penalty"`

	TickEnergyLost      int32 `yaml:"tick_energy_lost"`
	SleepTickEnergyLost int32 `yaml:"sleep_tick_energy_lost"`

	BaseMoveCost   int32 `yaml:"base_move_cost"`
	BaseRotateCost int32 `yaml:"base_rotate_cost"`
	BaseSplitCost  int32 `yaml:"base_split_cost"`
	BaseGrowCost   int32 `yaml:"base_grow_cost"`
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		LightMapChangeRate:             0.00005,
		BaselineBytecodeSize:           1024,
		BurnEnergyPercentage:           0.05,
		BaseEnergyMultiplier:           195,
		MutationSubstitutionChance:     0.0025,
		MutationIncrementChance:        0.0025,
		MutationDecrementChance:        0.0025,
		MutationInsertionChance:        0.0045,
		MutationDeletionChance:         0.0025,
		MutationDuplicationChance:      0.0045,
		MutationRangeDuplicationChance: 0.0045,
		MutationRangeDeletionChance:    0.0045,
		CodeMutationIncrementChance:    0.01,
		CodeMutationDecrementChance:    0.01,
		CodeMutationRandomChance:       0.01,
		CodeMutationSwapChance:         0.01,
		ArmorRegrowthRate:              0.0001,
		LiveMutationChance:             0.00001,
		CrowdingPenalty:                0.001,
		TickEnergyLost:                 100,
		SleepTickEnergyLost:            25,
		BaseMoveCost:                   75,
		BaseRotateCost:                 10,
		BaseSplitCost:                  10,
		BaseGrowCost:                   100000,
	}
}

// current holds the tunables read by the simulation hot paths.
var current atomic.Pointer[Options]

func init() {
	o := DefaultOptions()
	current.Store(&o)
}

// CurrentOptions returns the active tunables. The returned value must not be modified.
func CurrentOptions() *Options {
	return current.Load()
}

// SetOptions replaces the active tunables. Callers that run concurrently with
// a tick must hold the simulation lock so a tick never observes two sets.
func SetOptions(o Options) {
	current.Store(&o)
}

// OptionsSize is the encoded size of Options in bytes.
var OptionsSize = binary.Size(Options{})

// MarshalBinary encodes the options as little-endian values in declaration order.
func (o Options) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(OptionsSize)
	if err := binary.Write(&buf, binary.LittleEndian, o); err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes options written by MarshalBinary.
func (o *Options) UnmarshalBinary(data []byte) error {
	if len(data) != OptionsSize {
		return fmt.Errorf("decoding options: want %d bytes, got %d", OptionsSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, o); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}

// Speed is the tick rate selector.
type Speed uint8

const (
	SpeedPause Speed = iota
	SpeedSlow
	SpeedMedium
	SpeedFast
	SpeedLudicrous
)

var speedNames = [...]string{"pause", "slow", "medium", "fast", "ludicrous"}

func (s Speed) String() string {
	if int(s) < len(speedNames) {
		return speedNames[s]
	}
	return fmt.Sprintf("speed(%d)", s)
}

// ParseSpeed maps a speed name to its value. Empty means ludicrous.
func ParseSpeed(name string) (Speed, error) {
	if name == "" {
		return SpeedLudicrous, nil
	}
	for i, n := range speedNames {
		if strings.EqualFold(n, name) {
			return Speed(i), nil
		}
	}
	return 0, fmt.Errorf("unknown speed %q", name)
}

// RenderMode selects the colour written to each render instance.
type RenderMode uint8

const (
	RenderNormal RenderMode = iota
	RenderHashCode
	RenderDye
)

var renderModeNames = [...]string{"normal", "hash", "dye"}

func (m RenderMode) String() string {
	if int(m) < len(renderModeNames) {
		return renderModeNames[m]
	}
	return fmt.Sprintf("render_mode(%d)", m)
}

// ParseRenderMode maps a render mode name to its value. Empty means normal.
func ParseRenderMode(name string) (RenderMode, error) {
	if name == "" {
		return RenderNormal, nil
	}
	for i, n := range renderModeNames {
		if strings.EqualFold(n, name) {
			return RenderMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown render mode %q", name)
}
