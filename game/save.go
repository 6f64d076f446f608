package game

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
)

// Save file layout: a 12-byte header (u32 compression flag, u64 payload
// size) followed by the zlib-compressed payload. All integers are little
// endian.
const (
	saveHeaderSize = 12
	saveCompressed = 1
	maxSavePayload = 1 << 36
	maxFieldEdge   = 1 << 14

	// minCellRecord is a lower bound on the encoded size of one cell, used to
	// reject absurd counts before allocating.
	minCellRecord = 128
)

var (
	// ErrCorruptSave is returned for truncated or inconsistent save data.
	ErrCorruptSave = errors.New("corrupt save")
	// ErrSaveInProgress is returned when a save is requested while another is
	// still being written.
	ErrSaveInProgress = errors.New("save already in progress")
)

// Save writes the complete simulation state to w.
func (s *Simulation) Save(w io.Writer) error {
	payload, err := s.encode()
	if err != nil {
		return err
	}

	var hdr [saveHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], saveCompressed)
	binary.LittleEndian.PutUint64(hdr[4:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing save header: %w", err)
	}

	zw := zlib.NewWriter(w)
	if _, err := zw.Write(payload); err != nil {
		return fmt.Errorf("compressing save: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing save: %w", err)
	}
	return nil
}

// SaveFile writes the simulation to path atomically and returns the number
// of bytes written.
func (s *Simulation) SaveFile(path string) (int64, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("creating save directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating save file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := s.Save(bw); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing save file: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing save file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("writing save file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("renaming save file: %w", err)
	}
	return info.Size(), nil
}

// Load reads a simulation written by Save. The current simulation options are
// replaced by the saved ones only if the whole file decodes.
func Load(cfg *config.Config, r io.Reader) (*Simulation, error) {
	payload, err := readPayload(r)
	if err != nil {
		return nil, err
	}
	s, opts, err := decode(cfg, payload)
	if err != nil {
		return nil, err
	}
	config.SetOptions(opts)
	return s, nil
}

// LoadFile opens path and loads it.
func LoadFile(cfg *config.Config, path string) (*Simulation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening save: %w", err)
	}
	defer f.Close()
	return Load(cfg, bufio.NewReader(f))
}

// SaveInfo summarises a save without building a simulation.
type SaveInfo struct {
	Name       string
	Tick       uint64
	TotalCells uint64
	Cells      uint64
	Waste      uint64
	Options    config.Options
}

// Inspect reads the header fields of a save.
func Inspect(r io.Reader) (SaveInfo, error) {
	payload, err := readPayload(r)
	if err != nil {
		return SaveInfo{}, err
	}
	d := decoder{b: payload}
	var info SaveInfo
	if err := info.Options.UnmarshalBinary(d.next(config.OptionsSize)); err != nil && d.err == nil {
		return SaveInfo{}, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}
	info.Name = d.str()
	info.TotalCells = d.u64()
	info.Tick = d.u64()
	d.next(3*4 + 4 + 4 + 4)
	n := d.count(d.u64(), 4)
	for range n {
		info.Waste += uint64(d.u32())
	}
	info.Cells = d.u64()
	if d.err != nil {
		return SaveInfo{}, d.err
	}
	return info, nil
}

func readPayload(r io.Reader) ([]byte, error) {
	var hdr [saveHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptSave, err)
	}
	flag := binary.LittleEndian.Uint32(hdr[0:])
	size := binary.LittleEndian.Uint64(hdr[4:])
	if size > maxSavePayload {
		return nil, fmt.Errorf("%w: payload size %d", ErrCorruptSave, size)
	}

	src := r
	if flag == saveCompressed {
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSave, err)
		}
		defer zr.Close()
		src = zr
	} else if flag != 0 {
		return nil, fmt.Errorf("%w: unknown compression flag %d", ErrCorruptSave, flag)
	}

	payload, err := io.ReadAll(io.LimitReader(src, int64(size)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}
	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorruptSave, len(payload), size)
	}
	return payload, nil
}

func (s *Simulation) encode() ([]byte, error) {
	opts, err := config.CurrentOptions().MarshalBinary()
	if err != nil {
		return nil, err
	}

	var e encoder
	e.raw(opts)
	e.str(s.name)
	e.u64(s.totalCells)
	e.u64(s.tick)
	e.u32(s.physics.Grid().Edge())
	e.u32(s.light.Edge())
	e.u32(s.waste.Edge())
	e.f32(s.light.Z())
	e.u32(s.light.Row())
	e.u32(uint32(s.light.Seed()))

	waste := s.waste.Values()
	e.u64(uint64(len(waste)))
	for _, v := range waste {
		e.u32(v)
	}

	e.u64(uint64(s.cells.Len()))
	for i := range s.cells.Len() {
		if err := s.encodeCell(&e, s.cells.At(i)); err != nil {
			return nil, err
		}
	}
	return e.b, nil
}

func (s *Simulation) encodeCell(e *encoder, c *components.Cell) error {
	src, err := c.Src.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding cell %d random state: %w", c.ID, err)
	}
	e.blob(src)
	e.u64(c.ID)
	e.u64(c.ParentID)
	e.u32(c.Generation)
	e.u32(c.Children)
	e.f32(c.Radius)
	e.u64(uint64(c.Energy))
	e.f32(c.Integrity)
	e.f32(c.Armor)
	e.f32(c.Green)
	e.f32(c.Red)
	e.f32(c.Blue)
	e.f32(c.GrowthPoint)
	e.bool(c.MoveState)
	e.f32(c.MoveSpeed)
	e.u32(c.Touched)
	e.u32(c.Attacked)
	e.u32(c.AttackedRemote)
	e.bool(c.TickCollided)
	e.bool(c.Alive)
	e.u64(c.KilledBy)
	e.vec4(c.Hash)
	e.vec4(c.Dye)
	e.f32(c.SelectBrightness)

	vs := &c.VM
	for _, r := range vs.Registers {
		e.u16(r)
	}
	e.u32(vs.PC)
	e.u8(uint8(vs.Sleep))
	e.u16(vs.SleepCount)
	e.u32(uint32(len(vs.Bytecode)))
	for _, w := range vs.Bytecode {
		e.u64(w)
	}

	phys := s.physics.At(c.PhysicsIdx)
	e.vec2(phys.Position)
	e.vec2(phys.Direction)
	e.vec2(phys.Velocity)
	e.f32(phys.Radius)
	e.u32(phys.TouchedThisFrame)
	e.bool(s.physics.Valid(c.PhysicsIdx))

	ri := s.renders.At(int(c.RenderIdx))
	for _, row := range ri.Transform {
		e.vec4(row)
	}
	e.vec4(ri.Color1)
	e.vec4(ri.Color2)
	e.vec4(ri.Trend)
	e.f32(ri.Radius)
	e.f32(ri.TimeOffset)
	e.vec4(ri.ArmorNucleus)
	return nil
}

func decode(cfg *config.Config, payload []byte) (*Simulation, config.Options, error) {
	var opts config.Options
	d := decoder{b: payload}

	if err := opts.UnmarshalBinary(d.next(config.OptionsSize)); err != nil && d.err == nil {
		return nil, opts, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}

	st := worldState{restored: true}
	st.name = d.str()
	st.totalCells = d.u64()
	st.tick = d.u64()
	st.simEdge = d.u32()
	st.lightEdge = d.u32()
	st.wasteEdge = d.u32()
	st.lightZ = d.f32()
	st.lightRow = d.u32()
	st.noiseSeed = int32(d.u32())
	if d.err != nil {
		return nil, opts, d.err
	}
	for _, edge := range []uint32{st.simEdge, st.lightEdge, st.wasteEdge} {
		if edge == 0 || edge > maxFieldEdge {
			return nil, opts, fmt.Errorf("%w: grid edge %d", ErrCorruptSave, edge)
		}
	}

	wasteCount := d.count(d.u64(), 4)
	if d.err == nil && wasteCount != int(st.wasteEdge)*int(st.wasteEdge) {
		return nil, opts, fmt.Errorf("%w: %d waste cells for edge %d", ErrCorruptSave, wasteCount, st.wasteEdge)
	}
	waste := make([]uint32, wasteCount)
	for i := range waste {
		waste[i] = d.u32()
	}

	cellCount := d.count(d.u64(), minCellRecord)
	if d.err != nil {
		return nil, opts, d.err
	}
	if cellCount > cfg.World.MaxCells {
		return nil, opts, fmt.Errorf("%w: %d cells exceed capacity %d", ErrCorruptSave, cellCount, cfg.World.MaxCells)
	}

	s := newSimulation(cfg, st)
	copy(s.waste.Values(), waste)

	for range cellCount {
		if err := s.decodeCell(&d); err != nil {
			return nil, opts, err
		}
	}
	if d.err != nil {
		return nil, opts, d.err
	}
	if len(d.b) != 0 {
		return nil, opts, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSave, len(d.b))
	}

	s.physics.Populate()
	return s, opts, nil
}

func (s *Simulation) decodeCell(d *decoder) error {
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(d.blob()); err != nil {
		if d.err != nil {
			return d.err
		}
		return fmt.Errorf("%w: cell random state: %v", ErrCorruptSave, err)
	}

	c := components.Cell{Src: src, Rand: rand.New(src)}
	c.ID = d.u64()
	c.ParentID = d.u64()
	c.Generation = d.u32()
	c.Children = d.u32()
	radius := d.f32()
	energy := d.u64()
	c.Integrity = d.f32()
	c.Armor = d.f32()
	c.Green = d.f32()
	c.Red = d.f32()
	c.Blue = d.f32()
	c.GrowthPoint = d.f32()
	c.MoveState = d.bool()
	c.MoveSpeed = d.f32()
	c.Touched = d.u32()
	c.Attacked = d.u32()
	c.AttackedRemote = d.u32()
	c.TickCollided = d.bool()
	c.Alive = d.bool()
	c.KilledBy = d.u64()
	c.Hash = d.vec4()
	c.Dye = d.vec4()
	c.SelectBrightness = d.f32()

	vs := &c.VM
	for i := range vs.Registers {
		vs.Registers[i] = d.u16()
	}
	vs.PC = d.u32()
	vs.Sleep = components.SleepState(d.u8())
	vs.SleepCount = d.u16()
	n := d.count(uint64(d.u32()), 8)
	if d.err == nil && (n == 0 || n > components.MaxBytecodeSize) {
		return fmt.Errorf("%w: genome of %d words", ErrCorruptSave, n)
	}
	vs.Bytecode = make([]uint64, n)
	for i := range vs.Bytecode {
		vs.Bytecode[i] = d.u64()
	}

	var phys components.PhysicsRecord
	phys.Position = d.vec2()
	phys.Direction = d.vec2()
	phys.Velocity = d.vec2()
	physRadius := d.f32()
	phys.TouchedThisFrame = d.u32()
	physValid := d.bool()

	var ri components.RenderInstance
	for i := range ri.Transform {
		ri.Transform[i] = d.vec4()
	}
	ri.Color1 = d.vec4()
	ri.Color2 = d.vec4()
	ri.Trend = d.vec4()
	ri.Radius = d.f32()
	ri.TimeOffset = d.f32()
	ri.ArmorNucleus = d.vec4()

	if d.err != nil {
		return d.err
	}
	if !(radius > 0 && radius <= components.MaxCellSize) || radius != physRadius {
		return fmt.Errorf("%w: cell %d radius %v", ErrCorruptSave, c.ID, radius)
	}
	if vs.PC >= uint32(n) || vs.Sleep > components.SleepAttacked {
		return fmt.Errorf("%w: cell %d vm state", ErrCorruptSave, c.ID)
	}
	if !physValid {
		return fmt.Errorf("%w: cell %d has no physics record", ErrCorruptSave, c.ID)
	}
	if phys.Position.HasNaN() || phys.Velocity.HasNaN() || phys.Direction.HasNaN() {
		return fmt.Errorf("%w: cell %d position", ErrCorruptSave, c.ID)
	}

	c.SetRadius(radius, &phys)
	if energy > c.Capacity {
		return fmt.Errorf("%w: cell %d energy %d above capacity %d", ErrCorruptSave, c.ID, energy, c.Capacity)
	}
	c.Energy = components.Energy(energy)

	c.Entity = s.slots.NewEntity(&components.Slot{Index: int32(s.cells.Len())})
	phys.Owner = c.Entity
	c.PhysicsIdx = s.physics.Insert(phys)
	ri.SetOwner(c.Entity)
	c.RenderIdx = int32(s.renders.Insert(ri))
	s.cells.Insert(c)
	return nil
}

// encoder appends little-endian fields to a byte slice.
type encoder struct {
	b []byte
}

func (e *encoder) raw(p []byte)  { e.b = append(e.b, p...) }
func (e *encoder) u8(v uint8)    { e.b = append(e.b, v) }
func (e *encoder) u16(v uint16)  { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *encoder) u32(v uint32)  { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *encoder) u64(v uint64)  { e.b = binary.LittleEndian.AppendUint64(e.b, v) }
func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) blob(p []byte) {
	e.u32(uint32(len(p)))
	e.raw(p)
}

func (e *encoder) str(v string) { e.blob([]byte(v)) }

func (e *encoder) vec2(v components.Vec2) {
	e.f32(v.X)
	e.f32(v.Y)
}

func (e *encoder) vec4(v [4]float32) {
	for _, f := range v {
		e.f32(f)
	}
}

// decoder consumes little-endian fields. The first short read sets err to
// ErrCorruptSave; every later read returns zero values.
type decoder struct {
	b   []byte
	err error
}

// next returns the next n bytes, or nil once the input is exhausted.
func (d *decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.b) {
		d.err = fmt.Errorf("%w: truncated", ErrCorruptSave)
		d.b = nil
		return nil
	}
	p := d.b[:n:n]
	d.b = d.b[n:]
	return p
}

func (d *decoder) u8() uint8 {
	if p := d.next(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if p := d.next(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.next(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if p := d.next(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

func (d *decoder) f32() float32 { return math.Float32frombits(d.u32()) }
func (d *decoder) bool() bool   { return d.u8() != 0 }

func (d *decoder) blob() []byte {
	n := d.u32()
	return d.next(int(n))
}

func (d *decoder) str() string { return string(d.blob()) }

func (d *decoder) vec2() components.Vec2 {
	return components.Vec2{X: d.f32(), Y: d.f32()}
}

func (d *decoder) vec4() [4]float32 {
	return [4]float32{d.f32(), d.f32(), d.f32(), d.f32()}
}

// count checks that the remaining input can hold n records of at least size
// bytes each.
func (d *decoder) count(n uint64, size int) int {
	if d.err != nil {
		return 0
	}
	if n > uint64(len(d.b)/size) {
		d.err = fmt.Errorf("%w: count %d exceeds remaining input", ErrCorruptSave, n)
		d.b = nil
		return 0
	}
	return int(n)
}
