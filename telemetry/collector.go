package telemetry

// Collector accumulates events within tick windows and produces WindowStats.
// Events are recorded from the serial dispatch phase, so no locking is needed.
type Collector struct {
	windowTicks uint64

	// Current window tracking
	windowStartTick uint64

	// Event counters for current window
	births    int
	deaths    int
	starved   int
	attacks   int
	transfers int
	spawns    int
}

// NewCollector creates a new stats collector flushing every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: uint64(windowTicks)}
}

// RecordBirth records a split child.
func (c *Collector) RecordBirth() {
	c.births++
}

// RecordDeath records a kill. starved is true when the cell ran out of energy
// rather than being destroyed by armor loss.
func (c *Collector) RecordDeath(starved bool) {
	c.deaths++
	if starved {
		c.starved++
	}
}

// RecordAttack records an applied attack.
func (c *Collector) RecordAttack() {
	c.attacks++
}

// RecordTransfer records an applied genome transfer.
func (c *Collector) RecordTransfer() {
	c.transfers++
}

// RecordSpawn records a root cell placed into an empty world.
func (c *Collector) RecordSpawn() {
	c.spawns++
}

// Restart moves the window start, discarding counts. Used after a load.
func (c *Collector) Restart(tick uint64) {
	*c = Collector{windowTicks: c.windowTicks, windowStartTick: tick}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats from the event counters and census, then
// resets counters for the next window.
func (c *Collector) Flush(currentTick uint64, census Census) WindowStats {
	energy := Describe(census.EnergyFactors)
	genome := Describe(census.GenomeLengths)
	gens := Describe(census.Generations)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,

		Cells:      census.Cells,
		TotalCells: census.TotalCells,

		Births:    c.births,
		Deaths:    c.deaths,
		Starved:   c.starved,
		Attacks:   c.attacks,
		Transfers: c.transfers,
		Spawns:    c.spawns,

		EnergyMean: energy.Mean,
		EnergyP10:  energy.P10,
		EnergyP50:  energy.P50,
		EnergyP90:  energy.P90,

		GenomeMean: genome.Mean,
		GenomeStd:  genome.Std,
		GenomeP50:  genome.P50,
		GenomeMax:  genome.Max,

		GenerationMean: gens.Mean,
		GenerationMax:  gens.Max,
		RadiusMean:     mean(census.Radii),

		GreenMean: mean(census.Green),
		RedMean:   mean(census.Red),
		BlueMean:  mean(census.Blue),

		CellEnergy: census.CellEnergy,
		Waste:      census.Waste,
	}

	c.Restart(currentTick)
	return stats
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() uint64 {
	return c.windowTicks
}
