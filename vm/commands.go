package vm

import (
	"cmp"
	"slices"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/phylo/components"
)

// CommandKind tags a deferred cross-cell effect.
type CommandKind uint8

const (
	// CmdSplit creates the child of a cell that split this tick.
	CmdSplit CommandKind = iota
	// CmdAttack reduces the target's armor and records the attacker.
	CmdAttack
	// CmdNotify bumps the target's remote attack counter. Order independent.
	CmdNotify
	// CmdTransfer splices a genome chunk into the target.
	CmdTransfer
	// CmdKill marks a cell dead and returns its energy to the waste field.
	CmdKill
	// CmdDestroy removes a dead cell's records.
	CmdDestroy
)

var commandNames = [...]string{"split", "attack", "notify", "transfer", "kill", "destroy"}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command is a deferred effect. Key is the acting cell's id; serialized
// commands are applied in key order so the result does not depend on which
// worker queued them.
type Command struct {
	Kind   CommandKind
	Key    uint64
	Actor  ecs.Entity
	Target ecs.Entity

	// Split
	Radius    float32
	Position  components.Vec2
	Direction components.Vec2
	Energy    uint64

	// Transfer
	Chunk []uint64
}

// Queue holds the commands queued by one worker. Each worker owns its queue,
// so queuing takes no lock.
type Queue struct {
	Serialized   []Command
	Unserialized []Command
	Kills        []Command
	Destroys     []Command
}

// Kill queues a kill of c.
func (q *Queue) Kill(c *components.Cell) {
	q.Kills = append(q.Kills, Command{Kind: CmdKill, Key: c.ID, Actor: c.Entity})
}

// Destroy queues removal of c.
func (q *Queue) Destroy(c *components.Cell) {
	q.Destroys = append(q.Destroys, Command{Kind: CmdDestroy, Key: c.ID, Actor: c.Entity})
}

// Empty reports whether the queue holds nothing.
func (q *Queue) Empty() bool {
	return len(q.Serialized) == 0 && len(q.Unserialized) == 0 &&
		len(q.Kills) == 0 && len(q.Destroys) == 0
}

func (q *Queue) reset() {
	q.Serialized = q.Serialized[:0]
	q.Unserialized = q.Unserialized[:0]
	q.Kills = q.Kills[:0]
	q.Destroys = q.Destroys[:0]
}

// Queues is the set of per-worker queues for one pool.
type Queues []Queue

// NewQueues creates one queue per worker.
func NewQueues(workers int) Queues {
	return make(Queues, max(workers, 1))
}

// Take moves every command of the selected list into dst, clears the source
// lists, and returns dst. Ordering between workers is arbitrary; callers that
// need determinism sort the result with SortByKey.
func (qs Queues) Take(dst []Command, pick func(q *Queue) *[]Command) []Command {
	for i := range qs {
		src := pick(&qs[i])
		dst = append(dst, *src...)
		clear(*src)
		*src = (*src)[:0]
	}
	return dst
}

// Reset empties every queue.
func (qs Queues) Reset() {
	for i := range qs {
		qs[i].reset()
	}
}

// Empty reports whether every queue is empty.
func (qs Queues) Empty() bool {
	for i := range qs {
		if !qs[i].Empty() {
			return false
		}
	}
	return true
}

// Selectors for Take.
func Serialized(q *Queue) *[]Command   { return &q.Serialized }
func Unserialized(q *Queue) *[]Command { return &q.Unserialized }
func Kills(q *Queue) *[]Command        { return &q.Kills }
func Destroys(q *Queue) *[]Command     { return &q.Destroys }

// SortByKey stable-sorts commands by acting cell id.
func SortByKey(cmds []Command) {
	slices.SortStableFunc(cmds, func(a, b Command) int {
		return cmp.Compare(a.Key, b.Key)
	})
}
