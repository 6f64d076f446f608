// Package arena provides fixed-capacity record pools for per-cell component data.
//
// Every pool reserves its full capacity up front, so record addresses never
// move because of growth. Exceeding the capacity is a configuration error and
// panics.
package arena

// MoveFunc is notified after a record has been relocated to index dst.
type MoveFunc[T any] func(dst int, rec *T)

// Unordered is a dense pool that removes by moving the last record into the freed slot.
type Unordered[T any] struct {
	items  []T
	onMove MoveFunc[T]
}

// NewUnordered creates an unordered pool. onMove may be nil.
func NewUnordered[T any](capacity int, onMove MoveFunc[T]) *Unordered[T] {
	return &Unordered[T]{
		items:  make([]T, 0, capacity),
		onMove: onMove,
	}
}

// Insert appends rec and returns its index.
func (a *Unordered[T]) Insert(rec T) int {
	if len(a.items) == cap(a.items) {
		panic("arena: capacity exceeded")
	}
	a.items = append(a.items, rec)
	return len(a.items) - 1
}

// Remove deletes the record at i. The last record takes its place and its
// owner is notified through the move callback.
func (a *Unordered[T]) Remove(i int) {
	if i < 0 || i >= len(a.items) {
		panic("arena: remove out of range")
	}
	last := len(a.items) - 1
	if i != last {
		a.items[i] = a.items[last]
		if a.onMove != nil {
			a.onMove(i, &a.items[i])
		}
	}
	var zero T
	a.items[last] = zero
	a.items = a.items[:last]
}

// At returns the record at i.
func (a *Unordered[T]) At(i int) *T { return &a.items[i] }

// Len returns the number of live records.
func (a *Unordered[T]) Len() int { return len(a.items) }

// Cap returns the fixed capacity.
func (a *Unordered[T]) Cap() int { return cap(a.items) }

// All returns the live records. The slice aliases pool storage.
func (a *Unordered[T]) All() []T { return a.items }

// Reset drops every record without notifying owners.
func (a *Unordered[T]) Reset() {
	clear(a.items)
	a.items = a.items[:0]
}

// Ordered is a dense pool that keeps insertion order by shifting on remove.
// Its backing slice can be handed to a consumer as a contiguous snapshot.
type Ordered[T any] struct {
	items  []T
	onMove MoveFunc[T]
}

// NewOrdered creates an ordered pool. onMove may be nil.
func NewOrdered[T any](capacity int, onMove MoveFunc[T]) *Ordered[T] {
	return &Ordered[T]{
		items:  make([]T, 0, capacity),
		onMove: onMove,
	}
}

// Insert appends rec and returns its index.
func (a *Ordered[T]) Insert(rec T) int {
	if len(a.items) == cap(a.items) {
		panic("arena: capacity exceeded")
	}
	a.items = append(a.items, rec)
	return len(a.items) - 1
}

// Remove deletes the record at i and shifts every later record down by one,
// notifying each moved record's owner.
func (a *Ordered[T]) Remove(i int) {
	if i < 0 || i >= len(a.items) {
		panic("arena: remove out of range")
	}
	copy(a.items[i:], a.items[i+1:])
	last := len(a.items) - 1
	var zero T
	a.items[last] = zero
	a.items = a.items[:last]

	if a.onMove != nil {
		for j := i; j < len(a.items); j++ {
			a.onMove(j, &a.items[j])
		}
	}
}

// At returns the record at i.
func (a *Ordered[T]) At(i int) *T { return &a.items[i] }

// Len returns the number of live records.
func (a *Ordered[T]) Len() int { return len(a.items) }

// All returns the live records in insertion order. The slice aliases pool storage.
func (a *Ordered[T]) All() []T { return a.items }

// Reset drops every record without notifying owners.
func (a *Ordered[T]) Reset() {
	clear(a.items)
	a.items = a.items[:0]
}

// Sparse is a pool whose slots never move. Freed slots are reused most
// recently freed first, so slot assignment is a pure function of the
// insert/remove sequence.
type Sparse[T any] struct {
	items []T
	valid []bool
	free  []int32
	live  int
}

// NewSparse creates a sparse pool.
func NewSparse[T any](capacity int) *Sparse[T] {
	return &Sparse[T]{
		items: make([]T, 0, capacity),
		valid: make([]bool, 0, capacity),
		free:  make([]int32, 0, capacity),
	}
}

// Insert stores rec in a free slot and returns the slot index.
func (a *Sparse[T]) Insert(rec T) int32 {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.items[idx] = rec
		a.valid[idx] = true
		return idx
	}
	if len(a.items) == cap(a.items) {
		panic("arena: capacity exceeded")
	}
	a.items = append(a.items, rec)
	a.valid = append(a.valid, true)
	return int32(len(a.items) - 1)
}

// Remove frees slot i.
func (a *Sparse[T]) Remove(i int32) {
	if i < 0 || int(i) >= len(a.items) || !a.valid[i] {
		panic("arena: remove of free slot")
	}
	var zero T
	a.items[i] = zero
	a.valid[i] = false
	a.free = append(a.free, i)
	a.live--
}

// At returns the record in slot i.
func (a *Sparse[T]) At(i int32) *T { return &a.items[i] }

// Valid reports whether slot i holds a live record.
func (a *Sparse[T]) Valid(i int32) bool {
	return i >= 0 && int(i) < len(a.valid) && a.valid[i]
}

// Span returns one past the highest slot ever used.
func (a *Sparse[T]) Span() int { return len(a.items) }

// Len returns the number of live records.
func (a *Sparse[T]) Len() int { return a.live }

// Cap returns the fixed capacity.
func (a *Sparse[T]) Cap() int { return cap(a.items) }

// Reset frees every slot.
func (a *Sparse[T]) Reset() {
	clear(a.items)
	a.items = a.items[:0]
	a.valid = a.valid[:0]
	a.free = a.free[:0]
	a.live = 0
}
