package components

import "math"

// Energy is a non-negative energy amount. Subtraction saturates at zero and
// addition saturates at the maximum, so an agent can never go negative.
type Energy uint64

// Sub returns e-n, or 0 if n exceeds e.
func (e Energy) Sub(n uint64) Energy {
	if n >= uint64(e) {
		return 0
	}
	return e - Energy(n)
}

// Add returns e+n, saturating at the maximum.
func (e Energy) Add(n uint64) Energy {
	if uint64(e) > math.MaxUint64-n {
		return math.MaxUint64
	}
	return e + Energy(n)
}

// Min returns the smaller of e and n.
func (e Energy) Min(n uint64) Energy {
	if n < uint64(e) {
		return Energy(n)
	}
	return e
}
