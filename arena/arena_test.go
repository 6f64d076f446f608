package arena

import "testing"

type rec struct {
	owner int
	idx   int
}

func TestUnordered_RemoveSwapsLast(t *testing.T) {
	moved := map[int]int{}
	a := NewUnordered[rec](8, func(dst int, r *rec) {
		moved[r.owner] = dst
		r.idx = dst
	})

	for i := 0; i < 4; i++ {
		a.Insert(rec{owner: i, idx: i})
	}

	a.Remove(1)

	if a.Len() != 3 {
		t.Fatalf("Len = %d, want 3", a.Len())
	}
	if a.At(1).owner != 3 {
		t.Errorf("slot 1 owner = %d, want 3", a.At(1).owner)
	}
	if moved[3] != 1 {
		t.Errorf("owner 3 notified of %d, want 1", moved[3])
	}

	// Removing the last record moves nothing.
	delete(moved, 3)
	a.Remove(a.Len() - 1)
	if len(moved) != 0 {
		t.Errorf("unexpected move notifications: %v", moved)
	}
}

func TestOrdered_RemoveShifts(t *testing.T) {
	var notified []int
	a := NewOrdered[rec](8, func(dst int, r *rec) {
		notified = append(notified, r.owner)
		r.idx = dst
	})

	for i := 0; i < 5; i++ {
		a.Insert(rec{owner: i, idx: i})
	}

	a.Remove(1)

	want := []int{0, 2, 3, 4}
	for i, w := range want {
		if got := a.At(i).owner; got != w {
			t.Errorf("slot %d owner = %d, want %d", i, got, w)
		}
		if a.At(i).idx != i {
			t.Errorf("slot %d idx = %d, want %d", i, a.At(i).idx, i)
		}
	}
	if len(notified) != 3 {
		t.Errorf("notified %v, want 3 moves", notified)
	}
}

func TestSparse_ReusesLIFO(t *testing.T) {
	a := NewSparse[rec](8)

	for i := 0; i < 4; i++ {
		if got := a.Insert(rec{owner: i}); got != int32(i) {
			t.Fatalf("Insert %d -> %d", i, got)
		}
	}

	a.Remove(1)
	a.Remove(2)

	if a.Valid(1) || a.Valid(2) {
		t.Error("removed slots still valid")
	}
	if a.Len() != 2 || a.Span() != 4 {
		t.Errorf("Len=%d Span=%d, want 2 and 4", a.Len(), a.Span())
	}

	if got := a.Insert(rec{owner: 10}); got != 2 {
		t.Errorf("first reuse = %d, want 2", got)
	}
	if got := a.Insert(rec{owner: 11}); got != 1 {
		t.Errorf("second reuse = %d, want 1", got)
	}
	if got := a.Insert(rec{owner: 12}); got != 4 {
		t.Errorf("append after free list drained = %d, want 4", got)
	}
}

func TestCapacityExceededPanics(t *testing.T) {
	tests := []struct {
		name string
		fill func()
	}{
		{"unordered", func() {
			a := NewUnordered[rec](2, nil)
			for i := 0; i < 3; i++ {
				a.Insert(rec{})
			}
		}},
		{"ordered", func() {
			a := NewOrdered[rec](2, nil)
			for i := 0; i < 3; i++ {
				a.Insert(rec{})
			}
		}},
		{"sparse", func() {
			a := NewSparse[rec](2)
			for i := 0; i < 3; i++ {
				a.Insert(rec{})
			}
		}},
		{"sparse double free", func() {
			a := NewSparse[rec](2)
			i := a.Insert(rec{})
			a.Remove(i)
			a.Remove(i)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tc.fill()
		})
	}
}
