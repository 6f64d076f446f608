package components

import "github.com/mlange-42/ark/ecs"

// RenderInstance is the per-cell snapshot handed to a presenter. Nothing in
// the simulation reads it back except the owner handle.
type RenderInstance struct {
	Transform    [4][4]float32
	Color1       [4]float32
	Color2       [4]float32
	Trend        [4]float32
	Radius       float32
	TimeOffset   float32
	ArmorNucleus [4]float32

	owner ecs.Entity
}

// Owner returns the agent this instance belongs to.
func (r *RenderInstance) Owner() ecs.Entity { return r.owner }

// SetOwner rebinds the instance to an agent.
func (r *RenderInstance) SetOwner(e ecs.Entity) { r.owner = e }
