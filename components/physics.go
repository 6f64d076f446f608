package components

import "github.com/mlange-42/ark/ecs"

// PhysicsRecord is the physical state of one cell. The shadow fields are a
// copy taken at the end of the integration pass; collision resolution reads
// only shadow state of other records.
type PhysicsRecord struct {
	Position  Vec2
	Direction Vec2
	Velocity  Vec2
	Radius    float32

	ShadowPosition Vec2
	ShadowVelocity Vec2
	ShadowRadius   float32

	TouchedThisFrame uint32
	Bucket           uint32
	Owner            ecs.Entity
}
