// pkg/physics/collision.go
package physics

import "github.com/go-gl/mathgl/mgl64"

// Layer identifies the collision layer of the other party in a contact.
type Layer int

const (
	LayerDefault Layer = 0
	LayerGround  Layer = 6
)

// Collision is what the engine hands to collision enter/exit listeners.
type Collision struct {
	Layer         Layer
	Normal        mgl64.Vec3
	Point         mgl64.Vec3
	RelativeSpeed float64
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

// GroundPlane is an infinite horizontal plane at Height.
type GroundPlane struct {
	Height float64
	Layer  Layer
}

// CollisionResult contains information about a collision
type CollisionResult struct {
	Collided     bool
	Normal       mgl64.Vec3
	Penetration  float64
	ContactPoint mgl64.Vec3
}

// CheckGroundContact tests a sphere against the ground plane. Resting exactly
// on the plane counts as contact so a settled body stays grounded.
func CheckGroundContact(s Sphere, g GroundPlane) CollisionResult {
	bottom := s.Center.Y() - s.Radius
	if bottom > g.Height {
		return CollisionResult{Collided: false}
	}

	return CollisionResult{
		Collided:     true,
		Normal:       Up,
		Penetration:  g.Height - bottom,
		ContactPoint: mgl64.Vec3{s.Center.X(), g.Height, s.Center.Z()},
	}
}

// ResolveGroundContact pushes the body out of the plane and removes the
// velocity component moving into it. It returns the removed normal speed.
func ResolveGroundContact(rb *RigidBody, result CollisionResult) float64 {
	if !result.Collided {
		return 0
	}
	if result.Penetration > 0 {
		rb.position = rb.position.Add(result.Normal.Mul(result.Penetration))
	}
	normalSpeed := rb.velocity.Dot(result.Normal)
	if normalSpeed < 0 {
		rb.velocity = rb.velocity.Sub(result.Normal.Mul(normalSpeed))
		return -normalSpeed
	}
	return 0
}

// ContactTracker turns per-step contact tests into enter/exit transitions.
type ContactTracker struct {
	touching map[Layer]bool
}

// NewContactTracker creates a tracker with no active contacts.
func NewContactTracker() *ContactTracker {
	return &ContactTracker{touching: make(map[Layer]bool)}
}

// Update records the contact state for layer and reports whether it just began
// or just ended.
func (t *ContactTracker) Update(layer Layer, touching bool) (entered, exited bool) {
	was := t.touching[layer]
	t.touching[layer] = touching
	return touching && !was, was && !touching
}

// Touching reports whether the tracker currently has contact with layer.
func (t *ContactTracker) Touching(layer Layer) bool {
	return t.touching[layer]
}
