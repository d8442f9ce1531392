package physics

import "github.com/go-gl/mathgl/mgl64"

// Pose is a position plus an orientation. The zero value is not a valid pose
// because its quaternion has no length; use NewPose or PoseAt.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewPose creates a pose from a position and rotation.
func NewPose(position mgl64.Vec3, rotation mgl64.Quat) Pose {
	return Pose{Position: position, Rotation: rotation}
}

// PoseAt creates an unrotated pose at position.
func PoseAt(position mgl64.Vec3) Pose {
	return Pose{Position: position, Rotation: mgl64.QuatIdent()}
}

// Forward returns the pose's forward axis in world space.
func (p Pose) Forward() mgl64.Vec3 {
	return p.Rotation.Rotate(Forward)
}

// Up returns the pose's up axis in world space.
func (p Pose) Up() mgl64.Vec3 {
	return p.Rotation.Rotate(Up)
}

// Right returns the pose's right axis in world space.
func (p Pose) Right() mgl64.Vec3 {
	return p.Rotation.Rotate(Right)
}

// TransformPoint maps a point from the pose's local frame into world space.
func (p Pose) TransformPoint(local mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.Rotation.Rotate(local))
}

// InverseTransformPoint maps a world point into the pose's local frame.
func (p Pose) InverseTransformPoint(world mgl64.Vec3) mgl64.Vec3 {
	return p.Rotation.Inverse().Rotate(world.Sub(p.Position))
}
