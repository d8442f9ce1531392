// pkg/physics/vector.go
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Local frame convention shared by every package: forward is +Z, up is +Y and
// right is +X, so right = up x forward.
var (
	Forward = mgl64.Vec3{0, 0, 1}
	Up      = mgl64.Vec3{0, 1, 0}
	Right   = mgl64.Vec3{1, 0, 0}
)

// DefaultGravity is the gravitational acceleration used when none is configured.
var DefaultGravity = mgl64.Vec3{0, -9.81, 0}

const epsilon = 1e-12

// SafeNormalize returns a unit vector in the same direction, or the zero vector
// when v has no usable length.
func SafeNormalize(v mgl64.Vec3) mgl64.Vec3 {
	lenSq := v.LenSqr()
	if lenSq < epsilon {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / math.Sqrt(lenSq))
}

// ClampMagnitude rescales v uniformly so its length does not exceed limit.
// A limit <= 0 disables the clamp.
func ClampMagnitude(v mgl64.Vec3, limit float64) mgl64.Vec3 {
	if !(limit > 0) {
		return v
	}
	lenSq := v.LenSqr()
	if lenSq == 0 || lenSq <= limit*limit {
		return v
	}
	return v.Mul(limit / math.Sqrt(lenSq))
}

// AngleBetween returns the unsigned angle between a and b in radians [0, pi].
func AngleBetween(a, b mgl64.Vec3) float64 {
	na := SafeNormalize(a)
	nb := SafeNormalize(b)
	if na.LenSqr() == 0 || nb.LenSqr() == 0 {
		return 0
	}
	return math.Acos(mgl64.Clamp(na.Dot(nb), -1, 1))
}

// SignedAngle returns the angle from a to b around axis in radians (-pi, pi].
func SignedAngle(a, b, axis mgl64.Vec3) float64 {
	angle := AngleBetween(a, b)
	if a.Cross(b).Dot(axis) < 0 {
		return -angle
	}
	return angle
}

// Project returns the component of v along onto.
func Project(v, onto mgl64.Vec3) mgl64.Vec3 {
	lenSq := onto.LenSqr()
	if lenSq < epsilon {
		return mgl64.Vec3{}
	}
	return onto.Mul(v.Dot(onto) / lenSq)
}

// ProjectOnPlane removes the component of v along the plane normal.
func ProjectOnPlane(v, normal mgl64.Vec3) mgl64.Vec3 {
	return v.Sub(Project(v, normal))
}

// IsFinite reports whether every component of v is a real number.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// IsFiniteQuat reports whether every component of q is a real number.
func IsFiniteQuat(q mgl64.Quat) bool {
	return IsFinite(q.V) && !math.IsNaN(q.W) && !math.IsInf(q.W, 0)
}

// LookRotation builds the rotation whose forward axis points along forward and
// whose up axis is as close to up as the forward axis allows. A zero forward
// yields the identity; an up parallel to forward falls back to another basis axis.
func LookRotation(forward, up mgl64.Vec3) mgl64.Quat {
	f := SafeNormalize(forward)
	if f.LenSqr() == 0 {
		return mgl64.QuatIdent()
	}
	r := SafeNormalize(up.Cross(f))
	if r.LenSqr() == 0 {
		r = SafeNormalize(Up.Cross(f))
		if r.LenSqr() == 0 {
			r = SafeNormalize(Forward.Cross(f))
		}
	}
	u := f.Cross(r)
	m := mgl64.Mat3FromCols(r, u, f)
	return mgl64.Mat4ToQuat(m.Mat4()).Normalize()
}

// AxisAngle returns the rotation of angle radians around axis, or the identity
// when the axis is degenerate.
func AxisAngle(angle float64, axis mgl64.Vec3) mgl64.Quat {
	n := SafeNormalize(axis)
	if n.LenSqr() == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(angle, n)
}

// FlattenY zeroes the vertical component of v.
func FlattenY(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), 0, v.Z()}
}
