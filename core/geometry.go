package core

import (
	"math"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// vecEpsilon floors norms so zero-length vectors never divide by zero.
	vecEpsilon = 1e-12
	// parallelEpsilon is the skew-line denominator below which two rays are
	// treated as parallel.
	parallelEpsilon = 1e-9
)

// Vec3 is a site-frame vector in metres (X right, Y down the plan view,
// Z up) or a unit direction in the same frame.
type Vec3 struct {
	X, Y, Z float64
}

// FromPosition converts a model position to a vector.
func FromPosition(p model.Position) Vec3 { return Vec3{X: p.X, Y: p.Y, Z: p.Z} }

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v x other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the unit vector along v. A zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	return v.Scale(1 / math.Max(v.Norm(), vecEpsilon))
}

// AngleTo returns the angle between two vectors in degrees.
func (v Vec3) AngleTo(other Vec3) float64 {
	c := v.Normalize().Dot(other.Normalize())
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * rad2deg
}

// BoresightVector converts mechanical pointing to a unit vector. Elevation
// is tilt-90, so tilt 90 looks at the horizon.
func BoresightVector(azimuthDeg, tiltDeg float64) Vec3 {
	az := azimuthDeg * deg2rad
	el := (tiltDeg - 90) * deg2rad
	return Vec3{
		X: math.Cos(el) * math.Cos(az),
		Y: math.Cos(el) * math.Sin(az),
		Z: math.Sin(el),
	}
}

// LOS is the line of sight between two sites.
type LOS struct {
	// BearingDeg is in [0,360), measured the same way as dish azimuth.
	BearingDeg   float64
	ElevationDeg float64
	RangeM       float64
	Unit         Vec3
}

// LineOfSight returns bearing, elevation and unit direction from one site
// to another.
func LineOfSight(from, to model.Position) LOS {
	d := FromPosition(to).Sub(FromPosition(from))
	horizontal := math.Hypot(d.X, d.Y)
	return LOS{
		BearingDeg:   model.WrapDeg360(math.Atan2(d.Y, d.X) * rad2deg),
		ElevationDeg: math.Atan2(d.Z, horizontal) * rad2deg,
		RangeM:       d.Norm(),
		Unit:         d.Normalize(),
	}
}

// PointingMode records how a PointingError was derived.
type PointingMode int

const (
	// PointingTrueLOS uses both dishes' 3D positions.
	PointingTrueLOS PointingMode = iota
	// PointingIdeal uses the host-supplied ideal azimuth/tilt of the source.
	PointingIdeal
	// PointingReciprocal assumes the target points straight back at the
	// source. It is an approximation, not geometry.
	PointingReciprocal
)

func (m PointingMode) String() string {
	switch m {
	case PointingTrueLOS:
		return "true_los"
	case PointingIdeal:
		return "ideal"
	case PointingReciprocal:
		return "reciprocal"
	default:
		return "unknown"
	}
}

// PointingError is the signed correction the source dish needs to face
// its target. Positive AzimuthDeg means turn right (clockwise), positive
// TiltDeg means tilt up.
type PointingError struct {
	AzimuthDeg float64
	TiltDeg    float64

	// OffAxisDeg is the angle between boresight and the wanted direction.
	OffAxisDeg float64
	// AzimuthOfPointDeg locates the target around the boresight
	// (0 = right, 90 = up), as used for strut shadows.
	AzimuthOfPointDeg float64

	Mode PointingMode
}

// Approximate reports whether the error came from the reciprocal model.
func (e PointingError) Approximate() bool { return e.Mode == PointingReciprocal }

// ComputePointingError resolves how far source is from facing target.
//
// With positions on both dishes the result is true line-of-sight geometry.
// Without them it falls back to the source's ideal pointing when set, and
// otherwise to a reciprocal-facing approximation that assumes target is
// aimed back at source (azimuth +180, mirrored elevation). Callers can tell
// the paths apart by Mode.
func ComputePointingError(source, target model.MechanicalState) PointingError {
	if source.HasPosition() && target.HasPosition() {
		los := LineOfSight(*source.Position, *target.Position)
		return pointingErrorToward(source, los.BearingDeg, los.ElevationDeg, los.Unit, PointingTrueLOS)
	}
	if source.HasIdeal() {
		wantAz, wantTilt := *source.IdealAzimuthDeg, *source.IdealTiltDeg
		return pointingErrorToward(source, wantAz, wantTilt-90, BoresightVector(wantAz, wantTilt), PointingIdeal)
	}
	wantAz := target.AzimuthDeg + 180
	wantTilt := 180 - target.TiltDeg
	return pointingErrorToward(source, wantAz, wantTilt-90, BoresightVector(wantAz, wantTilt), PointingReciprocal)
}

func pointingErrorToward(source model.MechanicalState, wantAzDeg, wantElDeg float64, want Vec3, mode PointingMode) PointingError {
	azErr := model.WrapDeg180(wantAzDeg - source.AzimuthDeg)
	tiltErr := wantElDeg - source.ElevationDeg()
	boresight := BoresightVector(source.AzimuthDeg, source.TiltDeg)
	return PointingError{
		AzimuthDeg:        azErr,
		TiltDeg:           tiltErr,
		OffAxisDeg:        boresight.AngleTo(want),
		AzimuthOfPointDeg: model.WrapDeg360(math.Atan2(tiltErr, azErr) * rad2deg),
		Mode:              mode,
	}
}

// Ray is a half-line from Origin along Direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// Approach is the nearest pair of points between two rays.
type Approach struct {
	PointA, PointB Vec3
	// TA and TB are distances along each ray's unit direction, both >= 0.
	TA, TB    float64
	DistanceM float64
	Parallel  bool
}

// ClosestApproach solves the skew-line nearest points between two rays.
// Parameters are clamped to >= 0 so no approach lies behind an origin.
// Near-parallel rays project a's origin onto b.
func ClosestApproach(a, b Ray) Approach {
	u := a.Direction.Normalize()
	v := b.Direction.Normalize()
	w0 := a.Origin.Sub(b.Origin)

	uu := u.Dot(u)
	uv := u.Dot(v)
	vv := v.Dot(v)
	uw := u.Dot(w0)
	vw := v.Dot(w0)

	var ta, tb float64
	den := uu*vv - uv*uv
	parallel := den < parallelEpsilon
	if parallel {
		if vv > vecEpsilon {
			tb = vw / vv
		}
	} else {
		ta = (uv*vw - vv*uw) / den
		tb = (uu*vw - uv*uw) / den
	}
	ta = math.Max(0, ta)
	tb = math.Max(0, tb)

	pa := a.Origin.Add(u.Scale(ta))
	pb := b.Origin.Add(v.Scale(tb))
	return Approach{
		PointA:    pa,
		PointB:    pb,
		TA:        ta,
		TB:        tb,
		DistanceM: pa.DistanceTo(pb),
		Parallel:  parallel,
	}
}
