package model

import "math"

// Position is a dish site in metres. The horizontal plane is a plan view
// whose +Y axis points down the map, so azimuth grows clockwise on screen.
// Z is height.
type Position struct {
	X float64
	Y float64
	Z float64
}

// MechanicalState is the pointing of one dish as owned by the host.
// Azimuth is measured clockwise from the +X reference axis; tilt 90 points
// at the horizon, 180 straight up.
type MechanicalState struct {
	AzimuthDeg float64
	TiltDeg    float64

	// Position is optional. When both ends of a link carry one, geometry
	// uses true line of sight instead of the reciprocal approximation.
	Position *Position

	// IdealAzimuthDeg and IdealTiltDeg are optional host-computed pointing
	// targets used when positions are unknown.
	IdealAzimuthDeg *float64
	IdealTiltDeg    *float64
}

// HasPosition reports whether the state carries a 3D site.
func (s MechanicalState) HasPosition() bool { return s.Position != nil }

// HasIdeal reports whether both ideal pointing fields are set.
func (s MechanicalState) HasIdeal() bool {
	return s.IdealAzimuthDeg != nil && s.IdealTiltDeg != nil
}

// Normalized wraps azimuth into [0,360) and clamps tilt into [0,180].
func (s MechanicalState) Normalized() MechanicalState {
	out := s
	out.AzimuthDeg = WrapDeg360(s.AzimuthDeg)
	out.TiltDeg = math.Max(0, math.Min(180, s.TiltDeg))
	return out
}

// ElevationDeg converts tilt to elevation above the horizon.
func (s MechanicalState) ElevationDeg() float64 { return s.TiltDeg - 90 }

// Dish is one registered antenna: identity, current pointing and the
// physical parameters its pattern is built from.
type Dish struct {
	ID     string
	Name   string
	State  MechanicalState
	Params PhysicalParameters
}

// WrapDeg360 maps an angle into [0,360).
func WrapDeg360(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}

// WrapDeg180 maps an angle into (-180,180].
func WrapDeg180(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w <= -180 {
		w += 360
	} else if w > 180 {
		w -= 360
	}
	return w
}

// Float64Ptr is a convenience for the optional ideal-pointing fields.
func Float64Ptr(v float64) *float64 { return &v }
