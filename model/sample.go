package model

import "time"

// Direction is the coarse movement bucket of one observation.
type Direction int

const (
	DirectionHold Direction = iota
	DirectionLeft
	DirectionRight
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "LEFT"
	case DirectionRight:
		return "RIGHT"
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "HOLD"
	}
}

// Sample is one (reading, pointing) observation.
type Sample struct {
	Reading      float64
	AzimuthDeg   float64
	TiltDeg      float64
	Direction    Direction
	Timestamp    time.Time
	DeltaAzimuth float64
	DeltaTilt    float64
}

// GuidanceVector is a nudge suggestion. VX is azimuth (positive = right),
// VY is tilt (positive = up).
type GuidanceVector struct {
	VX         float64
	VY         float64
	Confidence float64

	SuggestedDegX float64
	SuggestedDegY float64

	// Plateau is set when the estimated slope is within the noise.
	Plateau   bool
	Reasoning string
}
