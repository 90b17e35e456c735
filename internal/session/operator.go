package session

import (
	"math/rand"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// OperatorSettings tunes the simulated installer.
type OperatorSettings struct {
	// SweepStepDeg is the size of one exploratory nudge.
	SweepStepDeg float64
	// FollowConfidence is the minimum guidance confidence acted upon.
	FollowConfidence float64
	// JitterDeg bounds the uniform hand-shake added to every sweep step.
	JitterDeg float64
}

// Action is one nudge of the operated dish.
type Action struct {
	DAzimuthDeg float64
	DTiltDeg    float64
	// Followed marks a nudge taken from guidance rather than sweeping.
	Followed bool
}

// sweepCycle returns to its starting point after one pass so sweeping alone
// does not drift the dish.
var sweepCycle = [...]struct{ az, tilt float64 }{
	{1, 0}, {-1, 0}, {-1, 0}, {1, 0},
	{0, 1}, {0, -1}, {0, -1}, {0, 1},
}

// Operator is a deterministic stand-in for a person turning the dish. It
// walks a fixed sweep cycle and takes the learner's suggestion whenever
// fresh guidance is confident enough.
type Operator struct {
	cfg   OperatorSettings
	rng   *rand.Rand
	sweep int
}

// NewOperator returns an operator whose jitter is drawn from seed.
func NewOperator(cfg OperatorSettings, seed int64) *Operator {
	if cfg.SweepStepDeg <= 0 {
		cfg.SweepStepDeg = 0.5
	}
	return &Operator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Decide picks the next nudge after a step.
func (o *Operator) Decide(res StepResult) Action {
	if res.Fresh && o.shouldFollow(res.Guidance, res.HasGuidance) {
		o.sweep = 0
		return Action{
			DAzimuthDeg: res.Guidance.SuggestedDegX,
			DTiltDeg:    res.Guidance.SuggestedDegY,
			Followed:    true,
		}
	}

	d := sweepCycle[o.sweep%len(sweepCycle)]
	o.sweep++
	return Action{
		DAzimuthDeg: d.az*o.cfg.SweepStepDeg + o.jitter(),
		DTiltDeg:    d.tilt*o.cfg.SweepStepDeg + o.jitter(),
	}
}

func (o *Operator) shouldFollow(g model.GuidanceVector, ok bool) bool {
	if !ok || g.Plateau || g.Confidence < o.cfg.FollowConfidence {
		return false
	}
	return g.SuggestedDegX != 0 || g.SuggestedDegY != 0
}

func (o *Operator) jitter() float64 {
	if o.cfg.JitterDeg <= 0 {
		return 0
	}
	return (2*o.rng.Float64() - 1) * o.cfg.JitterDeg
}
