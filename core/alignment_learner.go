package core

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// Estimator selects how AlignmentLearner turns samples into slopes.
type Estimator string

const (
	// EstimatorBuckets averages readings per movement direction.
	EstimatorBuckets Estimator = "buckets"
	// EstimatorRegression fits reading deltas against the continuous
	// (azimuth, tilt) movement, so diagonal moves are not lost.
	EstimatorRegression Estimator = "regression"
)

// LearnerConfig holds AlignmentLearner tunables.
type LearnerConfig struct {
	Capacity   int
	MinSamples int

	// DeadbandDeg is the movement below which a sample is labeled HOLD.
	DeadbandDeg float64

	// StepAlpha and NoiseAlpha are EMA weights for the step-size and
	// reading-noise estimates.
	StepAlpha  float64
	NoiseAlpha float64

	// InitialStepDeg stands in for an axis that has not moved yet.
	InitialStepDeg float64

	// MaxSlopeFullScale is the slope (reading units per degree) that maps
	// to a full-scale guidance component.
	MaxSlopeFullScale float64
	// SuggestCapDeg caps the suggested angular adjustment.
	SuggestCapDeg float64

	Epsilon   float64
	Estimator Estimator
}

// DefaultLearnerConfig returns the learner defaults.
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		Capacity:          400,
		MinSamples:        6,
		DeadbandDeg:       0.05,
		StepAlpha:         0.05,
		NoiseAlpha:        0.25,
		InitialStepDeg:    0.5,
		MaxSlopeFullScale: 4,
		SuggestCapDeg:     2,
		Epsilon:           1e-6,
		Estimator:         EstimatorBuckets,
	}
}

func (c LearnerConfig) normalized() LearnerConfig {
	def := DefaultLearnerConfig()
	out := c
	if out.Capacity <= 0 {
		out.Capacity = def.Capacity
	}
	if out.MinSamples <= 1 {
		out.MinSamples = def.MinSamples
	}
	if out.DeadbandDeg < 0 {
		out.DeadbandDeg = def.DeadbandDeg
	}
	if !(out.StepAlpha > 0 && out.StepAlpha <= 1) {
		out.StepAlpha = def.StepAlpha
	}
	if !(out.NoiseAlpha > 0 && out.NoiseAlpha <= 1) {
		out.NoiseAlpha = def.NoiseAlpha
	}
	if !(out.InitialStepDeg > 0) {
		out.InitialStepDeg = def.InitialStepDeg
	}
	if !(out.MaxSlopeFullScale > 0) {
		out.MaxSlopeFullScale = def.MaxSlopeFullScale
	}
	if !(out.SuggestCapDeg > 0) {
		out.SuggestCapDeg = def.SuggestCapDeg
	}
	if !(out.Epsilon > 0) {
		out.Epsilon = def.Epsilon
	}
	if out.Estimator != EstimatorRegression {
		out.Estimator = EstimatorBuckets
	}
	return out
}

// AlignmentLearner turns a stream of (reading, pointing) observations into
// a nudge suggestion. It is cold until MinSamples observations have been
// seen and keeps learning after that; old samples age out of the ring.
//
// It is not safe for concurrent Observe calls.
type AlignmentLearner struct {
	cfg  LearnerConfig
	ring *sampleRing

	avgStepAz   float64
	avgStepTilt float64
	stepSeeded  [2]bool

	noise       float64
	noiseSeeded bool
}

// NewAlignmentLearner returns a cold learner.
func NewAlignmentLearner(cfg LearnerConfig) *AlignmentLearner {
	cfg = cfg.normalized()
	return &AlignmentLearner{
		cfg:         cfg,
		ring:        newSampleRing(cfg.Capacity),
		avgStepAz:   cfg.InitialStepDeg,
		avgStepTilt: cfg.InitialStepDeg,
	}
}

// Config returns the effective learner config.
func (l *AlignmentLearner) Config() LearnerConfig { return l.cfg }

// Observe records one reading at the given pointing and returns the stored
// sample. Non-finite readings are dropped and returned unlabeled.
func (l *AlignmentLearner) Observe(reading, azimuthDeg, tiltDeg float64, ts time.Time) model.Sample {
	s := model.Sample{
		Reading:    reading,
		AzimuthDeg: azimuthDeg,
		TiltDeg:    tiltDeg,
		Direction:  model.DirectionHold,
		Timestamp:  ts,
	}
	if math.IsNaN(reading) || math.IsInf(reading, 0) {
		return s
	}

	if prev, ok := l.ring.last(); ok {
		s.DeltaAzimuth = model.WrapDeg180(azimuthDeg - prev.AzimuthDeg)
		s.DeltaTilt = tiltDeg - prev.TiltDeg
		s.Direction = classifyMove(s.DeltaAzimuth, s.DeltaTilt, l.cfg.DeadbandDeg)
		l.updateNoise(math.Abs(reading - prev.Reading))
	}
	l.updateSteps(s.DeltaAzimuth, s.DeltaTilt)
	l.ring.push(s)
	return s
}

// Len returns the number of buffered samples.
func (l *AlignmentLearner) Len() int { return l.ring.len() }

// Samples returns the buffered samples, oldest first.
func (l *AlignmentLearner) Samples() []model.Sample { return l.ring.snapshot() }

// NoiseEstimate returns the EMA of absolute reading change.
func (l *AlignmentLearner) NoiseEstimate() float64 { return l.noise }

// AvgStep returns the EMA step sizes for azimuth and tilt in degrees.
func (l *AlignmentLearner) AvgStep() (azimuthDeg, tiltDeg float64) {
	return l.avgStepAz, l.avgStepTilt
}

// Reset drops all samples and estimates.
func (l *AlignmentLearner) Reset() {
	l.ring.reset()
	l.avgStepAz = l.cfg.InitialStepDeg
	l.avgStepTilt = l.cfg.InitialStepDeg
	l.stepSeeded = [2]bool{}
	l.noise = 0
	l.noiseSeeded = false
}

// Guidance computes a suggestion from the buffer. ok is false while the
// learner is cold.
func (l *AlignmentLearner) Guidance() (g model.GuidanceVector, ok bool) {
	if l.ring.len() < l.cfg.MinSamples {
		return model.GuidanceVector{}, false
	}

	var sx, sy float64
	var okX, okY bool
	if l.cfg.Estimator == EstimatorRegression {
		sx, sy, okX, okY = l.regressionSlopes()
	} else {
		sx, sy, okX, okY = l.bucketSlopes()
	}
	return l.compose(sx, sy, okX, okY), true
}

func classifyMove(dAz, dTilt, deadband float64) model.Direction {
	aAz, aTilt := math.Abs(dAz), math.Abs(dTilt)
	if math.Max(aAz, aTilt) < deadband {
		return model.DirectionHold
	}
	if aAz >= aTilt {
		if dAz > 0 {
			return model.DirectionRight
		}
		return model.DirectionLeft
	}
	if dTilt > 0 {
		return model.DirectionUp
	}
	return model.DirectionDown
}

func (l *AlignmentLearner) updateSteps(dAz, dTilt float64) {
	l.avgStepAz = l.emaStep(0, l.avgStepAz, math.Abs(dAz))
	l.avgStepTilt = l.emaStep(1, l.avgStepTilt, math.Abs(dTilt))
}

func (l *AlignmentLearner) emaStep(axis int, current, delta float64) float64 {
	if delta == 0 {
		return current
	}
	if !l.stepSeeded[axis] {
		l.stepSeeded[axis] = true
		return delta
	}
	return current + l.cfg.StepAlpha*(delta-current)
}

func (l *AlignmentLearner) updateNoise(delta float64) {
	if !l.noiseSeeded {
		l.noise = delta
		l.noiseSeeded = true
		return
	}
	l.noise += l.cfg.NoiseAlpha * (delta - l.noise)
}

type bucket struct {
	sum float64
	n   int
}

func (b bucket) mean() float64 { return b.sum / float64(b.n) }

func (l *AlignmentLearner) bucketSlopes() (sx, sy float64, okX, okY bool) {
	var buckets [5]bucket
	for i := range l.ring.len() {
		s := l.ring.at(i)
		b := &buckets[s.Direction]
		b.sum += s.Reading
		b.n++
	}
	hold := buckets[model.DirectionHold]
	sx, okX = axisSlope(buckets[model.DirectionRight], buckets[model.DirectionLeft], hold, l.avgStepAz, l.cfg.Epsilon)
	sy, okY = axisSlope(buckets[model.DirectionUp], buckets[model.DirectionDown], hold, l.avgStepTilt, l.cfg.Epsilon)
	return sx, sy, okX, okY
}

// axisSlope estimates d(reading)/d(degree) along one axis. Empty buckets
// are missing data, not zero readings.
func axisSlope(pos, neg, hold bucket, step, eps float64) (float64, bool) {
	step = math.Max(step, eps)
	switch {
	case pos.n > 0 && neg.n > 0:
		return (pos.mean() - neg.mean()) / (2 * step), true
	case pos.n > 0 && hold.n > 0:
		return (pos.mean() - hold.mean()) / step, true
	case neg.n > 0 && hold.n > 0:
		return (hold.mean() - neg.mean()) / step, true
	default:
		return 0, false
	}
}

// regressionSlopes fits reading deltas against movement deltas by least
// squares without intercept, over consecutive buffered samples.
func (l *AlignmentLearner) regressionSlopes() (sx, sy float64, okX, okY bool) {
	var saa, stt, sat, sar, str float64
	for i := 1; i < l.ring.len(); i++ {
		prev, cur := l.ring.at(i-1), l.ring.at(i)
		da, dt := cur.DeltaAzimuth, cur.DeltaTilt
		dr := cur.Reading - prev.Reading
		saa += da * da
		stt += dt * dt
		sat += da * dt
		sar += da * dr
		str += dt * dr
	}

	eps := l.cfg.Epsilon
	okX, okY = saa > eps, stt > eps
	det := saa*stt - sat*sat
	switch {
	case okX && okY && det > eps*math.Max(saa*stt, eps):
		sx = (sar*stt - str*sat) / det
		sy = (str*saa - sar*sat) / det
	default:
		if okX {
			sx = sar / saa
		}
		if okY {
			sy = str / stt
		}
	}
	return sx, sy, okX, okY
}

func (l *AlignmentLearner) compose(sx, sy float64, okX, okY bool) model.GuidanceVector {
	if !okX && !okY {
		return model.GuidanceVector{
			Reasoning: "no directional contrast yet: sweep left/right and up/down",
		}
	}

	eps := l.cfg.Epsilon
	noise := math.Max(l.noise, eps)
	mag := math.Hypot(sx, sy)
	confidence := clampRange(mag/noise/6, 0, 1)
	plateau := mag < math.Max(eps, 0.2*l.noise)

	vx := clampRange(sx/l.cfg.MaxSlopeFullScale, -1, 1)
	vy := clampRange(sy/l.cfg.MaxSlopeFullScale, -1, 1)
	scale := math.Min(confidence*2.5, l.cfg.SuggestCapDeg)

	g := model.GuidanceVector{
		VX:            vx,
		VY:            vy,
		Confidence:    confidence,
		SuggestedDegX: vx * scale,
		SuggestedDegY: vy * scale,
		Plateau:       plateau,
	}
	if plateau {
		g.Reasoning = fmt.Sprintf("plateau: slope %.3f within noise %.3f, hold or widen the sweep", mag, l.noise)
		return g
	}
	g.Reasoning = fmt.Sprintf("gradient favors %s %.2f° and %s %.2f° (confidence %.2f)",
		horizontalWord(g.SuggestedDegX), math.Abs(g.SuggestedDegX),
		verticalWord(g.SuggestedDegY), math.Abs(g.SuggestedDegY),
		confidence,
	)
	return g
}

func horizontalWord(v float64) string {
	if v < 0 {
		return "left"
	}
	return "right"
}

func verticalWord(v float64) string {
	if v < 0 {
		return "down"
	}
	return "up"
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
