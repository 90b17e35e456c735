package core

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

const (
	// LUTMaxAngleDeg is the widest off-boresight angle the table covers.
	LUTMaxAngleDeg = 40.0
	// LUTSamples is the number of angle samples in one table.
	LUTSamples = 360

	radialBins = 120

	strutFloor  = 0.05
	fwhmToSigma = 2.355
)

// radiationTable is one built lookup table. It is never mutated after
// construction; models swap whole tables.
type radiationTable struct {
	signature string
	params    model.PhysicalParameters

	angles []float64
	power  []float64

	firstNullDeg float64
	efficiency   float64
}

// PatternModel maps off-boresight angle to normalized radiated power for
// one set of physical parameters.
//
// Lookups are lock-free against the current table. Rebuilds are
// serialized and published with a single pointer swap, so a reader sees
// either the old table or the new one.
type PatternModel struct {
	mu    sync.Mutex
	table atomic.Pointer[radiationTable]

	cache     *TableCache
	onRebuild func(signature string)
}

// PatternOption configures a PatternModel.
type PatternOption func(*PatternModel)

// WithTableCache shares built tables with other models using the same cache.
func WithTableCache(c *TableCache) PatternOption {
	return func(m *PatternModel) { m.cache = c }
}

// WithRebuildHook registers fn to be called whenever the active table
// changes to a new signature.
func WithRebuildHook(fn func(signature string)) PatternOption {
	return func(m *PatternModel) { m.onRebuild = fn }
}

// NewPatternModel builds the table for params. Parameters are assumed to be
// sane; run model.PhysicalParameters.Sanitize on untrusted input first.
func NewPatternModel(params model.PhysicalParameters, opts ...PatternOption) *PatternModel {
	m := &PatternModel{}
	for _, opt := range opts {
		opt(m)
	}
	m.SetParameters(params)
	return m
}

// derive returns a model for params that shares m's table cache but not
// its rebuild hook.
func (m *PatternModel) derive(params model.PhysicalParameters) *PatternModel {
	return NewPatternModel(params, WithTableCache(m.cache))
}

// SetParameters rebuilds the table when the signature differs from the
// current one. It reports whether the active table changed.
func (m *PatternModel) SetParameters(params model.PhysicalParameters) bool {
	sig := params.Signature()
	if cur := m.table.Load(); cur != nil && cur.signature == sig {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.table.Load(); cur != nil && cur.signature == sig {
		return false
	}

	var t *radiationTable
	if m.cache != nil {
		t = m.cache.table(params)
	} else {
		t = buildRadiationTable(params)
	}
	m.table.Store(t)

	if m.onRebuild != nil {
		m.onRebuild(sig)
	}
	return true
}

// Lookup returns normalized power in [0,1] at thetaDeg off boresight,
// linearly interpolated and clamped to the table range.
func (m *PatternModel) Lookup(thetaDeg float64) float64 {
	return m.table.Load().lookup(thetaDeg)
}

// LookupFor makes sure the table matches params, then looks thetaDeg up.
func (m *PatternModel) LookupFor(params model.PhysicalParameters, thetaDeg float64) float64 {
	m.SetParameters(params)
	return m.Lookup(thetaDeg)
}

// PowerAt samples the 2-D pattern: radial power times strut attenuation at
// azimuth-of-point phiDeg. Struts are not applied exactly on boresight.
func (m *PatternModel) PowerAt(thetaDeg, phiDeg float64) float64 {
	t := m.table.Load()
	p := t.lookup(thetaDeg)
	if thetaDeg == 0 {
		return p
	}
	return p * strutAttenuation(t.params, phiDeg)
}

// StrutAttenuation returns the multiplicative strut-shadow factor in
// [0.05,1] at azimuth-of-point phiDeg, or 1 when the dish has no struts.
func (m *PatternModel) StrutAttenuation(phiDeg float64) float64 {
	return strutAttenuation(m.table.Load().params, phiDeg)
}

// FirstNullDeg is the angle of the first local minimum of the table, i.e.
// the main-lobe edge. Within [0, FirstNullDeg] Lookup is non-increasing.
func (m *PatternModel) FirstNullDeg() float64 { return m.table.Load().firstNullDeg }

// Signature returns the signature of the active table.
func (m *PatternModel) Signature() string { return m.table.Load().signature }

// Parameters returns the parameters of the active table.
func (m *PatternModel) Parameters() model.PhysicalParameters { return m.table.Load().params }

// SurfaceEfficiency is the Ruze power factor exp(-(4*pi*sigma/lambda)^2).
// Normalization removes it from Lookup; session summaries report it.
func (m *PatternModel) SurfaceEfficiency() float64 { return m.table.Load().efficiency }

// Table returns copies of the angle and power columns.
func (m *PatternModel) Table() (angles, power []float64) {
	t := m.table.Load()
	angles = append([]float64(nil), t.angles...)
	power = append([]float64(nil), t.power...)
	return angles, power
}

func buildRadiationTable(p model.PhysicalParameters) *radiationTable {
	lambda := p.WavelengthM()
	k := 2 * math.Pi / lambda
	radius := p.DiameterM / 2
	blocked := p.BlockageRatio * radius

	efficiency := math.Exp(-math.Pow(4*math.Pi*p.SurfaceRMSM/lambda, 2))
	ruze := math.Sqrt(efficiency)

	// Radial quadrature: midpoint rule on annuli, weight r*dr.
	dr := (radius - blocked) / radialBins
	r := make([]float64, radialBins)
	w := make([]float64, radialBins)
	for i := range radialBins {
		ri := blocked + (float64(i)+0.5)*dr
		r[i] = ri
		w[i] = illumination(p, ri, radius, blocked) * ri * dr
	}

	field := func(thetaRad float64) float64 {
		ks := k * math.Sin(thetaRad)
		sum := 0.0
		for i := range r {
			sum += w[i] * math.J0(ks*r[i])
		}
		return ruze * sum
	}

	t := &radiationTable{
		signature:  p.Signature(),
		params:     p,
		angles:     make([]float64, LUTSamples),
		power:      make([]float64, LUTSamples),
		efficiency: efficiency,
	}

	step := LUTMaxAngleDeg / float64(LUTSamples-1)
	e0 := field(0)
	p0 := e0 * e0
	for i := range LUTSamples {
		deg := float64(i) * step
		t.angles[i] = deg
		if p0 <= 0 {
			if i == 0 {
				t.power[i] = 1
			}
			continue
		}
		e := field(deg * math.Pi / 180)
		t.power[i] = clamp01(e * e / p0)
	}
	t.power[0] = 1

	t.firstNullDeg = t.angles[LUTSamples-1]
	for i := 1; i < LUTSamples; i++ {
		if t.power[i] > t.power[i-1] {
			t.firstNullDeg = t.angles[i-1]
			break
		}
	}
	return t
}

// illumination is the aperture amplitude weighting at radius r.
func illumination(p model.PhysicalParameters, r, radius, blocked float64) float64 {
	if r < blocked || r > radius {
		return 0
	}
	alpha := p.TaperAlpha
	taper := (1 - alpha) + alpha*math.Pow(math.Cos(math.Pi*r/(2*radius)), p.TaperExponent)
	if p.CorrugatedFeed {
		edge := math.Pow(10, -p.EdgeTaperDB/20)
		u := r / radius
		taper *= 1 - (1-edge)*u*u
	}
	return taper
}

func (t *radiationTable) lookup(thetaDeg float64) float64 {
	n := len(t.angles)
	th := math.Abs(thetaDeg)
	if math.IsNaN(th) || th >= t.angles[n-1] {
		return t.power[n-1]
	}
	if th <= t.angles[0] {
		return t.power[0]
	}
	i := sort.SearchFloat64s(t.angles, th)
	a0, a1 := t.angles[i-1], t.angles[i]
	p0, p1 := t.power[i-1], t.power[i]
	f := (th - a0) / (a1 - a0)
	return p0 + f*(p1-p0)
}

func strutAttenuation(p model.PhysicalParameters, phiDeg float64) float64 {
	if p.StrutCount <= 0 || p.StrutAmplitude <= 0 {
		return 1
	}
	sigma := p.StrutWidthDeg / fwhmToSigma
	spacing := 360 / float64(p.StrutCount)
	factor := 1.0
	for i := range p.StrutCount {
		delta := model.WrapDeg180(phiDeg - (p.StrutStartDeg + float64(i)*spacing))
		factor *= 1 - p.StrutAmplitude*math.Exp(-0.5*(delta/sigma)*(delta/sigma))
	}
	return math.Max(strutFloor, math.Min(1, factor))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
