package core

import (
	"math"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// contourIterations is the bisection depth of IsoContourRadius.
const contourIterations = 64

// GainPattern is the part of a PatternModel the mapper needs.
type GainPattern interface {
	Lookup(thetaDeg float64) float64
}

// strutShadow is implemented by patterns with azimuthal strut notches.
type strutShadow interface {
	StrutAttenuation(phiDeg float64) float64
}

// LinkQuality is a coarse, human-readable classification of a reading.
type LinkQuality string

const (
	LinkQualityDown      LinkQuality = "down"
	LinkQualityPoor      LinkQuality = "poor"
	LinkQualityFair      LinkQuality = "fair"
	LinkQualityGood      LinkQuality = "good"
	LinkQualityExcellent LinkQuality = "excellent"
)

// LinkBudgetConfig holds the app-dB mapping tunables.
type LinkBudgetConfig struct {
	// BestDB is the reading for perfect mutual alignment, WorstDB for none.
	BestDB  float64
	WorstDB float64

	// CompressionExponent is the power-law applied to the gated product.
	// Larger values punish partial alignment harder.
	CompressionExponent float64

	// GateCenter and GateSharpness shape the logistic capture gate.
	GateCenter    float64
	GateSharpness float64
}

// DefaultLinkBudgetConfig returns the defaults used by the simulator.
func DefaultLinkBudgetConfig() LinkBudgetConfig {
	return LinkBudgetConfig{
		BestDB:              -30,
		WorstDB:             -90,
		CompressionExponent: 0.5,
		GateCenter:          0.25,
		GateSharpness:       12,
	}
}

func (c LinkBudgetConfig) normalized() LinkBudgetConfig {
	def := DefaultLinkBudgetConfig()
	out := c
	if out.BestDB == out.WorstDB || math.IsNaN(out.BestDB) || math.IsNaN(out.WorstDB) {
		out.BestDB, out.WorstDB = def.BestDB, def.WorstDB
	}
	if !(out.CompressionExponent > 0) {
		out.CompressionExponent = def.CompressionExponent
	}
	if !(out.GateSharpness > 0) {
		out.GateSharpness = def.GateSharpness
	}
	if math.IsNaN(out.GateCenter) {
		out.GateCenter = def.GateCenter
	}
	return out
}

// LinkReading is a full evaluation of one dish pair.
type LinkReading struct {
	DB      float64
	Power   float64
	Quality LinkQuality

	GainA  float64
	GainB  float64
	ErrorA PointingError
	ErrorB PointingError
}

// LinkBudgetMapper turns two dishes' pointing into one bounded app-dB
// reading.
type LinkBudgetMapper struct {
	pattern GainPattern
	cfg     LinkBudgetConfig
}

// NewLinkBudgetMapper wires a pattern to the mapping config. Degenerate
// config values fall back to defaults.
func NewLinkBudgetMapper(pattern GainPattern, cfg LinkBudgetConfig) *LinkBudgetMapper {
	return &LinkBudgetMapper{pattern: pattern, cfg: cfg.normalized()}
}

// Config returns the effective mapping config.
func (m *LinkBudgetMapper) Config() LinkBudgetConfig { return m.cfg }

// CaptureGate is a logistic soft threshold on gain, clamped to [0,1].
func CaptureGate(gain, center, sharpness float64) float64 {
	return clamp01(1 / (1 + math.Exp(-sharpness*(gain-center))))
}

// OffAxisGain is dish's normalized pattern gain in the direction of other.
func (m *LinkBudgetMapper) OffAxisGain(dish, other model.MechanicalState) float64 {
	return m.gainFor(ComputePointingError(dish, other))
}

// gainFor is the radial gain at the error's off-axis angle, shadowed by the
// struts at its azimuth-of-point. The notch is weighted by 1-g: it vanishes
// on boresight, where the azimuth-of-point is undefined, and reaches full
// depth outside the main beam.
func (m *LinkBudgetMapper) gainFor(e PointingError) float64 {
	g := clamp01(m.pattern.Lookup(e.OffAxisDeg))
	if s, ok := m.pattern.(strutShadow); ok {
		notch := 1 - clamp01(s.StrutAttenuation(e.AzimuthOfPointDeg))
		g *= 1 - notch*(1-g)
	}
	return clamp01(g)
}

// ComputeLinkDb returns the app-dB reading for a dish pair, always within
// [WorstDB, BestDB]. With positions on both dishes the result is the same
// for (a, b) and (b, a).
func (m *LinkBudgetMapper) ComputeLinkDb(a, b model.MechanicalState) float64 {
	return m.Evaluate(a, b).DB
}

// Evaluate computes the reading together with its intermediate terms.
func (m *LinkBudgetMapper) Evaluate(a, b model.MechanicalState) LinkReading {
	errA := ComputePointingError(a, b)
	errB := ComputePointingError(b, a)
	gA := m.gainFor(errA)
	gB := m.gainFor(errB)

	// Gate each side first so the product is symmetric bit for bit.
	sA := gA * m.gate(gA)
	sB := gB * m.gate(gB)
	p := clamp01(sA * sB)

	db := m.powerToDB(p)
	return LinkReading{
		DB:      db,
		Power:   p,
		Quality: m.Classify(db),
		GainA:   gA,
		GainB:   gB,
		ErrorA:  errA,
		ErrorB:  errB,
	}
}

// Classify buckets a reading by its position between WorstDB and BestDB.
func (m *LinkBudgetMapper) Classify(db float64) LinkQuality {
	q := m.fraction(db)
	switch {
	case q < 0.05:
		return LinkQualityDown
	case q < 0.3:
		return LinkQualityPoor
	case q < 0.6:
		return LinkQualityFair
	case q < 0.85:
		return LinkQualityGood
	default:
		return LinkQualityExcellent
	}
}

// IsoContourRadius finds the off-boresight radius in degrees at which the
// single-dish self-overlap reading crosses targetDB. The search runs over
// the main lobe (up to the pattern's first null when known, else the table
// range) so the reading is monotone in radius. Thresholds outside the
// achievable range saturate to the nearest boundary.
func (m *LinkBudgetMapper) IsoContourRadius(targetDB float64) float64 {
	hi := LUTMaxAngleDeg
	if edger, ok := m.pattern.(interface{ FirstNullDeg() float64 }); ok {
		if n := edger.FirstNullDeg(); n > 0 && n < hi {
			hi = n
		}
	}

	target := m.fraction(targetDB)
	if target >= m.fraction(m.selfReading(0)) {
		return 0
	}
	if target <= m.fraction(m.selfReading(hi)) {
		return hi
	}

	lo := 0.0
	for range contourIterations {
		mid := (lo + hi) / 2
		if m.fraction(m.selfReading(mid)) > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// IsoContourRadiusFor solves IsoContourRadius for dish's physical
// parameters. A PatternModel is not switched: the solve runs on a scratch
// model sharing its table cache. Other patterns are solved as they are.
func (m *LinkBudgetMapper) IsoContourRadiusFor(dish model.Dish, targetDB float64) float64 {
	pattern := m.pattern
	if pm, ok := m.pattern.(*PatternModel); ok {
		pattern = pm.derive(dish.Params)
	}
	scratch := &LinkBudgetMapper{pattern: pattern, cfg: m.cfg}
	return scratch.IsoContourRadius(targetDB)
}

// selfReading maps the gain at radius r against the gain at boresight,
// gated and compressed the same way as a link.
func (m *LinkBudgetMapper) selfReading(r float64) float64 {
	g := clamp01(m.pattern.Lookup(r))
	ref := m.gate(1)
	if ref <= 0 {
		return m.cfg.WorstDB
	}
	return m.powerToDB(g * m.gate(g) / ref)
}

func (m *LinkBudgetMapper) gate(g float64) float64 {
	return CaptureGate(g, m.cfg.GateCenter, m.cfg.GateSharpness)
}

func (m *LinkBudgetMapper) powerToDB(p float64) float64 {
	q := math.Pow(clamp01(p), m.cfg.CompressionExponent)
	db := m.cfg.WorstDB + (m.cfg.BestDB-m.cfg.WorstDB)*q
	lo := math.Min(m.cfg.BestDB, m.cfg.WorstDB)
	hi := math.Max(m.cfg.BestDB, m.cfg.WorstDB)
	return math.Max(lo, math.Min(hi, db))
}

// fraction maps a reading to 0 (worst) .. 1 (best) regardless of the sign
// convention of the configured bounds.
func (m *LinkBudgetMapper) fraction(db float64) float64 {
	return (db - m.cfg.WorstDB) / (m.cfg.BestDB - m.cfg.WorstDB)
}
