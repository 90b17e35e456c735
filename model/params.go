package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// SpeedOfLight in metres per second.
const SpeedOfLight = 299792458.0

// PhysicalParameters describes one dish type. It is a value object: two
// sets with the same Signature are interchangeable.
type PhysicalParameters struct {
	DiameterM   float64
	FrequencyHz float64
	SurfaceRMSM float64

	// BlockageRatio is the central blockage radius as a fraction of the
	// aperture radius (0-1).
	BlockageRatio float64

	// Illumination taper: (1-alpha) + alpha*cos(pi*r/2R)^exponent.
	TaperAlpha    float64
	TaperExponent float64

	CorrugatedFeed bool
	EdgeTaperDB    float64

	StrutCount     int
	StrutAmplitude float64
	StrutWidthDeg  float64
	StrutStartDeg  float64
}

// DefaultPhysicalParameters returns a 60 cm Ku-band dish with a moderate
// taper, a small feed blockage and three feed-support struts.
func DefaultPhysicalParameters() PhysicalParameters {
	return PhysicalParameters{
		DiameterM:      0.6,
		FrequencyHz:    11.0e9,
		SurfaceRMSM:    0.0005,
		BlockageRatio:  0.08,
		TaperAlpha:     0.8,
		TaperExponent:  2,
		CorrugatedFeed: false,
		EdgeTaperDB:    12,
		StrutCount:     3,
		StrutAmplitude: 0.15,
		StrutWidthDeg:  6,
		StrutStartDeg:  90,
	}
}

// WavelengthM returns c/f.
func (p PhysicalParameters) WavelengthM() float64 {
	return SpeedOfLight / p.FrequencyHz
}

// Signature is the cache identity of the parameter set. Every field takes
// part, so changing any one of them changes the signature.
func (p PhysicalParameters) Signature() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	parts := []string{
		"d=" + f(p.DiameterM),
		"f=" + f(p.FrequencyHz),
		"rms=" + f(p.SurfaceRMSM),
		"blk=" + f(p.BlockageRatio),
		"ta=" + f(p.TaperAlpha),
		"tn=" + f(p.TaperExponent),
		"cf=" + strconv.FormatBool(p.CorrugatedFeed),
		"et=" + f(p.EdgeTaperDB),
		"sc=" + strconv.Itoa(p.StrutCount),
		"sa=" + f(p.StrutAmplitude),
		"sw=" + f(p.StrutWidthDeg),
		"ss=" + f(p.StrutStartDeg),
	}
	return strings.Join(parts, "|")
}

// Sanitize clamps degenerate values so the pattern builder can assume sane
// positive inputs. Callers run it on anything that came from outside.
func (p PhysicalParameters) Sanitize() PhysicalParameters {
	def := DefaultPhysicalParameters()
	out := p
	if !(out.DiameterM > 0) || math.IsInf(out.DiameterM, 0) {
		out.DiameterM = def.DiameterM
	}
	if !(out.FrequencyHz > 0) || math.IsInf(out.FrequencyHz, 0) {
		out.FrequencyHz = def.FrequencyHz
	}
	if !(out.SurfaceRMSM >= 0) || math.IsInf(out.SurfaceRMSM, 0) {
		out.SurfaceRMSM = 0
	}
	out.BlockageRatio = clampFinite(out.BlockageRatio, 0, 0.95)
	out.TaperAlpha = clampFinite(out.TaperAlpha, 0, 1)
	if !(out.TaperExponent >= 0) || math.IsInf(out.TaperExponent, 0) {
		out.TaperExponent = def.TaperExponent
	}
	if !(out.EdgeTaperDB >= 0) || math.IsInf(out.EdgeTaperDB, 0) {
		out.EdgeTaperDB = 0
	}
	if out.StrutCount < 0 {
		out.StrutCount = 0
	}
	out.StrutAmplitude = clampFinite(out.StrutAmplitude, 0, 1)
	if !(out.StrutWidthDeg > 0) || math.IsInf(out.StrutWidthDeg, 0) {
		out.StrutWidthDeg = def.StrutWidthDeg
	}
	if math.IsNaN(out.StrutStartDeg) || math.IsInf(out.StrutStartDeg, 0) {
		out.StrutStartDeg = 0
	}
	return out
}

// String renders a short human summary, e.g. "0.6 m dish @ 11 GHz".
func (p PhysicalParameters) String() string {
	s := fmt.Sprintf("%s dish @ %s",
		humanize.FtoaWithDigits(p.DiameterM, 2)+" m",
		humanize.SIWithDigits(p.FrequencyHz, 2, "Hz"),
	)
	if p.CorrugatedFeed {
		s += fmt.Sprintf(", corrugated feed (%.0f dB edge)", p.EdgeTaperDB)
	}
	if p.StrutCount > 0 {
		s += fmt.Sprintf(", %d struts", p.StrutCount)
	}
	return s
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
