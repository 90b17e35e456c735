package core

import (
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

func newTestMapper() (*LinkBudgetMapper, *PatternModel) {
	pattern := NewPatternModel(model.DefaultPhysicalParameters())
	return NewLinkBudgetMapper(pattern, DefaultLinkBudgetConfig()), pattern
}

func rooftopPair() (a, b model.MechanicalState) {
	a = model.MechanicalState{AzimuthDeg: 0, TiltDeg: 90, Position: &model.Position{X: 0, Y: 0, Z: 30}}
	b = model.MechanicalState{AzimuthDeg: 180, TiltDeg: 90, Position: &model.Position{X: 1500, Y: 0, Z: 28}}
	return a, b
}

func TestLinkAlignedReadsNearBest(t *testing.T) {
	m, _ := newTestMapper()
	a, b := rooftopPair()

	r := m.Evaluate(a, b)
	if r.DB > -30 || r.DB < -30.5 {
		t.Fatalf("aligned reading = %v dB, want within [-30.5, -30]", r.DB)
	}
	if r.Quality != LinkQualityExcellent {
		t.Fatalf("quality = %s, want excellent", r.Quality)
	}
	if r.ErrorA.Mode != PointingTrueLOS || r.ErrorB.Mode != PointingTrueLOS {
		t.Fatalf("expected true LOS on both ends, got %v/%v", r.ErrorA.Mode, r.ErrorB.Mode)
	}
	if g := m.OffAxisGain(a, b); g < 0.99 {
		t.Fatalf("aligned off-axis gain = %v, want about 1", g)
	}
}

func TestLinkBroadsideReadsNearWorst(t *testing.T) {
	m, _ := newTestMapper()
	a, b := rooftopPair()
	b.AzimuthDeg = 90

	db := m.ComputeLinkDb(a, b)
	if db > -89.5 || db < -90 {
		t.Fatalf("broadside reading = %v dB, want within [-90, -89.5]", db)
	}
	if q := m.Classify(db); q != LinkQualityDown {
		t.Fatalf("quality = %s, want down", q)
	}
}

func TestLinkReadingIsBoundedAndReciprocal(t *testing.T) {
	m, _ := newTestMapper()
	rng := rand.New(rand.NewSource(7))

	for i := range 500 {
		a := model.MechanicalState{AzimuthDeg: rng.Float64() * 360, TiltDeg: 60 + rng.Float64()*60}
		b := model.MechanicalState{AzimuthDeg: rng.Float64() * 360, TiltDeg: 60 + rng.Float64()*60}
		if i%2 == 0 {
			a.Position = &model.Position{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: 10}
			b.Position = &model.Position{X: 500 + rng.Float64()*100, Y: rng.Float64() * 100, Z: 12}
		}

		ab := m.ComputeLinkDb(a, b)
		ba := m.ComputeLinkDb(b, a)
		if ab < -90 || ab > -30 {
			t.Fatalf("reading %v outside [-90, -30] for %+v / %+v", ab, a, b)
		}
		if ab != ba {
			t.Fatalf("reading not reciprocal: %v vs %v", ab, ba)
		}
	}
}

func TestLinkReadingDegradesWithMispointing(t *testing.T) {
	m, _ := newTestMapper()
	a, b := rooftopPair()

	prev := m.ComputeLinkDb(a, b)
	for _, off := range []float64{0.5, 1, 1.5, 2, 3} {
		a.AzimuthDeg = off
		db := m.ComputeLinkDb(a, b)
		if db >= prev {
			t.Fatalf("reading at %v° = %v, want below %v", off, db, prev)
		}
		prev = db
	}
}

func TestCaptureGate(t *testing.T) {
	if g := CaptureGate(0.25, 0.25, 12); g != 0.5 {
		t.Fatalf("gate at center = %v, want 0.5", g)
	}
	if CaptureGate(0.9, 0.25, 12) <= CaptureGate(0.1, 0.25, 12) {
		t.Fatalf("gate must increase with gain")
	}
	if g := CaptureGate(1e6, 0, 1); g != 1 {
		t.Fatalf("gate saturates at %v, want 1", g)
	}
}

func TestClassify(t *testing.T) {
	m, _ := newTestMapper()
	cases := []struct {
		db   float64
		want LinkQuality
	}{
		{-90, LinkQualityDown},
		{-85, LinkQualityPoor},
		{-65, LinkQualityFair},
		{-50, LinkQualityGood},
		{-35, LinkQualityExcellent},
		{-30, LinkQualityExcellent},
	}
	for _, tc := range cases {
		if got := m.Classify(tc.db); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.db, got, tc.want)
		}
	}
}

func TestLinkBudgetConfigNormalization(t *testing.T) {
	pattern := NewPatternModel(model.DefaultPhysicalParameters())
	m := NewLinkBudgetMapper(pattern, LinkBudgetConfig{BestDB: -50, WorstDB: -50})
	want := DefaultLinkBudgetConfig()
	want.GateCenter = 0
	if cfg := m.Config(); cfg != want {
		t.Fatalf("degenerate config normalized to %+v, want %+v", cfg, want)
	}

	custom := LinkBudgetConfig{BestDB: 0, WorstDB: -100, CompressionExponent: 1, GateCenter: 0.1, GateSharpness: 20}
	if got := NewLinkBudgetMapper(pattern, custom).Config(); got != custom {
		t.Fatalf("valid config changed to %+v", got)
	}
}

func TestIsoContourRadius(t *testing.T) {
	m, pattern := newTestMapper()

	if r := m.IsoContourRadius(-30); r != 0 {
		t.Fatalf("contour at BEST = %v, want 0", r)
	}
	if r := m.IsoContourRadius(-20); r != 0 {
		t.Fatalf("contour above BEST = %v, want 0", r)
	}
	if r := m.IsoContourRadius(-120); r != pattern.FirstNullDeg() {
		t.Fatalf("contour below WORST = %v, want first null %v", r, pattern.FirstNullDeg())
	}

	prev := 0.0
	for _, target := range []float64{-35, -45, -60, -80, -89.9} {
		r := m.IsoContourRadius(target)
		if r <= prev {
			t.Fatalf("contour(%v) = %v, want above %v", target, r, prev)
		}
		if r > pattern.FirstNullDeg() {
			t.Fatalf("contour(%v) = %v beyond the main lobe", target, r)
		}
		prev = r
	}

	// The radius found maps back onto the requested level.
	r := m.IsoContourRadius(-60)
	if got := m.selfReading(r); math.Abs(got-(-60)) > 1e-6 {
		t.Fatalf("self reading at contour = %v, want -60", got)
	}
}

type linearPattern struct{}

func (linearPattern) Lookup(theta float64) float64 { return math.Max(0, 1-math.Abs(theta)/10) }

func TestIsoContourRadiusWithoutFirstNull(t *testing.T) {
	m := NewLinkBudgetMapper(linearPattern{}, DefaultLinkBudgetConfig())
	if r := m.IsoContourRadius(-95); r != LUTMaxAngleDeg {
		t.Fatalf("saturated contour = %v, want %v", r, LUTMaxAngleDeg)
	}
	r := m.IsoContourRadius(-60)
	if r <= 0 || r >= 10 {
		t.Fatalf("contour(-60) = %v, want inside the linear lobe", r)
	}
}

func TestIsoContourRadiusForDish(t *testing.T) {
	cache := NewTableCache(4)
	pattern := NewPatternModel(model.DefaultPhysicalParameters(), WithTableCache(cache))
	m := NewLinkBudgetMapper(pattern, DefaultLinkBudgetConfig())
	small := m.IsoContourRadius(-45)
	before := pattern.Signature()
	a, b := rooftopPair()
	a.AzimuthDeg = 1
	reading := m.ComputeLinkDb(a, b)

	dish := model.Dish{ID: "big", Params: model.DefaultPhysicalParameters()}
	dish.Params.DiameterM = 1.2
	big := m.IsoContourRadiusFor(dish, -45)
	if big >= small {
		t.Fatalf("1.2 m contour %v should be tighter than 0.6 m contour %v", big, small)
	}
	if pattern.Signature() != before {
		t.Fatalf("pattern switched to %s, want %s", pattern.Signature(), before)
	}
	if got := m.ComputeLinkDb(a, b); got != reading {
		t.Fatalf("reading changed from %v to %v after solving another dish", reading, got)
	}
	if cache.Len() != 2 {
		t.Fatalf("cache holds %d tables, want the scratch table shared too", cache.Len())
	}
	if again := m.IsoContourRadiusFor(model.Dish{ID: "same", Params: model.DefaultPhysicalParameters()}, -45); again != small {
		t.Fatalf("contour for the active dish = %v, want %v", again, small)
	}
}

func heavyStrutMapper(startDeg float64) *LinkBudgetMapper {
	p := model.DefaultPhysicalParameters()
	p.StrutCount = 4
	p.StrutAmplitude = 0.95
	p.StrutWidthDeg = 40
	p.StrutStartDeg = startDeg
	return NewLinkBudgetMapper(NewPatternModel(p), DefaultLinkBudgetConfig())
}

func TestLinkReadingShadowedByStruts(t *testing.T) {
	a, b := rooftopPair()
	a.AzimuthDeg = 1.2

	// A pure azimuth error puts the far dish near azimuth-of-point 0 or 180.
	onStrut := heavyStrutMapper(0).Evaluate(a, b)
	between := heavyStrutMapper(45).Evaluate(a, b)
	if onStrut.DB >= between.DB {
		t.Fatalf("on-strut reading %v dB not below between-strut reading %v dB", onStrut.DB, between.DB)
	}
	if onStrut.GainA >= between.GainA {
		t.Fatalf("on-strut gain %v not below between-strut gain %v", onStrut.GainA, between.GainA)
	}
	if onStrut.ErrorA.OffAxisDeg != between.ErrorA.OffAxisDeg {
		t.Fatalf("strut placement changed the geometry")
	}
}

func TestStrutShadowVanishesOnBoresight(t *testing.T) {
	a, b := rooftopPair()
	shadowed := heavyStrutMapper(0)
	clear := heavyStrutMapper(45)

	// The aligned pair is only a few hundredths of a degree off boresight.
	if got, want := shadowed.ComputeLinkDb(a, b), clear.ComputeLinkDb(a, b); math.Abs(got-want) > 0.25 {
		t.Fatalf("aligned reading moved with strut placement: %v vs %v", got, want)
	}
	if db := shadowed.ComputeLinkDb(a, b); db < -30.5 {
		t.Fatalf("aligned reading with heavy struts = %v dB, want within [-30.5, -30]", db)
	}
}

func TestStrutShadowedReadingIsReciprocal(t *testing.T) {
	m := heavyStrutMapper(10)
	rng := rand.New(rand.NewSource(11))

	for range 300 {
		a := model.MechanicalState{AzimuthDeg: rng.Float64() * 360, TiltDeg: 60 + rng.Float64()*60,
			Position: &model.Position{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: 10}}
		b := model.MechanicalState{AzimuthDeg: rng.Float64() * 360, TiltDeg: 60 + rng.Float64()*60,
			Position: &model.Position{X: 500 + rng.Float64()*100, Y: rng.Float64() * 100, Z: 12}}
		ab, ba := m.ComputeLinkDb(a, b), m.ComputeLinkDb(b, a)
		if ab != ba {
			t.Fatalf("reading not reciprocal with struts: %v vs %v", ab, ba)
		}
		if ab < -90 || ab > -30 {
			t.Fatalf("reading %v outside [-90, -30]", ab)
		}
	}
}
