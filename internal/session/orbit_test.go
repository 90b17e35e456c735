package session

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/kb"
	"github.com/signalsfoundry/dishlink-simulator/model"
)

const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func groundRegistry(t *testing.T, state model.MechanicalState) *kb.DishRegistry {
	t.Helper()
	reg := kb.NewDishRegistry()
	for _, d := range []model.Dish{
		{ID: "ground", State: state, Params: model.DefaultPhysicalParameters()},
		{ID: "iss", State: model.MechanicalState{TiltDeg: 90}, Params: model.DefaultPhysicalParameters()},
	} {
		if err := reg.AddDish(d); err != nil {
			t.Fatalf("AddDish(%s) error: %v", d.ID, err)
		}
	}
	return reg
}

func TestOrbitTargetTrackedDishReadsNearBest(t *testing.T) {
	at := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	target, err := core.NewOrbitTargetFromTLE("iss", issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewOrbitTargetFromTLE: %v", err)
	}
	site := target.SubPoint(at)
	az, el, _ := target.LookAngles(at, site)

	opts := quietOptions()
	opts.OperatedDish, opts.PeerDish = "ground", "iss"
	reg := groundRegistry(t, model.MechanicalState{AzimuthDeg: az, TiltDeg: el + 90})
	s, err := New(reg, opts, WithOrbitTarget(target, site))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	res, err := s.Step(context.Background(), at)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if res.DB < -30.5 || res.DB > -30 {
		t.Fatalf("tracking reading = %.3f dB, want within [-30.5, -30]", res.DB)
	}
	if res.Link.ErrorA.Mode != core.PointingIdeal {
		t.Fatalf("operated error mode = %s, want ideal", res.Link.ErrorA.Mode)
	}
	if res.Link.ErrorB.OffAxisDeg > 1e-3 {
		t.Fatalf("target should face the dish, off-axis %.6f°", res.Link.ErrorB.OffAxisDeg)
	}

	if err := s.Apply(context.Background(), Action{DAzimuthDeg: 5}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	off, err := s.Step(context.Background(), at)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if off.DB >= res.DB {
		t.Fatalf("mispointed reading %.3f dB not below tracking reading %.3f dB", off.DB, res.DB)
	}
}

func TestOrbitTargetBelowHorizonIsDown(t *testing.T) {
	at := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	target, err := core.NewOrbitTargetFromTLE("iss", issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewOrbitTargetFromTLE: %v", err)
	}
	sub := target.SubPoint(at)
	antipode := core.Site{LatitudeDeg: -sub.LatitudeDeg, LongitudeDeg: model.WrapDeg180(sub.LongitudeDeg + 180)}
	az, el, _ := target.LookAngles(at, antipode)
	if el > 0 {
		t.Fatalf("target unexpectedly visible from its antipode (el %.1f)", el)
	}

	opts := quietOptions()
	opts.OperatedDish, opts.PeerDish = "ground", "iss"
	s, err := New(groundRegistry(t, model.MechanicalState{AzimuthDeg: az, TiltDeg: el + 90}), opts, WithOrbitTarget(target, antipode))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	res, err := s.Step(context.Background(), at)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if res.DB != -90 || res.Link.Quality != core.LinkQualityDown {
		t.Fatalf("below-horizon link = %.3f dB (%s), want -90 dB down", res.DB, res.Link.Quality)
	}
}
