package core

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// ISS sample TLE.
const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestOrbitTargetLookAnglesChangeOverTime(t *testing.T) {
	target, err := NewOrbitTargetFromTLE("iss", issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewOrbitTargetFromTLE: %v", err)
	}
	site := Site{LatitudeDeg: 46.05, LongitudeDeg: 14.5, AltitudeM: 300}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	az1, el1, rg1 := target.LookAngles(t1, site)
	az2, el2, rg2 := target.LookAngles(t1.Add(5*time.Minute), site)

	for _, v := range []float64{az1, el1, rg1, az2, el2, rg2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite look angle: %v %v %v / %v %v %v", az1, el1, rg1, az2, el2, rg2)
		}
	}
	if az1 < 0 || az1 >= 360 || el1 < -90 || el1 > 90 {
		t.Fatalf("look angles out of range: az %v el %v", az1, el1)
	}
	if rg1 <= 0 {
		t.Fatalf("range = %v km, want positive", rg1)
	}
	if az1 == az2 && el1 == el2 {
		t.Fatalf("expected look angles to change over time")
	}
}

func TestOrbitTargetPointingError(t *testing.T) {
	target, err := NewOrbitTargetFromTLE("iss", issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewOrbitTargetFromTLE: %v", err)
	}
	site := Site{LatitudeDeg: 46.05, LongitudeDeg: 14.5}
	at := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

	az, el, _ := target.LookAngles(at, site)
	dish := model.MechanicalState{AzimuthDeg: az, TiltDeg: el + 90}

	e := target.PointingError(at, site, dish)
	if math.Abs(e.AzimuthDeg) > 1e-9 || math.Abs(e.TiltDeg) > 1e-9 || e.OffAxisDeg > 1e-3 {
		t.Fatalf("tracking dish error = %+v, want zero", e)
	}

	dish.AzimuthDeg = az + 10
	e = target.PointingError(at, site, dish)
	if math.Abs(e.AzimuthDeg+10) > 1e-9 {
		t.Fatalf("azimuth error = %v, want -10", e.AzimuthDeg)
	}
	if target.Visible(at, site) != (el > 0) {
		t.Fatalf("Visible disagrees with elevation %v", el)
	}
}

func TestOrbitTargetSubPointIsOverhead(t *testing.T) {
	target, err := NewOrbitTargetFromTLE("iss", issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewOrbitTargetFromTLE: %v", err)
	}
	at := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

	site := target.SubPoint(at)
	if site.LatitudeDeg < -52 || site.LatitudeDeg > 52 {
		t.Fatalf("sub-point latitude %v beyond the orbit's inclination", site.LatitudeDeg)
	}
	_, el, rg := target.LookAngles(at, site)
	if el < 80 {
		t.Fatalf("elevation from sub-point = %v, want near 90", el)
	}
	if rg < 300 || rg > 500 {
		t.Fatalf("range from sub-point = %v km, want ISS altitude", rg)
	}
	if !target.Visible(at, site) {
		t.Fatalf("target not visible from its own sub-point")
	}
}

func TestOrbitTargetRejectsMalformedTLE(t *testing.T) {
	cases := []struct {
		name         string
		line1, line2 string
		want         string
	}{
		{"truncated", "1 25544U", "2 25544", "69 columns"},
		{"swapped", issLine2, issLine1, "must start with"},
		{"garbled fields", issLine1[:18] + "xxxxxxxxxxxxxx" + issLine1[32:], issLine2, "parse tle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := NewOrbitTargetFromTLE("bad", tc.line1, tc.line2)
			if err == nil {
				t.Fatalf("expected error, got target %+v", target)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
