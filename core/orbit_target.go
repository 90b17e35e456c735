package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// Site is a geodetic dish location used when tracking orbital targets.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// OrbitTarget is a TLE-propagated far-end "dish". Its look angles use a
// compass reference (azimuth clockwise from true north), so a dish tracking
// it must share that reference.
type OrbitTarget struct {
	Name string
	sat  satellite.Satellite
}

// tleLineLen is the fixed column width of a TLE data line.
const tleLineLen = 69

// NewOrbitTargetFromTLE builds an SGP4 target from two TLE lines. Lines
// must be full-width TLE data lines; malformed elements are reported as an
// error rather than left to panic in the parser.
func NewOrbitTargetFromTLE(name, line1, line2 string) (*OrbitTarget, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := checkTLELine(line1, "1 "); err != nil {
		return nil, fmt.Errorf("tle line 1: %w", err)
	}
	if err := checkTLELine(line2, "2 "); err != nil {
		return nil, fmt.Errorf("tle line 2: %w", err)
	}

	if err := checkTLEFields(line1, line2); err != nil {
		return nil, err
	}

	sat, err := parseTLE(line1, line2)
	if err != nil {
		return nil, err
	}
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init: %s (code %d)", sat.ErrorStr, sat.Error)
	}
	return &OrbitTarget{Name: name, sat: sat}, nil
}

func checkTLELine(line, prefix string) error {
	if len(line) != tleLineLen {
		return fmt.Errorf("want %d columns, got %d", tleLineLen, len(line))
	}
	if !strings.HasPrefix(line, prefix) {
		return fmt.Errorf("must start with %q", prefix)
	}
	return nil
}

// tleField is one numeric column range TLEToSat reads.
type tleField struct {
	name  string
	line  int
	value func(l string) string
	isInt bool
}

// noSpaces drops the first two spaces, as TLEToSat does.
func noSpaces(s string) string { return strings.Replace(s, " ", "", 2) }

var tleFields = []tleField{
	{"satellite number", 1, func(l string) string { return strings.TrimSpace(l[2:7]) }, true},
	{"epoch year", 1, func(l string) string { return l[18:20] }, true},
	{"epoch day", 1, func(l string) string { return l[20:32] }, false},
	{"mean motion dot", 1, func(l string) string { return noSpaces(l[33:43]) }, false},
	{"mean motion ddot", 1, func(l string) string { return noSpaces(l[44:45] + "." + l[45:50] + "e" + l[50:52]) }, false},
	{"bstar", 1, func(l string) string { return noSpaces(l[53:54] + "." + l[54:59] + "e" + l[59:61]) }, false},
	{"inclination", 2, func(l string) string { return noSpaces(l[8:16]) }, false},
	{"raan", 2, func(l string) string { return noSpaces(l[17:25]) }, false},
	{"eccentricity", 2, func(l string) string { return "." + l[26:33] }, false},
	{"argument of perigee", 2, func(l string) string { return noSpaces(l[34:42]) }, false},
	{"mean anomaly", 2, func(l string) string { return noSpaces(l[43:51]) }, false},
	{"mean motion", 2, func(l string) string { return noSpaces(l[52:63]) }, false},
}

// checkTLEFields parses every numeric field up front. The parser behind
// TLEToSat exits the process on a bad number instead of returning.
func checkTLEFields(line1, line2 string) error {
	for _, f := range tleFields {
		l := line1
		if f.line == 2 {
			l = line2
		}
		v := f.value(l)
		var err error
		if f.isInt {
			_, err = strconv.ParseInt(v, 10, 0)
		} else {
			_, err = strconv.ParseFloat(v, 64)
		}
		if err != nil {
			return fmt.Errorf("parse tle line %d %s %q: %w", f.line, f.name, v, err)
		}
	}
	return nil
}

// parseTLE turns any panic out of satellite.TLEToSat into an error.
func parseTLE(line1, line2 string) (sat satellite.Satellite, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse tle: %v", r)
		}
	}()
	return satellite.TLEToSat(line1, line2, satellite.GravityWGS72), nil
}

// LookAngles propagates the target to t and returns azimuth [0,360),
// elevation and slant range in kilometres as seen from site.
func (o *OrbitTarget) LookAngles(t time.Time, site Site) (azimuthDeg, elevationDeg, rangeKm float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)

	obs := satellite.LatLong{
		Latitude:  site.LatitudeDeg * deg2rad,
		Longitude: site.LongitudeDeg * deg2rad,
	}
	// go-satellite works in kilometres.
	look := satellite.ECIToLookAngles(posECI, obs, site.AltitudeM/1000.0, jd)
	return model.WrapDeg360(look.Az * rad2deg), look.El * rad2deg, look.Rg
}

// SubPoint returns the geodetic point directly below the target at t.
func (o *OrbitTarget) SubPoint(t time.Time) Site {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	_, _, lla := satellite.ECIToLLA(posECI, gmst)
	deg := satellite.LatLongDeg(lla)
	return Site{LatitudeDeg: deg.Latitude, LongitudeDeg: deg.Longitude}
}

// PointingError returns the correction a dish at site needs to face the
// target at time t.
func (o *OrbitTarget) PointingError(t time.Time, site Site, dish model.MechanicalState) PointingError {
	az, el, _ := o.LookAngles(t, site)
	return pointingErrorToward(dish, az, el, BoresightVector(az, el+90), PointingTrueLOS)
}

// Visible reports whether the target is above the site's horizon.
func (o *OrbitTarget) Visible(t time.Time, site Site) bool {
	_, el, _ := o.LookAngles(t, site)
	return el > 0
}
