package session

import (
	"time"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/model"
)

// WithOrbitTarget makes the peer an orbital target seen from site. The
// operated dish is scored against the target's look angles and the target
// always faces the dish back.
func WithOrbitTarget(target *core.OrbitTarget, site core.Site) Option {
	return func(s *Session) {
		if target != nil {
			s.orbit = &orbitTrack{target: target, site: site}
		}
	}
}

type orbitTrack struct {
	target *core.OrbitTarget
	site   core.Site
}

// resolve rewrites both states for time now. Dropping the dish position
// routes geometry through the ideal-pointing path.
func (o *orbitTrack) resolve(now time.Time, dish model.MechanicalState) (operated, peer model.MechanicalState, elevationDeg float64) {
	az, el, _ := o.target.LookAngles(now, o.site)
	tilt := el + 90

	operated = dish
	operated.Position = nil
	operated.IdealAzimuthDeg = model.Float64Ptr(az)
	operated.IdealTiltDeg = model.Float64Ptr(tilt)

	peer = model.MechanicalState{AzimuthDeg: model.WrapDeg360(az + 180), TiltDeg: 180 - tilt}
	peer.IdealAzimuthDeg = model.Float64Ptr(peer.AzimuthDeg)
	peer.IdealTiltDeg = model.Float64Ptr(peer.TiltDeg)
	return operated, peer, el
}
