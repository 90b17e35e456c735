package session

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/model"
)

// Summary describes a session so far.
type Summary struct {
	Steps   int
	Samples int
	Follows int

	FirstDB      float64
	BestDB       float64
	FinalDB      float64
	FinalQuality core.LinkQuality

	Guidance    model.GuidanceVector
	HasGuidance bool

	FinalState model.MechanicalState
	Parameters model.PhysicalParameters
	// CaptureRadiusDeg is the off-boresight radius within which a single
	// dish stays within 3 dB of the best reading.
	CaptureRadiusDeg float64
	// PeerCaptureRadiusDeg is the same radius for the peer's parameters.
	PeerCaptureRadiusDeg float64
	// SurfaceEfficiency is the Ruze gain factor of the operated dish.
	SurfaceEfficiency float64
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	out := Summary{
		Steps:       s.steps,
		Samples:     s.learner.Len(),
		Follows:     s.follows,
		FirstDB:     s.firstDB,
		BestDB:      s.bestDB,
		FinalDB:     s.last.DB,
		Guidance:    s.guidance,
		HasGuidance: s.hasGuidance,
	}
	s.mu.Unlock()

	out.FinalQuality = s.mapper.Classify(out.FinalDB)
	if d, ok := s.registry.GetDish(s.opts.OperatedDish); ok {
		out.FinalState = d.State
	}
	out.Parameters = s.pattern.Parameters()
	out.SurfaceEfficiency = s.pattern.SurfaceEfficiency()
	threeDB := s.mapper.Config().BestDB - 3
	out.CaptureRadiusDeg = s.mapper.IsoContourRadius(threeDB)
	out.PeerCaptureRadiusDeg = out.CaptureRadiusDeg
	if peer, ok := s.registry.GetDish(s.opts.PeerDish); ok {
		peer.Params = peer.Params.Sanitize()
		out.PeerCaptureRadiusDeg = s.mapper.IsoContourRadiusFor(peer, threeDB)
	}
	return out
}

// String renders a short multi-line report.
func (sm Summary) String() string {
	s := fmt.Sprintf("%s steps, %s samples buffered, %d suggestions followed\n",
		humanize.Comma(int64(sm.Steps)), humanize.Comma(int64(sm.Samples)), sm.Follows)
	s += fmt.Sprintf("reading: first %.1f dB, best %.1f dB, final %.1f dB (%s)\n",
		sm.FirstDB, sm.BestDB, sm.FinalDB, sm.FinalQuality)
	s += fmt.Sprintf("pointing: azimuth %.2f°, tilt %.2f°\n", sm.FinalState.AzimuthDeg, sm.FinalState.TiltDeg)
	s += fmt.Sprintf("dish: %s, surface efficiency %.1f%%, 3 dB capture radius %.2f° (peer %.2f°)\n",
		sm.Parameters, 100*sm.SurfaceEfficiency, sm.CaptureRadiusDeg, sm.PeerCaptureRadiusDeg)
	if sm.HasGuidance {
		s += "guidance: " + sm.Guidance.Reasoning + "\n"
	}
	return s
}
