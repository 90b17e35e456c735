package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AlignmentCollector bundles Prometheus metrics for an alignment session and
// provides a /metrics handler.
type AlignmentCollector struct {
	gatherer prometheus.Gatherer

	LinkDB             *prometheus.GaugeVec
	LinkPower          *prometheus.GaugeVec
	PointingError      *prometheus.GaugeVec
	GuidanceConfidence *prometheus.GaugeVec

	SamplesObserved *prometheus.CounterVec
	PatternRebuilds prometheus.Counter
	StepDurations   prometheus.Histogram
}

// NewAlignmentCollector registers alignment metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewAlignmentCollector(reg prometheus.Registerer) (*AlignmentCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	linkDB, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dishlink_link_db",
		Help: "Latest app-dB reading of a dish pair.",
	}, []string{"link"}), "dishlink_link_db")
	if err != nil {
		return nil, err
	}
	linkPower, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dishlink_link_power_ratio",
		Help: "Latest gated power product (0-1) of a dish pair.",
	}, []string{"link"}), "dishlink_link_power_ratio")
	if err != nil {
		return nil, err
	}
	pointing, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dishlink_pointing_error_degrees",
		Help: "Signed pointing correction per dish and axis.",
	}, []string{"dish", "axis"}), "dishlink_pointing_error_degrees")
	if err != nil {
		return nil, err
	}
	confidence, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dishlink_guidance_confidence",
		Help: "Confidence (0-1) of the latest alignment guidance per dish.",
	}, []string{"dish"}), "dishlink_guidance_confidence")
	if err != nil {
		return nil, err
	}

	samples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dishlink_samples_observed_total",
		Help: "Total number of readings fed to the alignment learner, labeled by dish and movement direction.",
	}, []string{"dish", "direction"})
	samples, err = registerCounterVec(reg, samples, "dishlink_samples_observed_total")
	if err != nil {
		return nil, err
	}

	rebuilds, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dishlink_pattern_rebuilds_total",
		Help: "Number of times a radiation pattern table was swapped for a new parameter signature.",
	}), "dishlink_pattern_rebuilds_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dishlink_step_duration_seconds",
		Help:    "Duration of one session step (evaluate, observe, guide).",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "dishlink_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &AlignmentCollector{
		gatherer:           gatherer,
		LinkDB:             linkDB,
		LinkPower:          linkPower,
		PointingError:      pointing,
		GuidanceConfidence: confidence,
		SamplesObserved:    samples,
		PatternRebuilds:    rebuilds,
		StepDurations:      durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AlignmentCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AlignmentCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveLink records the latest reading for the named link.
func (c *AlignmentCollector) ObserveLink(link string, db, power float64) {
	if c == nil {
		return
	}
	c.LinkDB.WithLabelValues(link).Set(db)
	c.LinkPower.WithLabelValues(link).Set(power)
}

// ObservePointing records the signed azimuth and tilt corrections of a dish.
func (c *AlignmentCollector) ObservePointing(dish string, azimuthDeg, tiltDeg float64) {
	if c == nil {
		return
	}
	c.PointingError.WithLabelValues(dish, "azimuth").Set(azimuthDeg)
	c.PointingError.WithLabelValues(dish, "tilt").Set(tiltDeg)
}

// ObserveSample counts one learner observation.
func (c *AlignmentCollector) ObserveSample(dish, direction string) {
	if c == nil {
		return
	}
	c.SamplesObserved.WithLabelValues(dish, direction).Inc()
}

// SetGuidanceConfidence updates the confidence gauge, clamped to [0,1].
func (c *AlignmentCollector) SetGuidanceConfidence(dish string, confidence float64) {
	if c == nil {
		return
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	c.GuidanceConfidence.WithLabelValues(dish).Set(confidence)
}

// IncPatternRebuilds counts a pattern table swap.
func (c *AlignmentCollector) IncPatternRebuilds() {
	if c == nil {
		return
	}
	c.PatternRebuilds.Inc()
}

// ObserveStep records a session step duration.
func (c *AlignmentCollector) ObserveStep(d time.Duration) {
	if c == nil {
		return
	}
	c.StepDurations.Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
