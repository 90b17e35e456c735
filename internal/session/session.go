// Package session wires the registry, pattern, link budget and learner into
// one alignment session driven by a sample clock.
package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/internal/logging"
	"github.com/signalsfoundry/dishlink-simulator/internal/observability"
	"github.com/signalsfoundry/dishlink-simulator/kb"
	"github.com/signalsfoundry/dishlink-simulator/model"
)

// Options configures a Session.
type Options struct {
	// OperatedDish is the dish being aligned. PeerDish is the far end; when
	// empty the first other registered dish is used.
	OperatedDish string
	PeerDish     string

	LinkBudget core.LinkBudgetConfig
	Learner    core.LearnerConfig

	// GuidanceEvery is the number of steps between guidance refreshes.
	GuidanceEvery int

	ReadingNoiseDB float64
	Seed           int64
}

// StepResult is what one tick produced.
type StepResult struct {
	Time time.Time

	// DB is the reading handed to the learner, i.e. Link.DB plus meter noise.
	DB   float64
	Link core.LinkReading

	Sample model.Sample

	Guidance    model.GuidanceVector
	HasGuidance bool
	// Fresh is set on steps that recomputed guidance.
	Fresh bool
}

// Option customises a Session.
type Option func(*Session)

// WithMetrics records session metrics on c.
func WithMetrics(c *observability.AlignmentCollector) Option {
	return func(s *Session) { s.metrics = c }
}

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithTableCache shares radiation tables with other sessions.
func WithTableCache(c *core.TableCache) Option {
	return func(s *Session) { s.cache = c }
}

// Session runs the evaluate, observe, guide loop for one operated dish.
// Step and Apply are safe to call from different goroutines.
type Session struct {
	mu sync.Mutex

	registry *kb.DishRegistry
	cache    *core.TableCache
	pattern  *core.PatternModel
	mapper   *core.LinkBudgetMapper
	learner  *core.AlignmentLearner

	metrics *observability.AlignmentCollector
	log     logging.Logger
	tracer  trace.Tracer

	opts        Options
	orbit       *orbitTrack
	linkName    string
	rng         *rand.Rand
	unsubscribe func()

	steps       int
	follows     int
	firstDB     float64
	bestDB      float64
	last        StepResult
	guidance    model.GuidanceVector
	hasGuidance bool
}

// New builds a session over registry. The operated dish must already be
// registered.
func New(registry *kb.DishRegistry, opts Options, options ...Option) (*Session, error) {
	if registry == nil {
		return nil, fmt.Errorf("session: registry is nil")
	}
	operated, ok := registry.GetDish(opts.OperatedDish)
	if !ok {
		return nil, fmt.Errorf("session: operated dish %q not found", opts.OperatedDish)
	}
	if opts.PeerDish == "" {
		for _, d := range registry.ListDishes() {
			if d.ID != opts.OperatedDish {
				opts.PeerDish = d.ID
				break
			}
		}
	}
	if opts.PeerDish == "" || opts.PeerDish == opts.OperatedDish {
		return nil, fmt.Errorf("session: no peer dish for %q", opts.OperatedDish)
	}
	if _, ok := registry.GetDish(opts.PeerDish); !ok {
		return nil, fmt.Errorf("session: peer dish %q not found", opts.PeerDish)
	}
	if opts.GuidanceEvery <= 0 {
		opts.GuidanceEvery = 1
	}
	if opts.ReadingNoiseDB < 0 {
		opts.ReadingNoiseDB = 0
	}

	s := &Session{
		registry: registry,
		log:      logging.Noop(),
		tracer:   defaultTracer(),
		opts:     opts,
		linkName: opts.OperatedDish + "-" + opts.PeerDish,
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.With(logging.String("dish_id", opts.OperatedDish), logging.String("peer_id", opts.PeerDish))

	patternOpts := []core.PatternOption{core.WithRebuildHook(s.onRebuild)}
	if s.cache != nil {
		patternOpts = append(patternOpts, core.WithTableCache(s.cache))
	}
	s.pattern = core.NewPatternModel(operated.Params.Sanitize(), patternOpts...)
	s.mapper = core.NewLinkBudgetMapper(s.pattern, opts.LinkBudget)
	s.learner = core.NewAlignmentLearner(opts.Learner)
	s.unsubscribe = registry.Subscribe(s.onRegistryEvent)
	return s, nil
}

// Close detaches the session from registry events.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Pattern returns the session's radiation pattern.
func (s *Session) Pattern() *core.PatternModel { return s.pattern }

// Mapper returns the session's link budget mapper.
func (s *Session) Mapper() *core.LinkBudgetMapper { return s.mapper }

func (s *Session) onRebuild(signature string) {
	s.metrics.IncPatternRebuilds()
	s.log.Debug(context.Background(), "radiation table swapped", logging.String("signature", signature))
}

func (s *Session) onRegistryEvent(e kb.Event) {
	if e.Type != kb.EventParametersUpdated || e.Dish.ID != s.opts.OperatedDish {
		return
	}
	s.pattern.SetParameters(e.Dish.Params)
}

// Step evaluates the link at now, feeds the reading to the learner and,
// every GuidanceEvery steps, refreshes guidance.
func (s *Session) Step(ctx context.Context, now time.Time) (res StepResult, err error) {
	ctx, span := startSpan(ctx, s.tracer, "session.step", s.opts.OperatedDish)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	start := time.Now()

	operated, ok := s.registry.GetDish(s.opts.OperatedDish)
	if !ok {
		return StepResult{}, fmt.Errorf("step: operated dish %q not found", s.opts.OperatedDish)
	}
	peer, ok := s.registry.GetDish(s.opts.PeerDish)
	if !ok {
		return StepResult{}, fmt.Errorf("step: peer dish %q not found", s.opts.PeerDish)
	}
	var link core.LinkReading
	if s.orbit != nil {
		dish, target, el := s.orbit.resolve(now, operated.State)
		span.SetAttributes(attribute.Float64("target.elevation_deg", el))
		link = s.mapper.Evaluate(dish, target)
		if el <= 0 {
			link = s.belowHorizon(link)
		}
	} else {
		link = s.mapper.Evaluate(operated.State, peer.State)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.measure(link.DB)
	sample := s.learner.Observe(db, operated.State.AzimuthDeg, operated.State.TiltDeg, now)
	s.steps++
	if s.steps == 1 {
		s.firstDB, s.bestDB = db, db
	}
	s.bestDB = math.Max(s.bestDB, db)

	res = StepResult{Time: now, DB: db, Link: link, Sample: sample}
	if s.steps%s.opts.GuidanceEvery == 0 {
		s.guidance, s.hasGuidance = s.learner.Guidance()
		res.Fresh = true
		if s.hasGuidance {
			s.metrics.SetGuidanceConfidence(s.opts.OperatedDish, s.guidance.Confidence)
			s.log.Debug(ctx, "guidance refreshed",
				logging.Float64("confidence", s.guidance.Confidence),
				logging.Bool("plateau", s.guidance.Plateau),
				logging.String("reasoning", s.guidance.Reasoning),
			)
		}
	}
	res.Guidance, res.HasGuidance = s.guidance, s.hasGuidance
	s.last = res

	s.metrics.ObserveLink(s.linkName, db, link.Power)
	s.metrics.ObservePointing(s.opts.OperatedDish, link.ErrorA.AzimuthDeg, link.ErrorA.TiltDeg)
	s.metrics.ObserveSample(s.opts.OperatedDish, sample.Direction.String())
	s.metrics.ObserveStep(time.Since(start))

	span.SetAttributes(
		attribute.Float64("link.db", db),
		attribute.String("link.quality", string(link.Quality)),
		attribute.String("sample.direction", sample.Direction.String()),
		attribute.Bool("guidance.fresh", res.Fresh),
	)
	return res, nil
}

// belowHorizon zeroes a link whose orbital peer has set.
func (s *Session) belowHorizon(link core.LinkReading) core.LinkReading {
	worst := s.mapper.Config().WorstDB
	link.DB = worst
	link.Power = 0
	link.Quality = s.mapper.Classify(worst)
	return link
}

// measure adds meter noise and keeps the reading inside the mapped range.
func (s *Session) measure(db float64) float64 {
	if s.opts.ReadingNoiseDB <= 0 {
		return db
	}
	cfg := s.mapper.Config()
	lo := math.Min(cfg.BestDB, cfg.WorstDB)
	hi := math.Max(cfg.BestDB, cfg.WorstDB)
	db += s.rng.NormFloat64() * s.opts.ReadingNoiseDB
	return math.Max(lo, math.Min(hi, db))
}

// Apply nudges the operated dish. A followed suggestion moves the dish to
// a new operating point, so the learner starts over from there.
func (s *Session) Apply(ctx context.Context, a Action) error {
	if err := s.registry.Nudge(s.opts.OperatedDish, a.DAzimuthDeg, a.DTiltDeg); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if !a.Followed {
		return nil
	}

	s.mu.Lock()
	s.learner.Reset()
	s.follows++
	s.hasGuidance = false
	s.guidance = model.GuidanceVector{}
	s.mu.Unlock()

	s.log.Info(ctx, "following guidance",
		logging.Float64("d_azimuth_deg", a.DAzimuthDeg),
		logging.Float64("d_tilt_deg", a.DTiltDeg),
	)
	return nil
}

// Listener adapts the session and op to a sample clock listener: every tick
// runs Step, asks op for a nudge and applies it. Errors are logged.
func (s *Session) Listener(ctx context.Context, op *Operator) func(time.Time) {
	return func(now time.Time) {
		res, err := s.Step(ctx, now)
		if err != nil {
			s.log.Error(ctx, "session step failed", logging.Err(err))
			return
		}
		if err := s.Apply(ctx, op.Decide(res)); err != nil {
			s.log.Error(ctx, "session nudge failed", logging.Err(err))
		}
	}
}
