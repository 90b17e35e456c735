// Package config loads YAML scenario files for the dish alignment simulator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/model"
)

// Config is one alignment scenario.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	LinkBudget LinkBudgetConfig `yaml:"link_budget"`
	Learner    LearnerConfig    `yaml:"learner"`
	Dish       DishConfig       `yaml:"dish"`
	Sites      []SiteConfig     `yaml:"sites"`
	Operator   OperatorConfig   `yaml:"operator"`
	Target     *TargetConfig    `yaml:"target"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig controls the sample clock.
type SimulationConfig struct {
	DurationSec   float64 `yaml:"duration_seconds"`
	TickMillis    int     `yaml:"tick_ms"`
	Accelerated   bool    `yaml:"accelerated"`
	GuidanceEvery int     `yaml:"guidance_every"`
	Seed          int64   `yaml:"seed"`

	// ReadingNoiseDB is the standard deviation of Gaussian noise added to
	// each simulated meter reading.
	ReadingNoiseDB float64 `yaml:"reading_noise_db"`

	// StartTime is an optional RFC 3339 simulation epoch; empty means now.
	StartTime string `yaml:"start_time"`
}

// LinkBudgetConfig mirrors core.LinkBudgetConfig.
type LinkBudgetConfig struct {
	BestDB              float64 `yaml:"best_db"`
	WorstDB             float64 `yaml:"worst_db"`
	CompressionExponent float64 `yaml:"compression_exponent"`
	GateCenter          float64 `yaml:"gate_center"`
	GateSharpness       float64 `yaml:"gate_sharpness"`
}

// LearnerConfig mirrors core.LearnerConfig.
type LearnerConfig struct {
	Capacity          int     `yaml:"capacity"`
	MinSamples        int     `yaml:"min_samples"`
	DeadbandDeg       float64 `yaml:"deadband_deg"`
	StepAlpha         float64 `yaml:"step_alpha"`
	NoiseAlpha        float64 `yaml:"noise_alpha"`
	InitialStepDeg    float64 `yaml:"initial_step_deg"`
	MaxSlopeFullScale float64 `yaml:"max_slope_full_scale"`
	SuggestCapDeg     float64 `yaml:"suggest_cap_deg"`
	Epsilon           float64 `yaml:"epsilon"`
	Estimator         string  `yaml:"estimator"`
}

// DishConfig holds the physical parameters shared by every site.
type DishConfig struct {
	DiameterM      float64     `yaml:"diameter_m"`
	FrequencyHz    float64     `yaml:"frequency_hz"`
	SurfaceRMSM    float64     `yaml:"surface_rms_m"`
	BlockageRatio  float64     `yaml:"blockage_ratio"`
	TaperAlpha     float64     `yaml:"taper_alpha"`
	TaperExponent  float64     `yaml:"taper_exponent"`
	CorrugatedFeed bool        `yaml:"corrugated_feed"`
	EdgeTaperDB    float64     `yaml:"edge_taper_db"`
	Struts         StrutConfig `yaml:"struts"`
}

// StrutConfig describes feed-support strut shadows.
type StrutConfig struct {
	Count     int     `yaml:"count"`
	Amplitude float64 `yaml:"amplitude"`
	WidthDeg  float64 `yaml:"width_deg"`
	StartDeg  float64 `yaml:"start_deg"`
}

// SiteConfig is one dish installation.
type SiteConfig struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	AzimuthDeg      float64         `yaml:"azimuth_deg"`
	TiltDeg         float64         `yaml:"tilt_deg"`
	Position        *PositionConfig `yaml:"position"`
	IdealAzimuthDeg *float64        `yaml:"ideal_azimuth_deg"`
	IdealTiltDeg    *float64        `yaml:"ideal_tilt_deg"`
}

// PositionConfig is a site position in metres.
type PositionConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// OperatorConfig drives the simulated installer.
type OperatorConfig struct {
	Dish             string  `yaml:"dish"`
	SweepStepDeg     float64 `yaml:"sweep_step_deg"`
	FollowConfidence float64 `yaml:"follow_confidence"`
	JitterDeg        float64 `yaml:"jitter_deg"`
}

// TargetConfig replaces the peer site with a TLE-propagated satellite seen
// from the operated dish's geodetic location.
type TargetConfig struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	TLELine1     string  `yaml:"tle_line1"`
	TLELine2     string  `yaml:"tle_line2"`
	LatitudeDeg  float64 `yaml:"latitude_deg"`
	LongitudeDeg float64 `yaml:"longitude_deg"`
	AltitudeM    float64 `yaml:"altitude_m"`
}

// TracingConfig selects the span exporter. DISHLINK_TRACING_* variables
// override it at startup.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Path        string  `yaml:"path"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a two-rooftop scenario 1.5 km apart with the far
// dish a few degrees off.
func DefaultConfig() Config {
	lb := core.DefaultLinkBudgetConfig()
	lc := core.DefaultLearnerConfig()
	p := model.DefaultPhysicalParameters()
	return Config{
		Simulation: SimulationConfig{
			DurationSec:    60,
			TickMillis:     100,
			Accelerated:    true,
			GuidanceEvery:  5,
			Seed:           1,
			ReadingNoiseDB: 0.2,
		},
		LinkBudget: LinkBudgetConfig{
			BestDB:              lb.BestDB,
			WorstDB:             lb.WorstDB,
			CompressionExponent: lb.CompressionExponent,
			GateCenter:          lb.GateCenter,
			GateSharpness:       lb.GateSharpness,
		},
		Learner: LearnerConfig{
			Capacity:          lc.Capacity,
			MinSamples:        lc.MinSamples,
			DeadbandDeg:       lc.DeadbandDeg,
			StepAlpha:         lc.StepAlpha,
			NoiseAlpha:        lc.NoiseAlpha,
			InitialStepDeg:    lc.InitialStepDeg,
			MaxSlopeFullScale: lc.MaxSlopeFullScale,
			SuggestCapDeg:     lc.SuggestCapDeg,
			Epsilon:           lc.Epsilon,
			Estimator:         string(lc.Estimator),
		},
		Dish: DishConfig{
			DiameterM:      p.DiameterM,
			FrequencyHz:    p.FrequencyHz,
			SurfaceRMSM:    p.SurfaceRMSM,
			BlockageRatio:  p.BlockageRatio,
			TaperAlpha:     p.TaperAlpha,
			TaperExponent:  p.TaperExponent,
			CorrugatedFeed: p.CorrugatedFeed,
			EdgeTaperDB:    p.EdgeTaperDB,
			Struts: StrutConfig{
				Count:     p.StrutCount,
				Amplitude: p.StrutAmplitude,
				WidthDeg:  p.StrutWidthDeg,
				StartDeg:  p.StrutStartDeg,
			},
		},
		Sites: []SiteConfig{
			{ID: "a", Name: "North roof", AzimuthDeg: 0, TiltDeg: 90, Position: &PositionConfig{X: 0, Y: 0, Z: 30}},
			{ID: "b", Name: "South roof", AzimuthDeg: 182.5, TiltDeg: 91, Position: &PositionConfig{X: 1500, Y: 0, Z: 28}},
		},
		Operator: OperatorConfig{
			Dish:             "b",
			SweepStepDeg:     0.5,
			FollowConfidence: 0.15,
			JitterDeg:        0.05,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a YAML scenario on top of DefaultConfig. An empty path
// returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	def := DefaultConfig()
	if c.Simulation.DurationSec <= 0 {
		c.Simulation.DurationSec = def.Simulation.DurationSec
	}
	if c.Simulation.TickMillis <= 0 {
		c.Simulation.TickMillis = def.Simulation.TickMillis
	}
	if c.Simulation.GuidanceEvery <= 0 {
		c.Simulation.GuidanceEvery = def.Simulation.GuidanceEvery
	}
	c.Simulation.StartTime = strings.TrimSpace(c.Simulation.StartTime)
	c.Learner.Estimator = strings.ToLower(strings.TrimSpace(c.Learner.Estimator))
	if c.Learner.Estimator == "" {
		c.Learner.Estimator = def.Learner.Estimator
	}
	for i := range c.Sites {
		c.Sites[i].ID = strings.TrimSpace(c.Sites[i].ID)
		if c.Sites[i].Name == "" {
			c.Sites[i].Name = c.Sites[i].ID
		}
	}
	c.Operator.Dish = strings.TrimSpace(c.Operator.Dish)
	if c.Operator.SweepStepDeg <= 0 {
		c.Operator.SweepStepDeg = def.Operator.SweepStepDeg
	}
	if c.Operator.JitterDeg < 0 {
		c.Operator.JitterDeg = 0
	}
	if t := c.Target; t != nil {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			t.ID = "sat"
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		t.TLELine1 = strings.TrimSpace(t.TLELine1)
		t.TLELine2 = strings.TrimSpace(t.TLELine2)
	}
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Simulation.ReadingNoiseDB < 0 {
		return fmt.Errorf("simulation.reading_noise_db must be >= 0")
	}
	if _, err := c.Start(); err != nil {
		return err
	}
	if c.LinkBudget.BestDB <= c.LinkBudget.WorstDB {
		return fmt.Errorf("link_budget.best_db must be > link_budget.worst_db")
	}
	switch core.Estimator(c.Learner.Estimator) {
	case core.EstimatorBuckets, core.EstimatorRegression:
	default:
		return fmt.Errorf("learner.estimator %q must be %q or %q", c.Learner.Estimator, core.EstimatorBuckets, core.EstimatorRegression)
	}
	if c.Dish.DiameterM <= 0 {
		return fmt.Errorf("dish.diameter_m must be > 0")
	}
	if c.Dish.FrequencyHz <= 0 {
		return fmt.Errorf("dish.frequency_hz must be > 0")
	}
	minSites := 2
	if c.Target != nil {
		minSites = 1
	}
	if len(c.Sites) < minSites {
		return fmt.Errorf("sites needs at least %d entries, got %d", minSites, len(c.Sites))
	}
	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		if s.ID == "" {
			return fmt.Errorf("sites[%d].id cannot be empty", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sites[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = true
		if s.TiltDeg < 0 || s.TiltDeg > 180 {
			return fmt.Errorf("sites[%d].tilt_deg must be within [0, 180]", i)
		}
		if (s.IdealAzimuthDeg == nil) != (s.IdealTiltDeg == nil) {
			return fmt.Errorf("sites[%d] must set both ideal_azimuth_deg and ideal_tilt_deg or neither", i)
		}
	}
	if !seen[c.Operator.Dish] {
		return fmt.Errorf("operator.dish %q does not name a site", c.Operator.Dish)
	}
	if t := c.Target; t != nil {
		if seen[t.ID] {
			return fmt.Errorf("target.id %q clashes with a site", t.ID)
		}
		if t.TLELine1 == "" || t.TLELine2 == "" {
			return fmt.Errorf("target needs tle_line1 and tle_line2")
		}
		if t.LatitudeDeg < -90 || t.LatitudeDeg > 90 {
			return fmt.Errorf("target.latitude_deg must be within [-90, 90]")
		}
		if _, _, err := c.OrbitTarget(); err != nil {
			return err
		}
	}
	if c.Operator.FollowConfidence < 0 || c.Operator.FollowConfidence > 1 {
		return fmt.Errorf("operator.follow_confidence must be within [0, 1]")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// Duration is the simulated session length.
func (c Config) Duration() time.Duration {
	return time.Duration(c.Simulation.DurationSec * float64(time.Second))
}

// Start parses simulation.start_time. The zero time means the caller picks.
func (c Config) Start() (time.Time, error) {
	if c.Simulation.StartTime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Simulation.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("simulation.start_time: %w", err)
	}
	return t.UTC(), nil
}

// Tick is the sample interval.
func (c Config) Tick() time.Duration {
	return time.Duration(c.Simulation.TickMillis) * time.Millisecond
}

// LinkBudgetSettings converts the link_budget section.
func (c Config) LinkBudgetSettings() core.LinkBudgetConfig {
	return core.LinkBudgetConfig{
		BestDB:              c.LinkBudget.BestDB,
		WorstDB:             c.LinkBudget.WorstDB,
		CompressionExponent: c.LinkBudget.CompressionExponent,
		GateCenter:          c.LinkBudget.GateCenter,
		GateSharpness:       c.LinkBudget.GateSharpness,
	}
}

// LearnerSettings converts the learner section.
func (c Config) LearnerSettings() core.LearnerConfig {
	return core.LearnerConfig{
		Capacity:          c.Learner.Capacity,
		MinSamples:        c.Learner.MinSamples,
		DeadbandDeg:       c.Learner.DeadbandDeg,
		StepAlpha:         c.Learner.StepAlpha,
		NoiseAlpha:        c.Learner.NoiseAlpha,
		InitialStepDeg:    c.Learner.InitialStepDeg,
		MaxSlopeFullScale: c.Learner.MaxSlopeFullScale,
		SuggestCapDeg:     c.Learner.SuggestCapDeg,
		Epsilon:           c.Learner.Epsilon,
		Estimator:         core.Estimator(c.Learner.Estimator),
	}
}

// ToParameters converts the dish section to sanitized physical parameters.
func (c Config) ToParameters() model.PhysicalParameters {
	d := c.Dish
	return model.PhysicalParameters{
		DiameterM:      d.DiameterM,
		FrequencyHz:    d.FrequencyHz,
		SurfaceRMSM:    d.SurfaceRMSM,
		BlockageRatio:  d.BlockageRatio,
		TaperAlpha:     d.TaperAlpha,
		TaperExponent:  d.TaperExponent,
		CorrugatedFeed: d.CorrugatedFeed,
		EdgeTaperDB:    d.EdgeTaperDB,
		StrutCount:     d.Struts.Count,
		StrutAmplitude: d.Struts.Amplitude,
		StrutWidthDeg:  d.Struts.WidthDeg,
		StrutStartDeg:  d.Struts.StartDeg,
	}.Sanitize()
}

// Dishes builds one registry entry per site, all sharing the dish section.
func (c Config) Dishes() []model.Dish {
	params := c.ToParameters()
	out := make([]model.Dish, 0, len(c.Sites))
	for _, s := range c.Sites {
		state := model.MechanicalState{
			AzimuthDeg:      s.AzimuthDeg,
			TiltDeg:         s.TiltDeg,
			IdealAzimuthDeg: copyFloat(s.IdealAzimuthDeg),
			IdealTiltDeg:    copyFloat(s.IdealTiltDeg),
		}
		if s.Position != nil {
			state.Position = &model.Position{X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z}
		}
		out = append(out, model.Dish{ID: s.ID, Name: s.Name, State: state, Params: params})
	}
	if t := c.Target; t != nil {
		out = append(out, model.Dish{
			ID:     t.ID,
			Name:   t.Name,
			State:  model.MechanicalState{TiltDeg: 90},
			Params: params,
		})
	}
	return out
}

// OrbitTarget builds the configured satellite and the observer site.
// target is nil when no target is configured.
func (c Config) OrbitTarget() (target *core.OrbitTarget, site core.Site, err error) {
	t := c.Target
	if t == nil {
		return nil, core.Site{}, nil
	}
	target, err = core.NewOrbitTargetFromTLE(t.Name, t.TLELine1, t.TLELine2)
	if err != nil {
		return nil, core.Site{}, fmt.Errorf("target %q: %w", t.ID, err)
	}
	site = core.Site{LatitudeDeg: t.LatitudeDeg, LongitudeDeg: t.LongitudeDeg, AltitudeM: t.AltitudeM}
	return target, site, nil
}

// PeerDish is the far end of the operated link: the target when one is
// configured, otherwise empty so the session picks the first other site.
func (c Config) PeerDish() string {
	if c.Target != nil {
		return c.Target.ID
	}
	return ""
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return model.Float64Ptr(*v)
}
