package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/onnwee/matchcore/internal/signal"
)

// Calibration holds every tunable constant of the ranking core.
type Calibration struct {
	Weights         ContextWeights      `json:"weights"`          // Per-context control weight vectors
	Signals         SignalTable         `json:"signals"`          // Per-event-type base weights and half-lives
	GoalComplements map[string][]string `json:"goal_complements"` // Looking-for goal -> goals that satisfy it
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version         string              `json:"version"` // Config version for future compatibility
	Weights         ContextWeights      `json:"weights"`
	Signals         SignalTable         `json:"signals"`
	GoalComplements map[string][]string `json:"goal_complements"`
}

// DefaultGoalComplements returns the built-in looking-for complement map.
// A user looking for a "mentor" is complemented by a candidate looking for a "mentee".
func DefaultGoalComplements() map[string][]string {
	return map[string][]string{
		"mentor":      {"mentee"},
		"mentee":      {"mentor"},
		"hiring":      {"job_seeking"},
		"job_seeking": {"hiring"},
		"investing":   {"fundraising"},
		"fundraising": {"investing"},
		"cofounder":   {"cofounder"},
		"networking":  {"networking"},
		"advising":    {"advice"},
		"advice":      {"advising"},
	}
}

// DefaultCalibration returns the built-in calibration.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Weights:         DefaultContextWeights(),
		Signals:         DefaultSignalTable(),
		GoalComplements: DefaultGoalComplements(),
	}
}

// Validate checks weight normalization and half-lives.
func (c *Calibration) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	return c.Signals.Validate()
}

// LoadCalibration loads ranking constants from a JSON calibration file.
// If the file doesn't exist, can't be parsed or produces invalid weights,
// returns the default calibration with an error.
// Partial configurations are merged with defaults.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultCalibration()
	merged := MergeCalibration(defaults, &config)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration file produces invalid weights, using defaults",
			"path", filePath,
			"version", config.Version,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("invalid calibration: %w", err)
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges an override configuration over base.
// Only non-zero values from the override are applied. Event types that are
// not in base are added as-is.
func MergeCalibration(base *Calibration, override *CalibrationConfig) *Calibration {
	if base == nil {
		base = DefaultCalibration()
	}

	result := &Calibration{
		Weights:         base.Weights,
		Signals:         base.Signals.clone(),
		GoalComplements: make(map[string][]string, len(base.GoalComplements)),
	}
	for goal, complements := range base.GoalComplements {
		result.GoalComplements[goal] = append([]string(nil), complements...)
	}

	if override == nil {
		return result
	}

	result.Weights.Pulse = mergeVector(result.Weights.Pulse, override.Weights.Pulse)
	result.Weights.Zone = mergeVector(result.Weights.Zone, override.Weights.Zone)

	for eventType, o := range override.Signals {
		w, ok := result.Signals[eventType]
		if !ok {
			result.Signals[eventType] = o
			continue
		}
		if o.Pulse != 0 {
			w.Pulse = o.Pulse
		}
		if o.Zone != 0 {
			w.Zone = o.Zone
		}
		if o.HalfLifeDays != 0 {
			w.HalfLifeDays = o.HalfLifeDays
		}
		result.Signals[eventType] = w
	}

	for goal, complements := range override.GoalComplements {
		if len(complements) > 0 {
			result.GoalComplements[goal] = append([]string(nil), complements...)
		}
	}

	return result
}

func mergeVector(base, override WeightVector) WeightVector {
	if override.Embedding != 0 {
		base.Embedding = override.Embedding
	}
	if override.Interaction != 0 {
		base.Interaction = override.Interaction
	}
	if override.Overlap != 0 {
		base.Overlap = override.Overlap
	}
	if override.Freshness != 0 {
		base.Freshness = override.Freshness
	}
	if override.Context != 0 {
		base.Context = override.Context
	}
	if override.Reciprocity != 0 {
		base.Reciprocity = override.Reciprocity
	}
	return base
}

// logCalibrationOverrides logs which values were overridden from defaults.
func logCalibrationOverrides(defaults, loaded *Calibration) {
	var overrides []string

	for _, ctx := range []signal.Context{signal.ContextPulse, signal.ContextZone} {
		d, l := defaults.Weights.For(ctx), loaded.Weights.For(ctx)
		for _, s := range AllSignals {
			if d.Get(s) != l.Get(s) {
				overrides = append(overrides, fmt.Sprintf("weights.%s.%s: %.2f -> %.2f",
					ctx, s, d.Get(s), l.Get(s)))
			}
		}
	}

	eventTypes := make([]string, 0, len(loaded.Signals))
	for eventType := range loaded.Signals {
		eventTypes = append(eventTypes, string(eventType))
	}
	sort.Strings(eventTypes)
	for _, name := range eventTypes {
		eventType := signal.EventType(name)
		if d, ok := defaults.Signals[eventType]; !ok || d != loaded.Signals[eventType] {
			overrides = append(overrides, fmt.Sprintf("signals.%s: %+v -> %+v",
				name, d, loaded.Signals[eventType]))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
