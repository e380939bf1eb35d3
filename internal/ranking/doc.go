// Package ranking provides the numeric core of candidate recommendation:
// temporal decay, per-context signal weight vectors with calibration support,
// and the fusion engine that turns per-signal scores into an ordered page.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	cal, err := ranking.LoadCalibration("configs/matching.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Fuse component scores for one candidate
//	weights := cal.Weights.For(signal.ContextPulse)
//	score := ranking.Fuse(components, weights)
//	category := ranking.Categorize(components)
//
//	// Order a scored pool and cut a page
//	page := ranking.Rank(results, ranking.Page{Limit: 20, Offset: 0}, ranking.DefaultLargePoolThreshold)
//
// Signals:
//
// Every component score is normalized to [0, 1] before fusion and each
// context's weight vector sums to 1.0, so the fused score is also in [0, 1].
//
// Calibration:
//
// Weight vectors, per-event-type base weights and decay half-lives are loaded
// from a JSON calibration file at startup and merged field-by-field over the
// built-in defaults. A restart is required to pick up a new file.
package ranking
