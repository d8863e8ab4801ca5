package detector

import "time"

// Config holds the detection and retraining thresholds. Zero values are
// replaced with defaults by Normalize, so a partially filled Config is safe.
type Config struct {
	// HistoryCapacity bounds the sliding window of feature records.
	HistoryCapacity int

	// StatisticalFloor is the minimum history size before the statistical
	// detector runs. Distinct from (and much lower than) the training floor.
	StatisticalFloor int

	// ZScoreThreshold fires a Z-score finding; ZScoreHighThreshold escalates
	// it to high severity.
	ZScoreThreshold     float64
	ZScoreHighThreshold float64

	// IQRMultiplier widens the quartile fences: Q1-k*IQR .. Q3+k*IQR.
	IQRMultiplier float64

	// MinTrainingSize is the history floor for fitting the power model and
	// for running predictive detection.
	MinTrainingSize int

	// RetrainInterval is the minimum time between successful model fits.
	RetrainInterval time.Duration

	// RelativeErrorThreshold fires a predictive finding;
	// RelativeErrorHighThreshold escalates it to high severity.
	RelativeErrorThreshold     float64
	RelativeErrorHighThreshold float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:            1000,
		StatisticalFloor:           10,
		ZScoreThreshold:            2.5,
		ZScoreHighThreshold:        3.5,
		IQRMultiplier:              1.5,
		MinTrainingSize:            50,
		RetrainInterval:            30 * time.Minute,
		RelativeErrorThreshold:     0.15,
		RelativeErrorHighThreshold: 0.30,
	}
}

// Normalize fills zero-valued fields from DefaultConfig.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.StatisticalFloor <= 0 {
		c.StatisticalFloor = d.StatisticalFloor
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = d.ZScoreThreshold
	}
	if c.ZScoreHighThreshold <= 0 {
		c.ZScoreHighThreshold = d.ZScoreHighThreshold
	}
	if c.IQRMultiplier <= 0 {
		c.IQRMultiplier = d.IQRMultiplier
	}
	if c.MinTrainingSize <= 0 {
		c.MinTrainingSize = d.MinTrainingSize
	}
	if c.RetrainInterval <= 0 {
		c.RetrainInterval = d.RetrainInterval
	}
	if c.RelativeErrorThreshold <= 0 {
		c.RelativeErrorThreshold = d.RelativeErrorThreshold
	}
	if c.RelativeErrorHighThreshold <= 0 {
		c.RelativeErrorHighThreshold = d.RelativeErrorHighThreshold
	}
	return c
}
