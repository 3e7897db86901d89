package config

import "time"

// Engine carries the pricing and detection tunables. The defaults match the
// agreed commercial policy; overriding them is an operational decision, not
// a code change.
type Engine struct {
	NoiseTolerancePct  float64       `env:"ENGINE_NOISE_TOLERANCE_PCT" envDefault:"0.02"`
	SignificancePct    float64       `env:"ENGINE_SIGNIFICANCE_PCT" envDefault:"0.15"`
	AvailabilityDelta  int           `env:"ENGINE_AVAILABILITY_DELTA" envDefault:"5"`
	MarginFloorPct     float64       `env:"ENGINE_MARGIN_FLOOR_PCT" envDefault:"0.05"`
	SplitRatio         float64       `env:"ENGINE_SPLIT_RATIO" envDefault:"0.5"`
	ScorePriceWeight   float64       `env:"ENGINE_SCORE_PRICE_WEIGHT" envDefault:"0.4"`
	ScoreRatingWeight  float64       `env:"ENGINE_SCORE_RATING_WEIGHT" envDefault:"0.4"`
	ScoreStockWeight   float64       `env:"ENGINE_SCORE_STOCK_WEIGHT" envDefault:"0.2"`
	DefaultStrategy    string        `env:"ENGINE_DEFAULT_STRATEGY" envDefault:"PRESERVE_MARGIN"`
	RefreshInterval    time.Duration `env:"ENGINE_REFRESH_INTERVAL" envDefault:"5m"`
	RefreshBatchSize   int           `env:"ENGINE_REFRESH_BATCH_SIZE" envDefault:"100"`
	SessionTTL         time.Duration `env:"ENGINE_SESSION_TTL" envDefault:"24h"`
	AbandonedTTL       time.Duration `env:"ENGINE_ABANDONED_SESSION_TTL" envDefault:"1h"`
}
