package services

import "github.com/ekaya-inc/ekaya-workspace/pkg/config"

// AnalysisOptions bounds the cost of one table analysis and sets the
// recommendation thresholds.
type AnalysisOptions struct {
	SampleRows            int
	StatisticsSampleRows  int
	TopValues             int
	TopValuesMaxDistinct  int64
	LowCardinalityRatio   float64
	DuplicateCheckMaxRows int64
	IndexRowThreshold     int64
	LargeTableBytes       int64
}

// DefaultAnalysisOptions matches the config defaults.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		SampleRows:            5,
		StatisticsSampleRows:  10000,
		TopValues:             5,
		TopValuesMaxDistinct:  1000,
		LowCardinalityRatio:   0.5,
		DuplicateCheckMaxRows: 1_000_000,
		IndexRowThreshold:     1000,
		LargeTableBytes:       1 << 30,
	}
}

// AnalysisOptionsFromConfig copies the analysis section of the process config.
func AnalysisOptionsFromConfig(c config.AnalysisConfig) AnalysisOptions {
	return AnalysisOptions{
		SampleRows:            c.SampleRows,
		StatisticsSampleRows:  c.StatisticsSampleRows,
		TopValues:             c.TopValues,
		TopValuesMaxDistinct:  c.TopValuesMaxDistinct,
		LowCardinalityRatio:   c.LowCardinalityRatio,
		DuplicateCheckMaxRows: c.DuplicateCheckMaxRows,
		IndexRowThreshold:     c.IndexRowThreshold,
		LargeTableBytes:       c.LargeTableBytes,
	}
}
