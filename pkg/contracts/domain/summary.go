package domain

import "time"

// Describe holds descriptive statistics of a numeric column, in the shape
// analysts know from a data-frame describe().
type Describe struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Q25   float64 `json:"25%"`
	Q50   float64 `json:"50%"`
	Q75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

// SummaryRecord is the corpus-wide aggregate over all EntityFiles.
// It is recomputed from scratch on every run.
type SummaryRecord struct {
	TotalStudies          int            `json:"total_studies"`
	TotalInstances        int            `json:"total_instances"`
	TotalSliceThickness   float64        `json:"total_slice_thickness"`
	AverageSlicesPerStudy float64        `json:"average_slices_per_study"`
	ThicknessDistribution Describe       `json:"slice_thickness_distribution"`
	LastFileThickness     Describe       `json:"last_file_slice_thickness"`
	ThicknessCounts       map[string]int `json:"slice_thickness_counts"`
	SkippedThickness      int            `json:"skipped_thickness_values"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// Summary metric names, in the order they are written.
const (
	MetricTotalStudies          = "Total Studies"
	MetricTotalInstances        = "Total Instances"
	MetricTotalSliceThickness   = "Total Slice Thickness"
	MetricAverageSlicesPerStudy = "Average Slices Per Study"
	MetricThicknessDistribution = "Slice Thickness Distribution"
	MetricLastFileThickness     = "Last File Slice Thickness Distribution"
	MetricThicknessCounts       = "Slice Thickness Counts"
)
