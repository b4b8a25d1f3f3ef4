package dataprocessing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"dicommart/internal/errors"
	"dicommart/internal/files"
	"dicommart/internal/table"
	"dicommart/pkg/contracts/domain"
)

// Summarizer computes the corpus-wide SummaryRecord from the entity store.
// It only reads entity files; the single artifact it owns is written by
// WriteSummary.
type Summarizer struct {
	logger          *slog.Logger
	thicknessColumn string
	requiredColumns []string
	now             func() time.Time
}

// SummarizerConfig holds configuration options for the Summarizer.
type SummarizerConfig struct {
	ThicknessColumn string   // numeric column aggregated per study
	RequiredColumns []string // every entity file must carry these
}

// DefaultSummarizerConfig returns the configuration used by the pipeline.
func DefaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		ThicknessColumn: domain.AttrSliceThickness,
		RequiredColumns: []string{domain.AttrPatientID, domain.AttrStudyInstanceUID},
	}
}

// NewSummarizer creates a new summarizer with the given configuration.
func NewSummarizer(logger *slog.Logger, config SummarizerConfig) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ThicknessColumn == "" {
		config.ThicknessColumn = domain.AttrSliceThickness
	}
	return &Summarizer{
		logger:          logger.With(slog.String("component", "summarizer")),
		thicknessColumn: config.ThicknessColumn,
		requiredColumns: config.RequiredColumns,
		now:             time.Now,
	}
}

// Summarize walks the entity store rooted at root. Every entity file counts
// as one study. Thickness values of all studies feed the distribution; the
// distribution of the last file carrying the column is kept alongside for
// compatibility. An empty or missing root yields a zero summary.
func (s *Summarizer) Summarize(ctx context.Context, root string) (domain.SummaryRecord, error) {
	found, err := files.NewDiscovery("").FindTableFiles(root, table.Ext)
	if err != nil {
		return domain.SummaryRecord{}, errors.NewPersistenceError("list entity files", err).
			WithContext("root", root)
	}

	s.logger.InfoContext(ctx, "summarizing entity store",
		slog.String("root", root),
		slog.Int("file_count", len(found)))

	var (
		summary   = domain.SummaryRecord{ThicknessCounts: map[string]int{}}
		all       []float64
		last      []float64
		perStudy  []float64
		fileCount int
	)
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return domain.SummaryRecord{}, err
		}

		t, err := s.load(f.Path)
		if err != nil {
			return domain.SummaryRecord{}, err
		}
		for _, col := range s.requiredColumns {
			if !t.HasColumn(col) {
				return domain.SummaryRecord{}, errors.NewAggregationError(
					fmt.Sprintf("entity file is missing required column %s", col), nil).
					WithContext("path", f.Path)
			}
		}

		fileCount++
		summary.TotalInstances += t.Len()

		cells, ok := t.Column(s.thicknessColumn)
		if !ok {
			continue
		}
		values := make([]float64, 0, len(cells))
		for _, c := range cells {
			if c == "" {
				continue
			}
			v, err := strconv.ParseFloat(c, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				summary.SkippedThickness++
				continue
			}
			values = append(values, v)
			summary.ThicknessCounts[formatFloat(v)]++
		}
		// A study carrying the column counts towards the average even when
		// none of its cells is numeric.
		perStudy = append(perStudy, float64(len(values)))
		if len(values) == 0 {
			continue
		}
		for _, v := range values {
			summary.TotalSliceThickness += v
		}
		all = append(all, values...)
		last = values
	}

	summary.TotalStudies = fileCount
	if len(perStudy) > 0 {
		summary.AverageSlicesPerStudy = mean(perStudy)
	}
	summary.ThicknessDistribution = Describe(all)
	summary.LastFileThickness = Describe(last)
	summary.GeneratedAt = s.now().UTC()

	s.logger.InfoContext(ctx, "summary computed",
		slog.Int("total_studies", summary.TotalStudies),
		slog.Int("total_instances", summary.TotalInstances),
		slog.Float64("average_slices_per_study", summary.AverageSlicesPerStudy),
		slog.Int("skipped_thickness_values", summary.SkippedThickness))

	return summary, nil
}

func (s *Summarizer) load(path string) (*table.Table, error) {
	data, err := files.NewManager("").ReadFile(path)
	if err != nil {
		return nil, errors.NewPersistenceError("read entity file", err).WithContext("path", path)
	}
	t, err := table.Decode(data)
	if err != nil {
		return nil, errors.NewAggregationError("entity file is not a valid table", err).WithContext("path", path)
	}
	return t, nil
}

// SummaryTable lays a summary out as Metric,Value rows. Distributions and
// value counts are rendered as JSON objects.
func SummaryTable(rec domain.SummaryRecord) (*table.Table, error) {
	t := table.New([]string{"Metric", "Value"})
	t.AppendRow([]string{domain.MetricTotalStudies, strconv.Itoa(rec.TotalStudies)})
	t.AppendRow([]string{domain.MetricTotalInstances, strconv.Itoa(rec.TotalInstances)})
	t.AppendRow([]string{domain.MetricTotalSliceThickness, formatFloat(rec.TotalSliceThickness)})
	t.AppendRow([]string{domain.MetricAverageSlicesPerStudy, formatFloat(rec.AverageSlicesPerStudy)})

	for _, item := range []struct {
		metric string
		value  any
	}{
		{domain.MetricThicknessDistribution, rec.ThicknessDistribution},
		{domain.MetricLastFileThickness, rec.LastFileThickness},
		{domain.MetricThicknessCounts, rec.ThicknessCounts},
	} {
		data, err := json.Marshal(item.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", item.metric, err)
		}
		t.AppendRow([]string{item.metric, string(data)})
	}
	return t, nil
}

// WriteSummary writes the Metric,Value table for rec to path, replacing any
// previous summary atomically.
func (s *Summarizer) WriteSummary(ctx context.Context, path string, rec domain.SummaryRecord) error {
	t, err := SummaryTable(rec)
	if err != nil {
		return errors.NewAggregationError("render summary", err)
	}
	data, err := t.Encode()
	if err != nil {
		return errors.NewPersistenceError("encode summary", err)
	}
	if err := files.NewManager("").WriteFileAtomic(path, data); err != nil {
		return errors.NewPersistenceError("write summary", err).WithContext("path", path)
	}

	s.logger.InfoContext(ctx, "summary written", slog.String("path", path))
	return nil
}

// Describe computes count, mean, sample standard deviation, min, quartiles
// (linear interpolation) and max. Std is 0 for fewer than two values.
func Describe(values []float64) domain.Describe {
	if len(values) == 0 {
		return domain.Describe{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	d := domain.Describe{
		Count: len(sorted),
		Mean:  mean(sorted),
		Min:   sorted[0],
		Q25:   quantile(sorted, 0.25),
		Q50:   quantile(sorted, 0.50),
		Q75:   quantile(sorted, 0.75),
		Max:   sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		var ss float64
		for _, v := range sorted {
			ss += (v - d.Mean) * (v - d.Mean)
		}
		d.Std = math.Sqrt(ss / float64(len(sorted)-1))
	}
	return d
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// quantile expects sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
