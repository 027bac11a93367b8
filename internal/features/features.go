package features

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rinconlabs/firewatch/internal/models"
)

// featureSpec binds a column prefix to the observation field it reads.
// The order here is the column order every classifier was trained on.
type featureSpec struct {
	prefix string
	value  func(models.Observation) sql.NullFloat64
}

var featureSpecs = []featureSpec{
	{"temperature", func(o models.Observation) sql.NullFloat64 { return o.Temperature }},
	{"dewpoint", func(o models.Observation) sql.NullFloat64 { return o.Dewpoint }},
	{"relative_humidity", func(o models.Observation) sql.NullFloat64 { return o.RelativeHumidity }},
	{"precipitation", func(o models.Observation) sql.NullFloat64 { return o.Precipitation3h }},
	{"wind_direction", func(o models.Observation) sql.NullFloat64 { return o.WindDirection }},
	{"wind_speed", func(o models.Observation) sql.NullFloat64 { return o.WindSpeed }},
	{"wind_gust", func(o models.Observation) sql.NullFloat64 { return o.WindGust }},
	{"air_pressure", func(o models.Observation) sql.NullFloat64 { return o.Pressure }},
}

// FeatureNames returns the fixed, ordered list of feature prefixes.
func FeatureNames() []string {
	names := make([]string, len(featureSpecs))
	for i, spec := range featureSpecs {
		names[i] = spec.prefix
	}
	return names
}

// BuildWeeklyRow turns up to `days` observations into a constant-shape column
// map keyed "{feature}_{dayIndex}" with day index 1 the oldest slot. The
// input is right-aligned against the window: too little history left-pads
// with missing slots, and every missing slot or null sensor reading becomes
// fillValue. The output always has len(featureSpecs) * days keys.
func BuildWeeklyRow(observations []models.Observation, days int, fillValue float64) map[string]float64 {
	if days <= 0 {
		return map[string]float64{}
	}

	ordered := make([]models.Observation, len(observations))
	copy(ordered, observations)
	sortByObservedAt(ordered)
	if len(ordered) > days {
		ordered = ordered[len(ordered)-days:]
	}

	row := make(map[string]float64, len(featureSpecs)*days)
	pad := days - len(ordered)
	for index := 1; index <= days; index++ {
		var obs *models.Observation
		if index > pad {
			obs = &ordered[index-pad-1]
		}
		for _, spec := range featureSpecs {
			key := fmt.Sprintf("%s_%d", spec.prefix, index)
			if obs == nil {
				row[key] = fillValue
				continue
			}
			if v := spec.value(*obs); v.Valid {
				row[key] = v.Float64
			} else {
				row[key] = fillValue
			}
		}
	}
	return row
}

// ReplicateLatest synthesizes a pseudo-week from a single observation when
// true history is unavailable: `days` copies with descending day offsets,
// oldest first. Each copy is a freshly constructed value.
func ReplicateLatest(latest models.Observation, days int) []models.Observation {
	if days <= 0 {
		return nil
	}
	out := make([]models.Observation, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		replica := latest
		replica.ObservedAt = latest.ObservedAt.Add(-time.Duration(offset) * 24 * time.Hour)
		out = append(out, replica)
	}
	return out
}

func sortByObservedAt(observations []models.Observation) {
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].ObservedAt.Before(observations[j].ObservedAt)
	})
}
