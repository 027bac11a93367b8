package models

import (
	"database/sql"
	"time"
)

type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Timezone  sql.NullString
	Elevation sql.NullFloat64
	SourceURL sql.NullString
	Active    bool
}

// Observation is one upstream weather reading. ObservationID is the opaque
// "@id" assigned by the upstream API, globally unique per reading; it is the
// dedup key for storage.
type Observation struct {
	ID               int64
	ObservationID    string
	StationID        string
	ObservedAt       time.Time
	Temperature      sql.NullFloat64
	Dewpoint         sql.NullFloat64
	RelativeHumidity sql.NullFloat64
	WindDirection    sql.NullFloat64
	WindSpeed        sql.NullFloat64
	WindGust         sql.NullFloat64
	Precipitation3h  sql.NullFloat64
	Pressure         sql.NullFloat64
	Visibility       sql.NullFloat64
	HeatIndex        sql.NullFloat64
	CreatedAt        time.Time
}

// Prediction rows are append-only history; (station, model, predicted_at)
// is not unique-constrained.
type Prediction struct {
	ID          int64
	StationID   string
	ModelID     string
	PredictedAt time.Time
	Probability float64
	Label       int
}

// ModelDescriptor identifies one loadable classifier and where its artifact
// lives relative to the configured artifact directory.
type ModelDescriptor struct {
	ModelID          string
	Name             string
	Description      string
	ArtifactFilename string
}
