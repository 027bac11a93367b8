package store

import (
	"database/sql"
	"time"

	"github.com/rinconlabs/firewatch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, timezone, elevation, source_url, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone = excluded.timezone,
			elevation = excluded.elevation,
			source_url = excluded.source_url,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.Timezone, st.Elevation, st.SourceURL, st.Active)
	return err
}

func (s *Store) SetStationActive(stationID string, active bool) error {
	_, err := s.db.Exec(`UPDATE stations SET active = ? WHERE station_id = ?`, active, stationID)
	return err
}

const stationColumns = `station_id, name, latitude, longitude, timezone, elevation, source_url, active`

func scanStation(scanner interface{ Scan(...any) error }) (models.Station, error) {
	var st models.Station
	err := scanner.Scan(&st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.Timezone, &st.Elevation, &st.SourceURL, &st.Active)
	return st, err
}

func (s *Store) GetStation(stationID string) (*models.Station, error) {
	row := s.db.QueryRow(`SELECT `+stationColumns+` FROM stations WHERE station_id = ?`, stationID)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStations() ([]models.Station, error) {
	return s.queryStations(`SELECT ` + stationColumns + ` FROM stations ORDER BY station_id`)
}

func (s *Store) GetActiveStations() ([]models.Station, error) {
	return s.queryStations(`SELECT ` + stationColumns + ` FROM stations WHERE active = TRUE ORDER BY station_id`)
}

func (s *Store) queryStations(query string, args ...any) ([]models.Station, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

const observationColumns = `id, observation_id, station_id, observed_at, temperature, dewpoint, relative_humidity, wind_direction, wind_speed, wind_gust, precipitation_3h, pressure, visibility, heat_index, created_at`

func scanObservation(scanner interface{ Scan(...any) error }) (models.Observation, error) {
	var obs models.Observation
	err := scanner.Scan(&obs.ID, &obs.ObservationID, &obs.StationID, &obs.ObservedAt,
		&obs.Temperature, &obs.Dewpoint, &obs.RelativeHumidity, &obs.WindDirection,
		&obs.WindSpeed, &obs.WindGust, &obs.Precipitation3h, &obs.Pressure,
		&obs.Visibility, &obs.HeatIndex, &obs.CreatedAt)
	return obs, err
}

// InsertWeatherIfNew persists an observation unless one with the same
// upstream observation id already exists. It returns the stored row and
// whether this call created it; a duplicate returns the existing row
// untouched so re-polls are harmless.
func (s *Store) InsertWeatherIfNew(obs models.Observation) (models.Observation, bool, error) {
	existing, err := s.getObservationByObservationID(obs.ObservationID)
	if err != nil {
		return models.Observation{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	result, err := s.db.Exec(`
		INSERT INTO observations (observation_id, station_id, observed_at, temperature, dewpoint, relative_humidity, wind_direction, wind_speed, wind_gust, precipitation_3h, pressure, visibility, heat_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obs.ObservationID, obs.StationID, obs.ObservedAt,
		obs.Temperature, obs.Dewpoint, obs.RelativeHumidity, obs.WindDirection,
		obs.WindSpeed, obs.WindGust, obs.Precipitation3h, obs.Pressure,
		obs.Visibility, obs.HeatIndex)
	if err != nil {
		return models.Observation{}, false, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Observation{}, false, err
	}
	row := s.db.QueryRow(`SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	stored, err := scanObservation(row)
	if err != nil {
		return models.Observation{}, false, err
	}
	return stored, true, nil
}

func (s *Store) getObservationByObservationID(observationID string) (*models.Observation, error) {
	row := s.db.QueryRow(`SELECT `+observationColumns+` FROM observations WHERE observation_id = ?`, observationID)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *Store) GetLatestObservation(stationID string) (*models.Observation, error) {
	row := s.db.QueryRow(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE station_id = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, stationID)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *Store) GetObservations(stationID string, start, end time.Time) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, stationID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// InsertPrediction is append-only: every scoring run leaves a row and
// history is never rewritten.
func (s *Store) InsertPrediction(p models.Prediction) error {
	_, err := s.db.Exec(`
		INSERT INTO predictions (station_id, model_id, predicted_at, probability, label)
		VALUES (?, ?, ?, ?, ?)
	`, p.StationID, p.ModelID, p.PredictedAt, p.Probability, p.Label)
	return err
}

func (s *Store) GetLatestPrediction(stationID, modelID string) (*models.Prediction, error) {
	row := s.db.QueryRow(`
		SELECT id, station_id, model_id, predicted_at, probability, label
		FROM predictions
		WHERE station_id = ? AND model_id = ?
		ORDER BY predicted_at DESC, id DESC
		LIMIT 1
	`, stationID, modelID)

	var p models.Prediction
	err := row.Scan(&p.ID, &p.StationID, &p.ModelID, &p.PredictedAt, &p.Probability, &p.Label)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FireArea is a station joined with its most recent prediction for one model.
type FireArea struct {
	Station     models.Station
	Probability float64
	Label       int
	PredictedAt time.Time
}

// TopFireAreas ranks stations by their latest prediction for the given
// model, highest probability first, ties broken by recency. Latest means
// newest predicted_at, not newest insert. Stations with no prediction for
// the model are absent from the result.
func (s *Store) TopFireAreas(n int, modelID string) ([]FireArea, error) {
	rows, err := s.db.Query(`
		SELECT s.station_id, s.name, s.latitude, s.longitude, s.timezone, s.elevation, s.source_url, s.active,
		       p.probability, p.label, p.predicted_at
		FROM predictions p
		JOIN stations s ON p.station_id = s.station_id
		JOIN (
			SELECT id,
			       ROW_NUMBER() OVER (
			           PARTITION BY station_id
			           ORDER BY predicted_at DESC, id DESC
			       ) AS rn
			FROM predictions
			WHERE model_id = ?
		) sel ON p.id = sel.id AND sel.rn = 1
		ORDER BY p.probability DESC, p.predicted_at DESC
		LIMIT ?
	`, modelID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []FireArea
	for rows.Next() {
		var a FireArea
		if err := rows.Scan(&a.Station.StationID, &a.Station.Name, &a.Station.Latitude, &a.Station.Longitude,
			&a.Station.Timezone, &a.Station.Elevation, &a.Station.SourceURL, &a.Station.Active,
			&a.Probability, &a.Label, &a.PredictedAt); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
