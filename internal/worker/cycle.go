package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rinconlabs/firewatch/internal/features"
	"github.com/rinconlabs/firewatch/internal/metrics"
	"github.com/rinconlabs/firewatch/internal/models"
	"github.com/rinconlabs/firewatch/internal/noaa"
	"github.com/rinconlabs/firewatch/internal/predict"
	"github.com/rinconlabs/firewatch/internal/store"
)

// WeatherClient is the upstream observation source.
type WeatherClient interface {
	FetchLatest(ctx context.Context, stationID string) (*models.Observation, error)
	FetchRecent(ctx context.Context, stationID string, days int) ([]models.Observation, error)
}

// Predictor scores feature rows with one of a fixed set of models.
type Predictor interface {
	AvailableModelIDs() []string
	Predict(modelID string, featureRow map[string]float64) (predict.Output, error)
}

// Cycle runs one full pass over the active station fleet: fetch the latest
// observation, persist it, build the weekly feature window, and score it
// with every enabled model. Stations are isolated from each other; one
// station's failure never stops the pass.
type Cycle struct {
	store     *store.Store
	client    WeatherClient
	predictor Predictor
	clock     clockwork.Clock

	featureDays int
	fillValue   float64
}

func NewCycle(st *store.Store, client WeatherClient, predictor Predictor, clock clockwork.Clock, featureDays int, fillValue float64) *Cycle {
	return &Cycle{
		store:       st,
		client:      client,
		predictor:   predictor,
		clock:       clock,
		featureDays: featureDays,
		fillValue:   fillValue,
	}
}

// Run processes every active station once, sequentially.
func (c *Cycle) Run(ctx context.Context) error {
	start := c.clock.Now()

	stations, err := c.store.GetActiveStations()
	if err != nil {
		return err
	}
	log.Printf("worker: starting cycle over %d stations", len(stations))

	for _, station := range stations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.processStation(ctx, station)
	}

	metrics.CycleDuration.Observe(c.clock.Since(start).Seconds())
	log.Printf("worker: cycle complete in %s", c.clock.Since(start).Round(time.Millisecond))
	return nil
}

// processStation owns the per-station recover boundary: a panic in any
// stage is logged and the fleet pass continues.
func (c *Cycle) processStation(ctx context.Context, station models.Station) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: %s: panic recovered: %v", station.StationID, r)
		}
	}()

	latest, err := c.client.FetchLatest(ctx, station.StationID)
	if err != nil {
		c.handleFetchError(station.StationID, err)
		return
	}
	if latest == nil {
		log.Printf("worker: %s: no latest observation, skipping", station.StationID)
		return
	}

	stored, created, err := c.store.InsertWeatherIfNew(*latest)
	if err != nil {
		log.Printf("worker: %s: insert observation: %v", station.StationID, err)
		return
	}
	if created {
		metrics.ObservationsIngested.WithLabelValues(station.StationID).Inc()
	} else {
		metrics.DuplicateObservations.WithLabelValues(station.StationID).Inc()
	}

	history, err := c.client.FetchRecent(ctx, station.StationID, c.featureDays)
	if err != nil || len(history) == 0 {
		if err != nil {
			log.Printf("worker: %s: fetch history: %v, replicating latest", station.StationID, err)
		} else {
			log.Printf("worker: %s: no recent history, replicating latest", station.StationID)
		}
		metrics.DegradedFeatureWindows.WithLabelValues(station.StationID).Inc()
		history = features.ReplicateLatest(stored, c.featureDays)
	}

	row := features.BuildWeeklyRow(history, c.featureDays, c.fillValue)
	c.predictStation(station.StationID, row)
}

// handleFetchError applies the station lifecycle rules. A transport-level
// failure leaves the station active for the next pass. An unserviceable
// upstream status (gone or persistently erroring) deactivates it so later
// passes stop paying for it. Anything else is a soft skip.
func (c *Cycle) handleFetchError(stationID string, err error) {
	if errors.Is(err, noaa.ErrUnavailable) {
		log.Printf("worker: %s: upstream unavailable, skipping", stationID)
		return
	}

	var statusErr *noaa.StatusError
	if errors.As(err, &statusErr) && statusErr.Unserviceable() {
		log.Printf("worker: %s: upstream status %d, deactivating station", stationID, statusErr.Code)
		if err := c.store.SetStationActive(stationID, false); err != nil {
			log.Printf("worker: %s: deactivate: %v", stationID, err)
			return
		}
		metrics.StationsDeactivated.Inc()
		return
	}

	log.Printf("worker: %s: fetch latest: %v", stationID, err)
}

// predictStation fans the feature row out to every enabled model. Each
// model is isolated: a failed inference or insert is counted and logged,
// and the remaining models still run.
func (c *Cycle) predictStation(stationID string, row map[string]float64) {
	now := c.clock.Now().UTC()
	for _, modelID := range c.predictor.AvailableModelIDs() {
		out, err := c.predictor.Predict(modelID, row)
		if err != nil {
			metrics.PredictionFailures.WithLabelValues(modelID).Inc()
			log.Printf("worker: %s: predict %s: %v", stationID, modelID, err)
			continue
		}
		if err := c.store.InsertPrediction(models.Prediction{
			StationID:   stationID,
			ModelID:     modelID,
			PredictedAt: now,
			Probability: out.Probability,
			Label:       out.Label,
		}); err != nil {
			metrics.PredictionFailures.WithLabelValues(modelID).Inc()
			log.Printf("worker: %s: insert prediction %s: %v", stationID, modelID, err)
			continue
		}
		metrics.PredictionsTotal.WithLabelValues(modelID).Inc()
	}
}
