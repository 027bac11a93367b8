package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rinconlabs/firewatch/internal/models"
	"github.com/rinconlabs/firewatch/internal/predict"
	"github.com/rinconlabs/firewatch/internal/store"
)

const defaultTopN = 10

// Server exposes the read-only JSON API over the ingested data. The worker
// owns all writes; these handlers only query.
type Server struct {
	store          *store.Store
	engine         *predict.Engine
	port           string
	defaultModelID string
}

func NewServer(st *store.Store, engine *predict.Engine, port, defaultModelID string) *Server {
	return &Server{store: st, engine: engine, port: port, defaultModelID: defaultModelID}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/stations", s.handleStations)
	mux.HandleFunc("/api/stations/", s.handleStationSub)
	mux.HandleFunc("/api/fire-areas/top", s.handleTopFireAreas)
	mux.HandleFunc("/api/models", s.handleModels)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stationJSON struct {
	StationID string   `json:"station_id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timezone  *string  `json:"timezone,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
	SourceURL *string  `json:"source_url,omitempty"`
	Active    bool     `json:"active"`
}

func toStationJSON(st models.Station) stationJSON {
	out := stationJSON{
		StationID: st.StationID,
		Name:      st.Name,
		Latitude:  st.Latitude,
		Longitude: st.Longitude,
		Active:    st.Active,
	}
	if st.Timezone.Valid {
		out.Timezone = &st.Timezone.String
	}
	if st.Elevation.Valid {
		out.Elevation = &st.Elevation.Float64
	}
	if st.SourceURL.Valid {
		out.SourceURL = &st.SourceURL.String
	}
	return out
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetStations()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query stations")
		return
	}
	out := make([]stationJSON, 0, len(stations))
	for _, st := range stations {
		out = append(out, toStationJSON(st))
	}
	writeJSON(w, http.StatusOK, out)
}

type observationJSON struct {
	ObservationID    string    `json:"observation_id"`
	StationID        string    `json:"station_id"`
	ObservedAt       time.Time `json:"observed_at"`
	Temperature      *float64  `json:"temperature"`
	Dewpoint         *float64  `json:"dewpoint"`
	RelativeHumidity *float64  `json:"relative_humidity"`
	WindDirection    *float64  `json:"wind_direction"`
	WindSpeed        *float64  `json:"wind_speed"`
	WindGust         *float64  `json:"wind_gust"`
	Precipitation3h  *float64  `json:"precipitation_3h"`
	Pressure         *float64  `json:"pressure"`
	Visibility       *float64  `json:"visibility"`
	HeatIndex        *float64  `json:"heat_index"`
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toObservationJSON(obs models.Observation) observationJSON {
	return observationJSON{
		ObservationID:    obs.ObservationID,
		StationID:        obs.StationID,
		ObservedAt:       obs.ObservedAt,
		Temperature:      nullToPtr(obs.Temperature),
		Dewpoint:         nullToPtr(obs.Dewpoint),
		RelativeHumidity: nullToPtr(obs.RelativeHumidity),
		WindDirection:    nullToPtr(obs.WindDirection),
		WindSpeed:        nullToPtr(obs.WindSpeed),
		WindGust:         nullToPtr(obs.WindGust),
		Precipitation3h:  nullToPtr(obs.Precipitation3h),
		Pressure:         nullToPtr(obs.Pressure),
		Visibility:       nullToPtr(obs.Visibility),
		HeatIndex:        nullToPtr(obs.HeatIndex),
	}
}

// handleStationSub routes /api/stations/{id}/latest and
// /api/stations/{id}/predictions/latest.
func (s *Server) handleStationSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/stations/")
	stationID, action, ok := strings.Cut(rest, "/")
	if !ok || stationID == "" {
		http.NotFound(w, r)
		return
	}

	station, err := s.store.GetStation(stationID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query station")
		return
	}
	if station == nil {
		httpError(w, http.StatusNotFound, "unknown station")
		return
	}

	switch action {
	case "latest":
		s.serveLatestObservation(w, stationID)
	case "predictions/latest":
		s.serveLatestPrediction(w, r, stationID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveLatestObservation(w http.ResponseWriter, stationID string) {
	obs, err := s.store.GetLatestObservation(stationID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query observation")
		return
	}
	if obs == nil {
		httpError(w, http.StatusNotFound, "no observations for station")
		return
	}
	writeJSON(w, http.StatusOK, toObservationJSON(*obs))
}

type predictionJSON struct {
	StationID   string    `json:"station_id"`
	ModelID     string    `json:"model_id"`
	PredictedAt time.Time `json:"predicted_at"`
	Probability float64   `json:"probability"`
	Label       int       `json:"label"`
}

func (s *Server) serveLatestPrediction(w http.ResponseWriter, r *http.Request, stationID string) {
	modelID := r.URL.Query().Get("model_id")
	if modelID == "" {
		modelID = s.defaultModelID
	}
	if _, ok := predict.Descriptor(modelID); !ok {
		httpError(w, http.StatusBadRequest, "unknown model_id")
		return
	}

	p, err := s.store.GetLatestPrediction(stationID, modelID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query prediction")
		return
	}
	if p == nil {
		httpError(w, http.StatusNotFound, "no predictions for station")
		return
	}
	writeJSON(w, http.StatusOK, predictionJSON{
		StationID:   p.StationID,
		ModelID:     p.ModelID,
		PredictedAt: p.PredictedAt,
		Probability: p.Probability,
		Label:       p.Label,
	})
}

type fireAreaJSON struct {
	Station     stationJSON `json:"station"`
	ModelID     string      `json:"model_id"`
	Probability float64     `json:"probability"`
	Label       int         `json:"label"`
	PredictedAt time.Time   `json:"predicted_at"`
}

func (s *Server) handleTopFireAreas(w http.ResponseWriter, r *http.Request) {
	n := defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	modelID := r.URL.Query().Get("model_id")
	if modelID == "" {
		modelID = s.defaultModelID
	}
	if _, ok := predict.Descriptor(modelID); !ok {
		httpError(w, http.StatusBadRequest, "unknown model_id")
		return
	}

	areas, err := s.store.TopFireAreas(n, modelID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query fire areas")
		return
	}

	out := make([]fireAreaJSON, 0, len(areas))
	for _, area := range areas {
		out = append(out, fireAreaJSON{
			Station:     toStationJSON(area.Station),
			ModelID:     modelID,
			Probability: area.Probability,
			Label:       area.Label,
			PredictedAt: area.PredictedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type modelJSON struct {
	ModelID     string `json:"model_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	descriptors := s.engine.Descriptors()
	out := make([]modelJSON, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, modelJSON{ModelID: d.ModelID, Name: d.Name, Description: d.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
