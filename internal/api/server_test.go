package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rinconlabs/firewatch/internal/models"
	"github.com/rinconlabs/firewatch/internal/predict"
	"github.com/rinconlabs/firewatch/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dir := t.TempDir()
	artifact := `{
		"kind": "gaussian_nb",
		"feature_columns": ["temperature_1"],
		"naive_bayes": {
			"class_priors": [0.5, 0.5],
			"means": [[0], [30]],
			"variances": [[1], [1]]
		}
	}`
	if err := os.WriteFile(filepath.Join(dir, "balanced_nb_model.json"), []byte(artifact), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	engine, err := predict.NewEngine(dir, []string{"nb_balanced"}, 0.5, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	return NewServer(s, engine, "0", "nb_balanced"), s
}

func getJSON(t *testing.T, handler http.Handler, path string, wantStatus int, out any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("GET %s = %d, want %d (body %s)", path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	var body map[string]string
	getJSON(t, server.Handler(), "/health", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestStationsEndpoint(t *testing.T) {
	server, s := newTestServer(t)
	if err := s.UpsertStation(models.Station{
		StationID: "KLAX", Name: "Los Angeles Intl", Latitude: 33.94, Longitude: -118.39,
		Elevation: sql.NullFloat64{Float64: 38, Valid: true}, Active: true,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var body []stationJSON
	getJSON(t, server.Handler(), "/api/stations", http.StatusOK, &body)
	if len(body) != 1 {
		t.Fatalf("got %d stations, want 1", len(body))
	}
	if body[0].StationID != "KLAX" || !body[0].Active {
		t.Errorf("station = %+v", body[0])
	}
	if body[0].Elevation == nil || *body[0].Elevation != 38 {
		t.Errorf("elevation = %v, want 38", body[0].Elevation)
	}
	if body[0].Timezone != nil {
		t.Errorf("null timezone should be omitted, got %v", body[0].Timezone)
	}
}

func TestStationLatestEndpoint(t *testing.T) {
	server, s := newTestServer(t)
	if err := s.UpsertStation(models.Station{StationID: "KLAX", Name: "KLAX", Latitude: 33.94, Longitude: -118.39, Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	obs := models.Observation{
		ObservationID: "obs-1",
		StationID:     "KLAX",
		ObservedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Temperature:   sql.NullFloat64{Float64: 31.5, Valid: true},
	}
	if _, _, err := s.InsertWeatherIfNew(obs); err != nil {
		t.Fatalf("insert observation: %v", err)
	}

	var body observationJSON
	getJSON(t, server.Handler(), "/api/stations/KLAX/latest", http.StatusOK, &body)
	if body.ObservationID != "obs-1" {
		t.Errorf("observation id = %q", body.ObservationID)
	}
	if body.Temperature == nil || *body.Temperature != 31.5 {
		t.Errorf("temperature = %v, want 31.5", body.Temperature)
	}
	if body.WindSpeed != nil {
		t.Errorf("null wind speed should be null in JSON, got %v", body.WindSpeed)
	}

	getJSON(t, server.Handler(), "/api/stations/KGONE/latest", http.StatusNotFound, nil)
}

func TestStationLatestWithoutObservations(t *testing.T) {
	server, s := newTestServer(t)
	if err := s.UpsertStation(models.Station{StationID: "KLAX", Name: "KLAX", Latitude: 33.94, Longitude: -118.39, Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	getJSON(t, server.Handler(), "/api/stations/KLAX/latest", http.StatusNotFound, nil)
}

func TestStationLatestPredictionEndpoint(t *testing.T) {
	server, s := newTestServer(t)
	if err := s.UpsertStation(models.Station{StationID: "KLAX", Name: "KLAX", Latitude: 33.94, Longitude: -118.39, Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, prob := range []float64{0.4, 0.7} {
		if err := s.InsertPrediction(models.Prediction{
			StationID: "KLAX", ModelID: "nb_balanced", PredictedAt: at.Add(time.Duration(i) * time.Hour), Probability: prob, Label: 1,
		}); err != nil {
			t.Fatalf("insert prediction: %v", err)
		}
	}

	var body predictionJSON
	getJSON(t, server.Handler(), "/api/stations/KLAX/predictions/latest", http.StatusOK, &body)
	if body.ModelID != "nb_balanced" {
		t.Errorf("model id = %q, want the default model", body.ModelID)
	}
	if body.Probability != 0.7 || !body.PredictedAt.Equal(at.Add(time.Hour)) {
		t.Errorf("prediction = %+v, want the newest (0.7)", body)
	}

	getJSON(t, server.Handler(), "/api/stations/KGONE/predictions/latest", http.StatusNotFound, nil)
	getJSON(t, server.Handler(), "/api/stations/KLAX/predictions/latest?model_id=mystery", http.StatusBadRequest, nil)
	getJSON(t, server.Handler(), "/api/stations/KLAX/predictions/latest?model_id=rf_balanced", http.StatusNotFound, nil)
}

func TestTopFireAreasEndpoint(t *testing.T) {
	server, s := newTestServer(t)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for id, prob := range map[string]float64{"KLAX": 0.9, "KSFO": 0.4} {
		if err := s.UpsertStation(models.Station{StationID: id, Name: id, Latitude: 34, Longitude: -118, Active: true}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		if err := s.InsertPrediction(models.Prediction{
			StationID: id, ModelID: "nb_balanced", PredictedAt: at, Probability: prob, Label: 1,
		}); err != nil {
			t.Fatalf("insert prediction %s: %v", id, err)
		}
	}

	var body []fireAreaJSON
	getJSON(t, server.Handler(), "/api/fire-areas/top?n=1", http.StatusOK, &body)
	if len(body) != 1 {
		t.Fatalf("got %d areas, want 1", len(body))
	}
	if body[0].Station.StationID != "KLAX" || body[0].Probability != 0.9 {
		t.Errorf("top area = %+v", body[0])
	}
	if body[0].ModelID != "nb_balanced" {
		t.Errorf("model id = %q, want the default model", body[0].ModelID)
	}

	getJSON(t, server.Handler(), "/api/fire-areas/top?n=0", http.StatusBadRequest, nil)
	getJSON(t, server.Handler(), "/api/fire-areas/top?model_id=mystery", http.StatusBadRequest, nil)
}

func TestModelsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	var body []modelJSON
	getJSON(t, server.Handler(), "/api/models", http.StatusOK, &body)
	if len(body) != 1 || body[0].ModelID != "nb_balanced" {
		t.Fatalf("models = %+v, want just nb_balanced", body)
	}
	if body[0].Name == "" {
		t.Error("model name should come from the catalog")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
}
