package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/rinconlabs/firewatch/internal/api"
	"github.com/rinconlabs/firewatch/internal/config"
	"github.com/rinconlabs/firewatch/internal/noaa"
	"github.com/rinconlabs/firewatch/internal/predict"
	"github.com/rinconlabs/firewatch/internal/stations"
	"github.com/rinconlabs/firewatch/internal/store"
	"github.com/rinconlabs/firewatch/internal/worker"
)

func main() {
	var cfg config.Config
	kong.Parse(&cfg,
		kong.Name("firewatch"),
		kong.Description("Wildfire risk ingestion and prediction worker."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	if err := reconcileStations(st, &cfg); err != nil {
		log.Fatalf("stations: %v", err)
	}

	thresholds, err := parseThresholds(cfg.ModelThresholds)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	engine, err := predict.NewEngine(cfg.ModelArtifactDir, cfg.EnabledModelIDs, cfg.Threshold, thresholds)
	if err != nil {
		log.Fatalf("load models: %v", err)
	}
	log.Printf("loaded %d models", len(engine.AvailableModelIDs()))

	client := noaa.NewClient(noaa.ClientConfig{
		BaseURL:     cfg.NoaaBaseURL,
		UserAgent:   cfg.NoaaUserAgent,
		RequireQC:   cfg.NoaaRequireQC,
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	})

	clock := clockwork.NewRealClock()
	cycle := worker.NewCycle(st, client, engine, clock, cfg.FeatureDays, cfg.FillValue)
	scheduler := worker.NewScheduler(cycle, clock, cfg.PollInterval)
	server := api.NewServer(st, engine, cfg.Port, cfg.DefaultModelID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Once {
		log.Println("running single cycle")
		if err := scheduler.RunOnce(ctx); err != nil {
			log.Fatalf("cycle: %v", err)
		}
		log.Println("done")
		return
	}

	if !cfg.NoPoll {
		go scheduler.Run(ctx)
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// reconcileStations loads the station source-of-truth, applies the optional
// allowlist, and upserts the fleet active. A missing source or an
// unsatisfiable allowlist stops startup.
func reconcileStations(st *store.Store, cfg *config.Config) error {
	fleet, err := stations.Load(cfg.StationsCSVPath, cfg.StationsSourceCSVPath, cfg.StationsCount)
	if err != nil {
		return err
	}

	allowlist, err := stations.LoadAllowlist(cfg.StationIDsFile)
	if err != nil {
		return err
	}
	fleet, err = stations.ApplyAllowlist(fleet, allowlist)
	if err != nil {
		return err
	}

	for _, station := range fleet {
		if err := st.UpsertStation(station); err != nil {
			return err
		}
	}
	log.Printf("reconciled %d stations", len(fleet))
	return nil
}

func parseThresholds(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for modelID, value := range raw {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		out[modelID] = parsed
	}
	return out, nil
}
