package stations

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/rinconlabs/firewatch/internal/models"
)

// Load reads the station source-of-truth. The runtime CSV wins when it
// exists and yields rows; otherwise the source CSV is tried. Having neither
// is a startup failure.
func Load(runtimePath, sourcePath string, limit int) ([]models.Station, error) {
	for _, path := range []string{runtimePath, sourcePath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		stations, err := loadCSV(path, limit)
		if err != nil {
			return nil, err
		}
		if len(stations) > 0 {
			return stations, nil
		}
	}
	return nil, fmt.Errorf("no valid stations found in %s or %s", runtimePath, sourcePath)
}

// loadCSV parses station rows, tolerating the column aliases the upstream
// exports use. Rows missing an id or coordinates are skipped; a row with
// unparseable coordinates is skipped with a warning rather than failing the
// whole file.
func loadCSV(path string, limit int) ([]models.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stations csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read stations csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}

	pick := func(record []string, keys ...string) string {
		for _, key := range keys {
			if i, ok := index[key]; ok && i < len(record) {
				if v := strings.TrimSpace(record[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var stations []models.Station
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stations csv row: %w", err)
		}

		stationID := pick(record, "station_id", "station_identifier", "area_id")
		latRaw := pick(record, "lat", "latitude")
		lonRaw := pick(record, "lon", "longitude")
		if stationID == "" || latRaw == "" || lonRaw == "" {
			continue
		}

		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lon, lonErr := strconv.ParseFloat(lonRaw, 64)
		if latErr != nil || lonErr != nil {
			log.Printf("stations: skipping invalid row for station_id=%s", stationID)
			continue
		}

		name := pick(record, "name")
		if name == "" {
			name = stationID
		}

		station := models.Station{
			StationID: stationID,
			Name:      name,
			Latitude:  lat,
			Longitude: lon,
			Active:    true,
		}
		if tz := pick(record, "timezone"); tz != "" {
			station.Timezone = sql.NullString{String: tz, Valid: true}
		}
		if elevRaw := pick(record, "elevation_m", "elevation"); elevRaw != "" {
			if elev, err := strconv.ParseFloat(elevRaw, 64); err == nil {
				station.Elevation = sql.NullFloat64{Float64: elev, Valid: true}
			}
		}
		if u := pick(record, "source_url", "url"); u != "" {
			station.SourceURL = sql.NullString{String: u, Valid: true}
		}

		stations = append(stations, station)
		if limit > 0 && len(stations) >= limit {
			break
		}
	}
	return stations, nil
}

// LoadAllowlist reads one station id per line, ignoring blanks and #
// comments. A missing path returns nil (no allowlist in force).
func LoadAllowlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allowlist: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	return ids, nil
}

// ApplyAllowlist filters stations down to the allowlisted ids, preserving
// allowlist order. Every allowlisted id must be present in the source:
// silently under-provisioning the fleet is worse than failing startup.
func ApplyAllowlist(stations []models.Station, allowlist []string) ([]models.Station, error) {
	if len(allowlist) == 0 {
		return stations, nil
	}

	byID := make(map[string]models.Station, len(stations))
	for _, station := range stations {
		byID[station.StationID] = station
	}

	out := make([]models.Station, 0, len(allowlist))
	var missing []string
	for _, id := range allowlist {
		station, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, station)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("allowlisted station ids missing from source: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
