package noaa

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rinconlabs/firewatch/internal/httputil"
	"github.com/rinconlabs/firewatch/internal/metrics"
	"github.com/rinconlabs/firewatch/internal/models"
)

// ErrUnavailable means the upstream was never usefully reached: transport
// failures exhausted their retries, or a 2xx body could not be parsed. The
// station stays active and is retried next tick.
var ErrUnavailable = errors.New("noaa: upstream unavailable")

// StatusError carries a classified non-2xx upstream status. 404 and
// retry-exhausted 5xx/429 mean the station is unserviceable; anything else is
// a caller-side problem and the station stays active.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("noaa: upstream status %d", e.Code)
}

// Unserviceable reports whether the status should deactivate the station.
// A 429 or 5xx only surfaces after retries are exhausted, so by the time a
// caller sees one the station is not worth polling again this tick.
func (e *StatusError) Unserviceable() bool {
	return e.Code == http.StatusNotFound ||
		e.Code == http.StatusTooManyRequests ||
		(e.Code >= 500 && e.Code < 600)
}

type ClientConfig struct {
	BaseURL     string
	UserAgent   string
	RequireQC   bool
	Timeout     time.Duration
	MaxRetries  int     // attempts per call, including the first
	BackoffBase float64 // seconds; wait between attempts grows as base^attempt
}

// Client talks to the NWS-style observations API. It owns retry/backoff and
// cursor pagination; callers see parsed observations or classified errors.
type Client struct {
	baseURL     string
	userAgent   string
	requireQC   bool
	maxRetries  int
	backoffBase float64
	client      *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 1.5
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		requireQC:   cfg.RequireQC,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		client:      httputil.NewClient(cfg.Timeout),
	}
}

// FetchLatest returns the most recent observation for a station. The error is
// either nil, ErrUnavailable, or a *StatusError.
func (c *Client) FetchLatest(ctx context.Context, stationID string) (*models.Observation, error) {
	u := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, url.PathEscape(stationID))
	body, err := c.get(ctx, stationID, "observations/latest", u, url.Values{
		"require_qc": []string{strconv.FormatBool(c.requireQC)},
	})
	if err != nil {
		return nil, err
	}

	var feature observationFeature
	if err := json.Unmarshal(body, &feature); err != nil {
		return nil, ErrUnavailable
	}
	obs, err := toObservation(feature)
	if err != nil {
		return nil, ErrUnavailable
	}
	if obs.StationID == "" {
		obs.StationID = stationID
	}
	return obs, nil
}

// FetchRecent pages through the observation history for a station, keeping
// one sample per calendar day at a fixed hour. The hour is pinned to the
// first observation seen; later picks must match it. Results come back
// oldest-to-newest. A nil, nil return means no usable history was found,
// which is degraded data rather than an error.
func (c *Client) FetchRecent(ctx context.Context, stationID string, days int) ([]models.Observation, error) {
	if days <= 0 {
		return nil, nil
	}

	next := fmt.Sprintf("%s/stations/%s/observations", c.baseURL, url.PathEscape(stationID))
	params := url.Values{"limit": []string{"500"}}

	var picks []models.Observation
	pinnedHour := -1
	seenDays := make(map[string]bool)

	for next != "" && len(picks) < days {
		body, err := c.get(ctx, stationID, "observations", next, params)
		if err != nil {
			return nil, err
		}
		params = nil // the pagination cursor embeds its own query

		var page observationCollection
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, ErrUnavailable
		}

		for _, feature := range page.Features {
			obs, err := toObservation(feature)
			if err != nil {
				return nil, ErrUnavailable
			}
			if obs.StationID == "" {
				obs.StationID = stationID
			}
			if pinnedHour == -1 {
				pinnedHour = obs.ObservedAt.Hour()
			}
			day := obs.ObservedAt.Format("2006-01-02")
			if obs.ObservedAt.Hour() != pinnedHour || seenDays[day] {
				continue
			}
			seenDays[day] = true
			picks = append(picks, *obs)
			if len(picks) >= days {
				break
			}
		}

		if page.Pagination == nil {
			break
		}
		next = page.Pagination.Next
	}

	if len(picks) == 0 {
		return nil, nil
	}

	// The API pages newest-first; flip to oldest-first and keep the most
	// recent `days` entries.
	for i, j := 0, len(picks)-1; i < j; i, j = i+1, j-1 {
		picks[i], picks[j] = picks[j], picks[i]
	}
	if len(picks) > days {
		picks = picks[len(picks)-days:]
	}
	return picks, nil
}

// get issues one upstream GET with the retry policy: transport failures and
// 429/5xx retry with exponential backoff; 404 and any other non-2xx return
// immediately. The returned error is a *StatusError or a transport error.
func (c *Client) get(ctx context.Context, stationID, endpoint, rawURL string, params url.Values) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/geo+json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			metrics.NoaaAPICalls.WithLabelValues(stationID, endpoint, "error").Inc()
			return fmt.Errorf("get %s: %w", target, err)
		}
		defer resp.Body.Close()
		metrics.NoaaAPICalls.WithLabelValues(stationID, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Code: resp.StatusCode}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(&StatusError{Code: resp.StatusCode})
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(c.backoffBase * float64(time.Second))
	bo.Multiplier = c.backoffBase
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries-1)), ctx))
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}
		return nil, ErrUnavailable
	}
	return body, nil
}

type quantitativeValue struct {
	Value          *float64 `json:"value"`
	UnitCode       string   `json:"unitCode"`
	QualityControl string   `json:"qualityControl"`
}

type observationProperties struct {
	ID               string            `json:"@id"`
	StationID        string            `json:"stationId"`
	Timestamp        string            `json:"timestamp"`
	Temperature      quantitativeValue `json:"temperature"`
	Dewpoint         quantitativeValue `json:"dewpoint"`
	RelativeHumidity quantitativeValue `json:"relativeHumidity"`
	WindDirection    quantitativeValue `json:"windDirection"`
	WindSpeed        quantitativeValue `json:"windSpeed"`
	WindGust         quantitativeValue `json:"windGust"`
	Precipitation3h  quantitativeValue `json:"precipitationLast3Hours"`
	Pressure         quantitativeValue `json:"barometricPressure"`
	Visibility       quantitativeValue `json:"visibility"`
	HeatIndex        quantitativeValue `json:"heatIndex"`
}

type observationFeature struct {
	ID         string                `json:"id"`
	Properties observationProperties `json:"properties"`
}

type observationCollection struct {
	Features   []observationFeature `json:"features"`
	Pagination *struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

func toObservation(feature observationFeature) (*models.Observation, error) {
	props := feature.Properties

	observationID := props.ID
	if observationID == "" {
		observationID = feature.ID
	}
	if observationID == "" {
		return nil, fmt.Errorf("observation has no id")
	}

	observedAt, err := time.Parse(time.RFC3339, props.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", props.Timestamp, err)
	}

	obs := &models.Observation{
		ObservationID: observationID,
		StationID:     props.StationID,
		ObservedAt:    observedAt.UTC(),
	}
	obs.Temperature = nullable(props.Temperature)
	obs.Dewpoint = nullable(props.Dewpoint)
	obs.RelativeHumidity = nullable(props.RelativeHumidity)
	obs.WindDirection = nullable(props.WindDirection)
	obs.WindSpeed = nullable(props.WindSpeed)
	obs.WindGust = nullable(props.WindGust)
	obs.Precipitation3h = nullable(props.Precipitation3h)
	obs.Pressure = nullable(props.Pressure)
	obs.Visibility = nullable(props.Visibility)
	obs.HeatIndex = nullable(props.HeatIndex)
	return obs, nil
}

func nullable(qv quantitativeValue) (out sql.NullFloat64) {
	if qv.Value != nil {
		out.Float64 = *qv.Value
		out.Valid = true
	}
	return out
}
