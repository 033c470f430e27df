package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitrack/transitrack/pkg/fleet"
	"github.com/transitrack/transitrack/pkg/trackstore"
	"github.com/transitrack/transitrack/pkg/util"
	"github.com/transitrack/transitrack/pkg/vehiclestate"
)

const (
	DefaultInterval       = 2 * time.Minute
	DefaultRequestTimeout = 10 * time.Second
	DefaultWindowSize     = 20
)

type Options struct {
	TrackStore *trackstore.Store
	States     *vehiclestate.Table

	// Endpoint of the external forecasting service. Falls back to
	// TRANSITRACK_FORECAST_URL when empty; forecasting is disabled when
	// neither is set.
	ServiceURL string

	Interval       time.Duration
	RequestTimeout time.Duration

	// Recent track records sent per vehicle
	WindowSize int
}

type request struct {
	GeneratedAt time.Time                       `json:"generated_at"`
	Vehicles    map[string][]*fleet.TrackRecord `json:"vehicles"`
}

type response struct {
	Vehicles map[string]vehicleForecast `json:"vehicles"`
}

type vehicleForecast struct {
	PredictedArrivals []fleet.PredictedArrival `json:"predicted_arrivals"`
	DemandForecasts   []fleet.DemandForecast   `json:"demand_forecasts"`
}

// Client periodically sends recent per-vehicle track windows to an
// external forecasting service and applies the returned predictions as
// state annotations. Everything here is best effort: a slow or failing
// service only means stale annotations.
type Client struct {
	tracks *trackstore.Store
	states *vehiclestate.Table

	serviceURL string
	httpClient *http.Client

	interval   time.Duration
	windowSize int
}

func NewClient(options Options) *Client {
	if options.ServiceURL == "" {
		options.ServiceURL = util.GetEnvironmentVariable("TRANSITRACK_FORECAST_URL", "")
	}
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = DefaultRequestTimeout
	}
	if options.WindowSize <= 0 {
		options.WindowSize = DefaultWindowSize
	}

	return &Client{
		tracks:     options.TrackStore,
		states:     options.States,
		serviceURL: options.ServiceURL,
		httpClient: &http.Client{Timeout: options.RequestTimeout},
		interval:   options.Interval,
		windowSize: options.WindowSize,
	}
}

// Enabled reports whether a forecasting endpoint is configured.
func (c *Client) Enabled() bool {
	return c.serviceURL != ""
}

// Run performs forecast cycles on a fixed interval until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	if !c.Enabled() {
		log.Info().Msg("No forecast service configured, skipping forecast loop")
		return
	}

	log.Info().Str("url", c.serviceURL).Str("interval", c.interval.String()).Msg("Starting forecast loop")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Perform(ctx); err != nil {
				log.Error().Err(err).Msg("Forecast cycle failed")
			}
		}
	}
}

// Perform runs one forecast cycle over every vehicle with recent history.
func (c *Client) Perform(ctx context.Context) error {
	payload := request{
		GeneratedAt: time.Now().UTC(),
		Vehicles:    map[string][]*fleet.TrackRecord{},
	}

	for _, vehicleID := range c.tracks.Vehicles() {
		window, err := c.tracks.Range(vehicleID, nil, nil, c.windowSize)
		if err != nil || len(window) == 0 {
			continue
		}

		payload.Vehicles[vehicleID] = window
	}

	if len(payload.Vehicles) == 0 {
		return nil
	}

	forecasts, err := c.fetch(ctx, &payload)
	if err != nil {
		return err
	}

	appliedAt := time.Now().UTC()
	applied := 0
	for vehicleID, forecast := range forecasts.Vehicles {
		c.states.ApplyForecast(vehicleID, forecast.PredictedArrivals, forecast.DemandForecasts, appliedAt)
		applied += 1
	}

	log.Info().Int("vehicles", applied).Msg("Applied forecasts")

	return nil
}

func (c *Client) fetch(ctx context.Context, payload *request) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast service returned %s", httpResponse.Status)
	}

	var forecasts response
	if err := json.NewDecoder(httpResponse.Body).Decode(&forecasts); err != nil {
		return nil, err
	}

	return &forecasts, nil
}
