// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package weather provides current conditions and short-range forecasts
// for the insights tools. The engine only needs temperature, cloud
// cover, and UV index; anything deeper belongs to the provider.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Provider is the boundary the tools depend on.
type Provider interface {
	// Current returns the present conditions at a location.
	Current(ctx context.Context, loc datatypes.GeoPoint) (*datatypes.WeatherObservation, error)

	// HourlyForecast returns hourly observations for the coming days
	// (1-7), ascending by timestamp.
	HourlyForecast(ctx context.Context, loc datatypes.GeoPoint, days int) ([]datatypes.WeatherObservation, error)
}

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteo queries the Open-Meteo forecast API. No key required.
type OpenMeteo struct {
	HTTPClient HTTPClient
	BaseURL    string
	log        *logging.Logger
}

var _ Provider = (*OpenMeteo)(nil)

// NewOpenMeteo builds a provider with a 15s request timeout.
func NewOpenMeteo(log *logging.Logger) *OpenMeteo {
	if log == nil {
		log = logging.Default()
	}
	return &OpenMeteo{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    defaultBaseURL,
		log:        log,
	}
}

// openMeteoResponse is the subset of the API response we read.
type openMeteoResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		CloudCover  float64 `json:"cloud_cover"`
		UVIndex     float64 `json:"uv_index"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Hourly struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		CloudCover  []float64 `json:"cloud_cover"`
		UVIndex     []float64 `json:"uv_index"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
}

func (p *OpenMeteo) Current(ctx context.Context, loc datatypes.GeoPoint) (*datatypes.WeatherObservation, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=temperature_2m,cloud_cover,uv_index,weather_code",
		p.BaseURL, loc.Latitude, loc.Longitude)

	var decoded openMeteoResponse
	if err := p.get(ctx, url, &decoded); err != nil {
		return nil, err
	}

	ts, err := time.Parse("2006-01-02T15:04", decoded.Current.Time)
	if err != nil {
		ts = time.Now().UTC()
	}
	return &datatypes.WeatherObservation{
		Timestamp: ts,
		TempC:     datatypes.Float(decoded.Current.Temperature),
		CloudsPct: datatypes.Float(decoded.Current.CloudCover),
		UVI:       datatypes.Float(decoded.Current.UVIndex),
		Condition: conditionFromCode(decoded.Current.WeatherCode),
	}, nil
}

func (p *OpenMeteo) HourlyForecast(ctx context.Context, loc datatypes.GeoPoint, days int) ([]datatypes.WeatherObservation, error) {
	if days < 1 {
		days = 1
	}
	if days > 7 {
		days = 7
	}
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&hourly=temperature_2m,cloud_cover,uv_index,weather_code&forecast_days=%d",
		p.BaseURL, loc.Latitude, loc.Longitude, days)

	var decoded openMeteoResponse
	if err := p.get(ctx, url, &decoded); err != nil {
		return nil, err
	}

	h := decoded.Hourly
	obs := make([]datatypes.WeatherObservation, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			continue
		}
		w := datatypes.WeatherObservation{Timestamp: ts}
		if i < len(h.Temperature) {
			w.TempC = datatypes.Float(h.Temperature[i])
		}
		if i < len(h.CloudCover) {
			w.CloudsPct = datatypes.Float(h.CloudCover[i])
		}
		if i < len(h.UVIndex) {
			w.UVI = datatypes.Float(h.UVIndex[i])
		}
		if i < len(h.WeatherCode) {
			w.Condition = conditionFromCode(h.WeatherCode[i])
		}
		obs = append(obs, w)
	}
	return obs, nil
}

func (p *OpenMeteo) get(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create weather request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather API returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("parse weather response: %w", err)
	}
	return nil
}

// conditionFromCode collapses WMO weather codes into the coarse labels
// the analysis cares about.
func conditionFromCode(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code <= 3:
		return "Clouds"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain"
	case code >= 85 && code <= 86:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Clouds"
	}
}
