// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func (r *Registry) getWeatherData() *Tool {
	return &Tool{
		Name:        "getWeatherData",
		Description: "Current conditions or an hourly forecast (temperature, cloud cover, UV) for a location.",
		Params: []Param{
			{Name: "lat", Type: "number", Description: "Latitude", Required: true},
			{Name: "lon", Type: "number", Description: "Longitude", Required: true},
			{Name: "type", Type: "string", Description: "Which data to return", Required: true, Enum: []string{"current", "forecast"}},
			{Name: "days", Type: "integer", Description: "Forecast days (1-7, forecast only)", Required: false},
		},
		Handler: r.handleWeatherData,
	}
}

func (r *Registry) handleWeatherData(ctx context.Context, args map[string]any) (any, error) {
	if r.weather == nil {
		return nil, fmt.Errorf("no weather provider is configured for this deployment")
	}

	loc := datatypes.GeoPoint{
		Latitude:  floatArg(args, "lat", 0),
		Longitude: floatArg(args, "lon", 0),
	}

	switch stringArg(args, "type", "current") {
	case "current":
		obs, err := r.weather.Current(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("fetch current weather: %w", err)
		}
		return map[string]any{"current": obs}, nil
	default:
		days := intArg(args, "days", 3)
		obs, err := r.weather.HourlyForecast(ctx, loc, days)
		if err != nil {
			return nil, fmt.Errorf("fetch forecast: %w", err)
		}
		return map[string]any{"forecast": obs, "count": len(obs)}, nil
	}
}

func (r *Registry) getSolarEstimate() *Tool {
	return &Tool{
		Name:        "getSolarEstimate",
		Description: "Estimate daily solar production (Wh) for a panel rating from the cloud-cover forecast.",
		Params: []Param{
			{Name: "location", Type: "string", Description: "\"lat,lon\" pair", Required: true},
			{Name: "panelWatts", Type: "number", Description: "Installed panel rating in watts", Required: true},
			{Name: "startDate", Type: "string", Description: "ISO-8601 start date", Required: true},
			{Name: "endDate", Type: "string", Description: "ISO-8601 end date", Required: true},
		},
		Handler: r.handleSolarEstimate,
	}
}

func (r *Registry) handleSolarEstimate(ctx context.Context, args map[string]any) (any, error) {
	if r.weather == nil {
		return nil, fmt.Errorf("no weather provider is configured for this deployment")
	}

	loc, err := parseLocation(stringArg(args, "location", ""))
	if err != nil {
		return nil, err
	}
	panelWatts := floatArg(args, "panelWatts", 0)
	if panelWatts <= 0 {
		return nil, fmt.Errorf("panelWatts must be positive")
	}
	start, err := parseISO(stringArg(args, "startDate", ""))
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}
	end, err := parseISO(stringArg(args, "endDate", ""))
	if err != nil {
		return nil, fmt.Errorf("endDate: %w", err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("startDate must be before endDate")
	}

	days := int(end.Sub(start).Hours()/24) + 1
	forecast, err := r.weather.HourlyForecast(ctx, loc, days)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	// Average cloud cover per day drives the sun-hours model.
	type dayAgg struct {
		cloudSum float64
		count    int
	}
	byDay := map[string]*dayAgg{}
	for _, obs := range forecast {
		if obs.Timestamp.Before(start) || !obs.Timestamp.Before(end.Add(24*time.Hour)) {
			continue
		}
		// Hours without cloud-cover data stay out of the average; an
		// unknown sky must not count as clear.
		if obs.CloudsPct == nil {
			continue
		}
		key := obs.Timestamp.Format("2006-01-02")
		a := byDay[key]
		if a == nil {
			a = &dayAgg{}
			byDay[key] = a
		}
		a.cloudSum += *obs.CloudsPct
		a.count++
	}

	var estimates []map[string]any
	var totalWh float64
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		entry := map[string]any{"day": key}
		if a, ok := byDay[key]; ok && a.count > 0 {
			clouds := a.cloudSum / float64(a.count)
			sunHours := analytics.PeakSunHours(clouds)
			wh := panelWatts * sunHours
			entry["avg_clouds_pct"] = clouds
			entry["sun_hours"] = sunHours
			entry["estimated_wh"] = wh
			totalWh += wh
		} else {
			entry["note"] = "no forecast coverage for this day"
		}
		estimates = append(estimates, entry)
	}

	return map[string]any{
		"panel_watts": panelWatts,
		"data":        estimates,
		"total_wh":    totalWh,
	}, nil
}

func parseLocation(raw string) (datatypes.GeoPoint, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return datatypes.GeoPoint{}, fmt.Errorf("location must be \"lat,lon\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return datatypes.GeoPoint{}, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return datatypes.GeoPoint{}, fmt.Errorf("invalid longitude %q", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return datatypes.GeoPoint{}, fmt.Errorf("location %q out of range", raw)
	}
	return datatypes.GeoPoint{Latitude: lat, Longitude: lon}, nil
}
