// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"math"
	"sort"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// HourlySlice is the aggregate for one populated hour of a day.
type HourlySlice struct {
	Samples int `json:"samples"`

	AvgSOC      *float64 `json:"avg_soc,omitempty"`
	AvgVoltage  *float64 `json:"avg_voltage,omitempty"`
	AvgCurrentA *float64 `json:"avg_current_a,omitempty"`
}

// DailySummary condenses one calendar day of records.
type DailySummary struct {
	Day string `json:"day"`

	Samples int `json:"samples"`

	AvgSOC float64 `json:"avg_soc"`
	MinSOC float64 `json:"min_soc"`
	MaxSOC float64 `json:"max_soc"`

	AvgVoltage float64 `json:"avg_voltage"`

	// NetAh is charge minus discharge amp-hours for the day.
	NetAh float64 `json:"net_ah"`

	// AvgCloudsPct is the mean cloud cover; nil when the day carries no
	// cloud-cover observations.
	AvgCloudsPct *float64 `json:"avg_clouds_pct,omitempty"`

	AlertCount int `json:"alert_count"`

	// Hourly maps hour-of-day to its aggregate. Sparse: hours without
	// samples are absent.
	Hourly map[int]HourlySlice `json:"hourly,omitempty"`
}

// DailyRollup compresses a long window into per-day summaries, sorted
// ascending by day, each with a sparse hour-of-day breakdown. Used to
// keep a 90-day window inside a prompt budget without losing the daily
// shape.
func DailyRollup(records []datatypes.HistoricalRecord) []DailySummary {
	type hourAgg struct {
		samples        int
		socSum         float64
		socN           int
		voltSum        float64
		voltN          int
		ampSum         float64
		ampN           int
	}
	type agg struct {
		samples        int
		socSum         float64
		socN           int
		socMin, socMax float64
		voltSum        float64
		voltN          int
		netAh          float64
		cloudSum       float64
		cloudN         int
		alerts         int
		hours          map[int]*hourAgg
	}
	days := map[string]*agg{}

	get := func(key string) *agg {
		a := days[key]
		if a == nil {
			a = &agg{socMin: math.Inf(1), socMax: math.Inf(-1), hours: map[int]*hourAgg{}}
			days[key] = a
		}
		return a
	}

	for i := range records {
		r := &records[i]
		a := get(dayKey(r.Timestamp))
		a.samples++
		h := a.hours[r.Timestamp.Hour()]
		if h == nil {
			h = &hourAgg{}
			a.hours[r.Timestamp.Hour()] = h
		}
		h.samples++
		if soc := r.Analysis.SOC; soc != nil {
			a.socSum += *soc
			a.socN++
			a.socMin = math.Min(a.socMin, *soc)
			a.socMax = math.Max(a.socMax, *soc)
			h.socSum += *soc
			h.socN++
		}
		if v := r.Analysis.OverallVoltage; v != nil {
			a.voltSum += *v
			a.voltN++
			h.voltSum += *v
			h.voltN++
		}
		if amps := r.Analysis.Current; amps != nil {
			h.ampSum += *amps
			h.ampN++
		}
		if r.Weather != nil && r.Weather.CloudsPct != nil {
			a.cloudSum += *r.Weather.CloudsPct
			a.cloudN++
		}
		a.alerts += len(r.Alerts)

		if i == 0 {
			continue
		}
		dt, ok := integrationDelta(records[i-1].Timestamp, r.Timestamp)
		if !ok {
			continue
		}
		if amps, ok := current(&records[i-1]); ok {
			// Net flow lands on the starting record's day.
			get(dayKey(records[i-1].Timestamp)).netAh += amps * dt.Hours()
		}
	}

	out := make([]DailySummary, 0, len(days))
	for day, a := range days {
		s := DailySummary{
			Day:        day,
			Samples:    a.samples,
			NetAh:      a.netAh,
			AlertCount: a.alerts,
		}
		if a.socN > 0 {
			s.AvgSOC = a.socSum / float64(a.socN)
			s.MinSOC = a.socMin
			s.MaxSOC = a.socMax
		}
		if a.voltN > 0 {
			s.AvgVoltage = a.voltSum / float64(a.voltN)
		}
		if a.cloudN > 0 {
			avg := a.cloudSum / float64(a.cloudN)
			s.AvgCloudsPct = &avg
		}
		if len(a.hours) > 0 {
			s.Hourly = make(map[int]HourlySlice, len(a.hours))
			for hour, h := range a.hours {
				slice := HourlySlice{Samples: h.samples}
				if h.socN > 0 {
					v := h.socSum / float64(h.socN)
					slice.AvgSOC = &v
				}
				if h.voltN > 0 {
					v := h.voltSum / float64(h.voltN)
					slice.AvgVoltage = &v
				}
				if h.ampN > 0 {
					v := h.ampSum / float64(h.ampN)
					slice.AvgCurrentA = &v
				}
				s.Hourly[hour] = slice
			}
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
