// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// testWindowStart gives every synthetic window a stable origin at local
// midnight so hour-of-day assertions are deterministic.
var testWindowStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// hourlyRecords builds n hourly records starting at testWindowStart,
// filling each snapshot via fill(hourIndex).
func hourlyRecords(n int, fill func(i int, s *datatypes.Snapshot)) []datatypes.HistoricalRecord {
	records := make([]datatypes.HistoricalRecord, n)
	for i := 0; i < n; i++ {
		records[i] = datatypes.HistoricalRecord{
			SystemID:  "sys-test",
			Timestamp: testWindowStart.Add(time.Duration(i) * time.Hour),
		}
		fill(i, &records[i].Analysis)
	}
	return records
}

// solarCycleSnapshot fills a snapshot with a canonical off-grid rhythm:
// charging at +10A during solar hours, discharging at -4A overnight.
func solarCycleSnapshot(i int, s *datatypes.Snapshot) {
	hour := i % 24
	var amps float64
	if hour >= 8 && hour < 16 {
		amps = 10
	} else {
		amps = -4
	}
	volts := 52.0
	soc := 60.0 + 20*float64(hour)/24
	watts := amps * volts
	s.Current = &amps
	s.OverallVoltage = &volts
	s.Power = &watts
	s.SOC = &soc
}

func testProfile() *datatypes.SystemProfile {
	maxSolar := 20.0
	return &datatypes.SystemProfile{
		ID:                    "sys-test",
		Name:                  "Test Cabin",
		Chemistry:             "LiFePO4",
		NominalVoltage:        51.2,
		RatedCapacityAh:       100,
		MaxSolarChargeCurrent: &maxSolar,
	}
}
