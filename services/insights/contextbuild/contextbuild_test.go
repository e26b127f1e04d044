// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextbuild

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/store"
)

const testSystemID = "cabin-1"

func seedStore(hours int) *store.MemoryStore {
	st := store.NewMemoryStore()
	end := time.Now().UTC().Truncate(time.Hour)
	records := make([]datatypes.HistoricalRecord, hours)
	for i := 0; i < hours; i++ {
		ts := end.Add(-time.Duration(hours-1-i) * time.Hour)
		amps := -4.0
		if h := ts.Hour(); h >= 8 && h < 16 {
			amps = 10.0
		}
		records[i] = datatypes.HistoricalRecord{
			SystemID:  testSystemID,
			Timestamp: ts,
			Analysis: datatypes.Snapshot{
				OverallVoltage: datatypes.Float(52.0),
				Current:        datatypes.Float(amps),
				Power:          datatypes.Float(amps * 52.0),
				SOC:            datatypes.Float(60 + float64(ts.Hour())/4),
				Timestamp:      ts,
			},
		}
	}
	st.SeedRecords(testSystemID, records)
	st.SeedProfile(&datatypes.SystemProfile{
		ID:                    testSystemID,
		Chemistry:             "LiFePO4",
		NominalVoltage:        51.2,
		RatedCapacityAh:       200,
		MaxSolarChargeCurrent: datatypes.Float(20),
		Location:              &datatypes.GeoPoint{Latitude: 61.2, Longitude: -149.9},
	})
	return st
}

func currentSnap() *datatypes.Snapshot {
	return &datatypes.Snapshot{
		OverallVoltage: datatypes.Float(52.1),
		Current:        datatypes.Float(-6),
		SOC:            datatypes.Float(64),
		CycleCount:     datatypes.Int(30),
		Chemistry:      "LiFePO4",
		Timestamp:      time.Now().UTC(),
	}
}

type fakeWeather struct {
	current *datatypes.WeatherObservation
	err     error
}

func (f *fakeWeather) Current(ctx context.Context, loc datatypes.GeoPoint) (*datatypes.WeatherObservation, error) {
	return f.current, f.err
}

func (f *fakeWeather) HourlyForecast(ctx context.Context, loc datatypes.GeoPoint, days int) ([]datatypes.WeatherObservation, error) {
	return nil, f.err
}

func TestBuild_SyncIsLean(t *testing.T) {
	st := seedStore(30 * 24)
	a := NewAssembler(st, nil, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeSync)
	if err != nil {
		t.Fatal(err)
	}

	if b.Profile == nil || b.Profile.Chemistry != "LiFePO4" {
		t.Errorf("profile = %+v", b.Profile)
	}
	if len(b.RecentSnapshots) != recentSnapshotCount {
		t.Errorf("recent snapshots = %d, want %d", len(b.RecentSnapshots), recentSnapshotCount)
	}
	if len(b.InitialSummary) == 0 {
		t.Error("want a 7-day rollup")
	}
	if b.Meta.Truncated {
		t.Error("sync build should fit its budget comfortably")
	}

	// Heavy kernels are not assembled in sync mode.
	if b.Health.Value != nil || b.Health.Insufficient != nil {
		t.Error("health must not be evaluated in sync mode")
	}
	if b.Prediction.Value != nil || b.Prediction.Insufficient != nil {
		t.Error("prediction must not be evaluated in sync mode")
	}
	if len(b.Rollup90d) != 0 {
		t.Error("90-day rollup must not be assembled in sync mode")
	}

	if b.Anomalies.Value != nil || b.Anomalies.Insufficient != nil {
		t.Error("anomaly scan is tool territory in sync mode")
	}

	// The cheap week-scale reads still run.
	if b.NightUse.Value == nil && b.NightUse.Insufficient == nil {
		t.Error("sync bundle must carry the night-discharge read")
	}
	if b.SolarVariance.Value == nil && b.SolarVariance.Insufficient == nil {
		t.Error("sync bundle must carry the solar-variance read")
	}
}

func TestBuild_BatteryFacts(t *testing.T) {
	st := seedStore(24)
	a := NewAssembler(st, nil, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Facts.BrandNewLikely {
		t.Error("30 cycles should read as brand new")
	}
	if b.Facts.ExpectedCycleLife != 3000 {
		t.Errorf("expected cycle life = %d, want 3000 for LiFePO4", b.Facts.ExpectedCycleLife)
	}
	if b.Facts.SnapshotAutonomyHours == nil {
		t.Fatal("discharging snapshot should yield a runtime estimate")
	}
	// 52.1 V x 0.64 x 0.8 / 6 A
	want := 52.1 * 0.64 * 0.8 / 6
	if got := *b.Facts.SnapshotAutonomyHours; got < want-0.01 || got > want+0.01 {
		t.Errorf("autonomy = %v, want %v", got, want)
	}
}

func TestBuild_BackgroundAssemblesKernels(t *testing.T) {
	st := seedStore(60 * 24)
	a := NewAssembler(st, nil, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeBackground)
	if err != nil {
		t.Fatal(err)
	}

	assembled := func(name string, value, insuf any) {
		t.Helper()
		if value == nil && insuf == nil {
			t.Errorf("%s section was not assembled", name)
		}
	}
	assembled("health", anyOrNil(b.Health.Value), anyOrNil(b.Health.Insufficient))
	assembled("trends", anyOrNil(b.Trends.Value), anyOrNil(b.Trends.Insufficient))
	assembled("usage", anyOrNil(b.Usage.Value), anyOrNil(b.Usage.Insufficient))
	assembled("load", anyOrNil(b.Load.Value), anyOrNil(b.Load.Insufficient))
	assembled("energy_balance", anyOrNil(b.EnergyBalance.Value), anyOrNil(b.EnergyBalance.Insufficient))
	assembled("anomalies", anyOrNil(b.Anomalies.Value), anyOrNil(b.Anomalies.Insufficient))
	assembled("night_use", anyOrNil(b.NightUse.Value), anyOrNil(b.NightUse.Insufficient))
	assembled("solar_variance", anyOrNil(b.SolarVariance.Value), anyOrNil(b.SolarVariance.Insufficient))
	assembled("prediction", anyOrNil(b.Prediction.Value), anyOrNil(b.Prediction.Insufficient))

	if len(b.Rollup90d) < 55 {
		t.Errorf("rollup days = %d, want roughly 60", len(b.Rollup90d))
	}
	if b.EnergyBalance.Value == nil {
		t.Fatal("two months of hourly data must satisfy the energy balance")
	}
	if b.EnergyBalance.Value.AvgDailyGenerationWh <= 0 {
		t.Errorf("balance = %+v", b.EnergyBalance.Value)
	}
}

// anyOrNil collapses a typed nil pointer into an untyped nil so the
// assembled check works across section types.
func anyOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

func TestBuild_WeatherAttached(t *testing.T) {
	st := seedStore(24)
	obs := &datatypes.WeatherObservation{
		Timestamp: time.Now().UTC(),
		TempC:     datatypes.Float(-5),
		CloudsPct: datatypes.Float(80),
		Condition: "Snow",
	}
	a := NewAssembler(st, &fakeWeather{current: obs}, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if b.CurrentWeather == nil || b.CurrentWeather.Condition != "Snow" {
		t.Errorf("weather = %+v", b.CurrentWeather)
	}
}

func TestBuild_StepFailureIsReportedNotFatal(t *testing.T) {
	st := seedStore(24)
	a := NewAssembler(st, &fakeWeather{err: errors.New("api down")}, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if b.CurrentWeather != nil {
		t.Error("failed weather step must leave the section empty")
	}

	var found bool
	for _, s := range b.Meta.Steps {
		if s.Label == "current_weather" {
			found = true
			if s.Success || s.Error == "" {
				t.Errorf("step = %+v, want recorded failure", s)
			}
		}
	}
	if !found {
		t.Error("weather step missing from the report")
	}
}

func TestBuild_StoreFailureDegrades(t *testing.T) {
	st := store.NewMemoryStore()
	st.Err = errors.New("influx unreachable")
	a := NewAssembler(st, nil, nil)

	b, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeSync)
	if err != nil {
		t.Fatal("a broken store must degrade, not abort")
	}
	if len(b.InitialSummary) != 0 || len(b.RecentSnapshots) != 0 {
		t.Error("no data should have been assembled")
	}
	var failures int
	for _, s := range b.Meta.Steps {
		if !s.Success {
			failures++
		}
	}
	if failures < 2 {
		t.Errorf("failures = %d, want the store-backed steps to report", failures)
	}
}

func TestBuild_PredictionCached(t *testing.T) {
	st := seedStore(60 * 24)
	a := NewAssembler(st, nil, nil)

	if _, err := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeBackground); err != nil {
		t.Fatal(err)
	}

	// Whatever the forecast outcome, a computable one must have been
	// cached; an insufficient one must not.
	_, err := st.CachedModel(context.Background(), testSystemID, store.ModelKindCapacity)
	b, _ := a.Build(context.Background(), testSystemID, currentSnap(), datatypes.ModeBackground)
	if err == nil {
		if b.Prediction.Value == nil {
			t.Error("cached forecast should be served on the second build")
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cache read: %v", err)
	}
}
