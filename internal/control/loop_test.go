package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fantuned/fantuned/internal/configstore"
	"github.com/fantuned/fantuned/internal/hwadapter/mockhw"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/safety"
	"github.com/stretchr/testify/assert"
)

func strPtr(v string) *string   { return &v }
func fltPtr(v float64) *float64 { return &v }

func newStoreWithConfig(t *testing.T, cfg model.AppConfiguration) *configstore.Store {
	t.Helper()
	s := configstore.New(filepath.Join(t.TempDir(), "config.json"))
	_, err := s.Update(func(c *model.AppConfiguration) error {
		*c = cfg
		return nil
	})
	assert.NoError(t, err)
	return s
}

func defaultThresholds() safety.Thresholds {
	return safety.Thresholds{
		EmergencyCpuTempC:      90,
		EmergencyGpuTempC:      95,
		EmergencyHysteresisC:   5,
		DefaultMinFanPercent:   10,
		MaxConsecutiveFailures: 3,
	}
}

func TestLoop_CurveAssignmentAppliesTargetPercent(t *testing.T) {
	// GIVEN a fan curve-bound to CPU temperature, with hardware
	// reporting 60C (midpoint of a 40-80C curve)
	adapter := mockhw.New(
		[]mockhw.FanSpec{{Key: "fan0", DisplayName: "fan0", Capability: model.CapabilityFullControl, MaxRpm: 2000}},
		[]mockhw.SensorSpec{{Key: "cpu", Name: "Package", HardwareKind: model.HardwareCpu, Kind: model.SensorTemperature, BaseValue: 60}},
		nil,
	)
	cfg := model.AppConfiguration{
		PollIntervalMs:    1000,
		EmergencyCpuTempC: 90,
		EmergencyGpuTempC: 95,
		ActiveProfileId:   "default",
		Curves: map[string]model.FanCurve{
			"c1": {Id: "c1", Points: []model.CurvePoint{{TemperatureC: 40, Percent: 20}, {TemperatureC: 80, Percent: 100}}, MinPercent: 20, MaxPercent: 100, Linear: true},
		},
		Profiles: map[string]model.FanProfile{
			"default": {
				Id: "default", IsDefault: true,
				Assignments: map[string]model.FanAssignment{
					"fan0/fan0/0": {FanKey: "fan0/fan0/0", Mode: model.ModeCurve, CurveId: strPtr("c1")},
				},
			},
		},
	}
	store := newStoreWithConfig(t, cfg)
	supervisor := safety.NewSupervisor(defaultThresholds(), func(string, string) {})
	loop := New(adapter, store, supervisor, time.Second)

	// WHEN
	loop.Tick(context.Background())
	_ = adapter.Refresh(context.Background())

	// THEN the fan's duty lands near 60% (linear midpoint)
	fans := adapter.Fans()
	assert.Len(t, fans, 1)
	assert.NotNil(t, fans[0].DutyPercent)
	assert.InDelta(t, 60, *fans[0].DutyPercent, 5)
}

func TestLoop_ManualAssignmentSetsExactPercent(t *testing.T) {
	// GIVEN
	adapter := mockhw.New(
		[]mockhw.FanSpec{{Key: "fan0", DisplayName: "fan0", Capability: model.CapabilityFullControl, MaxRpm: 2000}},
		nil, nil,
	)
	cfg := model.AppConfiguration{
		PollIntervalMs:    1000,
		EmergencyCpuTempC: 90,
		EmergencyGpuTempC: 95,
		ActiveProfileId:   "default",
		Curves:            map[string]model.FanCurve{"unused": {Id: "unused", Points: []model.CurvePoint{{TemperatureC: 1, Percent: 1}}, MaxPercent: 100}},
		Profiles: map[string]model.FanProfile{
			"default": {
				Id: "default", IsDefault: true,
				Assignments: map[string]model.FanAssignment{
					"fan0/fan0/0": {FanKey: "fan0/fan0/0", Mode: model.ModeManual, ManualPercent: fltPtr(77)},
				},
			},
		},
	}
	store := newStoreWithConfig(t, cfg)
	supervisor := safety.NewSupervisor(defaultThresholds(), func(string, string) {})
	loop := New(adapter, store, supervisor, time.Second)

	// WHEN
	loop.Tick(context.Background())
	_ = adapter.Refresh(context.Background())

	// THEN
	fans := adapter.Fans()
	assert.InDelta(t, 77, *fans[0].DutyPercent, 0.01)
}

func TestLoop_RefreshFailureRecordsSupervisorFailure(t *testing.T) {
	// GIVEN an adapter whose Refresh always errors
	adapter := &failingAdapter{}
	cfg := model.AppConfiguration{
		PollIntervalMs: 1000, EmergencyCpuTempC: 90, EmergencyGpuTempC: 95,
		ActiveProfileId: "default",
		Curves:          map[string]model.FanCurve{"c": {Id: "c", Points: []model.CurvePoint{{TemperatureC: 1, Percent: 1}}, MaxPercent: 100}},
		Profiles:        map[string]model.FanProfile{"default": {Id: "default", IsDefault: true, Assignments: map[string]model.FanAssignment{}}},
	}
	store := newStoreWithConfig(t, cfg)
	thresholds := defaultThresholds()
	thresholds.MaxConsecutiveFailures = 2
	supervisor := safety.NewSupervisor(thresholds, func(string, string) {})
	loop := New(adapter, store, supervisor, time.Millisecond)

	// WHEN two ticks fail in a row
	loop.Tick(context.Background())
	loop.Tick(context.Background())

	// THEN the supervisor has entered emergency
	assert.True(t, supervisor.IsEmergency())
}

func TestLoop_EmergencyForcesFullControlFansToMaxAndSkipsCurveResolution(t *testing.T) {
	// GIVEN a curve that would otherwise hold the fan at 20%, but a CPU
	// reading already over the emergency threshold
	adapter := mockhw.New(
		[]mockhw.FanSpec{{Key: "fan0", DisplayName: "fan0", Capability: model.CapabilityFullControl, MaxRpm: 2000}},
		[]mockhw.SensorSpec{{Key: "cpu", Name: "Package", HardwareKind: model.HardwareCpu, Kind: model.SensorTemperature, BaseValue: 95}},
		nil,
	)
	cfg := model.AppConfiguration{
		PollIntervalMs:    1000,
		EmergencyCpuTempC: 90,
		EmergencyGpuTempC: 95,
		ActiveProfileId:   "default",
		Curves: map[string]model.FanCurve{
			"c1": {Id: "c1", Points: []model.CurvePoint{{TemperatureC: 40, Percent: 20}, {TemperatureC: 80, Percent: 20}}, MinPercent: 20, MaxPercent: 100, Linear: true},
		},
		Profiles: map[string]model.FanProfile{
			"default": {
				Id: "default", IsDefault: true,
				Assignments: map[string]model.FanAssignment{
					"fan0/fan0/0": {FanKey: "fan0/fan0/0", Mode: model.ModeCurve, CurveId: strPtr("c1")},
				},
			},
		},
	}
	store := newStoreWithConfig(t, cfg)
	supervisor := safety.NewSupervisor(defaultThresholds(), func(string, string) {})
	loop := New(adapter, store, supervisor, time.Second)

	// WHEN the tick observes the over-threshold reading
	loop.Tick(context.Background())

	// THEN the supervisor has entered emergency and the fan was forced
	// to 100%, not the curve's 20%
	assert.True(t, supervisor.IsEmergency())
	fans := adapter.Fans()
	assert.NotNil(t, fans[0].DutyPercent)
	assert.Equal(t, 100.0, *fans[0].DutyPercent)
}

type failingAdapter struct{}

func (f *failingAdapter) Initialize(ctx context.Context) ([]string, error) { return nil, nil }
func (f *failingAdapter) Refresh(ctx context.Context) error                { return assert.AnError }
func (f *failingAdapter) Sensors() []model.SensorReading                   { return nil }
func (f *failingAdapter) Fans() []model.FanDevice                          { return nil }
func (f *failingAdapter) SetSpeed(ctx context.Context, fanKey string, percent float64) bool {
	return false
}
func (f *failingAdapter) SetAuto(ctx context.Context, fanKey string) error { return nil }
func (f *failingAdapter) SetAllAuto(ctx context.Context) error             { return nil }
