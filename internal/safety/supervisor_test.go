package safety

import (
	"testing"

	"github.com/fantuned/fantuned/internal/model"
	"github.com/stretchr/testify/assert"
)

func thresholds() Thresholds {
	return Thresholds{
		EmergencyCpuTempC:      90,
		EmergencyGpuTempC:      90,
		EmergencyHysteresisC:   5,
		DefaultMinFanPercent:   20,
		MaxConsecutiveFailures: 5,
	}
}

func cpuReading(value float64) model.SensorReading {
	return model.SensorReading{
		Id:           model.SensorId{Kind: model.SensorTemperature},
		HardwareKind: model.HardwareCpu,
		Value:        value,
	}
}

// Scenario 5: emergency entry/exit.
func TestSupervisor_EmergencyEntryAndExit(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)

	s.Evaluate([]model.SensorReading{cpuReading(95)})
	assert.True(t, s.IsEmergency())

	s.Evaluate([]model.SensorReading{cpuReading(87)})
	assert.True(t, s.IsEmergency(), "87 is above threshold-hysteresis=85, should remain in emergency")

	s.Evaluate([]model.SensorReading{cpuReading(80)})
	assert.False(t, s.IsEmergency())
}

// Scenario 6: failure count.
func TestSupervisor_FailureCountTriggersEmergency(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)

	for i := 0; i < 5; i++ {
		s.RecordFailure()
	}
	assert.True(t, s.IsEmergency())
	assert.Contains(t, s.Status().Reason, "consecutive")

	s.RecordSuccess()
	assert.Equal(t, 0, s.Status().FailureCount)
}

func TestSupervisor_SuccessResetsCounterBeforeThreshold(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)
	s.RecordFailure()
	s.RecordFailure()
	s.RecordSuccess()
	assert.Equal(t, 0, s.Status().FailureCount)
	assert.False(t, s.IsEmergency())
}

func TestSupervisor_ExitRequiresBothCpuAndGpuClear(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)

	gpuReading := model.SensorReading{
		Id:           model.SensorId{Kind: model.SensorTemperature},
		HardwareKind: model.HardwareGpuNvidia,
	}

	hot := gpuReading
	hot.Value = 95
	s.Evaluate([]model.SensorReading{cpuReading(95), hot})
	assert.True(t, s.IsEmergency())

	// CPU clears but GPU doesn't -> stay in emergency
	stillHotGpu := gpuReading
	stillHotGpu.Value = 90
	s.Evaluate([]model.SensorReading{cpuReading(70), stillHotGpu})
	assert.True(t, s.IsEmergency())

	clearGpu := gpuReading
	clearGpu.Value = 50
	s.Evaluate([]model.SensorReading{cpuReading(70), clearGpu})
	assert.False(t, s.IsEmergency())
}

func TestSupervisor_EnforceMinimum(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)
	assert.Equal(t, 20.0, s.EnforceMinimum(5))
	assert.Equal(t, 50.0, s.EnforceMinimum(50))
}

func TestSupervisor_ValidateFanSpeed(t *testing.T) {
	s := NewSupervisor(thresholds(), nil)

	ok, warn := s.ValidateFanSpeed(150, model.FanDevice{})
	assert.False(t, ok)
	assert.Equal(t, "out of range", warn)

	ok, warn = s.ValidateFanSpeed(5, model.FanDevice{})
	assert.False(t, ok)
	assert.Equal(t, "below minimum", warn)

	// 0% is below the 20% minimum above, so the spinning-fan warning is
	// checked against a supervisor with no minimum.
	zeroMin := thresholds()
	zeroMin.DefaultMinFanPercent = 0
	ok, warn = NewSupervisor(zeroMin, nil).ValidateFanSpeed(0, model.FanDevice{Rpm: 800})
	assert.True(t, ok)
	assert.NotEmpty(t, warn)

	ok, warn = s.ValidateFanSpeed(30, model.FanDevice{Rpm: 800})
	assert.True(t, ok)
	assert.Empty(t, warn)
}

func TestSupervisor_AlertsPublishedOnTransitions(t *testing.T) {
	var alerts []string
	s := NewSupervisor(thresholds(), func(severity, message string) {
		alerts = append(alerts, severity+":"+message)
	})

	s.Evaluate([]model.SensorReading{cpuReading(95)})
	s.Evaluate([]model.SensorReading{cpuReading(50)})

	assert.Len(t, alerts, 2)
	assert.Contains(t, alerts[0], "emergency:")
	assert.Contains(t, alerts[1], "info:")
}
