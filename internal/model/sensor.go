package model

import "time"

// SensorReading is an immutable snapshot of one sensor's current value,
// produced fresh each tick by the Hardware Adapter.
type SensorReading struct {
	Id           SensorId     `json:"id"`
	DisplayName  string       `json:"displayName"`
	HardwareName string       `json:"hardwareName"`
	HardwareKind HardwareKind `json:"hardwareKind"`
	Value        float64      `json:"value"`
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	Unit         string       `json:"unit"`
	Timestamp    time.Time    `json:"timestamp"`
	IsStale      bool         `json:"isStale"`
}

// IsCpuTemperature reports whether this reading is a CPU temperature
// sensor, the reading kind the Curve Engine falls back to when a curve
// has no explicit source sensor.
func (r SensorReading) IsCpuTemperature() bool {
	return r.Id.Kind == SensorTemperature && r.HardwareKind == HardwareCpu
}

// IsGpuTemperature reports whether this reading is a GPU temperature
// sensor of any vendor.
func (r SensorReading) IsGpuTemperature() bool {
	return r.Id.Kind == SensorTemperature && r.HardwareKind.IsGpu()
}
