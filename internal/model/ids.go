package model

import "fmt"

// HardwareKind classifies the physical device a sensor or fan belongs to,
// used to route CPU/GPU readings to the Safety Supervisor's thresholds.
type HardwareKind string

const (
	HardwareCpu                HardwareKind = "cpu"
	HardwareGpuNvidia          HardwareKind = "gpuNvidia"
	HardwareGpuAmd             HardwareKind = "gpuAmd"
	HardwareGpuIntel           HardwareKind = "gpuIntel"
	HardwareMotherboard        HardwareKind = "motherboard"
	HardwareMemory             HardwareKind = "memory"
	HardwareStorage            HardwareKind = "storage"
	HardwareNetwork            HardwareKind = "network"
	HardwareCooler             HardwareKind = "cooler"
	HardwareEmbeddedController HardwareKind = "embeddedController"
	HardwarePsu                HardwareKind = "psu"
	HardwareBattery            HardwareKind = "battery"
	HardwareUnknown            HardwareKind = "unknown"
)

// IsGpu reports whether this hardware kind is any of the GPU vendors.
func (k HardwareKind) IsGpu() bool {
	switch k {
	case HardwareGpuNvidia, HardwareGpuAmd, HardwareGpuIntel:
		return true
	default:
		return false
	}
}

// SensorKind enumerates the physical quantity a SensorReading carries.
// Only Temperature, Fan and Control participate in control decisions;
// the rest are passed through untouched for telemetry.
type SensorKind string

const (
	SensorTemperature SensorKind = "temperature"
	SensorFan         SensorKind = "fan"
	SensorLoad        SensorKind = "load"
	SensorVoltage     SensorKind = "voltage"
	SensorClock       SensorKind = "clock"
	SensorPower       SensorKind = "power"
	SensorControl     SensorKind = "control"
)

// SensorId uniquely identifies a sensor by the triple of the owning
// hardware id, the sensor's own name and its kind.
type SensorId struct {
	HardwareId string     `json:"hardwareId"`
	Name       string     `json:"name"`
	Kind       SensorKind `json:"kind"`
}

// Key returns a stable string uniquely identifying this sensor.
func (id SensorId) Key() string {
	return fmt.Sprintf("%s/%s/%s", id.HardwareId, id.Name, id.Kind)
}

// FanId uniquely identifies a fan by the triple of owning hardware id,
// the fan's own name and its index within that hardware.
type FanId struct {
	HardwareId string `json:"hardwareId"`
	Name       string `json:"name"`
	Index      int    `json:"index"`
}

// Key returns a stable string uniquely identifying this fan.
func (id FanId) Key() string {
	return fmt.Sprintf("%s/%s/%d", id.HardwareId, id.Name, id.Index)
}
