// Package telemetry exposes a Prometheus /metrics endpoint over the
// daemon's live sensor and fan snapshots, grounded on
// internal/statistics' collector shape: one prometheus.Collector per
// domain type, each pairing a Describe/Collect implementation with
// prometheus.NewDesc + BuildFQName, adapted here from raw PWM/RPM
// fields to duty percent and a stale-reading gauge.
package telemetry

import (
	"github.com/fantuned/fantuned/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace          = "fantuned"
	subsystemSensor    = "sensor"
	subsystemFan       = "fan"
	subsystemSupervisor = "supervisor"
)

// Source supplies the point-in-time snapshots the collectors read on
// every Prometheus scrape. The Hardware Adapter satisfies it directly.
type Source interface {
	Sensors() []model.SensorReading
	Fans() []model.FanDevice
}

// EmergencySource reports whether the Safety Supervisor is currently
// in its Emergency state, exposed as its own gauge.
type EmergencySource interface {
	IsEmergency() bool
}

// SensorCollector exposes each sensor's current value and staleness.
type SensorCollector struct {
	source Source
	value  *prometheus.Desc
	stale  *prometheus.Desc
}

// NewSensorCollector builds a collector reading from source on every
// scrape — it holds no cached state of its own.
func NewSensorCollector(source Source) *SensorCollector {
	return &SensorCollector{
		source: source,
		value: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemSensor, "value"),
			"Current value of the sensor in its native unit",
			[]string{"key", "kind", "hardware_kind"}, nil,
		),
		stale: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemSensor, "stale"),
			"1 if the most recent read of this sensor failed",
			[]string{"key"}, nil,
		),
	}
}

func (c *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.stale
}

func (c *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	for _, reading := range c.source.Sensors() {
		key := reading.Id.Key()
		ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, reading.Value, key, string(reading.Id.Kind), string(reading.HardwareKind))
		staleValue := 0.0
		if reading.IsStale {
			staleValue = 1
		}
		ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, staleValue, key)
	}
}

// FanCollector exposes each fan's current RPM and duty percent.
type FanCollector struct {
	source  Source
	rpm     *prometheus.Desc
	duty    *prometheus.Desc
}

// NewFanCollector builds a collector reading from source on every
// scrape.
func NewFanCollector(source Source) *FanCollector {
	return &FanCollector{
		source: source,
		rpm: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemFan, "rpm"),
			"Current RPM reported by the fan",
			[]string{"key", "capability"}, nil,
		),
		duty: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemFan, "duty_percent"),
			"Current duty cycle percent applied to the fan",
			[]string{"key", "capability"}, nil,
		),
	}
}

func (c *FanCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rpm
	ch <- c.duty
}

func (c *FanCollector) Collect(ch chan<- prometheus.Metric) {
	for _, fan := range c.source.Fans() {
		key := fan.Id.Key()
		ch <- prometheus.MustNewConstMetric(c.rpm, prometheus.GaugeValue, float64(fan.Rpm), key, string(fan.Capability))
		if fan.DutyPercent != nil {
			ch <- prometheus.MustNewConstMetric(c.duty, prometheus.GaugeValue, *fan.DutyPercent, key, string(fan.Capability))
		}
	}
}

// SupervisorCollector exposes the Safety Supervisor's emergency flag.
type SupervisorCollector struct {
	source     EmergencySource
	emergency  *prometheus.Desc
}

// NewSupervisorCollector builds a collector reading from source on
// every scrape.
func NewSupervisorCollector(source EmergencySource) *SupervisorCollector {
	return &SupervisorCollector{
		source: source,
		emergency: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemSupervisor, "emergency"),
			"1 if the safety supervisor currently holds the emergency state",
			nil, nil,
		),
	}
}

func (c *SupervisorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.emergency
}

func (c *SupervisorCollector) Collect(ch chan<- prometheus.Metric) {
	value := 0.0
	if c.source.IsEmergency() {
		value = 1
	}
	ch <- prometheus.MustNewConstMetric(c.emergency, prometheus.GaugeValue, value)
}
