// Package mockhw implements a deterministic, in-memory Hardware
// Adapter for testing and for any deployment started with --mock. It
// satisfies the same capability contract as the real sysfs-backed
// adapter, selectable purely by configuration.
package mockhw

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/fantuned/fantuned/internal/model"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Clock abstracts time so the mock is deterministically testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FanSpec seeds one simulated fan.
type FanSpec struct {
	Key          string
	DisplayName  string
	HardwareName string
	Capability   model.FanControlCapability
	BaseRpm      int
	MaxRpm       int
}

// SensorSpec seeds one simulated sensor.
type SensorSpec struct {
	Key          string
	Name         string
	HardwareName string
	HardwareKind model.HardwareKind
	Kind         model.SensorKind
	BaseValue    float64
	Unit         string
	Jitter       float64
}

// Adapter is the mock Hardware Adapter. It owns a jitter window per
// sensor (asecurityteam/rolling, the same library internal/fans uses
// for fan-settle detection) so repeated reads drift plausibly instead
// of staying static.
type Adapter struct {
	mu sync.Mutex

	clock Clock

	fanSpecs    map[string]FanSpec
	sensorSpecs map[string]SensorSpec

	fanDuty   map[string]float64
	fanAuto   map[string]bool
	fanRpm    cmap.ConcurrentMap[string, int]
	sensorJit cmap.ConcurrentMap[string, *rolling.PointPolicy]

	seed int
}

// New constructs a mock adapter from the given fan and sensor specs.
func New(fans []FanSpec, sensors []SensorSpec, clock Clock) *Adapter {
	if clock == nil {
		clock = systemClock{}
	}
	a := &Adapter{
		clock:       clock,
		fanSpecs:    map[string]FanSpec{},
		sensorSpecs: map[string]SensorSpec{},
		fanDuty:     map[string]float64{},
		fanAuto:     map[string]bool{},
		fanRpm:      cmap.New[int](),
		sensorJit:   cmap.New[*rolling.PointPolicy](),
	}
	for _, f := range fans {
		a.fanSpecs[f.Key] = f
		a.fanDuty[f.Key] = 0
		a.fanAuto[f.Key] = true
		a.fanRpm.Set(f.Key, f.BaseRpm)
	}
	for _, s := range sensors {
		a.sensorSpecs[s.Key] = s
		window := rolling.NewPointPolicy(rolling.NewWindow(8))
		for i := 0; i < 8; i++ {
			window.Append(s.BaseValue)
		}
		a.sensorJit.Set(s.Key, window)
	}
	return a
}

func (a *Adapter) Initialize(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (a *Adapter) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seed++

	for key, spec := range a.sensorSpecs {
		window, _ := a.sensorJit.Get(key)
		next := spec.BaseValue + spec.Jitter*math.Sin(float64(a.seed)/3.0+float64(len(key)))
		window.Append(next)
	}
	for key, spec := range a.fanSpecs {
		duty := a.fanDuty[key]
		rpm := int(float64(spec.MaxRpm) * duty / 100)
		if a.fanAuto[key] {
			rpm = spec.BaseRpm
		}
		a.fanRpm.Set(key, rpm)
	}
	return nil
}

func (a *Adapter) Sensors() []model.SensorReading {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	readings := make([]model.SensorReading, 0, len(a.sensorSpecs))
	for key, spec := range a.sensorSpecs {
		window, _ := a.sensorJit.Get(key)
		value := window.Reduce(rolling.Avg)
		readings = append(readings, model.SensorReading{
			Id: model.SensorId{
				HardwareId: key,
				Name:       spec.Name,
				Kind:       spec.Kind,
			},
			DisplayName:  spec.Name,
			HardwareName: spec.HardwareName,
			HardwareKind: spec.HardwareKind,
			Value:        value,
			Unit:         spec.Unit,
			Timestamp:    now,
			IsStale:      false,
		})
	}
	return readings
}

func (a *Adapter) Fans() []model.FanDevice {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	fans := make([]model.FanDevice, 0, len(a.fanSpecs))
	for key, spec := range a.fanSpecs {
		rpm, _ := a.fanRpm.Get(key)
		duty := a.fanDuty[key]
		fans = append(fans, model.FanDevice{
			Id: model.FanId{
				HardwareId: key,
				Name:       spec.DisplayName,
			},
			DisplayName:  spec.DisplayName,
			HardwareName: spec.HardwareName,
			Capability:   spec.Capability,
			Rpm:          rpm,
			DutyPercent:  &duty,
			LastUpdate:   now,
		})
	}
	return fans
}

func (a *Adapter) SetSpeed(ctx context.Context, fanKey string, percent float64) bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	spec, ok := a.fanSpecs[fanKey]
	if !ok {
		// Also accept the FanId key that Fans() reports for this spec.
		for key, candidate := range a.fanSpecs {
			if (model.FanId{HardwareId: key, Name: candidate.DisplayName}).Key() == fanKey {
				spec, ok, fanKey = candidate, true, key
				break
			}
		}
	}
	if !ok || spec.Capability != model.CapabilityFullControl {
		return false
	}
	a.fanDuty[fanKey] = percent
	a.fanAuto[fanKey] = false
	return true
}

func (a *Adapter) SetAuto(ctx context.Context, fanKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.fanSpecs[fanKey]; !ok {
		return fmt.Errorf("unknown fan: %s", fanKey)
	}
	a.fanAuto[fanKey] = true
	return nil
}

func (a *Adapter) SetAllAuto(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.fanSpecs {
		a.fanAuto[key] = true
	}
	return nil
}
