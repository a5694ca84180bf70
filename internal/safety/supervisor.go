// Package safety implements the Safety Supervisor state machine: the
// Normal/Emergency override that forces every controllable fan to 100%
// whenever CPU or GPU temperatures cross their configured thresholds, or
// whenever sensor reads fail too many times in a row.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/fantuned/fantuned/internal/model"
)

const defaultMaxConsecutiveFailures = 5

// State is the Safety Supervisor's current mode.
type State string

const (
	StateNormal    State = "normal"
	StateEmergency State = "emergency"
)

// Thresholds are the temperature limits the supervisor enforces,
// replaceable atomically via UpdateThresholds.
type Thresholds struct {
	EmergencyCpuTempC      float64
	EmergencyGpuTempC      float64
	EmergencyHysteresisC   float64
	DefaultMinFanPercent   float64
	MaxConsecutiveFailures int
}

// Status is an immutable snapshot of the supervisor's current state,
// safe to hand to callers without sharing the internal mutex.
type Status struct {
	State             State
	Reason            string
	EnteredAt         time.Time
	TriggeringTempC   float64
	FailureCount      int
	Degraded          bool
	ActiveWarnings    []string
}

// Supervisor owns the emergency state machine. Each instance protects
// its own state with a single mutex and never calls into another
// component while holding it.
type Supervisor struct {
	mu sync.Mutex

	thresholds Thresholds

	state           State
	reason          string
	enteredAt       time.Time
	triggeringTempC float64
	failureCount    int
	warnings        []string

	onAlert func(severity, message string)
}

// NewSupervisor constructs a Supervisor starting in the Normal state.
func NewSupervisor(thresholds Thresholds, onAlert func(severity, message string)) *Supervisor {
	if thresholds.MaxConsecutiveFailures <= 0 {
		thresholds.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	return &Supervisor{
		thresholds: thresholds,
		state:      StateNormal,
		onAlert:    onAlert,
	}
}

// UpdateThresholds atomically replaces the thresholds the supervisor
// enforces.
func (s *Supervisor) UpdateThresholds(t Thresholds) {
	if t.MaxConsecutiveFailures <= 0 {
		t.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = t
}

// RecordSuccess resets the consecutive-failure counter to zero, as
// every successful sensor read does.
func (s *Supervisor) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount = 0
}

// RecordFailure increments the consecutive-failure counter and, if it
// reaches the configured maximum, transitions to Emergency.
func (s *Supervisor) RecordFailure() {
	s.mu.Lock()
	s.failureCount++
	count := s.failureCount
	max := s.thresholds.MaxConsecutiveFailures
	s.mu.Unlock()

	if count >= max {
		s.enterEmergency(fmt.Sprintf("%d consecutive sensor read failures", count), 0)
	}
}

// Evaluate hands a fresh sensor snapshot to the supervisor. It may
// transition Normal -> Emergency (any CPU reading at or above the CPU
// threshold, or any GPU reading at or above the GPU threshold) or
// Emergency -> Normal (both the max CPU and max GPU readings have
// fallen to or below threshold-minus-hysteresis). Active warnings are
// recomputed on every call.
func (s *Supervisor) Evaluate(readings []model.SensorReading) {
	var maxCpu, maxGpu float64
	haveCpu, haveGpu := false, false
	var stale []string

	for _, r := range readings {
		if r.IsStale {
			stale = append(stale, r.DisplayName)
		}
		if r.Id.Kind != model.SensorTemperature {
			continue
		}
		if r.HardwareKind == model.HardwareCpu {
			if !haveCpu || r.Value > maxCpu {
				maxCpu = r.Value
				haveCpu = true
			}
		} else if r.HardwareKind.IsGpu() {
			if !haveGpu || r.Value > maxGpu {
				maxGpu = r.Value
				haveGpu = true
			}
		}
	}

	s.mu.Lock()
	thresholds := s.thresholds
	currentState := s.state
	s.mu.Unlock()

	warnings := s.computeWarnings(maxCpu, haveCpu, maxGpu, haveGpu, thresholds, stale)
	s.mu.Lock()
	s.warnings = warnings
	s.mu.Unlock()

	switch currentState {
	case StateNormal:
		if haveCpu && maxCpu >= thresholds.EmergencyCpuTempC {
			s.enterEmergency(fmt.Sprintf("CPU temperature %.1f°C reached threshold %.1f°C", maxCpu, thresholds.EmergencyCpuTempC), maxCpu)
		} else if haveGpu && maxGpu >= thresholds.EmergencyGpuTempC {
			s.enterEmergency(fmt.Sprintf("GPU temperature %.1f°C reached threshold %.1f°C", maxGpu, thresholds.EmergencyGpuTempC), maxGpu)
		}
	case StateEmergency:
		cpuClear := !haveCpu || maxCpu <= thresholds.EmergencyCpuTempC-thresholds.EmergencyHysteresisC
		gpuClear := !haveGpu || maxGpu <= thresholds.EmergencyGpuTempC-thresholds.EmergencyHysteresisC
		if cpuClear && gpuClear {
			s.exitEmergency()
		}
	}
}

func (s *Supervisor) computeWarnings(maxCpu float64, haveCpu bool, maxGpu float64, haveGpu bool, t Thresholds, stale []string) []string {
	var warnings []string
	if haveCpu && maxCpu >= t.EmergencyCpuTempC-10 && maxCpu < t.EmergencyCpuTempC {
		warnings = append(warnings, fmt.Sprintf("CPU temperature %.1f°C high", maxCpu))
	}
	if haveGpu && maxGpu >= t.EmergencyGpuTempC-10 && maxGpu < t.EmergencyGpuTempC {
		warnings = append(warnings, fmt.Sprintf("GPU temperature %.1f°C high", maxGpu))
	}
	for _, name := range stale {
		warnings = append(warnings, fmt.Sprintf("sensor %q is stale", name))
	}
	return warnings
}

func (s *Supervisor) enterEmergency(reason string, triggeringTemp float64) {
	s.mu.Lock()
	if s.state == StateEmergency {
		s.mu.Unlock()
		return
	}
	s.state = StateEmergency
	s.reason = reason
	s.enteredAt = time.Now()
	s.triggeringTempC = triggeringTemp
	s.mu.Unlock()

	if s.onAlert != nil {
		s.onAlert("emergency", reason)
	}
}

func (s *Supervisor) exitEmergency() {
	s.mu.Lock()
	if s.state == StateNormal {
		s.mu.Unlock()
		return
	}
	s.state = StateNormal
	s.reason = ""
	s.triggeringTempC = 0
	s.mu.Unlock()

	if s.onAlert != nil {
		s.onAlert("info", "exited emergency state")
	}
}

// IsEmergency reports whether the supervisor is currently in the
// Emergency state.
func (s *Supervisor) IsEmergency() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateEmergency
}

// EnforceMinimum clamps percent up to at least the configured default
// minimum fan percent.
func (s *Supervisor) EnforceMinimum(percent float64) float64 {
	s.mu.Lock()
	min := s.thresholds.DefaultMinFanPercent
	s.mu.Unlock()
	if percent < min {
		return min
	}
	return percent
}

// ValidateFanSpeed checks whether percent is an acceptable target for
// fan, returning a warning string when the value is technically
// acceptable but notable (e.g. commanding a spinning fan to 0%).
func (s *Supervisor) ValidateFanSpeed(percent float64, fan model.FanDevice) (ok bool, warning string) {
	if percent < 0 || percent > 100 {
		return false, "out of range"
	}
	s.mu.Lock()
	min := s.thresholds.DefaultMinFanPercent
	s.mu.Unlock()
	if percent < min {
		return false, "below minimum"
	}
	if percent == 0 && fan.IsSpinning() {
		return true, "setting fan to 0% may stop it"
	}
	return true, ""
}

// Status returns an immutable snapshot of the supervisor's state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	warnings := make([]string, len(s.warnings))
	copy(warnings, s.warnings)
	return Status{
		State:           s.state,
		Reason:          s.reason,
		EnteredAt:       s.enteredAt,
		TriggeringTempC: s.triggeringTempC,
		FailureCount:    s.failureCount,
		Degraded:        s.failureCount > 0,
		ActiveWarnings:  warnings,
	}
}
