package model

import "fmt"

// AppConfiguration is the durable holder of curves, profiles, and
// thresholds. It is loaded once at startup by the Configuration Store
// and thereafter mutated only through atomic update transactions that
// yield a new snapshot.
type AppConfiguration struct {
	PollIntervalMs      int                   `json:"pollIntervalMs"`
	EmergencyCpuTempC   float64               `json:"emergencyCpuTempC"`
	EmergencyGpuTempC   float64               `json:"emergencyGpuTempC"`
	EmergencyHysteresis float64               `json:"emergencyHysteresisC"`
	DefaultMinFanPct    float64               `json:"defaultMinFanPercent"`
	ActiveProfileId     string                `json:"activeProfileId"`
	Curves              map[string]FanCurve   `json:"curves"`
	Profiles            map[string]FanProfile `json:"profiles"`
	TelemetryEnabled    bool                  `json:"telemetryEnabled"`
}

// Validate checks the structural invariants: poll interval and
// emergency temperature bounds, min-fan bounds, that the active profile
// and every curve referenced by an assignment resolve, and that exactly
// one profile is marked default.
func (c AppConfiguration) Validate() error {
	if c.PollIntervalMs < 100 || c.PollIntervalMs > 10000 {
		return fmt.Errorf("pollIntervalMs %d out of range [100,10000]", c.PollIntervalMs)
	}
	if c.EmergencyCpuTempC < 50 || c.EmergencyCpuTempC > 120 {
		return fmt.Errorf("emergencyCpuTempC %.1f out of range [50,120]", c.EmergencyCpuTempC)
	}
	if c.EmergencyGpuTempC < 50 || c.EmergencyGpuTempC > 120 {
		return fmt.Errorf("emergencyGpuTempC %.1f out of range [50,120]", c.EmergencyGpuTempC)
	}
	if c.DefaultMinFanPct < 0 || c.DefaultMinFanPct > 50 {
		return fmt.Errorf("defaultMinFanPercent %.1f out of range [0,50]", c.DefaultMinFanPct)
	}
	if len(c.Curves) < 1 {
		return fmt.Errorf("configuration must contain at least one curve")
	}
	if len(c.Profiles) < 1 {
		return fmt.Errorf("configuration must contain at least one profile")
	}

	if _, ok := c.Profiles[c.ActiveProfileId]; !ok {
		return fmt.Errorf("active profile id %q does not resolve to a profile", c.ActiveProfileId)
	}

	defaultCount := 0
	for id, profile := range c.Profiles {
		if profile.IsDefault {
			defaultCount++
		}
		for fanKey, assignment := range profile.Assignments {
			if assignment.Mode == ModeCurve {
				if assignment.CurveId == nil {
					return fmt.Errorf("profile %q fan %q: curve mode requires a curveId", id, fanKey)
				}
				if _, ok := c.Curves[*assignment.CurveId]; !ok {
					return fmt.Errorf("profile %q fan %q: curve id %q does not resolve", id, fanKey, *assignment.CurveId)
				}
			}
		}
	}
	if defaultCount != 1 {
		return fmt.Errorf("configuration must have exactly one default profile, found %d", defaultCount)
	}

	return nil
}

// DefaultProfile returns the profile marked as default, if any.
func (c AppConfiguration) DefaultProfile() (FanProfile, bool) {
	for _, profile := range c.Profiles {
		if profile.IsDefault {
			return profile, true
		}
	}
	return FanProfile{}, false
}
