package model

import "time"

// FanControlMode selects how a FanAssignment decides its target
// percent each tick.
type FanControlMode string

const (
	ModeAuto   FanControlMode = "auto"
	ModeManual FanControlMode = "manual"
	ModeCurve  FanControlMode = "curve"
)

// FanAssignment binds one fan to a control mode within a profile. Curve
// references are weak (by id, resolved through the configuration) so
// deleting a curve never leaves a dangling owning pointer.
type FanAssignment struct {
	FanKey         string          `json:"fanKey"`
	Mode           FanControlMode  `json:"mode"`
	ManualPercent  *float64        `json:"manualPercent,omitempty"`
	CurveId        *string         `json:"curveId,omitempty"`
	LastApplied    *float64        `json:"lastAppliedPercent,omitempty"`
}

// FanProfile is a named mapping from fan key to FanAssignment. Exactly
// one profile per configuration carries IsDefault, and the default
// profile may never be deleted.
type FanProfile struct {
	Id          string                   `json:"id"`
	Name        string                   `json:"name"`
	IsDefault   bool                     `json:"isDefault"`
	Assignments map[string]FanAssignment `json:"assignments"`
	CreatedAt   time.Time                `json:"createdAt"`
	ModifiedAt  time.Time                `json:"modifiedAt"`
}
