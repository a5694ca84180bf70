// Package hwadapter defines the Hardware Adapter capability set: the
// single abstraction over sensor reads and fan writes that
// the rest of the daemon is built against. Two implementations satisfy
// the contract — a mock (package mockhw) usable purely by configuration,
// and a sysfs/hwmon-backed real adapter (package sysfshw).
package hwadapter

import (
	"context"

	"github.com/fantuned/fantuned/internal/model"
)

// Adapter abstracts sensor monitoring and fan control behind one
// capability set. Implementations must be safe to call concurrently
// with the Control Loop's own calls; they serialize internally.
type Adapter interface {
	// Initialize is idempotent and returns any non-fatal warnings
	// discovered during startup. A failure here is fatal to the
	// service (fterrors.ErrAdapterInit).
	Initialize(ctx context.Context) (warnings []string, err error)

	// Refresh re-reads all hardware. Failure is non-fatal; the
	// caller records it as a Safety Supervisor failure.
	Refresh(ctx context.Context) error

	// Sensors returns a snapshot of all current sensor readings.
	Sensors() []model.SensorReading

	// Fans returns a snapshot of all fan devices with their current
	// capability classification.
	Fans() []model.FanDevice

	// SetSpeed clamps percent to [0,100] and attempts to apply it to
	// fan. It returns false, never an error, when the fan's
	// capability is not FullControl; on I/O failure it downgrades the
	// fan to MonitorOnly and also returns false.
	SetSpeed(ctx context.Context, fanKey string, percent float64) bool

	// SetAuto reverts fan to hardware/BIOS control.
	SetAuto(ctx context.Context, fanKey string) error

	// SetAllAuto bulk-reverts every fan to hardware/BIOS control,
	// used at shutdown.
	SetAllAuto(ctx context.Context) error
}
