// Package control implements the Control Loop: the tick-driven pipeline
// that refreshes hardware, runs the Safety Supervisor, resolves every
// fan's target duty cycle through its assignment, and applies it. It is
// grounded on internal/controller.FanController.Run's loop and
// internal/backend.go's oklog/run wiring of one goroutine per concern,
// generalized here to a single loop driving every fan from one shared
// AppConfiguration snapshot instead of one goroutine per fan.
package control

import (
	"context"
	"time"

	"github.com/fantuned/fantuned/internal/configstore"
	"github.com/fantuned/fantuned/internal/curves"
	"github.com/fantuned/fantuned/internal/hwadapter"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/safety"
	"github.com/fantuned/fantuned/internal/ui"
)

// dutyDeadBand is the dead-band on duty percent: a change must exceed
// it to be written to hardware; smaller or equal deltas are absorbed to
// avoid chattering the fan.
const dutyDeadBand = 0.5

// Clock abstracts time.Now so the loop's tick timing is deterministically
// testable, matching the same seam used in hwadapter/mockhw.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Broadcaster is the Loop's only outward dependency besides hardware
// and configuration: it is how each tick's sensor/fan snapshot reaches
// IPC subscribers. SubscriberCount lets the loop skip the (possibly
// expensive) broadcast entirely when nobody is listening.
type Broadcaster interface {
	SubscriberCount() int
	Broadcast(sensors []model.SensorReading, fans []model.FanDevice)
}

type noopBroadcaster struct{}

func (noopBroadcaster) SubscriberCount() int { return 0 }
func (noopBroadcaster) Broadcast([]model.SensorReading, []model.FanDevice) {}

// Loop owns one tick of the daemon's control cycle: refresh hardware,
// evaluate safety, resolve every fan's target percent, apply it.
type Loop struct {
	adapter     hwadapter.Adapter
	store       *configstore.Store
	supervisor  *safety.Supervisor
	broadcaster Broadcaster
	clock       Clock

	pollInterval time.Duration

	curveState map[string]float64 // curve id -> last output, for hysteresis continuity
}

// Option configures an optional Loop dependency.
type Option func(*Loop)

// WithBroadcaster installs a Broadcaster other than the no-op default.
func WithBroadcaster(b Broadcaster) Option {
	return func(l *Loop) { l.broadcaster = b }
}

// WithClock installs a Clock other than the system clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// New builds a Loop. pollInterval comes from the active configuration's
// PollIntervalMs at construction time; subsequent configuration changes
// are picked up fresh from the store each tick except for the interval,
// which would require restarting the ticking goroutine to change live.
func New(adapter hwadapter.Adapter, store *configstore.Store, supervisor *safety.Supervisor, pollInterval time.Duration, opts ...Option) *Loop {
	l := &Loop{
		adapter:      adapter,
		store:        store,
		supervisor:   supervisor,
		broadcaster:  noopBroadcaster{},
		clock:        systemClock{},
		pollInterval: pollInterval,
		curveState:   map[string]float64{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run ticks until ctx is cancelled. Each tick's own duration is
// subtracted from the sleep so a slow refresh never compounds drift;
// the sleep is never negative.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		start := l.clock.Now()
		l.Tick(ctx)
		elapsed := l.clock.Now().Sub(start)

		sleep := l.pollInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one iteration of refresh -> safety -> resolve ->
// apply -> broadcast. It is exported directly so tests can drive a
// single deterministic cycle.
func (l *Loop) Tick(ctx context.Context) {
	if err := l.adapter.Refresh(ctx); err != nil {
		ui.Warning("Hardware refresh failed: %v", err)
		l.supervisor.RecordFailure()
		time.Sleep(time.Second)
		return
	}
	l.supervisor.RecordSuccess()

	readings := l.adapter.Sensors()
	fans := l.adapter.Fans()
	l.supervisor.Evaluate(readings)

	if l.supervisor.IsEmergency() {
		l.forceFullControlToMax(ctx, fans)

		if l.broadcaster.SubscriberCount() > 0 {
			l.broadcaster.Broadcast(readings, fans)
		}
		return
	}

	cfg := l.store.Get()
	profile, ok := cfg.Profiles[cfg.ActiveProfileId]
	if !ok {
		ui.Warning("Active profile %q does not resolve, skipping tick", cfg.ActiveProfileId)
		return
	}

	for _, fan := range fans {
		assignment, ok := profile.Assignments[fan.Id.Key()]
		if !ok {
			continue
		}

		target, warning := l.resolveTarget(cfg, assignment, readings, fan)
		if warning != "" {
			ui.Warning("%s", warning)
		}

		target = l.supervisor.EnforceMinimum(target)
		if ok, warning := l.supervisor.ValidateFanSpeed(target, fan); !ok {
			ui.Warning("%s", warning)
			continue
		}

		l.applyIfChanged(ctx, fan, target)
	}

	if l.broadcaster.SubscriberCount() > 0 {
		l.broadcaster.Broadcast(readings, fans)
	}
}

// resolveTarget computes the duty percent an assignment wants this
// tick, without yet applying safety minimums.
func (l *Loop) resolveTarget(cfg model.AppConfiguration, assignment model.FanAssignment, readings []model.SensorReading, fan model.FanDevice) (float64, string) {
	switch assignment.Mode {
	case model.ModeManual:
		if assignment.ManualPercent == nil {
			return 0, "manual assignment for " + fan.Id.Key() + " has no percent set, treating as 0"
		}
		return *assignment.ManualPercent, ""

	case model.ModeCurve:
		if assignment.CurveId == nil {
			return 0, "curve assignment for " + fan.Id.Key() + " has no curve id, treating as 0"
		}
		curve, ok := cfg.Curves[*assignment.CurveId]
		if !ok {
			return 0, "curve " + *assignment.CurveId + " no longer resolves, treating as 0"
		}
		return l.evaluateCurve(curve, readings), ""

	case model.ModeAuto:
		fallthrough
	default:
		return 0, ""
	}
}

// evaluateCurve finds the curve's source sensor (or falls back to the
// first CPU temperature reading) and runs it through the Curve Engine,
// carrying hysteresis state across ticks per curve id.
func (l *Loop) evaluateCurve(curve model.FanCurve, readings []model.SensorReading) float64 {
	var value float64
	found := false

	if curve.SourceSensorId != nil {
		for _, r := range readings {
			if r.Id == *curve.SourceSensorId {
				value = r.Value
				found = true
				break
			}
		}
	}
	if !found {
		for _, r := range readings {
			if r.IsCpuTemperature() {
				value = r.Value
				found = true
				break
			}
		}
	}
	if !found {
		return curve.MinPercent
	}

	var lastPtr *float64
	if last, ok := l.curveState[curve.Id]; ok {
		lastPtr = &last
	}

	var output float64
	if curve.Linear {
		output = curves.InterpolateLinear(curve, value, lastPtr)
	} else {
		output = curves.Interpolate(curve, value, lastPtr)
	}
	l.curveState[curve.Id] = output
	return output
}

// forceFullControlToMax commands every FullControl fan to 100%,
// bypassing curve/manual resolution entirely. It runs every tick the
// supervisor reports Emergency, not just on the transition, so a fan
// added or reclassified mid-emergency is still covered.
func (l *Loop) forceFullControlToMax(ctx context.Context, fans []model.FanDevice) {
	for _, fan := range fans {
		if fan.Capability != model.CapabilityFullControl {
			continue
		}
		l.applyIfChanged(ctx, fan, 100)
	}
}

// applyIfChanged writes the target duty cycle only when it differs
// from the fan's current duty by more than dutyDeadBand.
func (l *Loop) applyIfChanged(ctx context.Context, fan model.FanDevice, target float64) {
	current := 0.0
	if fan.DutyPercent != nil {
		current = *fan.DutyPercent
	}
	if abs(target-current) <= dutyDeadBand {
		return
	}
	l.adapter.SetSpeed(ctx, fan.Id.Key(), target)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
