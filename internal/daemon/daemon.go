// Package daemon wires every component into one running service: the
// Hardware Adapter (mock or real), Configuration Store, Safety
// Supervisor, Control Loop, IPC Endpoint, and telemetry exporter,
// coordinated under a single oklog/run group with one shared
// cancellation context, the same shape as internal/backend.go's
// RunDaemon/InitializeObjects, generalized from a per-sensor/per-fan
// goroutine set to one Control Loop goroutine plus the IPC acceptor
// pool and the metrics server.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fantuned/fantuned/internal/configstore"
	"github.com/fantuned/fantuned/internal/control"
	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/fantuned/fantuned/internal/hwadapter"
	"github.com/fantuned/fantuned/internal/hwadapter/mockhw"
	"github.com/fantuned/fantuned/internal/hwadapter/sysfshw"
	"github.com/fantuned/fantuned/internal/ipc"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/safety"
	"github.com/fantuned/fantuned/internal/telemetry"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/oklog/run"
)

// Options configures a single daemon run.
type Options struct {
	ConfigPath    string
	Mock          bool
	SocketNetwork string // "unix" in production, "tcp" usable for local testing
	SocketAddress string
	TelemetryPort int
	Version       string
}

func (o Options) withDefaults() Options {
	if o.SocketNetwork == "" {
		o.SocketNetwork = "unix"
	}
	if o.SocketAddress == "" {
		o.SocketAddress = "/run/fantuned.sock"
	}
	return o
}

// Run builds every component and blocks until ctx is cancelled or an
// unrecoverable error occurs in any of them.
func Run(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()

	store := configstore.New(opts.ConfigPath)
	cfg, err := store.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			ui.Warning("Could not load configuration, seeding a default: %v", err)
		}
		cfg, err = seedDefaultConfiguration(store)
		if err != nil {
			return fmt.Errorf("%w: %v", fterrors.ErrConfigInvalid, err)
		}
	}

	adapter, warnings, err := buildAdapter(ctx, opts.Mock)
	if err != nil {
		return fmt.Errorf("%w: %v", fterrors.ErrAdapterInit, err)
	}
	for _, w := range warnings {
		ui.Warning("%s", w)
	}

	supervisor := safety.NewSupervisor(safety.Thresholds{
		EmergencyCpuTempC:    cfg.EmergencyCpuTempC,
		EmergencyGpuTempC:    cfg.EmergencyGpuTempC,
		EmergencyHysteresisC: cfg.EmergencyHysteresis,
		DefaultMinFanPercent: cfg.DefaultMinFanPct,
	}, ui.NotifyAlert)

	if err := os.RemoveAll(socketCleanupPath(opts)); err != nil {
		ui.Warning("Could not remove stale socket: %v", err)
	}
	listener, err := net.Listen(opts.SocketNetwork, opts.SocketAddress)
	if err != nil {
		return fmt.Errorf("binding ipc listener: %w", err)
	}

	endpoint := ipc.NewEndpoint(listener, adapter, store, supervisor, opts.Version)

	loop := control.New(adapter, store, supervisor, time.Duration(cfg.PollIntervalMs)*time.Millisecond,
		control.WithBroadcaster(endpoint))

	telemetryServer := telemetry.NewServer(opts.TelemetryPort,
		telemetry.NewSensorCollector(adapter),
		telemetry.NewFanCollector(adapter),
		telemetry.NewSupervisorCollector(supervisor),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return loop.Run(runCtx)
	}, func(err error) {
		cancel()
	})

	g.Add(func() error {
		return endpoint.Run(runCtx)
	}, func(err error) {
		cancel()
	})

	if cfg.TelemetryEnabled {
		g.Add(func() error {
			return telemetryServer.Run(runCtx)
		}, func(err error) {
			cancel()
		})
	}

	g.Add(func() error {
		<-runCtx.Done()
		return nil
	}, func(err error) {
		cancel()
	})

	err = g.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if setErr := adapter.SetAllAuto(shutdownCtx); setErr != nil {
		ui.Warning("Failed to revert fans to automatic control during shutdown: %v", setErr)
	}

	return err
}

func buildAdapter(ctx context.Context, mock bool) (hwadapter.Adapter, []string, error) {
	if mock {
		a := mockhw.New(defaultMockFans(), defaultMockSensors(), nil)
		warnings, err := a.Initialize(ctx)
		return a, warnings, err
	}

	a := sysfshw.New()
	warnings, err := a.Initialize(ctx)
	return a, warnings, err
}

func defaultMockFans() []mockhw.FanSpec {
	return []mockhw.FanSpec{
		{Key: "mock-cpu-fan", DisplayName: "CPU Fan", HardwareName: "mock", Capability: model.CapabilityFullControl, BaseRpm: 600, MaxRpm: 2200},
		{Key: "mock-case-fan", DisplayName: "Case Fan", HardwareName: "mock", Capability: model.CapabilityFullControl, BaseRpm: 500, MaxRpm: 1800},
	}
}

func defaultMockSensors() []mockhw.SensorSpec {
	return []mockhw.SensorSpec{
		{Key: "mock-cpu-temp", Name: "Package", HardwareName: "mock", HardwareKind: model.HardwareCpu, Kind: model.SensorTemperature, BaseValue: 45, Unit: "°C", Jitter: 3},
		{Key: "mock-gpu-temp", Name: "GPU", HardwareName: "mock", HardwareKind: model.HardwareGpuNvidia, Kind: model.SensorTemperature, BaseValue: 50, Unit: "°C", Jitter: 4},
	}
}

// seedDefaultConfiguration writes a minimal, valid configuration the
// first time the daemon runs against an empty or missing store.
func seedDefaultConfiguration(store *configstore.Store) (model.AppConfiguration, error) {
	return store.Update(func(cfg *model.AppConfiguration) error {
		*cfg = model.AppConfiguration{
			PollIntervalMs:      1000,
			EmergencyCpuTempC:   90,
			EmergencyGpuTempC:   95,
			EmergencyHysteresis: 5,
			DefaultMinFanPct:    20,
			ActiveProfileId:     "default",
			TelemetryEnabled:    true,
			Curves: map[string]model.FanCurve{
				"default-curve": {
					Id:   "default-curve",
					Name: "Default",
					Points: []model.CurvePoint{
						{TemperatureC: 40, Percent: 20},
						{TemperatureC: 60, Percent: 50},
						{TemperatureC: 80, Percent: 100},
					},
					MinPercent:      20,
					MaxPercent:      100,
					HysteresisC:     2,
					ResponseSeconds: 5,
				},
			},
			Profiles: map[string]model.FanProfile{
				"default": {
					Id:          "default",
					Name:        "Default",
					IsDefault:   true,
					Assignments: map[string]model.FanAssignment{},
				},
			},
		}
		return nil
	})
}

func socketCleanupPath(opts Options) string {
	if opts.SocketNetwork != "unix" {
		return ""
	}
	return opts.SocketAddress
}
