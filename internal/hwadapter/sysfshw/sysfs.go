// Package sysfshw implements the real Hardware Adapter by walking Linux
// hwmon sysfs devices directly, the way internal/fans and
// internal/sensors' hwmon implementations read/write pwm*/temp*_input
// files, but without the cgo liblm-sensors binding used there to
// discover chips — see DESIGN.md for why that dependency was dropped.
package sysfshw

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/ui"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// hwmonRoot is a var, not a const, so tests can point it at a
// synthetic sysfs tree built under t.TempDir().
var hwmonRoot = "/sys/class/hwmon"

var tempInputPattern = regexp.MustCompile(`^temp(\d+)_input$`)
var fanInputPattern = regexp.MustCompile(`^fan(\d+)_input$`)
var pwmOutputPattern = regexp.MustCompile(`^pwm(\d+)$`)

type fanEntry struct {
	id         model.FanId
	pwmPath    string
	rpmPath    string
	capability model.FanControlCapability
}

type sensorEntry struct {
	id   model.SensorId
	path string
}

// Adapter reads CPU/GPU/motherboard temperatures and fan tachometers
// from /sys/class/hwmon and writes PWM duty cycles back through the
// same interface. It downgrades a fan to MonitorOnly the first time a
// write fails.
type Adapter struct {
	mu sync.Mutex

	fans    map[string]*fanEntry
	sensors map[string]*sensorEntry

	readings cmap.ConcurrentMap[string, model.SensorReading]
	devices  cmap.ConcurrentMap[string, model.FanDevice]
}

// New constructs a sysfs-backed adapter. Discovery happens in
// Initialize, not here, so construction can never fail.
func New() *Adapter {
	return &Adapter{
		fans:     map[string]*fanEntry{},
		sensors:  map[string]*sensorEntry{},
		readings: cmap.New[model.SensorReading](),
		devices:  cmap.New[model.FanDevice](),
	}
}

// Initialize walks /sys/class/hwmon, discovering every pwm output,
// fan tachometer, and temperature sensor. A chip with neither fans nor
// sensors is skipped. Returns a warning per chip it could not classify
// as CPU/GPU (falls back to HardwareUnknown) rather than failing.
func (a *Adapter) Initialize(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(hwmonRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hwmonRoot, err)
	}

	var warnings []string
	for _, entry := range entries {
		chipPath := filepath.Join(hwmonRoot, entry.Name())
		name := readNameFile(chipPath)
		kind := classifyHardware(name)
		if kind == model.HardwareUnknown {
			warnings = append(warnings, fmt.Sprintf("hwmon chip %q: could not classify hardware kind, defaulting to unknown", name))
		}

		files, err := os.ReadDir(chipPath)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("hwmon chip %q unreadable: %v", name, err))
			continue
		}

		for _, f := range files {
			switch {
			case tempInputPattern.MatchString(f.Name()):
				idx := tempInputPattern.FindStringSubmatch(f.Name())[1]
				id := model.SensorId{HardwareId: name, Name: "temp" + idx, Kind: model.SensorTemperature}
				a.sensors[id.Key()] = &sensorEntry{id: id, path: filepath.Join(chipPath, f.Name())}
			case fanInputPattern.MatchString(f.Name()):
				idx := fanInputPattern.FindStringSubmatch(f.Name())[1]
				fanKey := model.FanId{HardwareId: name, Name: "fan" + idx}.Key()
				entryPtr := a.fans[fanKey]
				if entryPtr == nil {
					entryPtr = &fanEntry{id: model.FanId{HardwareId: name, Name: "fan" + idx}}
					a.fans[fanKey] = entryPtr
				}
				entryPtr.rpmPath = filepath.Join(chipPath, f.Name())
			case pwmOutputPattern.MatchString(f.Name()) && !strings.Contains(f.Name(), "_"):
				idx := pwmOutputPattern.FindStringSubmatch(f.Name())[1]
				fanKey := model.FanId{HardwareId: name, Name: "fan" + idx}.Key()
				entryPtr := a.fans[fanKey]
				if entryPtr == nil {
					entryPtr = &fanEntry{id: model.FanId{HardwareId: name, Name: "fan" + idx}}
					a.fans[fanKey] = entryPtr
				}
				entryPtr.pwmPath = filepath.Join(chipPath, f.Name())
			}
		}
	}

	for key, fan := range a.fans {
		if fan.pwmPath != "" {
			fan.capability = model.CapabilityFullControl
		} else if fan.rpmPath != "" {
			fan.capability = model.CapabilityMonitorOnly
		} else {
			fan.capability = model.CapabilityUnavailable
		}
		_ = key
	}

	return warnings, nil
}

func readNameFile(chipPath string) string {
	data, err := os.ReadFile(filepath.Join(chipPath, "name"))
	if err != nil {
		return filepath.Base(chipPath)
	}
	return strings.TrimSpace(string(data))
}

// classifyHardware maps an hwmon chip name to a HardwareKind. Real
// deployments commonly see "coretemp"/"k10temp" for CPUs and
// "amdgpu"/"nouveau" for GPUs; anything else is Unknown and still
// passed through for telemetry.
func classifyHardware(name string) model.HardwareKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "coretemp"), strings.Contains(lower, "k10temp"), strings.Contains(lower, "zenpower"):
		return model.HardwareCpu
	case strings.Contains(lower, "amdgpu"):
		return model.HardwareGpuAmd
	case strings.Contains(lower, "nouveau"), strings.Contains(lower, "nvidia"):
		return model.HardwareGpuNvidia
	case strings.Contains(lower, "i915"):
		return model.HardwareGpuIntel
	case strings.Contains(lower, "nvme"):
		return model.HardwareStorage
	case strings.Contains(lower, "acpi"), strings.Contains(lower, "nct"), strings.Contains(lower, "it87"):
		return model.HardwareMotherboard
	default:
		return model.HardwareUnknown
	}
}

// Refresh re-reads every discovered temperature and fan tachometer.
// Per-entry I/O failures mark that single reading stale rather than
// aborting the whole refresh; Refresh only returns an error if nothing
// could be read at all.
func (a *Adapter) Refresh(ctx context.Context) error {
	a.mu.Lock()
	sensors := make([]*sensorEntry, 0, len(a.sensors))
	for _, s := range a.sensors {
		sensors = append(sensors, s)
	}
	fans := make([]*fanEntry, 0, len(a.fans))
	for _, f := range a.fans {
		fans = append(fans, f)
	}
	a.mu.Unlock()

	now := time.Now()
	readFailures := 0
	total := len(sensors) + len(fans)

	for _, s := range sensors {
		milliDeg, err := readInt(s.path)
		stale := err != nil
		if stale {
			readFailures++
		}
		a.readings.Set(s.id.Key(), model.SensorReading{
			Id:           s.id,
			DisplayName:  s.id.Name,
			HardwareName: s.id.HardwareId,
			HardwareKind: classifyHardware(s.id.HardwareId),
			Value:        float64(milliDeg) / 1000.0,
			Unit:         "°C",
			Timestamp:    now,
			IsStale:      stale,
		})
	}

	for _, f := range fans {
		rpm := 0
		if f.rpmPath != "" {
			value, err := readInt(f.rpmPath)
			if err != nil {
				readFailures++
			} else {
				rpm = value
			}
		}
		var duty *float64
		if f.pwmPath != "" {
			if pwmVal, err := readInt(f.pwmPath); err == nil {
				pct := float64(pwmVal) / 255.0 * 100
				duty = &pct
			}
		}
		a.devices.Set(f.id.Key(), model.FanDevice{
			Id:           f.id,
			DisplayName:  f.id.Name,
			HardwareName: f.id.HardwareId,
			Capability:   f.capability,
			Rpm:          rpm,
			DutyPercent:  duty,
			LastUpdate:   now,
		})
	}

	if total > 0 && readFailures == total {
		return fmt.Errorf("all %d hwmon reads failed", total)
	}
	return nil
}

func (a *Adapter) Sensors() []model.SensorReading {
	items := a.readings.Items()
	out := make([]model.SensorReading, 0, len(items))
	for _, r := range items {
		out = append(out, r)
	}
	return out
}

func (a *Adapter) Fans() []model.FanDevice {
	items := a.devices.Items()
	out := make([]model.FanDevice, 0, len(items))
	for _, f := range items {
		out = append(out, f)
	}
	return out
}

// SetSpeed writes a PWM value derived from percent (0..255 range) to
// the fan's pwm output. On any I/O error the fan is downgraded to
// MonitorOnly so the Control Loop never retries a broken write.
func (a *Adapter) SetSpeed(ctx context.Context, fanKey string, percent float64) bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	a.mu.Lock()
	fan, ok := a.fans[fanKey]
	a.mu.Unlock()
	if !ok || fan.capability != model.CapabilityFullControl {
		return false
	}

	pwm := int(percent / 100 * 255)
	if err := writeInt(fan.pwmPath, pwm); err != nil {
		ui.Warning("Failed to set speed of fan %s, downgrading to monitor-only: %v", fanKey, err)
		a.mu.Lock()
		fan.capability = model.CapabilityMonitorOnly
		a.mu.Unlock()
		return false
	}
	return true
}

// SetAuto reverts a fan to motherboard/BIOS control by writing the
// conventional pwmX_enable=2 value.
func (a *Adapter) SetAuto(ctx context.Context, fanKey string) error {
	a.mu.Lock()
	fan, ok := a.fans[fanKey]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown fan: %s", fanKey)
	}
	if fan.pwmPath == "" {
		return nil
	}
	return writeInt(fan.pwmPath+"_enable", 2)
}

// SetAllAuto reverts every known fan to automatic control.
func (a *Adapter) SetAllAuto(ctx context.Context) error {
	a.mu.Lock()
	keys := make([]string, 0, len(a.fans))
	for k := range a.fans {
		keys = append(keys, k)
	}
	a.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if err := a.SetAuto(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("file is empty: %s", path)
	}
	return strconv.Atoi(text)
}

func writeInt(path string, value int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(value)), 0644)
}
