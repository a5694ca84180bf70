package configstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/stretchr/testify/assert"
)

func baseConfig() model.AppConfiguration {
	return model.AppConfiguration{
		PollIntervalMs:      1000,
		EmergencyCpuTempC:   90,
		EmergencyGpuTempC:   95,
		EmergencyHysteresis: 5,
		DefaultMinFanPct:    20,
		ActiveProfileId:     "default",
		Curves: map[string]model.FanCurve{
			"cpu-curve": {
				Id:         "cpu-curve",
				Name:       "CPU",
				Points:     []model.CurvePoint{{TemperatureC: 40, Percent: 20}, {TemperatureC: 80, Percent: 100}},
				MinPercent: 20,
				MaxPercent: 100,
			},
		},
		Profiles: map[string]model.FanProfile{
			"default": {
				Id:        "default",
				Name:      "Default",
				IsDefault: true,
				Assignments: map[string]model.FanAssignment{
					"fan1": {FanKey: "fan1", Mode: model.ModeCurve, CurveId: strPtr("cpu-curve")},
				},
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func seedStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := New(filepath.Join(dir, "config.json"))
	_, err := s.Update(func(cfg *model.AppConfiguration) error {
		*cfg = baseConfig()
		return nil
	})
	assert.NoError(t, err)
	return s
}

func TestStore_LoadRoundTripsSavedConfiguration(t *testing.T) {
	// GIVEN a store with a freshly saved configuration
	s := seedStore(t)

	// WHEN a new Store instance loads the same path
	reloaded := New(s.path)
	cfg, err := reloaded.Load()

	// THEN the loaded configuration matches what was saved
	assert.NoError(t, err)
	assert.Equal(t, 1000, cfg.PollIntervalMs)
	assert.Len(t, cfg.Curves, 1)
}

func TestStore_LoadQuarantinesCorruptFile(t *testing.T) {
	// GIVEN a config path containing invalid JSON
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	assert.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := New(path)

	// WHEN
	_, err := s.Load()

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrConfigCorrupt)
	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_UpdateRejectsInvalidResult(t *testing.T) {
	// GIVEN
	s := seedStore(t)

	// WHEN the transaction produces an out-of-range poll interval
	_, err := s.Update(func(cfg *model.AppConfiguration) error {
		cfg.PollIntervalMs = 50
		return nil
	})

	// THEN the store's current configuration is unchanged
	assert.ErrorIs(t, err, fterrors.ErrConfigInvalid)
	assert.Equal(t, 1000, s.Get().PollIntervalMs)
}

func TestStore_DeleteCurveCascadesToAutoMode(t *testing.T) {
	// GIVEN a profile with a fan assigned to the curve being deleted, and
	// a second curve so the configuration still holds at least one
	s := seedStore(t)
	_, err := s.SaveCurve(model.FanCurve{
		Id:         "gpu-curve",
		Name:       "GPU",
		Points:     []model.CurvePoint{{TemperatureC: 40, Percent: 30}, {TemperatureC: 85, Percent: 100}},
		MinPercent: 20,
		MaxPercent: 100,
	})
	assert.NoError(t, err)

	// WHEN
	cfg, err := s.DeleteCurve("cpu-curve")

	// THEN the assignment downgrades to Auto rather than dangling
	assert.NoError(t, err)
	assignment := cfg.Profiles["default"].Assignments["fan1"]
	assert.Equal(t, model.ModeAuto, assignment.Mode)
	assert.Nil(t, assignment.CurveId)
}

func TestStore_DeleteProfileProtectsDefault(t *testing.T) {
	// GIVEN the only profile is the default
	s := seedStore(t)

	// WHEN
	_, err := s.DeleteProfile("default")

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrDefaultProtected)
}

func TestStore_DeleteProfileFallsBackToDefaultWhenActiveIsRemoved(t *testing.T) {
	// GIVEN a second, non-default profile that is currently active
	s := seedStore(t)
	_, err := s.SaveProfile(model.FanProfile{Id: "silent", Name: "Silent", Assignments: map[string]model.FanAssignment{}})
	assert.NoError(t, err)
	_, err = s.SetActiveProfile("silent")
	assert.NoError(t, err)

	// WHEN
	cfg, err := s.DeleteProfile("silent")

	// THEN active profile reverts to the default
	assert.NoError(t, err)
	assert.Equal(t, "default", cfg.ActiveProfileId)
}

func TestStore_SaveProfileDemotesPreviousDefault(t *testing.T) {
	// GIVEN
	s := seedStore(t)

	// WHEN a new profile is saved as the default
	cfg, err := s.SaveProfile(model.FanProfile{
		Id:          "new-default",
		Name:        "New Default",
		IsDefault:   true,
		Assignments: map[string]model.FanAssignment{},
	})

	// THEN exactly one profile remains marked default
	assert.NoError(t, err)
	defaultCount := 0
	for _, p := range cfg.Profiles {
		if p.IsDefault {
			defaultCount++
		}
	}
	assert.Equal(t, 1, defaultCount)
	assert.False(t, cfg.Profiles["default"].IsDefault)
}

func TestStore_SetActiveProfileRejectsUnknownId(t *testing.T) {
	// GIVEN
	s := seedStore(t)

	// WHEN
	_, err := s.SetActiveProfile("does-not-exist")

	// THEN
	assert.ErrorIs(t, err, fterrors.ErrNotFound)
}

func TestStore_GetReturnsIndependentCopy(t *testing.T) {
	// GIVEN
	s := seedStore(t)

	// WHEN the caller mutates the returned snapshot
	cfg := s.Get()
	cfg.PollIntervalMs = 1

	// THEN the store's internal state is untouched
	assert.Equal(t, 1000, s.Get().PollIntervalMs)
}

func TestStore_BackupsArePrunedToMax(t *testing.T) {
	// GIVEN a store that is updated more times than maxBackups
	s := seedStore(t)

	for i := 0; i < maxBackups+5; i++ {
		_, err := s.Update(func(cfg *model.AppConfiguration) error {
			cfg.DefaultMinFanPct = float64(10 + i%20)
			return nil
		})
		assert.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	entries, err := os.ReadDir(s.backupDir())
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(entries), maxBackups)
}
