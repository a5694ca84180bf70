// Package configstore implements the Configuration Store: load/save of
// the durable AppConfiguration document, atomic writes, rotating
// backups, and corrupt-file quarantine, the way internal/persistence
// wraps a datastore with Init/backup semantics, generalized here from a
// key-value store to a single JSON document written with
// natefinch/atomic.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fantuned/fantuned/internal/curves"
	"github.com/fantuned/fantuned/internal/fterrors"
	"github.com/fantuned/fantuned/internal/model"
	"github.com/fantuned/fantuned/internal/ui"
	"github.com/mitchellh/mapstructure"
	"github.com/natefinch/atomic"
	"github.com/qdm12/reprint"
)

const maxBackups = 10

// Store owns the on-disk AppConfiguration document plus its backup
// directory. All mutation goes through Update, which holds the lock
// for the whole read-modify-validate-write cycle so concurrent fanctl
// clients never interleave a save.
type Store struct {
	mu   sync.Mutex
	path string

	current model.AppConfiguration

	changed chan model.AppConfiguration
}

// New builds a Store rooted at path. Call Load before first use.
func New(path string) *Store {
	return &Store{
		path:    path,
		changed: make(chan model.AppConfiguration, 8),
	}
}

// Changed returns a channel on which every successfully-saved
// configuration is published. It is buffered (8 deep) and lossy by
// design: when the buffer is full, Update drops the new configuration
// instead of blocking, so a slow consumer may miss later states,
// including the most recent one.
func (s *Store) Changed() <-chan model.AppConfiguration {
	return s.changed
}

func (s *Store) backupDir() string {
	return filepath.Join(filepath.Dir(s.path), "backups")
}

// Load reads the configuration file, falling back to quarantining a
// corrupt file and returning fterrors.ErrConfigCorrupt. A missing file
// is also an error — the caller is expected to have seeded one.
func (s *Store) Load() (model.AppConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigCorrupt, err)
	}

	var cfg model.AppConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.quarantine(data)
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigCorrupt, err)
	}

	if err := cfg.Validate(); err != nil {
		s.quarantine(data)
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigCorrupt, err)
	}

	s.current = cfg
	return reprint.This(cfg).(model.AppConfiguration), nil
}

// quarantine moves an unreadable file aside so a corrupt config is
// never silently lost, mirroring the backup directory's layout.
func (s *Store) quarantine(data []byte) {
	dir := s.backupDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		ui.Warning("Failed to create backup directory for quarantine: %v", err)
		return
	}
	dest := filepath.Join(dir, fmt.Sprintf("config_corrupt_%d.json", time.Now().UnixNano()))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		ui.Warning("Failed to quarantine corrupt configuration: %v", err)
		return
	}
	ui.Warning("Quarantined corrupt configuration at %s", dest)
}

// Get returns a deep copy of the currently loaded configuration so
// callers can never mutate store state through an aliased pointer.
func (s *Store) Get() model.AppConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reprint.This(s.current).(model.AppConfiguration)
}

// Update runs fn against a deep copy of the current configuration,
// validates the result, and if valid atomically persists and publishes
// it. fn returning an error aborts the whole transaction with no
// write, no backup rotation, and no publish.
func (s *Store) Update(fn func(cfg *model.AppConfiguration) error) (model.AppConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := reprint.This(s.current).(model.AppConfiguration)
	if err := fn(&next); err != nil {
		return model.AppConfiguration{}, err
	}
	if err := next.Validate(); err != nil {
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigInvalid, err)
	}

	if err := s.persist(next); err != nil {
		return model.AppConfiguration{}, err
	}

	s.current = next
	select {
	case s.changed <- reprint.This(next).(model.AppConfiguration):
	default:
		ui.Debug("Configuration change channel full, dropping publish")
	}
	return reprint.This(next).(model.AppConfiguration), nil
}

// persist backs up the existing file (if any) and atomically
// overwrites it with the new configuration's JSON encoding.
func (s *Store) persist(cfg model.AppConfiguration) error {
	if err := s.rotateBackup(); err != nil {
		ui.Warning("Failed to rotate configuration backup: %v", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", fterrors.ErrConfigInvalid, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}

	if err := atomic.WriteFile(s.path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}
	return nil
}

// rotateBackup copies the current on-disk file into the backups
// directory under a timestamped name, then prunes down to maxBackups.
func (s *Store) rotateBackup() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	dir := s.backupDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	dest := filepath.Join(dir, fmt.Sprintf("config_%d.json", time.Now().UnixNano()))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	return s.pruneBackups(dir)
}

func (s *Store) pruneBackups(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "config_") && !strings.Contains(e.Name(), "corrupt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for len(names) > maxBackups {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// SaveCurve upserts a curve after normalizing and validating its
// points, the way the Curve Engine itself would see it.
func (s *Store) SaveCurve(curve model.FanCurve) (model.AppConfiguration, error) {
	normalized := curves.NormalizeCurve(curve)
	if err := curves.ValidateCurve(normalized); err != nil {
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigInvalid, err)
	}

	return s.Update(func(cfg *model.AppConfiguration) error {
		if cfg.Curves == nil {
			cfg.Curves = map[string]model.FanCurve{}
		}
		cfg.Curves[normalized.Id] = normalized
		return nil
	})
}

// DeleteCurve removes a curve and cascades: every assignment
// referencing it across every profile is downgraded to Auto, per the
// weak-reference design of FanAssignment.CurveId.
func (s *Store) DeleteCurve(curveId string) (model.AppConfiguration, error) {
	return s.Update(func(cfg *model.AppConfiguration) error {
		if _, ok := cfg.Curves[curveId]; !ok {
			return fmt.Errorf("%w: curve %q", fterrors.ErrNotFound, curveId)
		}
		delete(cfg.Curves, curveId)

		for profileId, profile := range cfg.Profiles {
			for fanKey, assignment := range profile.Assignments {
				if assignment.Mode == model.ModeCurve && assignment.CurveId != nil && *assignment.CurveId == curveId {
					assignment.Mode = model.ModeAuto
					assignment.CurveId = nil
					profile.Assignments[fanKey] = assignment
				}
			}
			profile.ModifiedAt = time.Now()
			cfg.Profiles[profileId] = profile
		}
		return nil
	})
}

// SaveProfile upserts a profile. Exactly-one-default is enforced by
// Validate after fn runs, not here, so callers may freely promote a
// new default in the same transaction as demoting the old one.
func (s *Store) SaveProfile(profile model.FanProfile) (model.AppConfiguration, error) {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.ModifiedAt = now

	return s.Update(func(cfg *model.AppConfiguration) error {
		if cfg.Profiles == nil {
			cfg.Profiles = map[string]model.FanProfile{}
		}
		if profile.IsDefault {
			for id, existing := range cfg.Profiles {
				if id != profile.Id && existing.IsDefault {
					existing.IsDefault = false
					cfg.Profiles[id] = existing
				}
			}
		}
		cfg.Profiles[profile.Id] = profile
		return nil
	})
}

// DeleteProfile removes a profile, refusing to delete the default
// profile (fterrors.ErrDefaultProtected) and re-pointing
// ActiveProfileId at the default if the active profile is the one
// being deleted.
func (s *Store) DeleteProfile(profileId string) (model.AppConfiguration, error) {
	return s.Update(func(cfg *model.AppConfiguration) error {
		profile, ok := cfg.Profiles[profileId]
		if !ok {
			return fmt.Errorf("%w: profile %q", fterrors.ErrNotFound, profileId)
		}
		if profile.IsDefault {
			return fterrors.ErrDefaultProtected
		}
		delete(cfg.Profiles, profileId)

		if cfg.ActiveProfileId == profileId {
			if def, ok := cfg.DefaultProfile(); ok {
				cfg.ActiveProfileId = def.Id
			}
		}
		return nil
	})
}

// SetActiveProfile switches which profile the Control Loop reads
// assignments from.
func (s *Store) SetActiveProfile(profileId string) (model.AppConfiguration, error) {
	return s.Update(func(cfg *model.AppConfiguration) error {
		if _, ok := cfg.Profiles[profileId]; !ok {
			return fmt.Errorf("%w: profile %q", fterrors.ErrNotFound, profileId)
		}
		cfg.ActiveProfileId = profileId
		return nil
	})
}

// DecodeConfigFragment decodes a loosely-typed map (as arrives over
// the IPC SetConfig request) into an AppConfiguration, the same way
// viper internally uses mapstructure to decode config file fragments.
func DecodeConfigFragment(raw map[string]interface{}) (model.AppConfiguration, error) {
	var cfg model.AppConfiguration
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return model.AppConfiguration{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return model.AppConfiguration{}, fmt.Errorf("%w: %v", fterrors.ErrConfigInvalid, err)
	}
	return cfg, nil
}
