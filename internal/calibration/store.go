// Package calibration keeps the named threshold profiles, the recently-used
// list and the live threshold read by the classifier.
//
// The store is owned by the frame loop goroutine: user actions and threshold
// reads happen on that goroutine only, so it carries no locks. Every mutation
// persists synchronously to the backing JSON file.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"go.uber.org/zap"
)

// Store is the calibration profile collection.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	profiles []Profile // insertion order
	recent   []string  // canonical names, most recent first
	active   string
	live     float64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for lastUsedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store backed by path holding only the Default profile.
// Call Load to read the file.
func New(path string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.profiles = []Profile{defaultProfile(s.now())}
	s.recent = nil
	s.active = DefaultName
	s.live = DefaultValue
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted profiles. A missing or undecodable file resets the
// store to the single Default profile and writes it back. Load never fails;
// problems are logged.
func (s *Store) Load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("calibration file not found, creating default", zap.String("path", s.path))
		} else {
			s.logger.Warn("calibration file unreadable, resetting to default", zap.String("path", s.path), zap.Error(err))
		}
		s.resetAndPersist()
		return
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		s.logger.Warn("calibration file corrupt, resetting to default", zap.String("path", s.path), zap.Error(err))
		s.resetAndPersist()
		return
	}

	dirty := s.adopt(f)
	s.logger.Info("loaded calibration profiles", zap.Int("count", len(s.profiles)), zap.Strings("recent", s.recent))
	if dirty {
		if err := s.persist(); err != nil {
			s.logger.Error("failed to rewrite normalized calibration file", zap.Error(err))
		}
	}
}

func (s *Store) resetAndPersist() {
	s.reset()
	if err := s.persist(); err != nil {
		s.logger.Error("failed to write default calibration file", zap.Error(err))
	}
}

// adopt replaces the in-memory state with decoded entries, substituting
// defaults for malformed fields. It reports whether the result differs from
// the file and should be rewritten.
func (s *Store) adopt(f fileFormat) bool {
	dirty := false
	profiles := make([]Profile, 0, len(f.Thresholds)+1)
	seen := make(map[string]bool)

	for _, fp := range f.Thresholds {
		name, err := validName(fp.Name)
		if err != nil || seen[strings.ToLower(name)] {
			s.logger.Warn("skipping calibration entry", zap.String("name", fp.Name), zap.Error(err))
			dirty = true
			continue
		}
		seen[strings.ToLower(name)] = true

		p := Profile{Name: name, Value: DefaultValue}
		if fp.Value != nil {
			if v, err := validValue(float64(*fp.Value)); err == nil {
				p.Value = v
			} else {
				s.logger.Warn("calibration value out of range, using default", zap.String("name", name), zap.Float64("value", float64(*fp.Value)))
				dirty = true
			}
		} else {
			dirty = true
		}
		if ts, ok := parseLastUsed(fp.LastUsed); ok {
			p.LastUsedAt = ts
		} else if fp.LastUsed != "" {
			dirty = true
		}

		if p.IsDefault() {
			if p.Name != DefaultName || p.Value != DefaultValue {
				dirty = true
			}
			p.Name, p.Value = DefaultName, DefaultValue
		}
		profiles = append(profiles, p)
	}

	if !seen[strings.ToLower(DefaultName)] {
		profiles = append([]Profile{defaultProfile(s.now())}, profiles...)
		dirty = true
	}

	s.profiles = profiles
	s.active = DefaultName
	s.live = DefaultValue
	s.recent = nil
	for _, p := range s.ByRecency() {
		if p.LastUsedAt.IsZero() || len(s.recent) == MaxRecent {
			break
		}
		s.recent = append(s.recent, p.Name)
	}
	return dirty
}

// persist writes the profiles as {"thresholds": [...]}.
func (s *Store) persist() error {
	if err := utils.WriteJSONAtomic(s.path, toFile(s.profiles)); err != nil {
		return fmt.Errorf("write calibration %s: %w: %v", s.path, types.ErrIO, err)
	}
	return nil
}

// persistLogged persists and logs a failure. The error is still returned so
// callers can tell the user the change is in memory only.
func (s *Store) persistLogged(op, name string) error {
	err := s.persist()
	if err != nil {
		s.logger.Error("calibration change not persisted", zap.String("op", op), zap.String("name", name), zap.Error(err))
	}
	return err
}

func (s *Store) index(name string) int {
	name = strings.TrimSpace(name)
	for i, p := range s.profiles {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// Lookup finds a profile by case-insensitive name.
func (s *Store) Lookup(name string) (Profile, bool) {
	if i := s.index(name); i >= 0 {
		return s.profiles[i], true
	}
	return Profile{}, false
}

// touch moves name to the front of the recently-used list and stamps its profile.
func (s *Store) touch(i int) {
	name := s.profiles[i].Name
	s.profiles[i].LastUsedAt = s.now()
	s.recent = pushRecent(s.recent, name)
}

func pushRecent(recent []string, name string) []string {
	out := make([]string, 0, MaxRecent)
	out = append(out, name)
	for _, r := range recent {
		if strings.EqualFold(r, name) {
			continue
		}
		if len(out) == MaxRecent {
			break
		}
		out = append(out, r)
	}
	return out
}

func removeRecent(recent []string, name string) []string {
	out := recent[:0]
	for _, r := range recent {
		if !strings.EqualFold(r, name) {
			out = append(out, r)
		}
	}
	return out
}

// Apply makes the named profile active and loads its value as the live threshold.
func (s *Store) Apply(name string) (Profile, error) {
	i := s.index(name)
	if i < 0 {
		return Profile{}, fmt.Errorf("apply %q: %w", name, types.ErrNotFound)
	}
	s.active = s.profiles[i].Name
	s.live = s.profiles[i].Value
	s.touch(i)
	return s.profiles[i], s.persistLogged("apply", s.active)
}

// Save stores value under name, updating an existing profile in place or
// appending a new one, and makes it active.
func (s *Store) Save(name string, value float64) (Profile, error) {
	name, err := validName(name)
	if err != nil {
		return Profile{}, err
	}
	v, err := validValue(value)
	if err != nil {
		return Profile{}, err
	}
	if strings.EqualFold(name, DefaultName) {
		return Profile{}, fmt.Errorf("save %q: the default profile is fixed: %w", name, types.ErrConfig)
	}

	i := s.index(name)
	if i >= 0 {
		s.profiles[i].Value = v
	} else {
		s.profiles = append(s.profiles, Profile{Name: name, Value: v})
		i = len(s.profiles) - 1
	}
	s.active = s.profiles[i].Name
	s.live = v
	s.touch(i)
	return s.profiles[i], s.persistLogged("save", s.active)
}

// Edit changes a stored profile's value. When the profile is active the live
// threshold follows immediately.
func (s *Store) Edit(name string, value float64) (Profile, error) {
	v, err := validValue(value)
	if err != nil {
		return Profile{}, err
	}
	i := s.index(name)
	if i < 0 {
		return Profile{}, fmt.Errorf("edit %q: %w", name, types.ErrNotFound)
	}
	if s.profiles[i].IsDefault() {
		return Profile{}, fmt.Errorf("edit %q: the default profile is fixed: %w", name, types.ErrConfig)
	}

	s.profiles[i].Value = v
	s.profiles[i].LastUsedAt = s.now()
	if strings.EqualFold(s.active, s.profiles[i].Name) {
		s.live = v
	}
	return s.profiles[i], s.persistLogged("edit", s.profiles[i].Name)
}

// Delete removes a profile. Deleting the active profile reverts to Default.
func (s *Store) Delete(name string) error {
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("delete %q: %w", name, types.ErrNotFound)
	}
	if s.profiles[i].IsDefault() {
		return fmt.Errorf("delete %q: the default profile cannot be deleted: %w", name, types.ErrConfig)
	}

	removed := s.profiles[i]
	s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
	s.recent = removeRecent(s.recent, removed.Name)
	if strings.EqualFold(s.active, removed.Name) {
		s.active = DefaultName
		s.live = DefaultValue
	}
	return s.persistLogged("delete", removed.Name)
}

// Active returns the active profile. It always resolves.
func (s *Store) Active() Profile {
	if p, ok := s.Lookup(s.active); ok {
		return p
	}
	// Unreachable while the invariant holds; Default is never removed.
	return defaultProfile(time.Time{})
}

// Threshold is the live threshold the classifier compares against.
func (s *Store) Threshold() float64 {
	return s.live
}

// SetThreshold sets a custom live threshold without touching any profile.
func (s *Store) SetThreshold(value float64) (float64, error) {
	v, err := validValue(value)
	if err != nil {
		return s.live, err
	}
	s.live = v
	return s.live, nil
}

// Up raises the live threshold by Step.
func (s *Store) Up() float64 {
	s.live = round2(s.live + Step)
	if s.live > MaxThreshold {
		s.live = MaxThreshold
	}
	return s.live
}

// Down lowers the live threshold by Step, never below MinThreshold.
func (s *Store) Down() float64 {
	s.live = round2(s.live - Step)
	if s.live < MinThreshold {
		s.live = MinThreshold
	}
	return s.live
}

// List returns the profiles in insertion order.
func (s *Store) List() []Profile {
	out := make([]Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// ByRecency returns the profiles sorted by lastUsedAt, newest first.
func (s *Store) ByRecency() []Profile {
	out := s.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}

// Recent returns the recently-used profiles, most recent first.
func (s *Store) Recent() []Profile {
	out := make([]Profile, 0, len(s.recent))
	for _, name := range s.recent {
		if p, ok := s.Lookup(name); ok {
			out = append(out, p)
		}
	}
	return out
}
