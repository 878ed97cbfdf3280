package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
)

const (
	// DefaultName is the built-in profile that can never be removed.
	DefaultName = "Default"

	// DefaultValue is the fixed threshold of the Default profile.
	DefaultValue = 0.23

	// MaxRecent bounds the recently-used list.
	MaxRecent = 5

	// MaxNameLen bounds profile names.
	MaxNameLen = 20

	// Step is the increment used by Up and Down.
	Step = 0.01

	// MinThreshold is the floor for Down.
	MinThreshold = 0.01

	// MaxThreshold is the ceiling for Up.
	MaxThreshold = 0.99
)

// Profile is a named, persisted eye-openness threshold.
type Profile struct {
	Name       string
	Value      float64
	LastUsedAt time.Time
}

// IsDefault reports whether p is the built-in Default profile.
func (p Profile) IsDefault() bool {
	return strings.EqualFold(p.Name, DefaultName)
}

func defaultProfile(now time.Time) Profile {
	return Profile{Name: DefaultName, Value: DefaultValue, LastUsedAt: now}
}

// --- On-disk format: {"thresholds": [{"name", "value", "last_used"}]} ---

type fileFormat struct {
	Thresholds []fileProfile `json:"thresholds"`
}

type fileProfile struct {
	Name     string     `json:"name"`
	Value    *flexFloat `json:"value"`
	LastUsed string     `json:"last_used"`
}

// flexFloat accepts a JSON number or a numeric string; older files stored values as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// timestamp layouts accepted for last_used, newest first. The naive layouts
// match Python's datetime.isoformat() without a zone and are read as local time.
var lastUsedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseLastUsed(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range lastUsedLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatLastUsed(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func toFile(profiles []Profile) fileFormat {
	out := fileFormat{Thresholds: make([]fileProfile, 0, len(profiles))}
	for _, p := range profiles {
		v := flexFloat(p.Value)
		out.Thresholds = append(out.Thresholds, fileProfile{
			Name:     p.Name,
			Value:    &v,
			LastUsed: formatLastUsed(p.LastUsedAt),
		})
	}
	return out
}

// --- Validation ---

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// validValue rounds v to 2 dp and requires 0 < v < 1.
func validValue(v float64) (float64, error) {
	if math.IsNaN(v) || v <= 0 || v >= 1 {
		return 0, fmt.Errorf("threshold %v must be between 0 and 1: %w", v, types.ErrConfig)
	}
	r := round2(v)
	if r <= 0 || r >= 1 {
		return 0, fmt.Errorf("threshold %v rounds to %v, outside (0,1): %w", v, r, types.ErrConfig)
	}
	return r, nil
}

// validName trims name and requires 1..MaxNameLen printable ASCII characters.
func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("profile name cannot be empty: %w", types.ErrConfig)
	}
	if len(name) > MaxNameLen {
		return "", fmt.Errorf("profile name %q longer than %d characters: %w", name, MaxNameLen, types.ErrConfig)
	}
	for _, r := range name {
		if r < 32 || r > 126 {
			return "", fmt.Errorf("profile name %q contains a non-printable character: %w", name, types.ErrConfig)
		}
	}
	return name, nil
}
