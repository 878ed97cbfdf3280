// Package snapshot owns the exported per-subject summary read by the bridge
// and the dashboard. There is at most one writer; readers poll.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
)

// StatusNotRunning is written when the monitor stops.
const StatusNotRunning = "Not running"

// Record is one monitored subject.
type Record struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	SleepPercentage float64   `json:"sleep_percentage"`
	LastUpdate      time.Time `json:"last_update"`

	hasPercentage bool
}

// HasPercentage reports whether a decoded record carried a numeric
// sleep_percentage. Records built in code always do.
func (r Record) HasPercentage() bool {
	return r.hasPercentage
}

// UnmarshalJSON accepts records from any writer. Only a numeric
// sleep_percentage sets HasPercentage; other fields of an unexpected type
// are left empty. Numeric ids keep their literal text and a numeric
// last_update is read as unix seconds.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w struct {
		ID              json.RawMessage `json:"id"`
		Type            json.RawMessage `json:"type"`
		Status          json.RawMessage `json:"status"`
		SleepPercentage json.RawMessage `json:"sleep_percentage"`
		LastUpdate      json.RawMessage `json:"last_update"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Record{
		ID:     rawText(w.ID, true),
		Type:   rawText(w.Type, false),
		Status: rawText(w.Status, false),
	}
	if pct, ok := rawNumber(w.SleepPercentage); ok {
		r.SleepPercentage = pct
		r.hasPercentage = true
	}
	r.LastUpdate = rawTime(w.LastUpdate)
	return nil
}

func isNull(m json.RawMessage) bool {
	return len(m) == 0 || bytes.Equal(m, []byte("null"))
}

// rawText returns m as a string, or its literal digits when numbers are allowed.
func rawText(m json.RawMessage, numbers bool) string {
	if isNull(m) {
		return ""
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		return s
	}
	if numbers && m[0] != '"' {
		var n json.Number
		if json.Unmarshal(m, &n) == nil {
			return n.String()
		}
	}
	return ""
}

func rawNumber(m json.RawMessage) (float64, bool) {
	if isNull(m) || m[0] == '"' {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(m, &f); err != nil {
		return 0, false
	}
	return f, true
}

// rawTime reads an RFC 3339 string or unix seconds. Anything else is zero.
func rawTime(m json.RawMessage) time.Time {
	if sec, ok := rawNumber(m); ok {
		whole := math.Floor(sec)
		return time.Unix(int64(whole), int64((sec-whole)*1e9)).UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, rawText(m, false)); err == nil {
		return t
	}
	return time.Time{}
}

// New builds a record stamped at now.
func New(id, typ, status string, pct float64, now time.Time) Record {
	return Record{ID: id, Type: typ, Status: status, SleepPercentage: pct, LastUpdate: now, hasPercentage: true}
}

// Write replaces the snapshot file atomically with the given records.
func Write(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := utils.WriteJSONAtomic(path, records); err != nil {
		return fmt.Errorf("write snapshot %s: %w: %v", path, types.ErrIO, err)
	}
	return nil
}

// Read decodes the snapshot file. The root may be a single object or an
// array; array elements that fail to decode are skipped. A missing file
// returns ErrNotFound and a corrupt one ErrDecode. Callers treat both as
// "no data".
func Read(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("snapshot %s: %w", path, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read snapshot %s: %w: %v", path, types.ErrIO, err)
	}
	return Decode(raw)
}

// Decode parses snapshot bytes with the same rules as Read.
func Decode(raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty snapshot: %w", types.ErrDecode)
	}

	switch raw[0] {
	case '{':
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w: %v", types.ErrDecode, err)
		}
		return []Record{r}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w: %v", types.ErrDecode, err)
		}
		out := make([]Record, 0, len(elems))
		for _, e := range elems {
			var r Record
			if err := json.Unmarshal(e, &r); err != nil {
				continue
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("snapshot root is neither object nor array: %w", types.ErrDecode)
	}
}
