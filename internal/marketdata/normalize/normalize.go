// Package normalize turns loosely-typed upstream bar records into a
// canonical bar sequence: validated, deduplicated by timestamp and sorted
// ascending.
//
// Upstream payloads use several field names for the same concept. Each
// concept has an ordered alias list; the first alias present in a record
// wins, and the choice is made once here so downstream code only ever sees
// model.Bar.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"marketlens/internal/model"

	"github.com/tidwall/gjson"
)

// Ordered field aliases per concept.
var (
	TimeFields   = []string{"timestamp", "t", "datetime", "date"}
	OpenFields   = []string{"open", "o"}
	HighFields   = []string{"high", "h"}
	LowFields    = []string{"low", "l"}
	CloseFields  = []string{"close", "c"}
	VolumeFields = []string{"volume", "v"}
)

// msThreshold separates epoch seconds from epoch milliseconds.
const msThreshold = 1e12

// Lookup returns the first alias present in rec.
func Lookup(rec gjson.Result, aliases []string) (gjson.Result, bool) {
	for _, a := range aliases {
		if v := rec.Get(a); v.Exists() && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// Number coerces the first present alias to a float. Missing or
// unparseable values yield NaN so validation rejects them.
func Number(rec gjson.Result, aliases []string) float64 {
	v, ok := Lookup(rec, aliases)
	if !ok {
		return math.NaN()
	}
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return math.NaN()
		}
		f := gjson.Parse(s)
		if f.Type != gjson.Number {
			return math.NaN()
		}
		return f.Float()
	default:
		return math.NaN()
	}
}

// EpochSeconds converts a numeric epoch that may be in seconds or
// milliseconds to seconds.
func EpochSeconds(v float64) int64 {
	if math.Abs(v) >= msThreshold {
		return int64(math.Floor(v / 1000))
	}
	return int64(math.Floor(v))
}

// Timestamp resolves a record's time in unix seconds. Numeric fields are
// epochs; strings are dates or date-times, assumed UTC when no zone is given.
func Timestamp(rec gjson.Result) (int64, bool) {
	v, ok := Lookup(rec, TimeFields)
	if !ok {
		return 0, false
	}
	if v.Type == gjson.Number {
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return EpochSeconds(f), true
	}
	if v.Type != gjson.String {
		return 0, false
	}
	return ParseTime(v.Str)
}

// ParseTime parses "2024-01-02", "2024-01-02 15:04:05" and RFC 3339 forms.
func ParseTime(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n := gjson.Parse(s); n.Type == gjson.Number {
		return EpochSeconds(n.Float()), true
	}
	if len(s) == len("2006-01-02") {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return 0, false
		}
		return t.Unix(), true
	}
	s = strings.Replace(s, " ", "T", 1)
	if !hasZone(s) {
		s += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

// hasZone reports whether an ISO date-time already carries Z or an offset.
func hasZone(s string) bool {
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return true
	}
	i := strings.IndexByte(s, 'T')
	if i < 0 {
		return false
	}
	clock := s[i+1:]
	return strings.ContainsAny(clock, "+-")
}

// Record coerces one raw record into a candidate bar. ok is false when the
// record has no usable timestamp; price validation happens in Bars.
func Record(rec gjson.Result) (model.Bar, bool) {
	ts, ok := Timestamp(rec)
	if !ok {
		return model.Bar{}, false
	}
	vol := Number(rec, VolumeFields)
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		vol = 0
	}
	return model.Bar{
		Time:   ts,
		Open:   Number(rec, OpenFields),
		High:   Number(rec, HighFields),
		Low:    Number(rec, LowFields),
		Close:  Number(rec, CloseFields),
		Volume: vol,
	}, true
}

// Records extracts the record array from a provider payload. Both a bare
// JSON array and an object wrapping one under "data" are accepted.
func Records(raw []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed bar payload", model.ErrUpstream)
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() {
		if data := root.Get("data"); data.IsArray() {
			root = data
		}
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: bar payload is not an array", model.ErrUpstream)
	}
	return root.Array(), nil
}

// FromRecords coerces, validates, deduplicates and sorts raw records.
func FromRecords(recs []gjson.Result) []model.Bar {
	cands := make([]model.Bar, 0, len(recs))
	for _, r := range recs {
		if b, ok := Record(r); ok {
			cands = append(cands, b)
		}
	}
	return Bars(cands)
}

// FromJSON is Records followed by FromRecords.
func FromJSON(raw []byte) ([]model.Bar, error) {
	recs, err := Records(raw)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs), nil
}

// Bars drops invalid bars, keeps the first occurrence of each timestamp in
// input order, and returns the survivors sorted by time. Applying Bars to
// its own output returns an equal sequence.
func Bars(in []model.Bar) []model.Bar {
	seen := make(map[int64]struct{}, len(in))
	out := make([]model.Bar, 0, len(in))
	for _, b := range in {
		if !b.Valid() {
			continue
		}
		if _, dup := seen[b.Time]; dup {
			continue
		}
		seen[b.Time] = struct{}{}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// FirstPositive returns the first alias holding a finite positive number.
// Unlike Number it skips placeholder values such as "NA".
func FirstPositive(rec gjson.Result, aliases []string) (float64, bool) {
	for _, a := range aliases {
		v := Number(rec, []string{a})
		if v > 0 && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}
