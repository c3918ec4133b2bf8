package risk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/wanderguard/internal/common"
)

// RiskPoint is one recorded score keyed by its observation time (unix seconds).
type RiskPoint struct {
	At    int64
	Score float64
}

// RiskHistory is the recent scores in insertion order, oldest first. On the
// wire it is an object keyed by the timestamp string.
type RiskHistory []RiskPoint

// Last returns the most recently recorded point.
func (h RiskHistory) Last() (RiskPoint, bool) {
	if len(h) == 0 {
		return RiskPoint{}, false
	}
	return h[len(h)-1], true
}

// Record returns a copy of h with score stored under at, keeping only the
// newest limit entries. Re-recording an existing timestamp overwrites its
// score in place.
func (h RiskHistory) Record(at int64, score float64, limit int) RiskHistory {
	out := make(RiskHistory, 0, len(h)+1)
	out = append(out, h...)

	replaced := false
	for i := range out {
		if out[i].At == at {
			out[i].Score = score
			replaced = true
			break
		}
	}
	if !replaced {
		out = append(out, RiskPoint{At: at, Score: score})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (h RiskHistory) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, pt := range h {
		if i > 0 {
			b.WriteByte(',')
		}
		val, err := json.Marshal(pt.Score)
		if err != nil {
			return nil, err
		}
		b.WriteString(strconv.Quote(strconv.FormatInt(pt.At, 10)))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (h *RiskHistory) UnmarshalJSON(data []byte) error {
	var out RiskHistory
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		at, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("risk history key %q: %w", key, err)
		}
		var score float64
		if err := json.Unmarshal(raw, &score); err != nil {
			return fmt.Errorf("risk history value at %s: %w", key, err)
		}
		out = append(out, RiskPoint{At: at, Score: score})
		return nil
	})
	if err != nil {
		return err
	}
	*h = out
	return nil
}

// ZoneVisit counts visits to one quantized location.
type ZoneVisit struct {
	Key    string
	Visits int
}

// ZoneHeatmap is the visit counter per zone key in insertion order. On the
// wire it is an object keyed by zone key.
type ZoneHeatmap []ZoneVisit

// Visits returns the count for key and whether the zone is known.
func (m ZoneHeatmap) Visits(key string) (int, bool) {
	for _, z := range m {
		if z.Key == key {
			return z.Visits, true
		}
	}
	return 0, false
}

// Visit returns a copy of m with key's counter incremented and at most limit
// entries, evicting according to policy.
func (m ZoneHeatmap) Visit(key string, limit int, policy Eviction) ZoneHeatmap {
	out := make(ZoneHeatmap, 0, len(m)+1)
	out = append(out, m...)

	found := false
	for i := range out {
		if out[i].Key == key {
			out[i].Visits++
			found = true
			break
		}
	}
	if !found {
		out = append(out, ZoneVisit{Key: key, Visits: 1})
	}
	if limit <= 0 || len(out) <= limit {
		return out
	}

	switch policy {
	case EvictOldest:
		return out[len(out)-limit:]
	default:
		// Ties keep their insertion order, so the newest zone goes first.
		sort.SliceStable(out, func(i, j int) bool { return out[i].Visits > out[j].Visits })
		return out[:limit]
	}
}

func (m ZoneHeatmap) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, z := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(z.Key))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(z.Visits))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (m *ZoneHeatmap) UnmarshalJSON(data []byte) error {
	var out ZoneHeatmap
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		var visits float64
		if err := json.Unmarshal(raw, &visits); err != nil {
			return fmt.Errorf("zone heatmap value for %q: %w", key, err)
		}
		if visits < 0 {
			visits = 0
		}
		out = append(out, ZoneVisit{Key: key, Visits: int(visits)})
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

var errNotObject = errors.New("expected a JSON object")

// decodeObject walks a JSON object in document order. null decodes to nothing.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errNotObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// ZoneKey quantizes a coordinate pair to precision decimals. Decimal points
// are written as commas so the key is a legal Realtime Database path segment.
func ZoneKey(lat, lon float64, precision int) string {
	return formatCoord(lat, precision) + "_" + formatCoord(lon, precision)
}

func formatCoord(v float64, precision int) string {
	r := common.Round(v, precision)
	if r == 0 || math.IsNaN(r) {
		r = 0
	}
	return strings.Replace(strconv.FormatFloat(r, 'f', precision, 64), ".", ",", 1)
}

// RunningMean folds value into a mean over count previous observations.
func RunningMean(mean, value float64, count int) float64 {
	if count <= 0 {
		return value
	}
	return mean + (value-mean)/float64(count+1)
}

// NewLearning seeds the learning state for a patient without history, using
// the first observation as the running means.
func NewLearning(t Telemetry, p Params) Learning {
	return Learning{
		Weights:     p.DefaultWeights,
		AvgSpeed:    common.NonNegative(t.Speed),
		AvgDistance: common.NonNegative(t.Distance),
	}
}

// Observe returns l with the observation folded into the running means, the
// sample count incremented and w as the new weights.
func (l Learning) Observe(t Telemetry, w Weights, now time.Time) Learning {
	samples := l.Samples
	if samples < 0 {
		samples = 0
	}
	l.AvgSpeed = RunningMean(l.AvgSpeed, common.NonNegative(t.Speed), samples)
	l.AvgDistance = RunningMean(l.AvgDistance, common.NonNegative(t.Distance), samples)
	l.Samples = samples + 1
	l.Weights = w
	l.LastUpdated = now.Unix()
	return l
}
