// Package detection defines the detector output contract: the Detection record,
// its wire form and the anomaly predicate used by profile statistics.
package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed indicates detector output that is not a JSON array of detections.
var ErrMalformed = errors.New("malformed detection output")

// BBox is a bounding box in pixel units.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object instance reported by the detector.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Color      string  `json:"color,omitempty"`
}

// Parse decodes detector stdout. Blank output is an empty result. Anything
// other than a single JSON array of detections with confidences in [0,1]
// returns ErrMalformed. Emission order is preserved.
func Parse(raw []byte) ([]Detection, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []Detection{}, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformed)
	}

	var out []Detection
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformed)
	}
	for i, d := range out {
		// NaN fails both comparisons.
		if !(d.Confidence >= 0 && d.Confidence <= 1) {
			return nil, fmt.Errorf("%w: detection %d confidence %v out of range", ErrMalformed, i, d.Confidence)
		}
	}
	if out == nil {
		out = []Detection{}
	}
	return out, nil
}

// Encode serializes detections for persistence. A nil slice encodes as "[]".
func Encode(ds []Detection) (string, error) {
	if ds == nil {
		ds = []Detection{}
	}
	b, err := json.Marshal(ds)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HasClass reports whether any detection's class equals label, ignoring case.
func HasClass(ds []Detection, label string) bool {
	for _, d := range ds {
		if strings.EqualFold(d.Class, label) {
			return true
		}
	}
	return false
}

// IsAnomalous reports whether a persisted detection list contains label.
// Unparsable input is not anomalous.
func IsAnomalous(serialized, label string) bool {
	var ds []Detection
	if err := json.Unmarshal([]byte(serialized), &ds); err != nil {
		return false
	}
	return HasClass(ds, label)
}
