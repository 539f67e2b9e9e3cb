package editor

import "math"

// Adjustments are multiplicative filters applied to the subject; 1.0 is a no-op.
type Adjustments struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

func DefaultAdjustments() Adjustments {
	return Adjustments{Brightness: 1, Contrast: 1, Saturation: 1}
}

func (a Adjustments) IsIdentity() bool {
	return a == DefaultAdjustments()
}

// AdjustmentPatch carries optional updates; nil fields are left alone.
type AdjustmentPatch struct {
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
}

// apply validates every field first so a bad value leaves a untouched.
func (a Adjustments) apply(p AdjustmentPatch) (Adjustments, error) {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"brightness", p.Brightness},
		{"contrast", p.Contrast},
		{"saturation", p.Saturation},
	} {
		if f.v == nil {
			continue
		}
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) || *f.v <= 0 {
			return a, invalid(f.name, "must be a positive number, got %v", *f.v)
		}
	}
	if p.Brightness != nil {
		a.Brightness = *p.Brightness
	}
	if p.Contrast != nil {
		a.Contrast = *p.Contrast
	}
	if p.Saturation != nil {
		a.Saturation = *p.Saturation
	}
	return a, nil
}
