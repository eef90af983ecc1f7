package models

import (
	"fmt"
	"math"
)

// DefaultTrait is the value every trait takes when none is supplied.
const DefaultTrait = 0.5

// TraitProfile describes one simulated agent configuration.
// All four fields are kept within [0, 1]; use NewTraitProfile or Clamp to
// build one from untrusted values.
type TraitProfile struct {
	Aggression float64 `json:"aggression" yaml:"aggression"`
	Greed      float64 `json:"greed" yaml:"greed"`
	Safety     float64 `json:"safety" yaml:"safety"`
	Focus      float64 `json:"focus" yaml:"focus"`
}

// DefaultTraits returns the profile with every trait at DefaultTrait.
func DefaultTraits() TraitProfile {
	return TraitProfile{
		Aggression: DefaultTrait,
		Greed:      DefaultTrait,
		Safety:     DefaultTrait,
		Focus:      DefaultTrait,
	}
}

// NewTraitProfile returns a profile with each value clamped into [0, 1].
func NewTraitProfile(aggression, greed, safety, focus float64) TraitProfile {
	return TraitProfile{
		Aggression: aggression,
		Greed:      greed,
		Safety:     safety,
		Focus:      focus,
	}.Clamp()
}

// Clamp returns a copy with each trait forced into [0, 1].
// NaN traits are replaced by DefaultTrait.
func (t TraitProfile) Clamp() TraitProfile {
	return TraitProfile{
		Aggression: clampTrait(t.Aggression),
		Greed:      clampTrait(t.Greed),
		Safety:     clampTrait(t.Safety),
		Focus:      clampTrait(t.Focus),
	}
}

// Valid reports whether every trait is already within [0, 1].
func (t TraitProfile) Valid() bool {
	return t == t.Clamp()
}

// String renders the profile compactly for logs.
func (t TraitProfile) String() string {
	return fmt.Sprintf("aggression=%.3f greed=%.3f safety=%.3f focus=%.3f",
		t.Aggression, t.Greed, t.Safety, t.Focus)
}

// ToMap converts the profile into a generic map for JSON payloads.
func (t TraitProfile) ToMap() map[string]float64 {
	return map[string]float64{
		"aggression": t.Aggression,
		"greed":      t.Greed,
		"safety":     t.Safety,
		"focus":      t.Focus,
	}
}

// TraitsFromMap builds a clamped profile from a loosely typed payload.
// Missing or non-numeric fields fall back to DefaultTrait.
func TraitsFromMap(payload map[string]interface{}) TraitProfile {
	return NewTraitProfile(
		floatField(payload, "aggression"),
		floatField(payload, "greed"),
		floatField(payload, "safety"),
		floatField(payload, "focus"),
	)
}

func floatField(payload map[string]interface{}, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return DefaultTrait
	}
}

func clampTrait(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultTrait
	}
	return Clamp(v, 0, 1)
}

// Clamp forces v into [lo, hi]: values below lo become lo, values above hi
// become hi. Values already in range are returned unchanged.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
