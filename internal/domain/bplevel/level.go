package bplevel

import (
	"fmt"
	"strings"
)

// Level is a blood-pressure classification band. The zero value is not a
// valid level; Classify always returns one of the seven declared constants.
type Level string

const (
	Optimal            Level = "optimal"
	Normal             Level = "normal"
	HighNormal         Level = "high_normal"
	Grade1             Level = "grade1"
	Grade2             Level = "grade2"
	Grade3             Level = "grade3"
	HypertensiveCrisis Level = "hypertensive_crisis"
)

// All lists the levels from lowest to highest severity.
var All = []Level{Optimal, Normal, HighNormal, Grade1, Grade2, Grade3, HypertensiveCrisis}

var ordinals = map[Level]int{
	Optimal:            0,
	Normal:             1,
	HighNormal:         2,
	Grade1:             3,
	Grade2:             4,
	Grade3:             5,
	HypertensiveCrisis: 6,
}

var labels = map[Level]string{
	Optimal:            "Optymalne",
	Normal:             "Normalne",
	HighNormal:         "Wysokie normalne",
	Grade1:             "Nadciśnienie I°",
	Grade2:             "Nadciśnienie II°",
	Grade3:             "Nadciśnienie III°",
	HypertensiveCrisis: "Przełom nadciśnieniowy",
}

func (l Level) String() string { return string(l) }

// Valid reports whether l is one of the seven declared levels.
func (l Level) Valid() bool {
	_, ok := ordinals[l]
	return ok
}

// Ordinal returns the severity rank of l, 0 for optimal up to 6 for a
// hypertensive crisis. Unknown levels return -1.
func (l Level) Ordinal() int {
	if o, ok := ordinals[l]; ok {
		return o
	}
	return -1
}

// Label returns the human-readable name used in exports.
func (l Level) Label() string {
	if s, ok := labels[l]; ok {
		return s
	}
	return string(l)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid blood pressure level %q", string(l))
	}
	return []byte(l), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses a canonical level name.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.TrimSpace(s))
	if !l.Valid() {
		return "", fmt.Errorf("invalid blood pressure level %q", s)
	}
	return l, nil
}

// ParseLevels parses a comma-separated list of level names, dropping
// duplicates while keeping first-seen order. An empty string yields nil.
func ParseLevels(s string) ([]Level, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := make(map[Level]bool)
	var out []Level
	for _, part := range strings.Split(s, ",") {
		l, err := ParseLevel(part)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out, nil
}
