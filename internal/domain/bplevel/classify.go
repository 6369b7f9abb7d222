// Package bplevel classifies blood-pressure readings into the seven
// ESC/ESH 2023 severity bands.
//
// Bands are checked from most to least severe and the first match wins.
// Every band except hypertensive_crisis is an OR over the systolic and
// diastolic thresholds, so whichever reading is worse decides the result.
package bplevel

type band struct {
	level  Level
	sys    float64
	dia    float64
	bothOf bool
}

var bands = []band{
	{level: HypertensiveCrisis, sys: 180, dia: 120, bothOf: true},
	{level: Grade3, sys: 180, dia: 110},
	{level: Grade2, sys: 160, dia: 100},
	{level: Grade1, sys: 140, dia: 90},
	{level: HighNormal, sys: 130, dia: 85},
	{level: Normal, sys: 120, dia: 80},
}

// Classify returns the level for a systolic/diastolic pair in mmHg. It never
// fails: zero and negative readings fall through to Optimal.
func Classify(sys, dia int) Level {
	return ClassifyFloat(float64(sys), float64(dia))
}

// ClassifyFloat is Classify for fractional readings. NaN compares false
// against every threshold, so a NaN reading contributes nothing and a pair
// of NaNs is Optimal.
func ClassifyFloat(sys, dia float64) Level {
	for _, b := range bands {
		sysHit := sys >= b.sys
		diaHit := dia >= b.dia
		if b.bothOf {
			if sysHit && diaHit {
				return b.level
			}
			continue
		}
		if sysHit || diaHit {
			return b.level
		}
	}
	return Optimal
}
