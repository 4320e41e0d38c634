package metrics

import "math"

// WarmupSeconds is the elapsed time below which rate and ETA are withheld.
const WarmupSeconds = 10

// Derived holds the figures computed from a progress snapshot.
type Derived struct {
	ProgressPct   int     // 0..100
	RatePerMinute float64 // one decimal; 0 while unavailable
	RateAvailable bool
	ETASeconds    int // 0 while unknown
	ETAKnown      bool
}

// Compute derives progress percentage, rate and ETA from the absolute number
// of records found, the elapsed job time and the target record count. It is
// pure; callers recompute it on every snapshot change.
func Compute(found int, elapsedSeconds float64, target int) Derived {
	found = max(found, 0)

	var d Derived
	if target > 0 {
		d.ProgressPct = min(100, int(math.Round(float64(found)/float64(target)*100)))
	}

	if elapsedSeconds <= WarmupSeconds {
		return d
	}
	perSecond := float64(found) / elapsedSeconds
	d.RatePerMinute = math.Round(perSecond*60*10) / 10
	d.RateAvailable = true

	if found > 0 && found < target {
		d.ETASeconds = int(math.Round(float64(target-found) / perSecond))
		d.ETAKnown = true
	}
	return d
}
