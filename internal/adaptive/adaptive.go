// Package adaptive implements the sampling control plane: a per-correlation
// tier state machine, the cooldown scheduler that decays it over time, and
// the versioned config snapshot served to remote gates.
//
// A correlation id is HOT while someone is actively investigating it, WARM
// for a grace window afterwards, and COLD (absent) otherwise. Promotion is
// the only way forward; the scheduler only ever decays.
package adaptive

import "time"

type Tier int

const (
	Cold Tier = iota
	Warm
	Hot
)

func (t Tier) String() string {
	switch t {
	case Hot:
		return "hot"
	case Warm:
		return "warm"
	default:
		return "cold"
	}
}

type Params struct {
	HotTTL   time.Duration
	WarmTTL  time.Duration
	WarmRate float64
	ColdRate float64
	Tick     time.Duration
}

func DefaultParams() Params {
	return Params{
		HotTTL:   300 * time.Second,
		WarmTTL:  1500 * time.Second,
		WarmRate: 0.1,
		ColdRate: 0.0,
		Tick:     10 * time.Second,
	}
}

// Rate returns the sampling probability for a tier.
func (p Params) Rate(tier Tier) float64 {
	switch tier {
	case Hot:
		return 1.0
	case Warm:
		return p.WarmRate
	default:
		return p.ColdRate
	}
}
