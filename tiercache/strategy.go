package tiercache

import "time"

// Strategy is the closed enumeration callers use to express a desired
// freshness window. It is the only language callers have for expressing a
// TTL; raw durations enter the system only through Custom.
type Strategy struct {
	kind strategyKind
	d    time.Duration
}

type strategyKind uint8

const (
	strategyRealTime strategyKind = iota
	strategyShortTerm
	strategyMediumTerm
	strategyLongTerm
	strategyCustom
)

// Predefined strategies and their resolved TTLs.
var (
	RealTime   = Strategy{kind: strategyRealTime}
	ShortTerm  = Strategy{kind: strategyShortTerm}
	MediumTerm = Strategy{kind: strategyMediumTerm}
	LongTerm   = Strategy{kind: strategyLongTerm}
)

const (
	realTimeTTL   = 10 * time.Second
	shortTermTTL  = 5 * time.Minute
	mediumTermTTL = time.Hour
	longTermTTL   = 3 * time.Hour
)

// Custom builds a strategy resolving to an exact duration.
func Custom(d time.Duration) Strategy {
	return Strategy{kind: strategyCustom, d: d}
}

// TTL resolves the strategy to a concrete, non-negative duration.
// A negative Custom duration is clamped to zero (immediately expired),
// matching the TTL invariant in the data model (§3: TTL is non-negative).
func (s Strategy) TTL() time.Duration {
	switch s.kind {
	case strategyRealTime:
		return realTimeTTL
	case strategyShortTerm:
		return shortTermTTL
	case strategyMediumTerm:
		return mediumTermTTL
	case strategyLongTerm:
		return longTermTTL
	case strategyCustom:
		if s.d < 0 {
			return 0
		}
		return s.d
	default:
		return 0
	}
}

// String names the strategy for logging.
func (s Strategy) String() string {
	switch s.kind {
	case strategyRealTime:
		return "real_time"
	case strategyShortTerm:
		return "short_term"
	case strategyMediumTerm:
		return "medium_term"
	case strategyLongTerm:
		return "long_term"
	case strategyCustom:
		return "custom(" + s.d.String() + ")"
	default:
		return "unknown"
	}
}
