package chess

import (
	"time"

	"github.com/park285/cheese-analyzer/internal/chess/uci"
)

const (
	DefaultTimeBudget = 2 * time.Second
	DefaultVariations = 3
	MaxVariations     = 10
	MaxDepth          = 40
	minTimeBudget     = 10 * time.Millisecond

	// principalPlies caps the reported principal variation.
	principalPlies = 8
)

// Budget bounds one analysis request.
type Budget struct {
	Time       time.Duration
	Variations int
	// Depth is an optional hint; the engine stops at whichever limit comes first.
	Depth int
}

// withDefaults fills unset fields and clamps the rest into range.
func (b Budget) withDefaults() Budget {
	if b.Time <= 0 {
		b.Time = DefaultTimeBudget
	}
	if b.Time < minTimeBudget {
		b.Time = minTimeBudget
	}
	if b.Variations <= 0 {
		b.Variations = DefaultVariations
	}
	if b.Variations > MaxVariations {
		b.Variations = MaxVariations
	}
	if b.Depth < 0 {
		b.Depth = 0
	}
	if b.Depth > MaxDepth {
		b.Depth = MaxDepth
	}
	return b
}

func (b Budget) limits() uci.Limits {
	return uci.Limits{
		Depth:          b.Depth,
		MoveTimeMillis: int(b.Time / time.Millisecond),
	}
}

// Deadline is how long a caller should wait for a request with this budget
// before giving up on the engine.
func (b Budget) Deadline() time.Duration {
	b = b.withDefaults()
	return b.Time + 5*time.Second
}
