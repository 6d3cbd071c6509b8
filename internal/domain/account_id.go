package domain

import (
	"math/rand/v2"
)

const (
	MinAccountID = 10_000_000
	MaxAccountID = 99_999_999
)

// IDSource draws integers in [0, n).
type IDSource interface {
	Int64N(n int64) int64
}

// IDGenerator hands out random 8-digit account numbers.
type IDGenerator struct {
	src IDSource
}

func NewIDGenerator(src IDSource) *IDGenerator {
	if src == nil {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &IDGenerator{src: src}
}

// Generate draws uniformly from [MinAccountID, MaxAccountID] and resamples until the
// candidate is not in existing. Termination is probabilistic: there is no retry bound,
// and with a ledger far smaller than the 90 million id space a collision is rare.
func (g *IDGenerator) Generate(existing map[int]struct{}) int {
	for {
		candidate := MinAccountID + int(g.src.Int64N(MaxAccountID-MinAccountID+1))
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
