package bundle

import (
	"math/rand/v2"
	"time"
)

// Stagger computes pipeline start offsets: wallet i starts after
// Base + i*Step + jitter, with jitter drawn independently per wallet from
// [0, MaxJitter].
type Stagger struct {
	Base      time.Duration
	Step      time.Duration
	MaxJitter time.Duration

	// Rand is the jitter source. Nil uses the process-wide generator.
	Rand *rand.Rand
}

// DefaultStagger spaces submissions 400ms apart with up to 250ms jitter.
var DefaultStagger = Stagger{
	Step:      400 * time.Millisecond,
	MaxJitter: 250 * time.Millisecond,
}

// Offsets returns n start offsets. Not safe for concurrent use when Rand is
// set.
func (s Stagger) Offsets(n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = s.Base + time.Duration(i)*s.Step + s.jitter()
	}
	return out
}

func (s Stagger) jitter() time.Duration {
	if s.MaxJitter <= 0 {
		return 0
	}
	if s.Rand != nil {
		return time.Duration(s.Rand.Int64N(int64(s.MaxJitter) + 1))
	}
	return time.Duration(rand.Int64N(int64(s.MaxJitter) + 1))
}
