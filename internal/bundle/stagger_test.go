package bundle

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStagger_Offsets(t *testing.T) {
	t.Run("offsets stay within bounds and keep wallet order modulo jitter", func(t *testing.T) {
		s := Stagger{
			Base:      100 * time.Millisecond,
			Step:      300 * time.Millisecond,
			MaxJitter: 50 * time.Millisecond,
			Rand:      rand.New(rand.NewPCG(1, 2)),
		}

		for range 100 {
			got := s.Offsets(5)

			assert.Len(t, got, 5)
			for i, off := range got {
				low := s.Base + time.Duration(i)*s.Step
				assert.GreaterOrEqual(t, off, low)
				assert.LessOrEqual(t, off, low+s.MaxJitter)
				assert.LessOrEqual(t, off, s.Base+4*s.Step+s.MaxJitter)
				if i > 0 {
					assert.GreaterOrEqual(t, off+s.MaxJitter, got[i-1])
				}
			}
		}
	})

	t.Run("no jitter is deterministic", func(t *testing.T) {
		s := Stagger{Base: time.Second, Step: 10 * time.Millisecond}

		assert.Equal(t, []time.Duration{time.Second, time.Second + 10*time.Millisecond, time.Second + 20*time.Millisecond}, s.Offsets(3))
	})

	t.Run("global generator stays in range", func(t *testing.T) {
		s := Stagger{MaxJitter: time.Millisecond}

		for _, off := range s.Offsets(50) {
			assert.GreaterOrEqual(t, off, time.Duration(0))
			assert.LessOrEqual(t, off, time.Millisecond)
		}
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, DefaultStagger.Offsets(0))
	})
}
