package evaluator

import (
	"math/rand/v2"
	"sync"
)

// Percentage draws happen on the hot evaluation path, so workers must not
// serialize on a single generator. Each worker checks a generator out of a
// pool; the shared seed source is only locked while deriving seeds for a
// brand-new generator.
var (
	seedMu     sync.Mutex
	seedSource = rand.NewPCG(rand.Uint64(), rand.Uint64())

	generators = sync.Pool{New: func() any { return newGenerator() }}
)

func newGenerator() *rand.Rand {
	seedMu.Lock()
	s1 := seedSource.Uint64()
	s2 := seedSource.Uint64()
	seedMu.Unlock()
	return rand.New(rand.NewPCG(s1, s2))
}

// nextFloat returns a uniform value in [0, 1).
func nextFloat() float64 {
	gen := generators.Get().(*rand.Rand)
	f := gen.Float64()
	generators.Put(gen)
	return f
}
