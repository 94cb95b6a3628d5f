package futures

// rng is a linear-congruential generator modeled as a value: advancing it
// returns a new rng rather than mutating shared state, so per-iteration
// results stay independent of execution order under parallelism.
type rng struct {
	state int64
}

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgModulus    = 1 << 31
)

func newRNG(seed int64) rng {
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	return rng{state: s}
}

// next advances the generator and yields a uniform value in [0,1).
func (r rng) next() (rng, float64) {
	s := (r.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return rng{state: s}, float64(s) / float64(lcgModulus)
}

// noise yields a symmetric value in [-amp, +amp).
func (r rng) noise(amp float64) (rng, float64) {
	r2, u := r.next()
	return r2, (u - 0.5) * 2 * amp
}

// pick yields an index in [0, n).
func (r rng) pick(n int) (rng, int) {
	r2, u := r.next()
	i := int(u * float64(n))
	if i >= n {
		i = n - 1
	}
	return r2, i
}
