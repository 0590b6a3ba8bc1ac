package entropy

// riceState is a running, self-tuning Golomb-Rice parameter, one per
// context: count/errorSum evolve exactly as they do in a classic adaptive
// Golomb coder (grounded on the run-length/error-feedback state machine in
// other_examples/dwbuiten-go-ffv1__golomb.go's get_vlc_symbol), generalized
// to an already-unsigned symbol domain so there is no sign/bias/drift
// bookkeeping left to do.
type riceState struct {
	count    int32
	errorSum int32
}

func newRiceState() *riceState {
	return &riceState{count: 1, errorSum: 4}
}

// k returns the current Rice parameter: the smallest k such that
// count<<k >= errorSum, found the same way the reference implementation
// does, by doubling instead of dividing.
func (s *riceState) k() uint32 {
	var k uint32
	i := s.count
	for i < s.errorSum {
		k++
		i += i
	}
	return k
}

// update folds one more observed symbol magnitude into the running
// estimate, halving both accumulators once count saturates so the
// estimate keeps tracking a local, not global, average.
func (s *riceState) update(magnitude uint64) {
	m := magnitude
	const maxMagnitude = 1 << 30
	if m > maxMagnitude {
		m = maxMagnitude
	}
	s.errorSum += int32(m)
	if s.count == 128 {
		s.count >>= 1
		s.errorSum >>= 1
	}
	s.count++
}
