package detection

import "time"

// maxSamplesPerBuffer bounds the reads held by one (tag, timing point)
// window. A tag parked in front of an antenna can produce hundreds of reads
// per second. Past the bound the held reads are thinned evenly across the
// whole window, so the earliest reads of a pass are never lost.
const maxSamplesPerBuffer = 1 << 14

type sample struct {
	at       time.Time
	rssi     float64
	readerID string
}

// sampleSet holds every stride-th read in arrival order.
type sampleSet struct {
	limit    int
	stride   int
	received int
	values   []sample
}

func newSampleSet(limit int) *sampleSet {
	// thinning keeps the next read only if limit is even
	if limit < 2 {
		limit = 2
	}
	limit += limit % 2
	return &sampleSet{
		limit:  limit,
		stride: 1,
		values: make([]sample, 0, 8),
	}
}

func (s *sampleSet) add(v sample) {
	if s.received%s.stride == 0 {
		if len(s.values) == s.limit {
			s.thin()
		}
		s.values = append(s.values, v)
	}
	s.received++
}

// thin drops every other held read and halves the rate of future ones.
func (s *sampleSet) thin() {
	kept := s.values[:0]
	for i := 0; i < len(s.values); i += 2 {
		kept = append(kept, s.values[i])
	}
	s.values = kept
	s.stride *= 2
}

func (s *sampleSet) len() int {
	return len(s.values)
}

// all returns the held reads in arrival order. The slice must not be
// modified.
func (s *sampleSet) all() []sample {
	return s.values
}
