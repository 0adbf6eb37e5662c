// Package series holds the append-only time series recorded by a
// simulation session, one sample per scan.
package series

// Series is an append-only sequence of samples where index i is scan i.
// It has a single writer. Views handed out by View stay valid after later
// appends because samples are never modified in place.
type Series struct {
	name    string
	samples []float64
}

func New(name string, capacity int) *Series {
	return &Series{name: name, samples: make([]float64, 0, capacity)}
}

func (s *Series) Name() string { return s.name }

func (s *Series) Append(v float64) {
	s.samples = append(s.samples, v)
}

func (s *Series) Len() int { return len(s.samples) }

func (s *Series) At(i int) float64 { return s.samples[i] }

// Last returns the most recent sample and false when the series is empty.
func (s *Series) Last() (float64, bool) {
	if len(s.samples) == 0 {
		return 0, false
	}
	return s.samples[len(s.samples)-1], true
}

// View returns the current samples. The slice capacity is capped so an
// append by the caller reallocates instead of writing into shared storage.
func (s *Series) View() []float64 {
	n := len(s.samples)
	return s.samples[:n:n]
}

// Reset drops all samples. The old backing array is not reused, so views
// taken before the reset keep their contents.
func (s *Series) Reset() {
	s.samples = make([]float64, 0, cap(s.samples))
}
