package clock

import "time"

// Mock is a fixed-time Clock for deterministic tests.
type Mock struct {
	T time.Time
}

func (m *Mock) Now() time.Time { return m.T }
func (m *Mock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- m.T.Add(d)
	return ch
}
func (m *Mock) Since(t time.Time) time.Duration { return m.T.Sub(t) }
