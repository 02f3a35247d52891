package index

import "time"

// IndexPoint is one published index observation.
type IndexPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       float64   `json:"raw"`
	Smoothed  float64   `json:"smoothed"`
	Value     float64   `json:"value"`
}

// IndexState is the smoothing state carried from one cycle to the next.
// It is a value: Advance returns a new state and never mutates the receiver.
type IndexState struct {
	Initialized bool         `json:"initialized"`
	Smoothed    float64      `json:"smoothed"`
	Value       float64      `json:"value"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Cycles      uint64       `json:"cycles"`
	History     []IndexPoint `json:"history,omitempty"`
}

// Advance folds a new raw variance into the state. The first observation
// seeds the smoothed variance directly. At most historySize points are kept.
func (s IndexState) Advance(raw, lambda float64, at time.Time, historySize int) IndexState {
	smoothed := raw
	if s.Initialized {
		smoothed = EWMA(lambda, s.Smoothed, raw)
	}

	point := IndexPoint{
		Timestamp: at,
		Raw:       raw,
		Smoothed:  smoothed,
		Value:     IndexFromVariance(smoothed),
	}

	keep := len(s.History)
	if historySize > 0 && keep >= historySize {
		keep = historySize - 1
	}
	history := make([]IndexPoint, 0, keep+1)
	history = append(history, s.History[len(s.History)-keep:]...)
	history = append(history, point)

	return IndexState{
		Initialized: true,
		Smoothed:    smoothed,
		Value:       point.Value,
		UpdatedAt:   at,
		Cycles:      s.Cycles + 1,
		History:     history,
	}
}

// Latest returns the most recent history point.
func (s IndexState) Latest() (IndexPoint, bool) {
	if len(s.History) == 0 {
		return IndexPoint{}, false
	}
	return s.History[len(s.History)-1], true
}
