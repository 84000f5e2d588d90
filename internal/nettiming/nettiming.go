// Package nettiming tracks a smoothed round-trip-time estimate for a
// sender's protocol steps, for observability only: the retry timeouts in
// internal/sender are the spec's fixed values and are never adjusted by
// this estimate.
package nettiming

import "time"

// Monitor keeps an exponentially-weighted moving average of round-trip
// time, the same smoothing constant as a TCP-style RTT estimator.
type Monitor struct {
	SmoothedRTT time.Duration
}

// Update folds one fresh round-trip sample into the running estimate.
func (m *Monitor) Update(latest time.Duration) {
	const alpha = 0.125
	if m.SmoothedRTT == 0 {
		m.SmoothedRTT = latest
		return
	}
	m.SmoothedRTT = time.Duration((1-alpha)*float64(m.SmoothedRTT) + alpha*float64(latest))
}

// Time runs step, recording its wall-clock duration as one RTT sample, and
// returns whatever step returns.
func (m *Monitor) Time(step func() error) error {
	start := time.Now()
	err := step()
	m.Update(time.Since(start))
	return err
}
