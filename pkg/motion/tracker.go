// Package motion tracks device orientation samples and verifies that
// device motion agrees with face-derived head movement. Agreement is
// the anti-spoofing backstop: a printed photo or screen replay held in
// front of the camera cannot make the device itself move consistently
// with the apparent head motion.
package motion

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/veridianhq/facelive/pkg/logging"
)

// Reading is one orientation sample in degrees. The same shape is used
// for device-sensor samples and face-derived head-angle readings.
type Reading struct {
	Yaw       float64
	Pitch     float64
	Roll      float64
	Timestamp time.Time
}

// Config holds correlation verification settings.
type Config struct {
	// CorrelationThreshold is the minimum Pearson correlation (best
	// axis) for verification to succeed.
	CorrelationThreshold float64
	// MinSamplePairs is the minimum number of merged sample pairs
	// required before correlation is meaningful.
	MinSamplePairs int
	// MergeTolerance is the maximum timestamp distance when pairing a
	// head reading with a device sample.
	MergeTolerance time.Duration
	// Window bounds how long samples are retained.
	Window time.Duration
}

// DefaultConfig returns conservative correlation settings.
func DefaultConfig() Config {
	return Config{
		CorrelationThreshold: 0.6,
		MinSamplePairs:       8,
		MergeTolerance:       150 * time.Millisecond,
		Window:               60 * time.Second,
	}
}

// Tracker accumulates device orientation samples over the life of a
// session. Recording runs on the sensor callback cadence, concurrently
// with frame processing, so all access is mutex-guarded.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	samples []Reading
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// Record appends a device orientation sample, discarding samples older
// than the configured window.
func (t *Tracker) Record(r Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, r)
	t.prune(r.Timestamp)
}

// prune drops samples that fell out of the window. Caller holds mu.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	firstValid := 0
	for firstValid < len(t.samples) && t.samples[firstValid].Timestamp.Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		t.samples = append(t.samples[:0], t.samples[firstValid:]...)
	}
}

// Len returns the number of retained samples.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Reset clears all accumulated samples.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}

// VerifyCorrelation checks whether accumulated device motion is
// consistent with the given face-derived head-angle readings.
// Returns the verification outcome and the correlation score of the
// best-correlated axis. Too few merged pairs fails verification:
// absence of motion evidence cannot prove motion.
func (t *Tracker) VerifyCorrelation(head []Reading) (bool, float64) {
	t.mu.Lock()
	device := make([]Reading, len(t.samples))
	copy(device, t.samples)
	t.mu.Unlock()

	pairs := mergeByTimestamp(head, device, t.cfg.MergeTolerance)
	if len(pairs) < t.cfg.MinSamplePairs {
		logging.Component("motion").Debugf(
			"insufficient merged sample pairs: %d < %d", len(pairs), t.cfg.MinSamplePairs)
		return false, 0
	}

	score := correlationScore(pairs)
	ok := score >= t.cfg.CorrelationThreshold

	logging.Component("motion").WithFields(logging.Fields{
		"pairs":     len(pairs),
		"score":     score,
		"threshold": t.cfg.CorrelationThreshold,
	}).Debug("motion correlation computed")

	return ok, score
}

// pair holds time-aligned head and device readings.
type pair struct {
	head   Reading
	device Reading
}

// mergeByTimestamp pairs each head reading with the nearest device
// sample within tolerance. The two streams arrive on independent
// cadences, so merging is by time, never by call order.
func mergeByTimestamp(head, device []Reading, tolerance time.Duration) []pair {
	if len(head) == 0 || len(device) == 0 {
		return nil
	}

	sorted := make([]Reading, len(device))
	copy(sorted, device)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var pairs []pair
	for _, h := range head {
		idx := sort.Search(len(sorted), func(i int) bool {
			return !sorted[i].Timestamp.Before(h.Timestamp)
		})

		best := -1
		bestDelta := tolerance + 1
		for _, cand := range []int{idx - 1, idx} {
			if cand < 0 || cand >= len(sorted) {
				continue
			}
			delta := absDuration(sorted[cand].Timestamp.Sub(h.Timestamp))
			if delta <= tolerance && delta < bestDelta {
				best = cand
				bestDelta = delta
			}
		}

		if best >= 0 {
			pairs = append(pairs, pair{head: h, device: sorted[best]})
		}
	}

	return pairs
}

// correlationScore returns the strongest absolute Pearson correlation
// across the yaw, pitch, and roll axes. The device may be rotated
// about any single axis during the challenges; one strongly agreeing
// axis is sufficient evidence of physical co-movement.
func correlationScore(pairs []pair) float64 {
	n := len(pairs)
	headYaw := make([]float64, n)
	headPitch := make([]float64, n)
	headRoll := make([]float64, n)
	devYaw := make([]float64, n)
	devPitch := make([]float64, n)
	devRoll := make([]float64, n)

	for i, p := range pairs {
		headYaw[i] = p.head.Yaw
		headPitch[i] = p.head.Pitch
		headRoll[i] = p.head.Roll
		devYaw[i] = p.device.Yaw
		devPitch[i] = p.device.Pitch
		devRoll[i] = p.device.Roll
	}

	score := math.Abs(pearson(headYaw, devYaw))
	if v := math.Abs(pearson(headPitch, devPitch)); v > score {
		score = v
	}
	if v := math.Abs(pearson(headRoll, devRoll)); v > score {
		score = v
	}
	return score
}

// pearson computes the Pearson correlation coefficient of two equal
// length series. Zero-variance series yield 0, not NaN.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n == 0 || len(a) != len(b) {
		return 0
	}

	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
