package stats

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

const (
	// sampleSize is the reservoir size of the frame size histogram
	sampleSize = 1028
	// sampleAlpha biases the reservoir towards the last five minutes
	sampleAlpha = 0.015
)

// Snapshot is a point-in-time view of the frame statistics
type Snapshot struct {
	Received          int64   `json:"received"`
	Delivered         int64   `json:"delivered"`
	ReceivedRate1     float64 `json:"received_rate1"`
	ReceivedRateMean  float64 `json:"received_rate_mean"`
	DeliveredRate1    float64 `json:"delivered_rate1"`
	DeliveredRateMean float64 `json:"delivered_rate_mean"`
	SizeMean          float64 `json:"size_mean"`
	SizeP50           float64 `json:"size_p50"`
	SizeP99           float64 `json:"size_p99"`
	SizeMax           int64   `json:"size_max"`
}

// FrameStats collects throughput and size statistics of a frame stream
type FrameStats struct {
	received  gometrics.Meter
	delivered gometrics.Meter
	sizes     gometrics.Histogram

	// state of the last Tick call
	mu            sync.Mutex
	lastTick      time.Time
	lastReceived  int64
	lastDelivered int64
}

// NewFrameStats creates an empty FrameStats. Call Stop when done to release the meters.
func NewFrameStats() *FrameStats {
	return &FrameStats{
		received:  gometrics.NewMeter(),
		delivered: gometrics.NewMeter(),
		sizes:     gometrics.NewHistogram(gometrics.NewExpDecaySample(sampleSize, sampleAlpha)),
		lastTick:  time.Now(),
	}
}

// Received records a frame of the given size read from the network
//
// Thread-safe: This method is safe for concurrent use
func (s *FrameStats) Received(size int) {
	s.received.Mark(1)
	s.sizes.Update(int64(size))
}

// Delivered records a frame handed to the sink
//
// Thread-safe: This method is safe for concurrent use
func (s *FrameStats) Delivered() {
	s.delivered.Mark(1)
}

// Tick returns the received and delivered frames per second since the previous Tick
// (or since creation for the first call).
//
// Thread-safe: This method is safe for concurrent use
func (s *FrameStats) Tick() (receivedFPS, deliveredFPS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastTick).Seconds()

	received := s.received.Count()
	delivered := s.delivered.Count()

	if elapsed > 0 {
		receivedFPS = float64(received-s.lastReceived) / elapsed
		deliveredFPS = float64(delivered-s.lastDelivered) / elapsed
	}

	s.lastTick = now
	s.lastReceived = received
	s.lastDelivered = delivered
	return receivedFPS, deliveredFPS
}

// Snapshot returns the current statistics
//
// Thread-safe: This method is safe for concurrent use
func (s *FrameStats) Snapshot() Snapshot {
	received := s.received.Snapshot()
	delivered := s.delivered.Snapshot()
	sizes := s.sizes.Snapshot()

	return Snapshot{
		Received:          received.Count(),
		Delivered:         delivered.Count(),
		ReceivedRate1:     received.Rate1(),
		ReceivedRateMean:  received.RateMean(),
		DeliveredRate1:    delivered.Rate1(),
		DeliveredRateMean: delivered.RateMean(),
		SizeMean:          sizes.Mean(),
		SizeP50:           sizes.Percentile(0.5),
		SizeP99:           sizes.Percentile(0.99),
		SizeMax:           sizes.Max(),
	}
}

// Stop stops the meters. The statistics stay readable.
func (s *FrameStats) Stop() {
	s.received.Stop()
	s.delivered.Stop()
}
