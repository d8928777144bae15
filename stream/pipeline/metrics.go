package pipeline

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// pipelineMetrics holds the prometheus metrics of one pipeline.
// Every pipeline owns its set, so several pipelines can live in one process.
type pipelineMetrics struct {
	set *metrics.Set

	framesReceived  *metrics.Counter
	framesDelivered *metrics.Counter
	bytesReceived   *metrics.Counter
	connections     *metrics.Counter
	connectionsLost *metrics.Counter
	peerStops       *metrics.Counter
	frameSize       *metrics.Histogram
	sinkDuration    *metrics.Histogram
}

// newPipelineMetrics registers the metrics of pipeline p.
// drops and state are read lazily when the set is written.
func newPipelineMetrics(p *Pipeline) *pipelineMetrics {
	set := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf(`dstream_%s{pipeline=%q}`, metric, p.config.Name)
	}

	m := &pipelineMetrics{
		set:             set,
		framesReceived:  set.NewCounter(name("frames_received_total")),
		framesDelivered: set.NewCounter(name("frames_delivered_total")),
		bytesReceived:   set.NewCounter(name("bytes_received_total")),
		connections:     set.NewCounter(name("connections_total")),
		connectionsLost: set.NewCounter(name("connections_lost_total")),
		peerStops:       set.NewCounter(name("peer_stops_total")),
		frameSize:       set.NewHistogram(name("frame_size_bytes")),
		sinkDuration:    set.NewHistogram(name("sink_duration_seconds")),
	}

	set.NewGauge(name("frames_dropped_total"), func() float64 {
		return float64(p.slot.Stats().Drops)
	})
	set.NewGauge(name("state"), func() float64 {
		return float64(p.State())
	})

	return m
}

// WritePrometheus writes the metrics of the pipeline in prometheus text format
func (p *Pipeline) WritePrometheus(w io.Writer) {
	p.metrics.set.WritePrometheus(w)
}
