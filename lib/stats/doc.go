// Package stats tracks frame throughput and frame size distribution for a stream.
//
// Key features include:
//   - Receive and delivery meters (total count, moving average and mean rates)
//   - Interval rates via Tick(), the frames-per-second figures logged by the pipeline
//   - Frame size histogram with percentile estimates, sampled to bound memory
//   - Thread-safe updates and snapshots
//
// Meters and histograms come from github.com/rcrowley/go-metrics.
package stats
