// Package monitor serves the runtime state of the stream pipelines over http.
//
// Routes:
//
//	GET /health         liveness probe
//	GET /metrics        prometheus metrics of all pipelines (VictoriaMetrics format)
//	GET /status         JSON stats of all pipelines
//	GET /params         JSON list of parameter names
//	GET /params/{name}  latest raw payload of a parameter
//
// With Config.Debug every request is logged.
package monitor
