// Package influxdb provides Parley's security metrics sink.
//
// Authentication events, topic authorization decisions, and token sweep
// results are written as InfluxDB points so operators can chart login
// failure rates, deny spikes, and token churn over time. The sink is
// optional and fails open: when disabled or unreachable, Parley's
// authorization path is unaffected and points are dropped silently.
package influxdb
