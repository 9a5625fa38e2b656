// Package prometheus renders authcore engine counters in the Prometheus text
// exposition format.
//
// [NewExporter] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// exposes an [http.Handler]. Counter names are authcore_*_total; the single
// histogram is authcore_validate_latency_seconds. Nothing is registered in a
// global registry; callers mount the handler themselves.
package prometheus
