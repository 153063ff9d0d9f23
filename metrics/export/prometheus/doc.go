// Package prometheus serves goRemote engine metrics in Prometheus text
// exposition format.
//
// [New] takes any [Source] (usually the *goRemote.Engine) and [Exporter.Handler]
// renders every counter on each scrape. Counter names are goremote_*_total;
// the latency histogram is goremote_operation_latency_seconds and is present
// only when latency histograms are enabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
