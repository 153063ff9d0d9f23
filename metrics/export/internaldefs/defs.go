package internaldefs

import (
	goRemote "github.com/MrEthical07/goRemote"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goRemote.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goRemote.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters.
const AuditDroppedName = "goremote_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: goRemote.MetricSSHConnectSuccess, Name: "goremote_ssh_connect_success_total", Help: "Successful SSH connects."},
	{ID: goRemote.MetricSSHConnectFailure, Name: "goremote_ssh_connect_failure_total", Help: "Failed SSH connects."},
	{ID: goRemote.MetricTCPConnectSuccess, Name: "goremote_tcp_connect_success_total", Help: "Successful TCP connects."},
	{ID: goRemote.MetricTCPConnectFailure, Name: "goremote_tcp_connect_failure_total", Help: "Failed TCP connects."},
	{ID: goRemote.MetricPoolHit, Name: "goremote_pool_hit_total", Help: "Operations served by a pooled live connection."},
	{ID: goRemote.MetricReconnect, Name: "goremote_reconnect_total", Help: "Connections re-established from vaulted parameters."},
	{ID: goRemote.MetricReconnectFailure, Name: "goremote_reconnect_failure_total", Help: "Failed reconnect attempts."},
	{ID: goRemote.MetricOperationTimeout, Name: "goremote_operation_timeout_total", Help: "Operations that hit their deadline."},
	{ID: goRemote.MetricTransportError, Name: "goremote_transport_error_total", Help: "Operations that failed at the connection level."},
	{ID: goRemote.MetricSessionExpired, Name: "goremote_session_expired_total", Help: "Sessions evicted after their idle TTL."},
	{ID: goRemote.MetricSessionUnknown, Name: "goremote_session_unknown_total", Help: "Operations naming an unknown or expired session."},
	{ID: goRemote.MetricDisconnect, Name: "goremote_disconnect_total", Help: "Explicit disconnects."},
	{ID: goRemote.MetricConnectThrottled, Name: "goremote_connect_throttled_total", Help: "Connects refused by the failed-connect throttle."},
}

// HistogramDefs lists every engine histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: goRemote.MetricOperationLatency, Name: "goremote_operation_latency_seconds", Help: "Tool operation latency histogram."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.01",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is a name-safe form of [HistogramBounds].
var HistogramBoundSuffix = []string{
	"0_01",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
