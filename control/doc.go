// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics, and debug introspection for a reactor-driven TCP
// server: typed connection tuning knobs with hot-reload listeners, atomic
// counters for accept/abort/byte-throughput telemetry, and a named-probe
// registry for ad hoc runtime state dumps.
package control
