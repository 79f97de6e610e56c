// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime counters and debug introspection for the platform
// core. Config is loaded once at startup from YAML; MetricsRegistry and
// DebugProbes are safe for concurrent use.
package control
