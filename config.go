package cmap

// table-wide configuration, following calltr_main.go's Config/Cfg pattern:
// a single struct set at Create() time and consulted by the hot paths.

// Config holds options that apply to every Table created with it.
type Config struct {
	// CaseInsensitiveKeys makes bucket lookups and the hasher treat keys
	// as case-insensitive text (via bytescase), instead of raw byte
	// equality. Off by default: the facade this module implements treats
	// keys as opaque zero-terminated byte strings.
	CaseInsensitiveKeys bool

	// Metrics, if non-nil, receives entry/notifier counters as the table
	// mutates. See cmap/cmetrics for the Prometheus-backed implementation.
	Metrics MetricsSink
}

// MetricsSink is the narrow interface Table pushes counters through; it is
// satisfied by *cmetrics.Collector but kept here so this package does not
// import Prometheus directly.
type MetricsSink interface {
	EntriesChanged(delta int)
	NotifyDispatched(event EventType)
	NotifyAllocFailed()
}

// DefaultConfig is used by Create when no Config is supplied.
var DefaultConfig = Config{}
