// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts frames read from the link driver
	FramesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ethresponder_frames_received_total",
			Help: "Total number of frames received from the link driver",
		},
	)

	// FramesTransmittedTotal counts reply frames handed to the driver by protocol
	FramesTransmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethresponder_frames_transmitted_total",
			Help: "Total number of reply frames transmitted",
		},
		[]string{"protocol"},
	)

	// FramesDroppedTotal counts frames or replies abandoned during dispatch
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethresponder_frames_dropped_total",
			Help: "Total number of frames dropped by reason",
		},
		[]string{"reason"},
	)

	// DriverErrorsTotal counts link driver errors by operation
	DriverErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethresponder_driver_errors_total",
			Help: "Total number of link driver errors",
		},
		[]string{"op"},
	)

	// ARPCacheEntries tracks the number of learned link addresses
	ARPCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ethresponder_arp_cache_entries",
			Help: "Number of entries in the address resolution cache",
		},
	)

	// LEDState tracks the output level of the LED resource
	LEDState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ethresponder_led_state",
			Help: "Current LED output level (0=off, 1=on)",
		},
	)

	// EventsDroppedTotal counts LED events discarded because the queue was full
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethresponder_events_dropped_total",
			Help: "Total number of LED events dropped by publisher",
		},
		[]string{"publisher"},
	)

	// DispatchSeconds measures the time spent dispatching one frame
	DispatchSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ethresponder_dispatch_seconds",
			Help:    "Time spent dispatching one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)
)

// Drop reasons used with FramesDroppedTotal.
const (
	DropMalformed   = "malformed"
	DropWrongKind   = "wrong_kind"
	DropChecksum    = "checksum"
	DropCacheMiss   = "cache_miss"
	DropTooLarge    = "too_large"
	DropUnsupported = "unsupported"
)
