// Package metrics defines the simulator's prometheus metrics, grounded on
// the tcpinfo_* package-level promauto vars in the reference TCP_INFO
// collector: sockets and bytes in flight, retransmits and drops, and the
// handshake/teardown funnel, all exposed on the admin HTTP surface
// (internal/gateway).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SocketsOpen tracks live sockets per protocol ("stream", "datagram").
	SocketsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vnet_sockets_open",
			Help: "Number of currently open sockets.",
		}, []string{"proto"})

	// PendingEvents tracks the event tracker's backlog per worker.
	PendingEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vnet_pending_events",
			Help: "Number of events currently queued in a worker's tracker.",
		}, []string{"worker"})

	// HandshakesTotal counts completed three-way handshakes.
	HandshakesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vnet_handshakes_total",
			Help: "Total number of completed TCP handshakes.",
		},
	)

	// RetransmitsTotal counts segments resent on a retransmit event,
	// whether raised by VCI's loss detection or a peer's out-of-window
	// check.
	RetransmitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vnet_retransmits_total",
			Help: "Total number of retransmitted segments.",
		})

	// PacketsDroppedTotal counts dropped packets, by reason (the transport
	// manager reports "inq_full" when its NIC queue refuses a packet).
	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnet_packets_dropped_total",
			Help: "Total number of packets dropped by the virtual communications interface.",
		}, []string{"reason"})

	// BytesTransferredTotal counts application bytes delivered, by direction.
	BytesTransferredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnet_bytes_transferred_total",
			Help: "Total application bytes delivered.",
		}, []string{"direction"})

	// CongestionWindow is a histogram of congestion window sizes (spec.md
	// 4.4.3); no package in this module observes into it.
	CongestionWindow = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnet_congestion_window_packets",
			Help:    "Distribution of observed congestion window sizes, in packets.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// RTTMillis samples measured round-trip times.
	RTTMillis = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnet_rtt_milliseconds",
			Help:    "Distribution of measured round-trip times, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)
