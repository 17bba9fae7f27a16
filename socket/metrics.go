package socket

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Stats is a snapshot of a socket's counters.
type Stats struct {
	Sent         uint64
	Retries      uint64
	Dropped      uint64
	Received     uint64
	DecodeErrors uint64
	Discarded    uint64
}

// socketMetrics holds the counters of one socket. Each socket owns its set.
type socketMetrics struct {
	set *metrics.Set

	sent         *metrics.Counter
	retries      *metrics.Counter
	dropped      *metrics.Counter
	received     *metrics.Counter
	decodeErrors *metrics.Counter
	discarded    *metrics.Counter
}

func newSocketMetrics(s *Socket) *socketMetrics {
	set := metrics.NewSet()

	m := &socketMetrics{
		set:          set,
		sent:         set.NewCounter("tickwire_socket_packets_sent_total"),
		retries:      set.NewCounter("tickwire_socket_send_retries_total"),
		dropped:      set.NewCounter("tickwire_socket_packets_dropped_total"),
		received:     set.NewCounter("tickwire_socket_events_received_total"),
		decodeErrors: set.NewCounter("tickwire_socket_decode_errors_total"),
		discarded:    set.NewCounter("tickwire_socket_events_discarded_total"),
	}

	set.NewGauge("tickwire_socket_outgoing_queue_length", func() float64 {
		return float64(s.outgoing.Len())
	})
	set.NewGauge("tickwire_socket_incoming_queue_length", func() float64 {
		return float64(s.incoming.Len())
	})

	return m
}

func (m *socketMetrics) stats() Stats {
	return Stats{
		Sent:         m.sent.Get(),
		Retries:      m.retries.Get(),
		Dropped:      m.dropped.Get(),
		Received:     m.received.Get(),
		DecodeErrors: m.decodeErrors.Get(),
		Discarded:    m.discarded.Get(),
	}
}

// Metrics returns the socket's metrics set.
func (s *Socket) Metrics() *metrics.Set {
	return s.metrics.set
}

// WriteMetrics writes the socket's metrics in Prometheus text format.
func (s *Socket) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}

// Stats returns a snapshot of the socket's counters.
func (s *Socket) Stats() Stats {
	return s.metrics.stats()
}
