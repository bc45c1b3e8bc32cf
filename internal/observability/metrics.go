package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "opened_total",
			Help:      "Connections handed to the engine.",
		},
		[]string{"role"},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "closed_total",
			Help:      "Connections that reached the terminal state.",
		},
		[]string{"role", "cause"},
	)
	messagesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "messages_read_total",
			Help:      "Messages parsed off the read half.",
		},
	)
	messagesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "messages_written_total",
			Help:      "Messages serialized onto the write half.",
		},
	)
	writeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "write_failures_total",
			Help:      "Per-message write failures reported to submitters.",
		},
	)
	readErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "conn",
			Name:      "read_errors_total",
			Help:      "Read failures by classification.",
		},
		[]string{"kind"},
	)
)

const (
	ReadErrorKindStream = "stream"
	ReadErrorKindFatal  = "fatal"

	CloseCauseShutdown = "shutdown"
	CloseCauseFatal    = "fatal_read"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsOpened,
			connectionsClosed,
			messagesRead,
			messagesWritten,
			writeFailures,
			readErrors,
		)
	})
}

func RecordConnectionOpened(role string) {
	RegisterMetrics()
	connectionsOpened.WithLabelValues(role).Inc()
}

func RecordConnectionClosed(role, cause string) {
	RegisterMetrics()
	connectionsClosed.WithLabelValues(role, cause).Inc()
}

func RecordMessageRead() {
	RegisterMetrics()
	messagesRead.Inc()
}

func RecordMessageWritten() {
	RegisterMetrics()
	messagesWritten.Inc()
}

func RecordWriteFailure() {
	RegisterMetrics()
	writeFailures.Inc()
}

func RecordReadError(kind string) {
	RegisterMetrics()
	readErrors.WithLabelValues(kind).Inc()
}
